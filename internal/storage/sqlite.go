package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS decision_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id   TEXT NOT NULL,
	profile    TEXT,
	y          REAL NOT NULL,
	z          REAL NOT NULL,
	f          REAL NOT NULL,
	risk_band  TEXT NOT NULL,
	triggers   TEXT NOT NULL,
	hex        TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

// SQLiteWriter stores decisions in a local SQLite database. Each record is a
// single INSERT, so appends never interleave.
type SQLiteWriter struct {
	db *sql.DB
}

// OpenSQLite opens the database at path (":memory:" is allowed) and creates
// the decision_log table if needed.
func OpenSQLite(ctx context.Context, path string) (*SQLiteWriter, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("OpenSQLite: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("OpenSQLite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("OpenSQLite: create table: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

// Name identifies the sink in metrics and errors.
func (w *SQLiteWriter) Name() string { return "sqlite" }

// DB exposes the handle for read queries.
func (w *SQLiteWriter) DB() *sql.DB { return w.db }

// Write inserts rec into decision_log.
func (w *SQLiteWriter) Write(ctx context.Context, rec *Record) error {
	triggers := rec.Triggers
	if triggers == nil {
		triggers = []string{}
	}
	triggersJSON, err := json.Marshal(triggers)
	if err != nil {
		return fmt.Errorf("sqlite: marshal triggers: %w", err)
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = w.db.ExecContext(ctx,
		`INSERT INTO decision_log (trace_id, profile, y, z, f, risk_band, triggers, hex, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID,
		nullIfEmpty(rec.Profile),
		rec.Y,
		rec.Z,
		rec.F,
		rec.RiskBand,
		string(triggersJSON),
		rec.Hex,
		ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert decision: %w", err)
	}
	return nil
}

// Close closes the database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
