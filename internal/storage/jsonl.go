package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLWriter appends one line per decision to a local file.
type JSONLWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// OpenJSONL opens (or creates) path for appending, creating parent
// directories as needed.
func OpenJSONL(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("OpenJSONL: create directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("OpenJSONL: open file: %w", err)
	}
	return &JSONLWriter{path: path, file: file}, nil
}

// Name identifies the sink in metrics and errors.
func (w *JSONLWriter) Name() string { return "jsonl" }

// Path returns the file being appended to.
func (w *JSONLWriter) Path() string { return w.path }

// Write appends rec as a single line and syncs it to disk. A cancelled
// context is honored before the file is touched.
func (w *JSONLWriter) Write(ctx context.Context, rec *Record) error {
	line := EncodeLine(rec)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("jsonl: %w", err)
	}
	if w.file == nil {
		return fmt.Errorf("jsonl: %w", os.ErrClosed)
	}
	if _, err := w.file.Write(line); err != nil {
		return fmt.Errorf("jsonl: write record: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("jsonl: sync: %w", err)
	}
	return nil
}

// Close closes the underlying file. Later writes fail with os.ErrClosed.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
