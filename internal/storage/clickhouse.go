package storage

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseTableDDL creates the analytics table the writer inserts into.
const ClickHouseTableDDL = `
CREATE TABLE IF NOT EXISTS wordmath_decisions (
	timestamp DateTime64(6, 'UTC'),
	trace_id  String,
	profile   LowCardinality(String),
	y         Float64,
	z         Float64,
	f         Float64,
	risk_band LowCardinality(String),
	triggers  Array(LowCardinality(String)),
	hex       String
) ENGINE = MergeTree
ORDER BY (profile, timestamp)`

// ClickHouseWriter inserts decisions into ClickHouse asynchronously.
// Records are queued and batch-inserted by a background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *Record
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewClickHouseWriter connects, ensures the table exists and starts the
// background flush loop.
func NewClickHouseWriter(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := prepareConn(ctx, conn); err != nil {
		return nil, err
	}

	return newClickHouseWriter(conn, logger), nil
}

// prepareConn checks the connection and creates the table. conn is closed
// when either step fails.
func prepareConn(ctx context.Context, conn driver.Conn) error {
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return err
	}
	if err := conn.Exec(ctx, ClickHouseTableDDL); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

func newClickHouseWriter(conn driver.Conn, logger *zap.Logger) *ClickHouseWriter {
	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *Record, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go w.flushLoop()
	return w
}

// Name identifies the sink in metrics and errors.
func (w *ClickHouseWriter) Name() string { return "clickhouse" }

// Write queues rec for insertion without blocking. When the queue is full the
// record is dropped and ErrBufferFull is returned.
func (w *ClickHouseWriter) Write(_ context.Context, rec *Record) error {
	select {
	case w.buffer <- rec:
		return nil
	default:
		w.logger.Warn("clickhouse buffer full, dropping decision",
			zap.String("trace_id", rec.TraceID),
		)
		return ErrBufferFull
	}
}

// Close drains queued records (up to drainTimeout) and closes the
// connection. Later calls return the first result.
func (w *ClickHouseWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		<-w.flushed
		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*Record, 0, flushBatch)

	for {
		select {
		case rec := <-w.buffer:
			batch = append(batch, rec)
			if len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case rec := <-w.buffer:
					batch = append(batch, rec)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *ClickHouseWriter) flush(records []*Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO wordmath_decisions (
			timestamp, trace_id, profile, y, z, f, risk_band, triggers, hex
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, r := range records {
		triggers := r.Triggers
		if triggers == nil {
			triggers = []string{}
		}
		if err := batch.Append(
			r.Timestamp,
			r.TraceID,
			r.Profile,
			r.Y,
			r.Z,
			r.F,
			r.RiskBand,
			triggers,
			r.Hex,
		); err != nil {
			w.logger.Error("clickhouse append decision failed",
				zap.String("trace_id", r.TraceID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(records)),
			zap.Error(err),
		)
	}
}
