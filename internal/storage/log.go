package storage

import (
	"context"

	"go.uber.org/zap"
)

// LogWriter is a fallback DecisionWriter for local development. It logs each
// decision as a structured zap entry.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs decisions to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

// Name identifies the sink in metrics and errors.
func (w *LogWriter) Name() string { return "log" }

func (w *LogWriter) Write(_ context.Context, rec *Record) error {
	w.logger.Info("decision",
		zap.String("trace_id", rec.TraceID),
		zap.String("profile", rec.Profile),
		zap.Float64("y", rec.Y),
		zap.Float64("z", rec.Z),
		zap.Float64("f", rec.F),
		zap.String("risk_band", rec.RiskBand),
		zap.Strings("triggers", rec.Triggers),
		zap.String("hex", rec.Hex),
	)
	return nil
}

func (w *LogWriter) Close() error { return nil }
