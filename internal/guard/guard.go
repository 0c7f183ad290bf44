// Package guard sequences signal extraction, scoring and the optional
// decision log append, and interprets decisions as block/rewrite actions.
package guard

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Doctor0Evil/WordMath/internal/config"
	"github.com/Doctor0Evil/WordMath/internal/engine"
	"github.com/Doctor0Evil/WordMath/internal/features"
	"github.com/Doctor0Evil/WordMath/internal/metrics"
	"github.com/Doctor0Evil/WordMath/internal/storage"
)

const tracerName = "github.com/Doctor0Evil/WordMath/internal/guard"

// LogError reports a failed decision log append. The decision returned
// alongside it is complete and valid.
type LogError struct {
	TraceID string
	Err     error
}

func (e *LogError) Error() string {
	return fmt.Sprintf("decision log append failed for trace %s: %v", e.TraceID, e.Err)
}

func (e *LogError) Unwrap() error { return e.Err }

// Guard is immutable after New and safe for concurrent use. A configuration
// change means building a new Guard.
type Guard struct {
	cfg        config.Config
	profile    string
	evaluator  *engine.Evaluator
	ids        engine.TraceSource
	writer     storage.DecisionWriter
	ownsWriter bool
	logger     *zap.Logger
	metrics    *metrics.Recorder
	tracer     trace.Tracer
	now        func() time.Time
}

// Option customizes a Guard.
type Option func(*Guard)

// WithWriter sets the decision sink. The caller keeps ownership of w.
func WithWriter(w storage.DecisionWriter) Option {
	return func(g *Guard) { g.writer = w }
}

// WithTraceSource sets the trace token generator.
func WithTraceSource(ids engine.TraceSource) Option {
	return func(g *Guard) { g.ids = ids }
}

// WithLogger sets the process logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(g *Guard) { g.metrics = r }
}

// WithTracer overrides the OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(g *Guard) { g.tracer = t }
}

// WithClock sets the clock used for log record timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithProfile names the configuration profile this guard was built from.
func WithProfile(name string) Option {
	return func(g *Guard) { g.profile = name }
}

// New builds a guard from cfg. An unknown scoring variant fails here with
// engine.ErrUnknownVariant. When logging is enabled and no writer was given,
// the guard opens cfg.Experiment.OutputPath itself and closes it on Close.
func New(cfg config.Config, opts ...Option) (*Guard, error) {
	formula, err := engine.ParseFormula(cfg.EngineScoring())
	if err != nil {
		return nil, fmt.Errorf("guard.New: %w", err)
	}

	g := &Guard{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer(tracerName)
	}
	g.evaluator = engine.NewEvaluator(formula, cfg.EngineThresholds(), g.ids)

	if cfg.ShouldLog() && g.writer == nil {
		w, err := storage.OpenJSONL(cfg.Experiment.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("guard.New: %w", err)
		}
		g.writer = w
		g.ownsWriter = true
	}

	return g, nil
}

// Config returns the configuration the guard was built with.
func (g *Guard) Config() config.Config { return g.cfg }

// Profile returns the profile name, empty for the default guard.
func (g *Guard) Profile() string { return g.profile }

// Assess extracts both signals, scores them and, when enabled, appends one
// decision record.
//
// A shape mismatch between the vectors returns features.ErrShapeMismatch and
// no decision. A failed log append returns the decision together with a
// *LogError.
func (g *Guard) Assess(ctx context.Context, tokens []string, message, topic []float64) (engine.Decision, error) {
	start := time.Now()

	ctx, span := g.tracer.Start(ctx, "Guard.Assess",
		trace.WithAttributes(
			attribute.String("wordmath.profile", g.profile),
			attribute.Int("wordmath.tokens", len(tokens)),
			attribute.Int("wordmath.dims", len(message)),
		))
	defer span.End()

	y, z, err := features.Signals(tokens, message, topic)
	if err != nil {
		g.metrics.InputError()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return engine.Decision{}, fmt.Errorf("Assess: %w", err)
	}

	d := g.evaluator.Evaluate(y, z)

	var logErr error
	if g.cfg.ShouldLog() {
		logErr = g.appendLog(ctx, d)
		if logErr != nil {
			span.RecordError(logErr)
		}
	}

	span.SetAttributes(
		attribute.Float64("wordmath.y", d.Y),
		attribute.Float64("wordmath.z", d.Z),
		attribute.Float64("wordmath.f", d.F),
		attribute.String("wordmath.risk_band", d.Band.String()),
		attribute.StringSlice("wordmath.triggers", d.TriggerNames()),
	)
	g.metrics.ObserveDecision(d.Band.String(), d.TriggerNames(), d.F, time.Since(start))

	return d, logErr
}

// Record converts a decision into the persisted log record.
func (g *Guard) Record(d engine.Decision) *storage.Record {
	return &storage.Record{
		Timestamp: g.now().UTC(),
		Y:         d.Y,
		Z:         d.Z,
		F:         d.F,
		RiskBand:  d.Band.String(),
		Triggers:  d.TriggerNames(),
		Hex:       storage.HexTag(g.cfg.Logging.HexNamespace, d.TraceID),
		TraceID:   d.TraceID,
		Profile:   g.profile,
	}
}

func (g *Guard) appendLog(ctx context.Context, d engine.Decision) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.EffectiveWriteTimeout())
	defer cancel()

	err := g.writer.Write(ctx, g.Record(d))
	if err == nil {
		return nil
	}

	sinks := storage.FailedSinks(err)
	if len(sinks) == 0 {
		sinks = []string{storage.SinkName(g.writer)}
	}
	for _, s := range sinks {
		g.metrics.LogWriteError(s)
	}
	g.logger.Error("decision log append failed",
		zap.String("trace_id", d.TraceID),
		zap.String("profile", g.profile),
		zap.Strings("sinks", sinks),
		zap.Error(err),
	)
	return &LogError{TraceID: d.TraceID, Err: err}
}

// ShouldBlock reports whether d must be blocked.
func (g *Guard) ShouldBlock(d engine.Decision) bool { return ShouldBlock(d) }

// ShouldRewrite reports whether d must be rewritten.
func (g *Guard) ShouldRewrite(d engine.Decision) bool { return ShouldRewrite(d) }

// Close releases the writer the guard opened itself.
func (g *Guard) Close() error {
	if g.ownsWriter && g.writer != nil {
		return g.writer.Close()
	}
	return nil
}
