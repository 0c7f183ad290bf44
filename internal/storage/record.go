package storage

import (
	"context"
	"errors"
	"time"
)

// ErrBufferFull is returned by asynchronous writers when a record had to be
// dropped because the queue was full.
var ErrBufferFull = errors.New("decision buffer full")

// DecisionWriter persists decision records. Implementations serialize their
// own appends so concurrent callers never interleave records.
type DecisionWriter interface {
	Write(ctx context.Context, rec *Record) error
	Close() error
}

// Record is one persisted decision. The JSONL line carries only the fields
// of the established log layout; TraceID and Profile feed the database sinks.
type Record struct {
	Timestamp time.Time
	Y         float64
	Z         float64
	F         float64
	RiskBand  string
	Triggers  []string
	Hex       string // "<namespace>[<trace>]"
	TraceID   string
	Profile   string
}

// HexTag renders a trace token inside its namespace.
func HexTag(namespace, traceID string) string {
	return namespace + "[" + traceID + "]"
}

// SinkError attributes a write failure to a named sink.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return e.Sink + ": " + e.Err.Error() }

func (e *SinkError) Unwrap() error { return e.Err }

// SinkName returns w's name when it has one, "unknown" otherwise.
func SinkName(w DecisionWriter) string {
	if n, ok := w.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "unknown"
}
