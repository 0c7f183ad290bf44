package storage

import (
	"context"

	"go.uber.org/multierr"
)

// MultiWriter fans a record out to several sinks. Every sink is attempted;
// failures are combined and each is wrapped in a SinkError.
type MultiWriter struct {
	writers []DecisionWriter
}

// NewMultiWriter returns a writer over ws. Nil entries are skipped.
func NewMultiWriter(ws ...DecisionWriter) *MultiWriter {
	m := &MultiWriter{writers: make([]DecisionWriter, 0, len(ws))}
	for _, w := range ws {
		if w != nil {
			m.writers = append(m.writers, w)
		}
	}
	return m
}

// Name identifies the sink in metrics and errors.
func (m *MultiWriter) Name() string { return "multi" }

// Len returns the number of sinks.
func (m *MultiWriter) Len() int { return len(m.writers) }

func (m *MultiWriter) Write(ctx context.Context, rec *Record) error {
	var err error
	for _, w := range m.writers {
		if werr := w.Write(ctx, rec); werr != nil {
			err = multierr.Append(err, &SinkError{Sink: SinkName(w), Err: werr})
		}
	}
	return err
}

// Close closes every sink and combines their errors.
func (m *MultiWriter) Close() error {
	var err error
	for _, w := range m.writers {
		err = multierr.Append(err, w.Close())
	}
	return err
}

// FailedSinks lists the sink names found in an error returned by Write.
func FailedSinks(err error) []string {
	var names []string
	for _, e := range multierr.Errors(err) {
		if se, ok := e.(*SinkError); ok {
			names = append(names, se.Sink)
		}
	}
	return names
}
