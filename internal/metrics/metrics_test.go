package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveDecision("medium", []string{"REPEAT_TRIGGER"}, 0.6, time.Millisecond)
	r.ObserveDecision("medium", nil, 0.5, time.Millisecond)
	r.ObserveDecision("high", []string{"REPEAT_TRIGGER", "DRIFT_TRIGGER"}, 0.1, time.Millisecond)
	r.LogWriteError("jsonl")
	r.InputError()

	if got := testutil.ToFloat64(r.assessments.WithLabelValues("medium")); got != 2 {
		t.Errorf("medium assessments = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.triggers.WithLabelValues("REPEAT_TRIGGER")); got != 2 {
		t.Errorf("repeat triggers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.logWriteErrors.WithLabelValues("jsonl")); got != 1 {
		t.Errorf("jsonl errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.inputErrors); got != 1 {
		t.Errorf("input errors = %v, want 1", got)
	}

	n, err := testutil.GatherAndCount(reg, "wordmath_score")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one score histogram, got %d", n)
	}
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.ObserveDecision("low", []string{"DRIFT_TRIGGER"}, 1, time.Second)
	r.LogWriteError("sqlite")
	r.InputError()
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	New(reg)
}
