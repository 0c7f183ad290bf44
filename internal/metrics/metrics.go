// Package metrics exposes guard activity as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the guard's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	assessments    *prometheus.CounterVec
	triggers       *prometheus.CounterVec
	score          prometheus.Histogram
	duration       prometheus.Histogram
	logWriteErrors *prometheus.CounterVec
	inputErrors    prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		assessments: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordmath_assessments_total",
				Help: "Assessments completed, by risk band.",
			},
			[]string{"band"},
		),
		triggers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordmath_triggers_total",
				Help: "Triggers raised, by trigger name.",
			},
			[]string{"trigger"},
		),
		score: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wordmath_score",
			Help:    "Distribution of the composite score f.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wordmath_assess_duration_seconds",
			Help:    "Time spent in Assess, including the decision log append.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		logWriteErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordmath_log_write_errors_total",
				Help: "Decision log appends that failed, by sink.",
			},
			[]string{"sink"},
		),
		inputErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "wordmath_input_errors_total",
			Help: "Assessments rejected because of malformed input.",
		}),
	}
}

// ObserveDecision records one completed assessment.
func (r *Recorder) ObserveDecision(band string, triggers []string, f float64, took time.Duration) {
	if r == nil {
		return
	}
	r.assessments.WithLabelValues(band).Inc()
	for _, t := range triggers {
		r.triggers.WithLabelValues(t).Inc()
	}
	r.score.Observe(f)
	r.duration.Observe(took.Seconds())
}

// LogWriteError counts a failed append to sink.
func (r *Recorder) LogWriteError(sink string) {
	if r == nil {
		return
	}
	r.logWriteErrors.WithLabelValues(sink).Inc()
}

// InputError counts an assessment rejected before scoring.
func (r *Recorder) InputError() {
	if r == nil {
		return
	}
	r.inputErrors.Inc()
}
