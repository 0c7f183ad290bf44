package engine

// Band is the categorical risk bucket derived from the composite score.
type Band int

const (
	BandHigh Band = iota + 1
	BandMedium
	BandLow
)

// String returns the lowercase band name used in logs and API responses.
func (b Band) String() string {
	switch b {
	case BandHigh:
		return "high"
	case BandMedium:
		return "medium"
	case BandLow:
		return "low"
	default:
		return "unspecified"
	}
}

// ParseBand maps a band name back to its Band. Unknown names return false.
func ParseBand(s string) (Band, bool) {
	switch s {
	case "high":
		return BandHigh, true
	case "medium":
		return BandMedium, true
	case "low":
		return BandLow, true
	default:
		return 0, false
	}
}

// Trigger names a raw signal that crossed its own cutoff.
type Trigger string

const (
	TriggerRepeat Trigger = "REPEAT_TRIGGER"
	TriggerDrift  Trigger = "DRIFT_TRIGGER"
)

// Thresholds holds the band cutoffs and the per-signal trigger cutoffs.
// HighRiskMax <= MediumRiskMax is expected but not enforced here.
type Thresholds struct {
	HighRiskMax   float64
	MediumRiskMax float64
	MaxRepetition float64
	MaxDrift      float64
}

// Decision is the outcome of one evaluation. It is built once and never
// modified afterwards.
type Decision struct {
	Y        float64 // clipped repetition signal
	Z        float64 // clipped drift signal
	F        float64 // composite score in [0, 1], higher is safer
	Band     Band
	TraceID  string
	Triggers []Trigger // repetition before drift, each at most once
}

// HasTrigger reports whether t was raised for this decision.
func (d Decision) HasTrigger(t Trigger) bool {
	for _, tr := range d.Triggers {
		if tr == t {
			return true
		}
	}
	return false
}

// TriggerNames returns the triggers as plain strings. Never nil.
func (d Decision) TriggerNames() []string {
	names := make([]string, len(d.Triggers))
	for i, t := range d.Triggers {
		names[i] = string(t)
	}
	return names
}
