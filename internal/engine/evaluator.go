package engine

import "math"

// Evaluator turns a signal pair into a Decision using a fixed formula and
// threshold set. It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	formula    Formula
	thresholds Thresholds
	ids        TraceSource
}

// NewEvaluator creates an evaluator. A nil TraceSource falls back to
// UUIDTraceSource.
func NewEvaluator(formula Formula, thresholds Thresholds, ids TraceSource) *Evaluator {
	if ids == nil {
		ids = UUIDTraceSource{}
	}
	return &Evaluator{
		formula:    formula,
		thresholds: thresholds,
		ids:        ids,
	}
}

// Formula returns the formula the evaluator was built with.
func (e *Evaluator) Formula() Formula { return e.formula }

// Thresholds returns the threshold set the evaluator was built with.
func (e *Evaluator) Thresholds() Thresholds { return e.thresholds }

// Evaluate scores y and z.
//
// Steps (in order):
//  1. Clip y and z into [0, 1]
//  2. f = formula(y, z), clipped into [0, 1]
//  3. f <= HighRiskMax → high; f <= MediumRiskMax → medium; otherwise low
//  4. y > MaxRepetition → REPEAT_TRIGGER; z > MaxDrift → DRIFT_TRIGGER
//  5. Attach a fresh trace token
func (e *Evaluator) Evaluate(y, z float64) Decision {
	y = clipSignal(y)
	z = clipSignal(z)
	f := Score(e.formula, y, z)

	return Decision{
		Y:        y,
		Z:        z,
		F:        f,
		Band:     bandFor(f, e.thresholds),
		TraceID:  e.ids.NewTraceID(),
		Triggers: triggersFor(y, z, e.thresholds),
	}
}

// ComputeScore parses the scoring configuration and evaluates one signal pair.
// An unknown variant returns ErrUnknownVariant and no decision.
func ComputeScore(y, z float64, scoring ScoringConfig, thresholds Thresholds, ids TraceSource) (Decision, error) {
	formula, err := ParseFormula(scoring)
	if err != nil {
		return Decision{}, err
	}
	return NewEvaluator(formula, thresholds, ids).Evaluate(y, z), nil
}

// bandFor applies the cutoffs in fixed order. A score equal to a cutoff lands
// in the riskier band.
func bandFor(f float64, t Thresholds) Band {
	if f <= t.HighRiskMax {
		return BandHigh
	}
	if f <= t.MediumRiskMax {
		return BandMedium
	}
	return BandLow
}

// triggersFor uses strict comparisons: a signal equal to its cutoff does not
// trigger.
func triggersFor(y, z float64, t Thresholds) []Trigger {
	triggers := make([]Trigger, 0, 2)
	if y > t.MaxRepetition {
		triggers = append(triggers, TriggerRepeat)
	}
	if z > t.MaxDrift {
		triggers = append(triggers, TriggerDrift)
	}
	return triggers
}

// clipSignal clamps a signal into [0, 1]. NaN is treated as the worst case.
func clipSignal(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return clip01(v)
}

// clipScore clamps a score into [0, 1]. NaN is treated as the riskiest score.
func clipScore(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clip01(v)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
