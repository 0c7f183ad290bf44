package guard

import "github.com/Doctor0Evil/WordMath/internal/engine"

// Action is what the caller should do with the assessed message.
type Action int

const (
	ActionAllow Action = iota + 1
	ActionRewrite
	ActionBlock
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionRewrite:
		return "rewrite"
	case ActionBlock:
		return "block"
	default:
		return "unspecified"
	}
}

// ShouldBlock is true iff the decision landed in the high risk band.
func ShouldBlock(d engine.Decision) bool {
	return d.Band == engine.BandHigh
}

// ShouldRewrite is true for the medium band or when any trigger fired,
// whatever the band. A high band decision can satisfy both predicates.
func ShouldRewrite(d engine.Decision) bool {
	return d.Band == engine.BandMedium ||
		d.HasTrigger(engine.TriggerRepeat) ||
		d.HasTrigger(engine.TriggerDrift)
}

// Decide folds both predicates into one action. Block is checked first.
func Decide(d engine.Decision) Action {
	switch {
	case ShouldBlock(d):
		return ActionBlock
	case ShouldRewrite(d):
		return ActionRewrite
	default:
		return ActionAllow
	}
}
