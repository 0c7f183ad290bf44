package engine

import (
	"errors"
	"fmt"
)

// ErrUnknownVariant is a fatal configuration error: the scoring variant tag
// does not name a known formula.
var ErrUnknownVariant = errors.New("unknown scoring variant")

// Variant is the configured formula tag.
type Variant string

const (
	VariantLinear      Variant = "linear"
	VariantQuadratic   Variant = "quadratic"
	VariantInteraction Variant = "interaction"
)

// ScoringConfig is the externally supplied scoring section.
// Gamma is nil when the configuration omits it.
type ScoringConfig struct {
	Variant Variant
	Alpha   float64
	Beta    float64
	Gamma   *float64
}

// The explicit float64 conversions below round each product before the
// subtraction so no platform fuses them into an FMA; scores must be
// bit-identical across architectures for the decision log.

// Formula is the closed set of scoring formulas. The unexported method keeps
// implementations inside this package, so every variant is handled here.
type Formula interface {
	Variant() Variant
	raw(y, z float64) float64
}

// Linear scores f = 1 - alpha*y - beta*z.
type Linear struct {
	Alpha float64
	Beta  float64
}

func (Linear) Variant() Variant { return VariantLinear }

func (l Linear) raw(y, z float64) float64 {
	return 1.0 - float64(l.Alpha*y) - float64(l.Beta*z)
}

// Quadratic scores f = 1 - alpha*y² - beta*z².
type Quadratic struct {
	Alpha float64
	Beta  float64
}

func (Quadratic) Variant() Variant { return VariantQuadratic }

func (q Quadratic) raw(y, z float64) float64 {
	return 1.0 - float64(q.Alpha*y*y) - float64(q.Beta*z*z)
}

// Interaction scores f = 1 - alpha*y - beta*z - gamma*y*z.
// A nil Gamma contributes nothing.
type Interaction struct {
	Alpha float64
	Beta  float64
	Gamma *float64
}

func (Interaction) Variant() Variant { return VariantInteraction }

// EffectiveGamma returns Gamma, or 0 when it was not configured.
func (in Interaction) EffectiveGamma() float64 {
	if in.Gamma == nil {
		return 0
	}
	return *in.Gamma
}

func (in Interaction) raw(y, z float64) float64 {
	return 1.0 - float64(in.Alpha*y) - float64(in.Beta*z) - float64(in.EffectiveGamma()*y*z)
}

// ParseFormula turns a scoring configuration into its Formula. Gamma is only
// carried into the interaction variant.
func ParseFormula(cfg ScoringConfig) (Formula, error) {
	switch cfg.Variant {
	case VariantLinear:
		return Linear{Alpha: cfg.Alpha, Beta: cfg.Beta}, nil
	case VariantQuadratic:
		return Quadratic{Alpha: cfg.Alpha, Beta: cfg.Beta}, nil
	case VariantInteraction:
		return Interaction{Alpha: cfg.Alpha, Beta: cfg.Beta, Gamma: cfg.Gamma}, nil
	default:
		return nil, fmt.Errorf("ParseFormula: %w: %q", ErrUnknownVariant, cfg.Variant)
	}
}

// Score evaluates the formula on y and z and clips the result into [0, 1].
func Score(f Formula, y, z float64) float64 {
	return clipScore(f.raw(y, z))
}
