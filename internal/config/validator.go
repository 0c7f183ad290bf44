package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator checks struct tags first and then the cross-field rules tags
// cannot express.
type Validator struct {
	v      *validator.Validate
	errors ValidationErrors
}

// NewValidator creates a validator that reports fields by their yaml names.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(yamlFieldName)
	return &Validator{v: v}
}

// Validate is a convenience wrapper around NewValidator().Validate.
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Validate returns ValidationErrors when cfg is invalid, nil otherwise.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = v.errors[:0]

	if err := v.v.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("Validate: %w", err)
		}
		for _, fe := range fieldErrs {
			v.addError(fieldPath(fe.Namespace()), fe.Value(), tagMessage(fe))
		}
	}

	v.validateScoring(&cfg.Scoring)
	v.validateThresholds(&cfg.Thresholds)

	if len(v.errors) > 0 {
		out := make(ValidationErrors, len(v.errors))
		copy(out, v.errors)
		return out
	}
	return nil
}

// Errors returns the errors collected by the last Validate call.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateScoring(cfg *ScoringConfig) {
	if !isFinite(cfg.Alpha) {
		v.addError("scoring.alpha", cfg.Alpha, "must be a finite number")
	}
	if !isFinite(cfg.Beta) {
		v.addError("scoring.beta", cfg.Beta, "must be a finite number")
	}
	if cfg.Gamma != nil && !isFinite(*cfg.Gamma) {
		v.addError("scoring.gamma", *cfg.Gamma, "must be a finite number")
	}
}

func (v *Validator) validateThresholds(cfg *ThresholdConfig) {
	if cfg.HighRiskMax > cfg.MediumRiskMax {
		v.addError("thresholds.high_risk_max", cfg.HighRiskMax,
			fmt.Sprintf("must not exceed medium_risk_max (%v)", cfg.MediumRiskMax))
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "required_if":
		return "required when save_scores is true"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// fieldPath turns "Config.scoring.variant" into "scoring.variant".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
