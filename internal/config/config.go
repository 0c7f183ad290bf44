// Package config loads, validates and renders the guard configuration.
package config

import (
	"time"

	"github.com/Doctor0Evil/WordMath/internal/engine"
)

// Config is the full guard configuration: the four sections consumed by the
// guard plus the log settings of the host process.
type Config struct {
	Scoring    ScoringConfig    `mapstructure:"scoring" yaml:"scoring" json:"scoring"`
	Thresholds ThresholdConfig  `mapstructure:"thresholds" yaml:"thresholds" json:"thresholds"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging" json:"logging"`
	Experiment ExperimentConfig `mapstructure:"experiment" yaml:"experiment" json:"experiment"`
}

// ScoringConfig selects the formula and its coefficients.
type ScoringConfig struct {
	Variant string   `mapstructure:"variant" yaml:"variant" json:"variant" validate:"required,oneof=linear quadratic interaction"`
	Alpha   float64  `mapstructure:"alpha" yaml:"alpha" json:"alpha"`
	Beta    float64  `mapstructure:"beta" yaml:"beta" json:"beta"`
	Gamma   *float64 `mapstructure:"gamma" yaml:"gamma,omitempty" json:"gamma,omitempty"`
}

// ThresholdConfig holds the band and trigger cutoffs.
type ThresholdConfig struct {
	HighRiskMax   float64 `mapstructure:"high_risk_max" yaml:"high_risk_max" json:"high_risk_max" validate:"gte=0,lte=1"`
	MediumRiskMax float64 `mapstructure:"medium_risk_max" yaml:"medium_risk_max" json:"medium_risk_max" validate:"gte=0,lte=1"`
	MaxRepetition float64 `mapstructure:"max_repetition" yaml:"max_repetition" json:"max_repetition" validate:"gte=0,lte=1"`
	MaxDrift      float64 `mapstructure:"max_drift" yaml:"max_drift" json:"max_drift" validate:"gte=0,lte=1"`
}

// LoggingConfig controls the decision log line and the process logger.
type LoggingConfig struct {
	HexNamespace   string `mapstructure:"hex_namespace" yaml:"hex_namespace" json:"hex_namespace" validate:"required"`
	EnableJSONLogs bool   `mapstructure:"enable_json_logs" yaml:"enable_json_logs" json:"enable_json_logs"`
	Level          string `mapstructure:"level" yaml:"level" json:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Format         string `mapstructure:"format" yaml:"format" json:"format,omitempty" validate:"omitempty,oneof=auto text json"`
}

// ExperimentConfig controls whether decisions are persisted and where.
type ExperimentConfig struct {
	SaveScores   bool          `mapstructure:"save_scores" yaml:"save_scores" json:"save_scores"`
	OutputPath   string        `mapstructure:"output_path" yaml:"output_path" json:"output_path" validate:"required_if=SaveScores true"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout,omitempty" validate:"gte=0"`
}

// DefaultWriteTimeout bounds a single decision log append.
const DefaultWriteTimeout = 2 * time.Second

// DefaultConfig returns the configuration written by `wordmath init` and used
// as the base layer by the loader.
func DefaultConfig() Config {
	return Config{
		Scoring: ScoringConfig{
			Variant: string(engine.VariantLinear),
			Alpha:   0.5,
			Beta:    0.5,
		},
		Thresholds: ThresholdConfig{
			HighRiskMax:   0.3,
			MediumRiskMax: 0.7,
			MaxRepetition: 0.5,
			MaxDrift:      0.5,
		},
		Logging: LoggingConfig{
			HexNamespace:   "wordmath",
			EnableJSONLogs: false,
			Level:          "info",
			Format:         "auto",
		},
		Experiment: ExperimentConfig{
			SaveScores:   false,
			OutputPath:   "logs/wordmath_scores.jsonl",
			WriteTimeout: DefaultWriteTimeout,
		},
	}
}

// EngineScoring converts the scoring section for the evaluator.
func (c Config) EngineScoring() engine.ScoringConfig {
	return engine.ScoringConfig{
		Variant: engine.Variant(c.Scoring.Variant),
		Alpha:   c.Scoring.Alpha,
		Beta:    c.Scoring.Beta,
		Gamma:   c.Scoring.Gamma,
	}
}

// EngineThresholds converts the thresholds section for the evaluator.
func (c Config) EngineThresholds() engine.Thresholds {
	return engine.Thresholds{
		HighRiskMax:   c.Thresholds.HighRiskMax,
		MediumRiskMax: c.Thresholds.MediumRiskMax,
		MaxRepetition: c.Thresholds.MaxRepetition,
		MaxDrift:      c.Thresholds.MaxDrift,
	}
}

// ShouldLog reports whether the guard emits a decision log record.
func (c Config) ShouldLog() bool {
	return c.Logging.EnableJSONLogs && c.Experiment.SaveScores
}

// EffectiveWriteTimeout returns the log append bound, falling back to
// DefaultWriteTimeout when unset.
func (c Config) EffectiveWriteTimeout() time.Duration {
	if c.Experiment.WriteTimeout <= 0 {
		return DefaultWriteTimeout
	}
	return c.Experiment.WriteTimeout
}
