package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// Loader reads configuration from defaults, a YAML file and the environment.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "WORDMATH",
	}
}

// NewLoaderWithViper creates a loader on an existing viper instance so CLI
// flags bound to it take precedence.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "WORDMATH",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads and validates configuration. Missing required keys are reported
// as ValidationErrors together with any other invalid field.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (WORDMATH_SCORING_ALPHA, ...)
// 3. Explicit file, or wordmath.yaml in . then ~/.config/wordmath
// 4. Defaults
func (l *Loader) Load() (*Config, error) {
	// The prefix must be set before setDefaults binds env keys.
	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	l.setDefaults()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("wordmath")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "wordmath"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	missing := l.missingRequired()

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	err := Validate(&cfg)
	if len(missing) == 0 {
		if err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		reported := make(map[string]bool, len(missing))
		for _, m := range missing {
			reported[m.Field] = true
		}
		for _, e := range verrs {
			if !reported[e.Field] {
				missing = append(missing, e)
			}
		}
	} else if err != nil {
		return nil, err
	}
	return nil, missing
}

// requiredKeys have no default: a file, or the environment, must set them.
var requiredKeys = []string{
	"scoring.variant",
	"scoring.alpha",
	"scoring.beta",
	"thresholds.high_risk_max",
	"thresholds.medium_risk_max",
	"thresholds.max_repetition",
	"thresholds.max_drift",
}

func (l *Loader) missingRequired() ValidationErrors {
	var out ValidationErrors
	for _, key := range requiredKeys {
		if !l.v.IsSet(key) {
			out = append(out, ValidationError{Field: key, Value: nil, Message: "is required"})
		}
	}
	return out
}

// setDefaults covers the optional keys only. Scoring and thresholds must be
// configured explicitly; DefaultConfig values reach a file through init.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("logging.hex_namespace", d.Logging.HexNamespace)
	l.v.SetDefault("logging.enable_json_logs", d.Logging.EnableJSONLogs)
	l.v.SetDefault("logging.level", d.Logging.Level)
	l.v.SetDefault("logging.format", d.Logging.Format)

	l.v.SetDefault("experiment.save_scores", d.Experiment.SaveScores)
	l.v.SetDefault("experiment.output_path", d.Experiment.OutputPath)
	l.v.SetDefault("experiment.write_timeout", d.Experiment.WriteTimeout)

	// Keys without a default are bound so WORDMATH_SCORING_ALPHA and friends
	// are still seen by Unmarshal and IsSet.
	for _, key := range requiredKeys {
		_ = l.v.BindEnv(key)
	}
	_ = l.v.BindEnv("scoring.gamma")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Load is shorthand for NewLoader().WithConfigFile(path).Load().
func Load(path string) (*Config, error) {
	return NewLoader().WithConfigFile(path).Load()
}

// yamlFieldName reports struct fields by their yaml key in validation errors.
func yamlFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	default:
		return name
	}
}
