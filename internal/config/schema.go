package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is the JSON Schema for configuration documents submitted over the
// API. Struct-tag and cross-field rules still run after it passes.
const Schema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["scoring", "thresholds", "logging", "experiment"],
  "properties": {
    "scoring": {
      "type": "object",
      "required": ["variant", "alpha", "beta"],
      "properties": {
        "variant": {"enum": ["linear", "quadratic", "interaction"]},
        "alpha": {"type": "number"},
        "beta": {"type": "number"},
        "gamma": {"type": ["number", "null"]}
      },
      "additionalProperties": false
    },
    "thresholds": {
      "type": "object",
      "required": ["high_risk_max", "medium_risk_max", "max_repetition", "max_drift"],
      "properties": {
        "high_risk_max": {"type": "number", "minimum": 0, "maximum": 1},
        "medium_risk_max": {"type": "number", "minimum": 0, "maximum": 1},
        "max_repetition": {"type": "number", "minimum": 0, "maximum": 1},
        "max_drift": {"type": "number", "minimum": 0, "maximum": 1}
      },
      "additionalProperties": false
    },
    "logging": {
      "type": "object",
      "required": ["hex_namespace", "enable_json_logs"],
      "properties": {
        "hex_namespace": {"type": "string", "minLength": 1},
        "enable_json_logs": {"type": "boolean"},
        "level": {"enum": ["debug", "info", "warn", "error"]},
        "format": {"enum": ["auto", "text", "json"]}
      },
      "additionalProperties": false
    },
    "experiment": {
      "type": "object",
      "required": ["save_scores", "output_path"],
      "properties": {
        "save_scores": {"type": "boolean"},
        "output_path": {"type": "string"},
        "write_timeout": {"type": "integer", "minimum": 0}
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(Schema))
	if err != nil {
		return nil, fmt.Errorf("schema unmarshal: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("wordmath-config.json", doc); err != nil {
		return nil, fmt.Errorf("schema compile: %w", err)
	}
	return c.Compile("wordmath-config.json")
})

// ValidateJSON checks a raw JSON configuration document against Schema.
func ValidateJSON(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("ValidateJSON: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("ValidateJSON: not valid JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("ValidateJSON: %w", err)
	}
	return nil
}

// ParseJSON validates a JSON document against Schema, decodes it over
// DefaultConfig and runs Validate.
func ParseJSON(data []byte) (*Config, error) {
	if err := ValidateJSON(data); err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("ParseJSON: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MarshalJSON renders cfg as the document ParseJSON accepts.
func MarshalJSON(cfg *Config) ([]byte, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("MarshalJSON: %w", err)
	}
	return data, nil
}
