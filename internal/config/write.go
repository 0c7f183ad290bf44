package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// MarshalYAML renders cfg as a wordmath.yaml document.
func MarshalYAML(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("MarshalYAML: %w", err)
	}
	return data, nil
}

// WriteFile atomically replaces path with the YAML rendering of cfg.
func WriteFile(path string, cfg *Config) error {
	data, err := MarshalYAML(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("WriteFile: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("WriteFile: %w", err)
	}
	return nil
}

// WriteDefault writes DefaultConfig to path. An existing file is left alone
// unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("WriteDefault: %s already exists", path)
		}
	}
	cfg := DefaultConfig()
	return WriteFile(path, &cfg)
}
