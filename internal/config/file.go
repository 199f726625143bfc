package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ApplyFile overlays the YAML document at path on top of cfg. Keys absent
// from the file keep the values already in cfg.
func ApplyFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	merged := cfg
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := merged.Validate(); err != nil {
		return Config{}, err
	}
	return merged, nil
}
