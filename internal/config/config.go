package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level runway.yaml configuration.
type Config struct {
	DatabaseURL string           `yaml:"database_url,omitempty"`
	HolidayFile string           `yaml:"holiday_file,omitempty"`
	LogLevel    string           `yaml:"log_level"`
	Projection  ProjectionConfig `yaml:"projection"`
	Refresh     RefreshConfig    `yaml:"refresh"`
}

// ProjectionConfig bounds expansion work.
type ProjectionConfig struct {
	// MaxOccurrences caps how many events a single rule may generate.
	MaxOccurrences int `yaml:"max_occurrences"`
	// HorizonDays is how far ahead scheduled refreshes project.
	HorizonDays int `yaml:"horizon_days"`
}

// RefreshConfig controls the scheduled recalculation command.
type RefreshConfig struct {
	// Schedule is a cron expression, e.g. "0 3 * * *" or "@daily".
	Schedule string `yaml:"schedule"`
}

// Load reads a runway.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Projection: ProjectionConfig{
			MaxOccurrences: 4000,
			HorizonDays:    365,
		},
		Refresh: RefreshConfig{
			Schedule: "@daily",
		},
	}
}
