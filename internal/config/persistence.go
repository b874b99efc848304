package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PersistenceConfig locates the four JSON stores and the optional Postgres
// archive for the prediction-error ledger.
type PersistenceConfig struct {
	Dir           string        `yaml:"dir"`            // directory holding the four store files
	DebounceWrite time.Duration `yaml:"debounce_write"` // max delay before a dirty store is flushed

	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig is the optional archival sink. An empty DSN disables it.
type PostgresConfig struct {
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultPersistenceConfig returns the shipped defaults.
func DefaultPersistenceConfig() *PersistenceConfig {
	return &PersistenceConfig{
		Dir:           "data",
		DebounceWrite: 5 * time.Second,
		Postgres:      PostgresConfig{Timeout: 10 * time.Second},
	}
}

// LoadPersistenceConfig loads persistence configuration from a YAML file,
// filling unset fields from the defaults.
func LoadPersistenceConfig(configPath string) (*PersistenceConfig, error) {
	config := DefaultPersistenceConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read persistence config: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse persistence config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid persistence config: %w", err)
	}
	return config, nil
}

// Validate ensures the persistence configuration is valid.
func (c *PersistenceConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("dir cannot be empty")
	}
	if c.DebounceWrite <= 0 || c.DebounceWrite > 5*time.Second {
		return fmt.Errorf("debounce_write must be in (0, 5s], got %s", c.DebounceWrite)
	}
	if c.Postgres.DSN != "" && c.Postgres.Timeout <= 0 {
		return fmt.Errorf("postgres timeout must be positive when a DSN is set, got %s", c.Postgres.Timeout)
	}
	return nil
}
