// Package config loads the engine configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Memory   MemoryConfig   `yaml:"memory"`
	Enhancer EnhancerConfig `yaml:"enhancer"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path to the database file. Empty means ~/.affinity/affinity.db.
	Path string `yaml:"path"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Mode  string `yaml:"mode"` // dev or prod; development and production also accepted
	Level string `yaml:"level"`
}

// MemoryConfig configures the memory store.
type MemoryConfig struct {
	DecayEnabled bool `yaml:"decay_enabled"`
}

// EnhancerConfig configures interaction enhancement.
type EnhancerConfig struct {
	Active  bool   `yaml:"active"`
	Persona string `yaml:"persona"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Mode:  "dev",
			Level: "info",
		},
		Enhancer: EnhancerConfig{
			Active:  true,
			Persona: "Diana",
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ErrExists is returned by WriteDefault when the file is already there.
var ErrExists = errors.New("config file already exists")

// WriteDefault writes DefaultConfig to path. An existing file is kept
// unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
	}
	return DefaultConfig().Save(path)
}

// Validate checks values that the logger and services cannot recover from.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Mode) {
	case "dev", "development", "prod", "production":
	default:
		return fmt.Errorf("logging.mode must be dev or prod, got %q", c.Logging.Mode)
	}
	if strings.TrimSpace(c.Enhancer.Persona) == "" {
		return fmt.Errorf("enhancer.persona must not be empty")
	}
	return nil
}

// DatabasePath resolves the configured path, falling back to the home directory.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".affinity", "affinity.db")
	}
	return filepath.Join(home, ".affinity", "affinity.db")
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("AFFINITY_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("AFFINITY_LOG_MODE"); v != "" {
		c.Logging.Mode = v
	}
	if v := os.Getenv("AFFINITY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AFFINITY_ENHANCER_ACTIVE"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AFFINITY_ENHANCER_ACTIVE: %w", err)
		}
		c.Enhancer.Active = active
	}
	if v := os.Getenv("AFFINITY_MEMORY_DECAY"); v != "" {
		decay, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AFFINITY_MEMORY_DECAY: %w", err)
		}
		c.Memory.DecayEnabled = decay
	}
	return nil
}
