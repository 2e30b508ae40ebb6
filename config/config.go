// Package config loads engine configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full engine configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds storage and concurrency settings.
type DatabaseConfig struct {
	// DataDir is where database files, WAL and snapshots live.
	DataDir string `yaml:"data_dir" env:"CORVUS_DATA_DIR"`

	// BusyTimeoutMs is the maximum time a connection waits for a
	// conflicting lock before the operation fails with BUSY. Zero means
	// fail immediately on first contention.
	BusyTimeoutMs int `yaml:"busy_timeout_ms" env:"CORVUS_BUSY_TIMEOUT_MS"`

	// SyncWrites forces an fsync of the WAL on every commit.
	SyncWrites bool `yaml:"sync_writes" env:"CORVUS_SYNC_WRITES"`

	// Compression selects the snapshot compression algorithm:
	// snappy, lz4, zstd or none.
	Compression string `yaml:"compression" env:"CORVUS_COMPRESSION"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"CORVUS_LOG_LEVEL"`
	Format string `yaml:"format" env:"CORVUS_LOG_FORMAT"`
	Output string `yaml:"output" env:"CORVUS_LOG_OUTPUT"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataDir:       "./data",
			BusyTimeoutMs: 0,
			SyncWrites:    true,
			Compression:   "snappy",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load reads the YAML file at path on top of the defaults and then applies
// environment overrides. An empty path skips the file step.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies CORVUS_* environment variable overrides.
func (c *Config) LoadFromEnv() {
	if dataDir := os.Getenv("CORVUS_DATA_DIR"); dataDir != "" {
		c.Database.DataDir = dataDir
	}
	if timeout := os.Getenv("CORVUS_BUSY_TIMEOUT_MS"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil {
			c.Database.BusyTimeoutMs = t
		}
	}
	if syncWrites := os.Getenv("CORVUS_SYNC_WRITES"); syncWrites != "" {
		c.Database.SyncWrites = strings.ToLower(syncWrites) == "true"
	}
	if compression := os.Getenv("CORVUS_COMPRESSION"); compression != "" {
		c.Database.Compression = compression
	}
	if level := os.Getenv("CORVUS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("CORVUS_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if output := os.Getenv("CORVUS_LOG_OUTPUT"); output != "" {
		c.Logging.Output = output
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("busy_timeout_ms must be >= 0, got %d", c.Database.BusyTimeoutMs)
	}
	switch c.Database.Compression {
	case "snappy", "lz4", "zstd", "none":
	default:
		return fmt.Errorf("unknown compression algorithm %q", c.Database.Compression)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}
