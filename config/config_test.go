package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Database.BusyTimeoutMs != 0 {
		t.Errorf("default busy timeout should be 0, got %d", cfg.Database.BusyTimeoutMs)
	}
	if cfg.Database.Compression != "snappy" {
		t.Errorf("default compression should be snappy, got %s", cfg.Database.Compression)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corvus.yaml")

	content := `
database:
  data_dir: /var/lib/corvus
  busy_timeout_ms: 250
  compression: lz4
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.DataDir != "/var/lib/corvus" {
		t.Errorf("data_dir not applied, got %s", cfg.Database.DataDir)
	}
	if cfg.Database.BusyTimeoutMs != 250 {
		t.Errorf("busy_timeout_ms not applied, got %d", cfg.Database.BusyTimeoutMs)
	}
	if cfg.Database.Compression != "lz4" {
		t.Errorf("compression not applied, got %s", cfg.Database.Compression)
	}
	// Untouched fields keep defaults.
	if !cfg.Database.SyncWrites {
		t.Error("sync_writes default should survive partial config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CORVUS_BUSY_TIMEOUT_MS", "500")
	t.Setenv("CORVUS_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.BusyTimeoutMs != 500 {
		t.Errorf("env override not applied, got %d", cfg.Database.BusyTimeoutMs)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env override not applied, got %s", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative busy timeout", func(c *Config) { c.Database.BusyTimeoutMs = -1 }},
		{"unknown compression", func(c *Config) { c.Database.Compression = "gzip" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
