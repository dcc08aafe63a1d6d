package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Version != CurrentConfigVersion {
		t.Errorf("expected version %d, got %d", CurrentConfigVersion, cfg.Version)
	}
	if cfg.CSV.DelimiterRune() != ',' {
		t.Errorf("expected ',' delimiter, got %q", cfg.CSV.DelimiterRune())
	}
	if cfg.CSV.CommentRune() != 0 {
		t.Errorf("expected no comment character, got %q", cfg.CSV.CommentRune())
	}
	if cfg.Stream.HighWaterMark != 1024 {
		t.Errorf("expected high water mark 1024, got %d", cfg.Stream.HighWaterMark)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(*Config)
		expected string
	}{
		{"invalid version", func(c *Config) { c.Version = 0 }, "invalid version 0"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "unknown log level"},
		{"negative high water mark", func(c *Config) { c.Stream.HighWaterMark = -1 }, "high water mark"},
		{"zero batch size", func(c *Config) { c.Stream.BatchSize = 0 }, "batch size"},
		{"multi-rune delimiter", func(c *Config) { c.CSV.Delimiter = ";;" }, "invalid CSV delimiter"},
		{"quote delimiter", func(c *Config) { c.CSV.Delimiter = `"` }, "invalid CSV delimiter"},
		{"comment equals delimiter", func(c *Config) { c.CSV.Comment = "," }, "invalid CSV comment"},
		{"unknown compression", func(c *Config) { c.CSV.Compression = "lz4" }, "unknown compression"},
		{"empty address", func(c *Config) { c.Server.Address = "" }, "server address"},
		{"bad telemetry", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SampleRate = 2
		}, "telemetry"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.expected) {
				t.Errorf("expected error containing %q, got %q", tc.expected, err.Error())
			}
		})
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", DefaultConfigFileName)

	cfg := NewDefaultConfig()
	cfg.Update(func(c *Config) {
		c.CSV.Delimiter = ";"
		c.Frame.ConsiderAllRows = true
		c.Stream.HighWaterMark = 10
	})
	if err := cfg.Save(path); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected temporary file to be renamed away")
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if loaded.CSV.DelimiterRune() != ';' || !loaded.Frame.ConsiderAllRows || loaded.Stream.HighWaterMark != 10 {
		t.Errorf("loaded config does not match saved one: %+v", loaded)
	}
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFileName)
	if err := os.WriteFile(path, []byte(`{"version": 1, "log": {"level": "debug"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Log.Level)
	}
	if cfg.Stream.BatchSize != NewDefaultConfig().Stream.BatchSize {
		t.Errorf("expected default batch size, got %d", cfg.Stream.BatchSize)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfig(filepath.Join(dir, "missing.json")); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TABULA_LOG_LEVEL", "warn")
	t.Setenv("TABULA_STREAM_HIGH_WATER_MARK", "64")
	t.Setenv("TABULA_STREAM_BATCH_SIZE", "oops")
	t.Setenv("TABULA_CSV_DELIMITER", `\t`)
	t.Setenv("TABULA_CSV_COMPRESSION", "zstd")
	t.Setenv("TABULA_FRAME_CONSIDER_ALL_ROWS", "true")
	t.Setenv("TABULA_SERVER_ADDRESS", "0.0.0.0:9000")
	t.Setenv("TABULA_TELEMETRY_ENABLED", "true")

	cfg := NewDefaultConfig()
	cfg.LoadFromEnv()

	if cfg.Log.Level != "warn" || cfg.Stream.HighWaterMark != 64 {
		t.Errorf("expected env overrides to apply, got %+v", cfg)
	}
	if cfg.Stream.BatchSize != 128 {
		t.Errorf("expected unparsable batch size to be ignored, got %d", cfg.Stream.BatchSize)
	}
	if cfg.CSV.DelimiterRune() != '\t' {
		t.Errorf("expected tab delimiter, got %q", cfg.CSV.Delimiter)
	}
	if cfg.CSV.Compression != CompressionZstd || !cfg.Frame.ConsiderAllRows {
		t.Errorf("expected zstd and consider-all-rows, got %+v", cfg.CSV)
	}
	if cfg.Server.Address != "0.0.0.0:9000" {
		t.Errorf("expected address override, got %s", cfg.Server.Address)
	}
	if !cfg.Telemetry.Enabled {
		t.Errorf("expected telemetry env override to apply")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected overridden config to be valid, got %v", err)
	}
}
