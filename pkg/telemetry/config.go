// ABOUTME: Telemetry configuration with defaults, TABULA_TELEMETRY_* environment overrides and validation
// ABOUTME: Selects exporters (stdout, manual) and controls sampling and the metric export interval

package telemetry

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Exporter names
const (
	ExporterStdout = "stdout"
	// ExporterManual keeps metrics in memory until Collect is called.
	ExporterManual = "manual"
)

var validExporters = []string{ExporterStdout, ExporterManual}

// Config holds all configuration for telemetry providers and exporters.
type Config struct {
	// ServiceName identifies the service in telemetry data
	ServiceName string `json:"service_name"`

	// ServiceVersion identifies the service version in telemetry data
	ServiceVersion string `json:"service_version"`

	// Enabled controls whether telemetry is active
	Enabled bool `json:"enabled"`

	// Exporters lists the exporters to use
	Exporters []string `json:"exporters"`

	// SampleRate controls trace sampling (0.0 to 1.0)
	SampleRate float64 `json:"sample_rate"`

	// ExportInterval is how often the periodic metric reader exports
	ExportInterval time.Duration `json:"export_interval"`

	// ExportTimeout bounds a single export
	ExportTimeout time.Duration `json:"export_timeout"`
}

// DefaultConfig returns a configuration with telemetry disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "tabula",
		ServiceVersion: "development",
		Enabled:        false,
		Exporters:      []string{ExporterStdout},
		SampleRate:     1.0,
		ExportInterval: 30 * time.Second,
		ExportTimeout:  10 * time.Second,
	}
}

// LoadFromEnv overrides fields from TABULA_TELEMETRY_* environment variables.
// Values that fail to parse are ignored.
func (c *Config) LoadFromEnv() {
	if val := os.Getenv("TABULA_TELEMETRY_SERVICE_NAME"); val != "" {
		c.ServiceName = val
	}
	if val := os.Getenv("TABULA_TELEMETRY_SERVICE_VERSION"); val != "" {
		c.ServiceVersion = val
	}
	if val := os.Getenv("TABULA_TELEMETRY_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Enabled = enabled
		}
	}
	if val := os.Getenv("TABULA_TELEMETRY_EXPORTERS"); val != "" {
		c.Exporters = strings.Split(val, ",")
		for i := range c.Exporters {
			c.Exporters[i] = strings.TrimSpace(c.Exporters[i])
		}
	}
	if val := os.Getenv("TABULA_TELEMETRY_SAMPLE_RATE"); val != "" {
		if rate, err := strconv.ParseFloat(val, 64); err == nil {
			c.SampleRate = rate
		}
	}
	if val := os.Getenv("TABULA_TELEMETRY_EXPORT_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.ExportInterval = d
		}
	}
	if val := os.Getenv("TABULA_TELEMETRY_EXPORT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.ExportTimeout = d
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name cannot be empty")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version cannot be empty")
	}
	if c.SampleRate < 0.0 || c.SampleRate > 1.0 {
		return fmt.Errorf("sample_rate must be between 0.0 and 1.0, got %f", c.SampleRate)
	}
	if c.ExportInterval <= 0 {
		return fmt.Errorf("export_interval must be positive, got %s", c.ExportInterval)
	}
	if c.ExportTimeout <= 0 {
		return fmt.Errorf("export_timeout must be positive, got %s", c.ExportTimeout)
	}
	for _, exporter := range c.Exporters {
		if !slices.Contains(validExporters, exporter) {
			return fmt.Errorf("invalid exporter: %s, valid options are: %s", exporter, strings.Join(validExporters, ", "))
		}
	}
	return nil
}

// HasExporter returns true if the specified exporter is configured.
func (c *Config) HasExporter(name string) bool {
	return slices.Contains(c.Exporters, name)
}
