// ABOUTME: Telemetry constructors for tests: a disabled instance and an in-memory provider that can be collected
// ABOUTME: The in-memory provider uses the manual reader so tests can assert on recorded metric names and values

package telemetry

import (
	"io"
	"time"
)

// NewForTesting returns a no-op telemetry instance for use in tests.
func NewForTesting() Telemetry {
	return NewNoop()
}

// NewInMemory returns a provider whose metrics are kept until Collect and
// whose spans are not exported.
func NewInMemory() (*TelemetryProvider, error) {
	return NewProvider(Config{
		ServiceName:    "tabula-test",
		ServiceVersion: "test",
		Enabled:        true,
		Exporters:      []string{ExporterManual},
		SampleRate:     1.0,
		ExportInterval: time.Minute,
		ExportTimeout:  time.Second,
	}, WithWriter(io.Discard))
}
