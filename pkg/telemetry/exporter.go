// ABOUTME: Builds OpenTelemetry metric readers and span exporters from the configured exporter list
// ABOUTME: stdout writes pretty-printed JSON to the configured writer; manual keeps metrics for on-demand collection

package telemetry

import (
	"fmt"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createMetricReaders returns one reader per configured exporter. The manual
// reader, when configured, is also returned separately so it can be collected.
func createMetricReaders(cfg Config, out io.Writer) ([]sdkmetric.Reader, *sdkmetric.ManualReader, error) {
	var (
		readers []sdkmetric.Reader
		manual  *sdkmetric.ManualReader
	)

	for _, name := range cfg.Exporters {
		switch name {
		case ExporterStdout:
			exporter, err := stdoutmetric.New(
				stdoutmetric.WithWriter(out),
				stdoutmetric.WithPrettyPrint(),
			)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create stdout metric exporter: %w", err)
			}
			readers = append(readers, sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(cfg.ExportInterval),
				sdkmetric.WithTimeout(cfg.ExportTimeout),
			))
		case ExporterManual:
			if manual == nil {
				manual = sdkmetric.NewManualReader()
				readers = append(readers, manual)
			}
		}
	}

	return readers, manual, nil
}

// createSpanExporters returns the span exporters for the configured exporters.
// The manual exporter has no trace counterpart.
func createSpanExporters(cfg Config, out io.Writer) ([]sdktrace.SpanExporter, error) {
	var exporters []sdktrace.SpanExporter

	if cfg.HasExporter(ExporterStdout) {
		exporter, err := stdouttrace.New(
			stdouttrace.WithWriter(out),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		exporters = append(exporters, exporter)
	}

	return exporters, nil
}
