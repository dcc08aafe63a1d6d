// ABOUTME: Telemetry abstraction over OpenTelemetry used to instrument streams, sources and sequence operations
// ABOUTME: Components record histograms, counters and spans through this interface; a no-op implementation is the default

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry records metrics and spans without tying components to the OpenTelemetry SDK.
type Telemetry interface {
	// RecordHistogram records a histogram value with optional attributes.
	RecordHistogram(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue)

	// RecordCounter records a counter increment with optional attributes.
	RecordCounter(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue)

	// StartSpan creates a new tracing span with the given name and attributes.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// Shutdown flushes pending data and releases exporters.
	Shutdown(ctx context.Context) error
}

// ComponentMetrics is implemented by the metrics facade of each component.
type ComponentMetrics interface {
	// Close releases any resources held by the metrics implementation.
	Close() error
}

// NoopTelemetry discards everything.
type NoopTelemetry struct{}

// NewNoop creates a new no-operation telemetry instance.
func NewNoop() Telemetry {
	return &NoopTelemetry{}
}

// RecordHistogram is a no-op.
func (n *NoopTelemetry) RecordHistogram(context.Context, string, float64, ...attribute.KeyValue) {}

// RecordCounter is a no-op.
func (n *NoopTelemetry) RecordCounter(context.Context, string, int64, ...attribute.KeyValue) {}

// StartSpan returns the original context and the span already in it, if any.
func (n *NoopTelemetry) StartSpan(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, trace.SpanFromContext(ctx)
}

// Shutdown is a no-op.
func (n *NoopTelemetry) Shutdown(context.Context) error {
	return nil
}

// RecordDuration records the time elapsed since start, in seconds, in a histogram.
func RecordDuration(ctx context.Context, tel Telemetry, name string, start time.Time, attrs ...attribute.KeyValue) {
	tel.RecordHistogram(ctx, name, time.Since(start).Seconds(), attrs...)
}

// RecordRows adds a row count to a counter.
func RecordRows(ctx context.Context, tel Telemetry, name string, rows int64, attrs ...attribute.KeyValue) {
	tel.RecordCounter(ctx, name, rows, attrs...)
}

// Attribute keys shared by all components
const (
	AttrOperationType = "operation.type"
	AttrComponent     = "component"
	AttrSource        = "source"
	AttrStatus        = "status"
	AttrErrorType     = "error.type"
	AttrDataset       = "dataset"
)

// Attribute values
const (
	OpTypeRead        = "read"
	OpTypeColumnNames = "column_names"
	OpTypePause       = "pause"
	OpTypeResume      = "resume"
	OpTypeBake        = "bake"
	OpTypeStream      = "stream"

	StatusSuccess = "success"
	StatusError   = "error"
	StatusDone    = "done"

	ComponentStream    = "stream"
	ComponentRowSource = "rowsource"
	ComponentServer    = "server"
	ComponentFrame     = "frame"
)
