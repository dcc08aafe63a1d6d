// ABOUTME: Stream adapter telemetry metrics interface and implementation
// ABOUTME: Records read latency, rows received, backpressure pauses and resumes, buffer depth and upstream failures

package stream

import (
	"context"
	"time"

	"github.com/tabuladb/tabula/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// StreamMetrics defines the interface for stream adapter telemetry.
// All metrics are optional - implementations can safely be no-op.
type StreamMetrics interface {
	telemetry.ComponentMetrics

	// RecordRead records a consumer read and how it was satisfied.
	RecordRead(ctx context.Context, duration time.Duration, status string)

	// RecordRows records a batch of rows pushed by the source.
	RecordRows(ctx context.Context, rows int)

	// RecordBackpressure records a pause or resume issued to the source.
	RecordBackpressure(ctx context.Context, operation string, bufferDepth int)

	// RecordCompletion records the end of the stream.
	RecordCompletion(ctx context.Context, duration time.Duration, rows uint64, err error)
}

// streamMetrics implements StreamMetrics using the telemetry interface.
type streamMetrics struct {
	tel    telemetry.Telemetry
	source string
}

// NewStreamMetrics creates a metrics implementation tagged with the source
// name. If tel is nil, returns a no-op implementation.
func NewStreamMetrics(tel telemetry.Telemetry, source string) StreamMetrics {
	if tel == nil {
		return &noopStreamMetrics{}
	}
	return &streamMetrics{tel: tel, source: source}
}

// NewNoopStreamMetrics creates a no-op metrics implementation for testing.
func NewNoopStreamMetrics() StreamMetrics {
	return &noopStreamMetrics{}
}

func (m *streamMetrics) attrs(extra ...attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentStream),
		attribute.String(telemetry.AttrSource, m.source),
	}, extra...)
}

// RecordRead records read latency and the read count by status.
func (m *streamMetrics) RecordRead(ctx context.Context, duration time.Duration, status string) {
	m.tel.RecordHistogram(ctx, "tabula.stream.read.duration", duration.Seconds(),
		m.attrs(attribute.String(telemetry.AttrOperationType, telemetry.OpTypeRead))...,
	)

	m.tel.RecordCounter(ctx, "tabula.stream.operations.total", 1,
		m.attrs(
			attribute.String(telemetry.AttrOperationType, telemetry.OpTypeRead),
			attribute.String(telemetry.AttrStatus, status),
		)...,
	)
}

// RecordRows records the number of data rows received.
func (m *streamMetrics) RecordRows(ctx context.Context, rows int) {
	if rows <= 0 {
		return
	}
	m.tel.RecordCounter(ctx, "tabula.stream.rows", int64(rows), m.attrs()...)
}

// RecordBackpressure records pause and resume requests with the buffer depth
// at the time they were issued.
func (m *streamMetrics) RecordBackpressure(ctx context.Context, operation string, bufferDepth int) {
	m.tel.RecordCounter(ctx, "tabula.stream.operations.total", 1,
		m.attrs(
			attribute.String(telemetry.AttrOperationType, operation),
			attribute.String(telemetry.AttrStatus, telemetry.StatusSuccess),
		)...,
	)

	m.tel.RecordHistogram(ctx, "tabula.stream.buffer.depth", float64(bufferDepth),
		m.attrs(attribute.String(telemetry.AttrOperationType, operation))...,
	)
}

// RecordCompletion records stream duration and outcome.
func (m *streamMetrics) RecordCompletion(ctx context.Context, duration time.Duration, rows uint64, err error) {
	status := telemetry.StatusDone
	extra := []attribute.KeyValue{attribute.String(telemetry.AttrOperationType, telemetry.OpTypeStream)}
	if err != nil {
		status = telemetry.StatusError
		extra = append(extra, attribute.String(telemetry.AttrErrorType, errorType(err)))
	}
	extra = append(extra, attribute.String(telemetry.AttrStatus, status))

	m.tel.RecordHistogram(ctx, "tabula.stream.duration", duration.Seconds(), m.attrs(extra...)...)
	m.tel.RecordHistogram(ctx, "tabula.stream.rows_per_stream", float64(rows), m.attrs(extra...)...)
}

// Close implements ComponentMetrics interface.
func (m *streamMetrics) Close() error {
	return nil
}

// noopStreamMetrics provides a no-op implementation for testing and disabled telemetry.
type noopStreamMetrics struct{}

func (n *noopStreamMetrics) RecordRead(ctx context.Context, duration time.Duration, status string) {}

func (n *noopStreamMetrics) RecordRows(ctx context.Context, rows int) {}

func (n *noopStreamMetrics) RecordBackpressure(ctx context.Context, operation string, bufferDepth int) {
}

func (n *noopStreamMetrics) RecordCompletion(ctx context.Context, duration time.Duration, rows uint64, err error) {
}

func (n *noopStreamMetrics) Close() error { return nil }
