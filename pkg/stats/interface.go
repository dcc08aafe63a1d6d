package stats

import "time"

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]any

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]any
}

// Collector interface defines methods for collecting statistics
type Collector interface {
	Provider

	// TrackOperation records a single operation
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackError increments the counter for the specified error type
	TrackError(errorType string)

	// TrackRows adds n to the received (inbound) or delivered counter
	TrackRows(inbound bool, n uint64)

	// TrackBufferDepth records the current number of buffered rows
	TrackBufferDepth(depth uint64)

	// StartStream marks the start of a stream and returns its start time
	StartStream() time.Time

	// FinishStream records the outcome of a stream started at startTime
	FinishStream(startTime time.Time, rows uint64, failed bool)
}

// Ensure AtomicCollector implements the Collector interface
var _ Collector = (*AtomicCollector)(nil)
