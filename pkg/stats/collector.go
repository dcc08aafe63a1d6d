package stats

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OperationType defines the type of operation being tracked
type OperationType string

// Operation types recorded by the sequence engine and the stream adapter
const (
	OpRead        OperationType = "read"
	OpColumnNames OperationType = "column_names"
	OpPause       OperationType = "pause"
	OpResume      OperationType = "resume"
	OpBake        OperationType = "bake"
	OpSort        OperationType = "sort"
	OpWindow      OperationType = "window"
	OpDistinct    OperationType = "distinct"
	OpLoad        OperationType = "load"
)

// AtomicCollector collects statistics with atomic counters; maps are only
// locked when a new key is first seen
type AtomicCollector struct {
	counts   map[OperationType]*atomic.Uint64
	countsMu sync.RWMutex

	lastOpTime   map[OperationType]time.Time
	lastOpTimeMu sync.RWMutex

	rowsIn      atomic.Uint64
	rowsOut     atomic.Uint64
	bufferDepth atomic.Uint64
	maxBuffer   atomic.Uint64

	errors   map[string]*atomic.Uint64
	errorsMu sync.RWMutex

	streams StreamStats

	latencies   map[OperationType]*LatencyTracker
	latenciesMu sync.RWMutex
}

// StreamStats tracks streams opened through the adapter
type StreamStats struct {
	Started      atomic.Uint64
	Completed    atomic.Uint64
	Failed       atomic.Uint64
	RowsStreamed atomic.Uint64
	LastDuration atomic.Int64 // nanoseconds
}

// LatencyTracker maintains running statistics about operation latencies
type LatencyTracker struct {
	count atomic.Uint64
	sum   atomic.Uint64
	max   atomic.Uint64
	min   atomic.Uint64 // 0 until the first sample
}

// NewAtomicCollector creates a new atomic statistics collector
func NewAtomicCollector() *AtomicCollector {
	return &AtomicCollector{
		counts:     make(map[OperationType]*atomic.Uint64),
		lastOpTime: make(map[OperationType]time.Time),
		errors:     make(map[string]*atomic.Uint64),
		latencies:  make(map[OperationType]*LatencyTracker),
	}
}

// TrackOperation increments the counter for the specified operation type
func (c *AtomicCollector) TrackOperation(op OperationType) {
	c.getOrCreateCounter(op).Add(1)
	c.touch(op)
}

// TrackOperationWithLatency tracks an operation and its latency
func (c *AtomicCollector) TrackOperationWithLatency(op OperationType, latencyNs uint64) {
	c.TrackOperation(op)

	tracker := c.getOrCreateLatencyTracker(op)
	tracker.count.Add(1)
	tracker.sum.Add(latencyNs)

	for {
		current := tracker.max.Load()
		if latencyNs <= current || tracker.max.CompareAndSwap(current, latencyNs) {
			break
		}
	}
	for {
		current := tracker.min.Load()
		if current != 0 && latencyNs >= current {
			break
		}
		if tracker.min.CompareAndSwap(current, latencyNs) {
			break
		}
	}
}

func (c *AtomicCollector) touch(op OperationType) {
	c.lastOpTimeMu.Lock()
	c.lastOpTime[op] = time.Now()
	c.lastOpTimeMu.Unlock()
}

// TrackError increments the counter for the specified error type
func (c *AtomicCollector) TrackError(errorType string) {
	c.errorsMu.RLock()
	counter, exists := c.errors[errorType]
	c.errorsMu.RUnlock()

	if !exists {
		c.errorsMu.Lock()
		if counter, exists = c.errors[errorType]; !exists {
			counter = &atomic.Uint64{}
			c.errors[errorType] = counter
		}
		c.errorsMu.Unlock()
	}

	counter.Add(1)
}

// TrackRows adds n to the received or delivered row counter
func (c *AtomicCollector) TrackRows(inbound bool, n uint64) {
	if inbound {
		c.rowsIn.Add(n)
	} else {
		c.rowsOut.Add(n)
	}
}

// TrackBufferDepth records the current buffer depth and its high mark
func (c *AtomicCollector) TrackBufferDepth(depth uint64) {
	c.bufferDepth.Store(depth)
	for {
		current := c.maxBuffer.Load()
		if depth <= current || c.maxBuffer.CompareAndSwap(current, depth) {
			return
		}
	}
}

// StartStream marks the start of a stream
func (c *AtomicCollector) StartStream() time.Time {
	c.streams.Started.Add(1)
	return time.Now()
}

// FinishStream records how a stream ended
func (c *AtomicCollector) FinishStream(startTime time.Time, rows uint64, failed bool) {
	if failed {
		c.streams.Failed.Add(1)
	} else {
		c.streams.Completed.Add(1)
	}
	c.streams.RowsStreamed.Add(rows)
	c.streams.LastDuration.Store(time.Since(startTime).Nanoseconds())
}

// GetStats returns all statistics as a map
func (c *AtomicCollector) GetStats() map[string]any {
	stats := make(map[string]any)

	c.countsMu.RLock()
	for op, counter := range c.counts {
		stats[string(op)+"_ops"] = counter.Load()
	}
	c.countsMu.RUnlock()

	c.lastOpTimeMu.RLock()
	for op, timestamp := range c.lastOpTime {
		stats["last_"+string(op)+"_time"] = timestamp.UnixNano()
	}
	c.lastOpTimeMu.RUnlock()

	stats["rows_in"] = c.rowsIn.Load()
	stats["rows_out"] = c.rowsOut.Load()
	stats["buffer_depth"] = c.bufferDepth.Load()
	stats["buffer_depth_max"] = c.maxBuffer.Load()

	c.errorsMu.RLock()
	errorStats := make(map[string]uint64, len(c.errors))
	for errType, counter := range c.errors {
		errorStats[errType] = counter.Load()
	}
	c.errorsMu.RUnlock()
	stats["errors"] = errorStats

	streamStats := map[string]any{
		"started":       c.streams.Started.Load(),
		"completed":     c.streams.Completed.Load(),
		"failed":        c.streams.Failed.Load(),
		"rows_streamed": c.streams.RowsStreamed.Load(),
	}
	if d := c.streams.LastDuration.Load(); d > 0 {
		streamStats["last_duration_ms"] = d / int64(time.Millisecond)
	}
	stats["stream"] = streamStats

	c.latenciesMu.RLock()
	for op, tracker := range c.latencies {
		count := tracker.count.Load()
		if count == 0 {
			continue
		}
		latencyStats := map[string]any{
			"count":  count,
			"avg_ns": tracker.sum.Load() / count,
		}
		if v := tracker.min.Load(); v != 0 {
			latencyStats["min_ns"] = v
		}
		if v := tracker.max.Load(); v != 0 {
			latencyStats["max_ns"] = v
		}
		stats[string(op)+"_latency"] = latencyStats
	}
	c.latenciesMu.RUnlock()

	return stats
}

// GetStatsFiltered returns statistics whose key starts with prefix
func (c *AtomicCollector) GetStatsFiltered(prefix string) map[string]any {
	filtered := make(map[string]any)
	for key, value := range c.GetStats() {
		if strings.HasPrefix(key, prefix) {
			filtered[key] = value
		}
	}
	return filtered
}

func (c *AtomicCollector) getOrCreateCounter(op OperationType) *atomic.Uint64 {
	c.countsMu.RLock()
	counter, exists := c.counts[op]
	c.countsMu.RUnlock()

	if !exists {
		c.countsMu.Lock()
		if counter, exists = c.counts[op]; !exists {
			counter = &atomic.Uint64{}
			c.counts[op] = counter
		}
		c.countsMu.Unlock()
	}

	return counter
}

func (c *AtomicCollector) getOrCreateLatencyTracker(op OperationType) *LatencyTracker {
	c.latenciesMu.RLock()
	tracker, exists := c.latencies[op]
	c.latenciesMu.RUnlock()

	if !exists {
		c.latenciesMu.Lock()
		if tracker, exists = c.latencies[op]; !exists {
			tracker = &LatencyTracker{}
			c.latencies[op] = tracker
		}
		c.latenciesMu.Unlock()
	}

	return tracker
}
