package stats

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_TrackOperation(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperation(OpRead)
	collector.TrackOperation(OpRead)
	collector.TrackOperation(OpPause)

	stats := collector.GetStats()

	if stats["read_ops"].(uint64) != 2 {
		t.Errorf("Expected 2 read operations, got %v", stats["read_ops"])
	}
	if stats["pause_ops"].(uint64) != 1 {
		t.Errorf("Expected 1 pause operation, got %v", stats["pause_ops"])
	}
	if _, exists := stats["last_read_time"]; !exists {
		t.Errorf("Expected last_read_time to exist in stats")
	}
}

func TestCollector_TrackOperationWithLatency(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperationWithLatency(OpSort, 100)
	collector.TrackOperationWithLatency(OpSort, 200)
	collector.TrackOperationWithLatency(OpSort, 300)

	latencyStats, ok := collector.GetStats()["sort_latency"].(map[string]any)
	if !ok {
		t.Fatalf("Expected sort_latency to be a map")
	}

	if count := latencyStats["count"].(uint64); count != 3 {
		t.Errorf("Expected 3 latency records, got %v", count)
	}
	if avg := latencyStats["avg_ns"].(uint64); avg != 200 {
		t.Errorf("Expected average latency 200ns, got %v", avg)
	}
	if v := latencyStats["min_ns"].(uint64); v != 100 {
		t.Errorf("Expected min latency 100ns, got %v", v)
	}
	if v := latencyStats["max_ns"].(uint64); v != 300 {
		t.Errorf("Expected max latency 300ns, got %v", v)
	}
}

func TestCollector_RowsAndBuffer(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackRows(true, 10)
	collector.TrackRows(false, 4)
	collector.TrackBufferDepth(6)
	collector.TrackBufferDepth(2)

	stats := collector.GetStats()
	if stats["rows_in"].(uint64) != 10 || stats["rows_out"].(uint64) != 4 {
		t.Errorf("Expected rows_in=10 rows_out=4, got %v/%v", stats["rows_in"], stats["rows_out"])
	}
	if stats["buffer_depth"].(uint64) != 2 {
		t.Errorf("Expected current buffer depth 2, got %v", stats["buffer_depth"])
	}
	if stats["buffer_depth_max"].(uint64) != 6 {
		t.Errorf("Expected max buffer depth 6, got %v", stats["buffer_depth_max"])
	}
}

func TestCollector_Streams(t *testing.T) {
	collector := NewAtomicCollector()

	start := collector.StartStream()
	time.Sleep(time.Millisecond)
	collector.FinishStream(start, 5, false)
	collector.FinishStream(collector.StartStream(), 0, true)

	streamStats := collector.GetStats()["stream"].(map[string]any)
	if streamStats["started"].(uint64) != 2 {
		t.Errorf("Expected 2 started streams, got %v", streamStats["started"])
	}
	if streamStats["completed"].(uint64) != 1 || streamStats["failed"].(uint64) != 1 {
		t.Errorf("Expected 1 completed and 1 failed, got %v", streamStats)
	}
	if streamStats["rows_streamed"].(uint64) != 5 {
		t.Errorf("Expected 5 rows streamed, got %v", streamStats["rows_streamed"])
	}
}

func TestCollector_TrackError(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackError("upstream")
	collector.TrackError("upstream")
	collector.TrackError("protocol_violation")

	errorStats := collector.GetStats()["errors"].(map[string]uint64)
	if errorStats["upstream"] != 2 || errorStats["protocol_violation"] != 1 {
		t.Errorf("Unexpected error counts: %v", errorStats)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	collector := NewAtomicCollector()
	const numGoroutines = 10
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				collector.TrackOperationWithLatency(OpRead, uint64(j+1))
				collector.TrackRows(true, 1)
				collector.TrackError("upstream")
			}
		}()
	}
	wg.Wait()

	stats := collector.GetStats()
	want := uint64(numGoroutines * opsPerGoroutine)
	if stats["read_ops"].(uint64) != want {
		t.Errorf("Expected %d reads, got %v", want, stats["read_ops"])
	}
	if stats["rows_in"].(uint64) != want {
		t.Errorf("Expected %d rows, got %v", want, stats["rows_in"])
	}
	latency := stats["read_latency"].(map[string]any)
	if latency["min_ns"].(uint64) != 1 || latency["max_ns"].(uint64) != opsPerGoroutine {
		t.Errorf("Unexpected latency bounds: %v", latency)
	}
}

func TestCollector_GetStatsFiltered(t *testing.T) {
	collector := NewAtomicCollector()
	collector.TrackOperation(OpRead)
	collector.TrackOperation(OpResume)
	collector.TrackRows(true, 3)

	filtered := collector.GetStatsFiltered("rows_")
	if len(filtered) != 2 {
		t.Errorf("Expected rows_in and rows_out, got %v", filtered)
	}
	if _, ok := filtered["read_ops"]; ok {
		t.Errorf("Expected read_ops to be filtered out")
	}
}
