package stream_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/rowsource/csvsource"
	"github.com/tabuladb/tabula/pkg/stats"
	"github.com/tabuladb/tabula/pkg/stream"
)

// slowCollector stalls after every inbound batch, between the adapter
// serving a reader and the rest of its bookkeeping
type slowCollector struct {
	*stats.AtomicCollector
	delay time.Duration
}

func (c slowCollector) TrackRows(inbound bool, n uint64) {
	if inbound {
		time.Sleep(c.delay)
	}
	c.AtomicCollector.TrackRows(inbound, n)
}

func TestPauseNeverOvertakesResume(t *testing.T) {
	for _, delay := range []time.Duration{0, 20 * time.Millisecond} {
		src := csvsource.New(strings.NewReader("h\n1\n2\n3\n4\n"),
			csvsource.WithBatchSize(1),
			csvsource.WithLogger(log.NewDiscardLogger()))
		a := stream.New(src,
			stream.WithLogger(log.NewDiscardLogger()),
			stream.WithStats(slowCollector{stats.NewAtomicCollector(), delay}))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var got []string
		for {
			r, err := a.Read(ctx)
			if err != nil {
				t.Fatalf("delay %v: consumer stalled after %d rows: %v", delay, len(got), err)
			}
			if r.Done {
				break
			}
			got = append(got, r.Value[0])
		}
		cancel()
		a.Close()

		if strings.Join(got, ",") != "1,2,3,4" {
			t.Errorf("delay %v: expected rows 1,2,3,4, got %v", delay, got)
		}
		if a.State().Paused {
			t.Errorf("delay %v: expected the adapter to end unpaused", delay)
		}
	}
}
