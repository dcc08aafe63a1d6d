package csvsource

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/config"
	"github.com/tabuladb/tabula/pkg/frame"
	"github.com/tabuladb/tabula/pkg/stream"
)

const sample = "id,name\n1,ada\n2,alan\n3,grace\n"

type recorder struct {
	mu       sync.Mutex
	batches  [][]stream.Row
	err      error
	finished chan struct{}
	onRow    func(n int)
}

func newRecorder() *recorder {
	return &recorder{finished: make(chan struct{})}
}

func (r *recorder) OnRow(rows []stream.Row) {
	r.mu.Lock()
	r.batches = append(r.batches, rows)
	n := len(r.batches)
	r.mu.Unlock()
	if r.onRow != nil {
		r.onRow(n)
	}
}

func (r *recorder) OnComplete() {
	close(r.finished)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	close(r.finished)
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the source to finish")
	}
}

func (r *recorder) rows() []stream.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []stream.Row
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func newSource(input string, options ...Option) *Source {
	options = append([]Option{WithLogger(log.NewDiscardLogger())}, options...)
	return New(strings.NewReader(input), options...)
}

func TestSourceBatches(t *testing.T) {
	src := newSource(sample, WithBatchSize(3))
	rec := newRecorder()
	src.Start(rec)
	rec.wait(t)

	if rec.err != nil {
		t.Fatalf("Unexpected error: %v", rec.err)
	}
	if len(rec.batches) != 2 || len(rec.batches[0]) != 3 || len(rec.batches[1]) != 1 {
		t.Errorf("Expected batches of 3 and 1, got %v", rec.batches)
	}
	want := []stream.Row{{"id", "name"}, {"1", "ada"}, {"2", "alan"}, {"3", "grace"}}
	if got := rec.rows(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestSourceOptions(t *testing.T) {
	input := "# header follows\nid; name\n1; \"ada \"\"the countess\"\"\"\n"
	src := newSource(input, WithDelimiter(';'), WithComment('#'), WithTrimLeadingSpace(true))
	rec := newRecorder()
	src.Start(rec)
	rec.wait(t)

	want := []stream.Row{{"id", "name"}, {"1", `ada "the countess"`}}
	if got := rec.rows(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestSourceRaggedRows(t *testing.T) {
	src := newSource("a,b,c\n1\n1,2,3,4\n")
	rec := newRecorder()
	src.Start(rec)
	rec.wait(t)
	if rec.err != nil {
		t.Fatalf("Ragged rows should be delivered as-is, got %v", rec.err)
	}
	if got := rec.rows(); len(got[1]) != 1 || len(got[2]) != 4 {
		t.Errorf("Unexpected rows %v", got)
	}
}

func TestSourceParseError(t *testing.T) {
	src := newSource("a,b\n1,x\"y\n")
	rec := newRecorder()
	src.Start(rec)
	rec.wait(t)

	var parseErr *csv.ParseError
	if !errors.As(rec.err, &parseErr) {
		t.Errorf("Expected a csv.ParseError, got %v", rec.err)
	}

	lazy := newSource("a,b\n1,x\"y\n", WithLazyQuotes(true))
	rec = newRecorder()
	lazy.Start(rec)
	rec.wait(t)
	if rec.err != nil {
		t.Errorf("LazyQuotes should accept bare quotes, got %v", rec.err)
	}
}

func TestSourcePauseResume(t *testing.T) {
	src := newSource(sample, WithBatchSize(1))
	rec := newRecorder()
	paused := make(chan struct{})
	rec.onRow = func(n int) {
		if n == 1 {
			src.Pause()
			close(paused)
		}
	}
	src.Start(rec)

	<-paused
	time.Sleep(50 * time.Millisecond)
	rec.mu.Lock()
	n := len(rec.batches)
	rec.mu.Unlock()
	if n != 1 {
		t.Fatalf("Expected delivery to stop while paused, got %d batches", n)
	}

	src.Resume()
	rec.wait(t)
	if got := len(rec.rows()); got != 4 {
		t.Errorf("Expected 4 rows after resume, got %d", got)
	}
}

func TestSourceCloseWhilePaused(t *testing.T) {
	src := newSource(sample, WithBatchSize(1))
	rec := newRecorder()
	rec.onRow = func(n int) {
		if n == 1 {
			src.Pause()
		}
	}
	src.Start(rec)

	for {
		rec.mu.Lock()
		n := len(rec.batches)
		rec.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case <-src.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Reader did not exit after Close")
	}
	select {
	case <-rec.finished:
		t.Error("No completion should be delivered after Close")
	default:
	}
}

func TestSourceStartTwice(t *testing.T) {
	src := newSource(sample)
	first := newRecorder()
	src.Start(first)
	first.wait(t)

	second := newRecorder()
	src.Start(second)
	second.wait(t)
	if !errors.Is(second.err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", second.err)
	}
}

func compress(t *testing.T, codec Codec, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewCompressWriter(&buf, codec)
	if err != nil {
		t.Fatalf("NewCompressWriter(%s) failed: %v", codec, err)
	}
	if _, err := w.Write([]byte(data)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecGzip, CodecZstd, CodecSnappy} {
		t.Run(string(codec), func(t *testing.T) {
			data := compress(t, codec, sample)
			got, err := Detect(bufio.NewReader(bytes.NewReader(data)))
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if got != codec {
				t.Errorf("Expected %s, got %s", codec, got)
			}
		})
	}

	got, err := Detect(bufio.NewReader(bytes.NewReader(nil)))
	if err != nil || got != CodecNone {
		t.Errorf("Expected CodecNone for empty input, got %s, %v", got, err)
	}
}

func TestSourceDecompresses(t *testing.T) {
	for _, codec := range []Codec{CodecGzip, CodecZstd, CodecSnappy} {
		t.Run(string(codec), func(t *testing.T) {
			data := compress(t, codec, sample)
			src := New(bytes.NewReader(data), WithLogger(log.NewDiscardLogger()))
			rec := newRecorder()
			src.Start(rec)
			rec.wait(t)
			if rec.err != nil {
				t.Fatalf("Unexpected error: %v", rec.err)
			}
			if got := len(rec.rows()); got != 4 {
				t.Errorf("Expected 4 rows, got %d", got)
			}
		})
	}
}

func TestSourceForcedCodecMismatch(t *testing.T) {
	src := newSource(sample, WithCompression(CodecGzip))
	rec := newRecorder()
	src.Start(rec)
	rec.wait(t)
	if !errors.Is(rec.err, ErrInvalidCompressedData) {
		t.Errorf("Expected ErrInvalidCompressedData, got %v", rec.err)
	}
}

func TestParseCodec(t *testing.T) {
	if c, err := ParseCodec(""); err != nil || c != CodecAuto {
		t.Errorf("Expected auto for empty name, got %s, %v", c, err)
	}
	if c, err := ParseCodec("zstd"); err != nil || c != CodecZstd {
		t.Errorf("Expected zstd, got %s, %v", c, err)
	}
	if _, err := ParseCodec("lz4"); !errors.Is(err, ErrUnknownCodec) {
		t.Errorf("Expected ErrUnknownCodec, got %v", err)
	}
}

func TestOpenThroughAdapter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.csv.zst")
	if err := os.WriteFile(path, compress(t, CodecZstd, sample), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg := config.NewDefaultConfig()
	cfg.Stream.BatchSize = 1
	src, err := Open(path, append(FromConfig(cfg), WithLogger(log.NewDiscardLogger()))...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := stream.New(src, stream.WithHighWaterMark(1), stream.WithLogger(log.NewDiscardLogger()))
	defer a.Close()

	f, err := frame.FromStream(ctx, a)
	if err != nil {
		t.Fatalf("FromStream failed: %v", err)
	}
	want := []frame.Row{
		{"id": "1", "name": "ada"},
		{"id": "2", "name": "alan"},
		{"id": "3", "name": "grace"},
	}
	if got := f.ToRows(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}
