package boltsource

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/openkvlab/boltdb"
	boltdb_errors "github.com/openkvlab/boltdb/errors"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/frame"
	"github.com/tabuladb/tabula/pkg/stream"
)

func openTestDB(t *testing.T) *boltdb.DB {
	t.Helper()
	db, err := boltdb.Open(filepath.Join(t.TempDir(), "rows.db"), 0600, nil)
	if err != nil {
		t.Fatalf("Failed to open bolt db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type recorder struct {
	mu       sync.Mutex
	batches  [][]stream.Row
	err      error
	finished chan struct{}
}

func newRecorder() *recorder {
	return &recorder{finished: make(chan struct{})}
}

func (r *recorder) OnRow(rows []stream.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, rows)
}

func (r *recorder) OnComplete() { close(r.finished) }

func (r *recorder) OnError(err error) {
	r.err = err
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

var people = []stream.Row{
	{"id", "name"},
	{"1", "ada"},
	{"2", "alan"},
	{"3", "grace"},
	{"4", "edsger"},
}

func TestWriteAndStream(t *testing.T) {
	db := openTestDB(t)
	if err := WriteRows(db, "people", people[:3]); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}
	if err := WriteRows(db, "people", people[3:]); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}

	src := New(db, "people", WithBatchSize(2), WithLogger(log.NewDiscardLogger()))
	rec := newRecorder()
	src.Start(rec)
	rec.wait(t)

	if rec.err != nil {
		t.Fatalf("Unexpected error: %v", rec.err)
	}
	if len(rec.batches) != 3 {
		t.Errorf("Expected 3 batches, got %d", len(rec.batches))
	}
	var got []stream.Row
	for _, b := range rec.batches {
		got = append(got, b...)
	}
	if !reflect.DeepEqual(got, people) {
		t.Errorf("Expected rows in insertion order, got %v", got)
	}
}

func TestExactMultipleOfBatchSize(t *testing.T) {
	db := openTestDB(t)
	if err := WriteRows(db, "pairs", people[:4]); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}

	src := New(db, "pairs", WithBatchSize(2), WithLogger(log.NewDiscardLogger()))
	rec := newRecorder()
	src.Start(rec)
	rec.wait(t)
	if rec.err != nil || len(rec.batches) != 2 {
		t.Errorf("Expected 2 batches and no error, got %d, %v", len(rec.batches), rec.err)
	}
}

func TestMissingBucket(t *testing.T) {
	db := openTestDB(t)
	src := New(db, "nope", WithLogger(log.NewDiscardLogger()))
	rec := newRecorder()
	src.Start(rec)
	rec.wait(t)
	if !errors.Is(rec.err, boltdb_errors.ErrBucketNotFound) {
		t.Errorf("Expected ErrBucketNotFound, got %v", rec.err)
	}
}

func TestCorruptRow(t *testing.T) {
	db := openTestDB(t)
	err := db.Update(func(tx *boltdb.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("bad"))
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(1), []byte{0xc1})
	})
	if err != nil {
		t.Fatalf("Failed to write corrupt row: %v", err)
	}

	src := New(db, "bad", WithLogger(log.NewDiscardLogger()))
	rec := newRecorder()
	src.Start(rec)
	rec.wait(t)
	if rec.err == nil {
		t.Error("Expected a decode error")
	}
}

func TestPauseBlocksDelivery(t *testing.T) {
	db := openTestDB(t)
	if err := WriteRows(db, "people", people); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}

	src := New(db, "people", WithBatchSize(1), WithLogger(log.NewDiscardLogger()))
	src.Pause()
	rec := newRecorder()
	src.Start(rec)

	time.Sleep(50 * time.Millisecond)
	rec.mu.Lock()
	n := len(rec.batches)
	rec.mu.Unlock()
	if n != 0 {
		t.Fatalf("Expected no delivery while paused, got %d batches", n)
	}

	src.Resume()
	rec.wait(t)
	if len(rec.batches) != len(people) {
		t.Errorf("Expected %d batches, got %d", len(people), len(rec.batches))
	}
}

func TestCloseStopsReader(t *testing.T) {
	db := openTestDB(t)
	if err := WriteRows(db, "people", people); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}

	src := New(db, "people", WithLogger(log.NewDiscardLogger()))
	src.Pause()
	rec := newRecorder()
	src.Start(rec)
	src.Close()

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

func TestDatasets(t *testing.T) {
	db := openTestDB(t)
	for _, name := range []string{"b", "a"} {
		if err := WriteRows(db, name, people[:1]); err != nil {
			t.Fatalf("WriteRows failed: %v", err)
		}
	}
	names, err := Datasets(db)
	if err != nil {
		t.Fatalf("Datasets failed: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Errorf("Expected [a b], got %v", names)
	}

	if err := DropDataset(db, "a"); err != nil {
		t.Fatalf("DropDataset failed: %v", err)
	}
	names, _ = Datasets(db)
	if !reflect.DeepEqual(names, []string{"b"}) {
		t.Errorf("Expected [b] after drop, got %v", names)
	}
}

func TestFrameFromBolt(t *testing.T) {
	db := openTestDB(t)
	if err := WriteRows(db, "people", people); err != nil {
		t.Fatalf("WriteRows failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src := New(db, "people", WithBatchSize(2), WithLogger(log.NewDiscardLogger()))
	a := stream.New(src, stream.WithHighWaterMark(2), stream.WithLogger(log.NewDiscardLogger()))
	f, err := frame.FromStream(ctx, a)
	if err != nil {
		t.Fatalf("FromStream failed: %v", err)
	}

	got := f.OrderByDescending("id").Head(2).Column("name").ToArray()
	if !reflect.DeepEqual(got, []any{"edsger", "grace"}) {
		t.Errorf("Expected [edsger grace], got %v", got)
	}
}
