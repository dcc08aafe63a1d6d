// Package boltsource serves rows stored in a bolt bucket. Each value is a
// msgpack-encoded []string row; keys are big-endian bucket sequence numbers,
// so cursor order is insertion order.
package boltsource

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/openkvlab/boltdb"
	boltdb_errors "github.com/openkvlab/boltdb/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/stream"
)

// ErrAlreadyStarted is reported when Start is called more than once
var ErrAlreadyStarted = errors.New("bolt source already started")

// Options configures a Source
type Options struct {
	BatchSize int
	Logger    log.Logger
}

// Option is a functional option for a Source
type Option func(*Options)

// WithBatchSize sets the number of rows read per transaction and delivered
// per OnRow call
func WithBatchSize(n int) Option {
	return func(o *Options) {
		o.BatchSize = n
	}
}

// WithLogger sets the source logger
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Source pushes the rows of one bucket. Every batch is read in its own
// read transaction, so a paused source holds no transaction open.
type Source struct {
	db     *boltdb.DB
	bucket []byte
	opts   Options
	logger log.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	started bool
	paused  bool
	closed  bool
	done    chan struct{}
}

// New creates a Source over bucket in db. The caller owns db.
func New(db *boltdb.DB, bucket string, options ...Option) *Source {
	opts := Options{BatchSize: 128}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	s := &Source{
		db:     db,
		bucket: []byte(bucket),
		opts:   opts,
		logger: logger.WithFields(map[string]any{"component": "boltsource", "bucket": bucket}),
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start begins reading on a new goroutine
func (s *Source) Start(h stream.RowHandler) {
	s.mu.Lock()
	started := s.started
	s.started = true
	s.mu.Unlock()

	if started {
		go h.OnError(ErrAlreadyStarted)
		return
	}
	go s.run(h)
}

// Pause stops delivery after the batch in flight
func (s *Source) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume continues delivery
func (s *Source) Resume() {
	s.mu.Lock()
	s.paused = false
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Close stops delivery. The database stays open.
func (s *Source) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

// Done is closed when the reader goroutine exits
func (s *Source) Done() <-chan struct{} {
	return s.done
}

func (s *Source) proceed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.paused && !s.closed {
		s.cond.Wait()
	}
	return !s.closed
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Source) run(h stream.RowHandler) {
	defer close(s.done)

	var after []byte
	var total int
	for s.proceed() {
		batch, last, err := s.readBatch(after)
		if err != nil {
			if !s.isClosed() {
				s.logger.Warn("Failed to read rows: %v", err)
				h.OnError(err)
			}
			return
		}
		if len(batch) > 0 {
			h.OnRow(batch)
			total += len(batch)
		}
		if len(batch) < s.opts.BatchSize {
			s.logger.Debug("Finished reading %d rows", total)
			h.OnComplete()
			return
		}
		after = last
	}
}

// readBatch reads up to BatchSize rows with keys greater than after
func (s *Source) readBatch(after []byte) ([]stream.Row, []byte, error) {
	var batch []stream.Row
	var last []byte
	err := s.db.View(func(tx *boltdb.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("%w: %s", boltdb_errors.ErrBucketNotFound, s.bucket)
		}

		c := b.Cursor()
		k, v := c.First()
		if after != nil {
			k, v = c.Seek(after)
			if k != nil && bytes.Equal(k, after) {
				k, v = c.Next()
			}
		}
		for ; k != nil && len(batch) < s.opts.BatchSize; k, v = c.Next() {
			var row stream.Row
			if err := msgpack.Unmarshal(v, &row); err != nil {
				return fmt.Errorf("failed to decode row %x: %w", k, err)
			}
			batch = append(batch, row)
			last = bytes.Clone(k)
		}
		return nil
	})
	return batch, last, err
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// WriteRows appends rows to bucket, creating it if needed, in one update
// transaction.
func WriteRows(db *boltdb.DB, bucket string, rows []stream.Row) error {
	return db.Update(func(tx *boltdb.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucket))
		if err != nil {
			return err
		}
		for _, row := range rows {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := msgpack.Marshal(row)
			if err != nil {
				return fmt.Errorf("failed to encode row: %w", err)
			}
			if err := b.Put(sequenceKey(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Datasets lists the buckets of db
func Datasets(db *boltdb.DB) ([]string, error) {
	var names []string
	err := db.View(func(tx *boltdb.Tx) error {
		return tx.ForEach(func(name []byte, _ *boltdb.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	return names, err
}

// DropDataset deletes bucket and its rows
func DropDataset(db *boltdb.DB, bucket string) error {
	return db.Update(func(tx *boltdb.Tx) error {
		return tx.DeleteBucket([]byte(bucket))
	})
}
