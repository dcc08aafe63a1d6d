// Package csvsource is a push-based row source over delimited text, with
// transparent gzip, zstd and snappy decompression.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/config"
	"github.com/tabuladb/tabula/pkg/stream"
)

// ErrAlreadyStarted is reported when Start is called more than once
var ErrAlreadyStarted = errors.New("csv source already started")

// Options configures a Source
type Options struct {
	Delimiter        rune
	Comment          rune
	LazyQuotes       bool
	TrimLeadingSpace bool
	BatchSize        int
	Compression      Codec
	Logger           log.Logger
}

// Option is a functional option for a Source
type Option func(*Options)

// WithDelimiter sets the field delimiter
func WithDelimiter(r rune) Option {
	return func(o *Options) {
		o.Delimiter = r
	}
}

// WithComment sets the comment character; lines starting with it are skipped
func WithComment(r rune) Option {
	return func(o *Options) {
		o.Comment = r
	}
}

// WithLazyQuotes allows quotes in unquoted fields
func WithLazyQuotes(lazy bool) Option {
	return func(o *Options) {
		o.LazyQuotes = lazy
	}
}

// WithTrimLeadingSpace ignores leading white space in fields
func WithTrimLeadingSpace(trim bool) Option {
	return func(o *Options) {
		o.TrimLeadingSpace = trim
	}
}

// WithBatchSize sets the number of rows delivered per OnRow call
func WithBatchSize(n int) Option {
	return func(o *Options) {
		o.BatchSize = n
	}
}

// WithCompression forces a codec instead of detecting one
func WithCompression(codec Codec) Option {
	return func(o *Options) {
		o.Compression = codec
	}
}

// WithLogger sets the source logger
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// FromConfig converts the csv and stream sections of cfg into options
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithDelimiter(cfg.CSV.DelimiterRune()),
		WithComment(cfg.CSV.CommentRune()),
		WithLazyQuotes(cfg.CSV.LazyQuotes),
		WithTrimLeadingSpace(cfg.CSV.TrimLeadingSpace),
		WithBatchSize(cfg.Stream.BatchSize),
		WithCompression(Codec(cfg.CSV.Compression)),
	}
}

// Source reads CSV records on its own goroutine and pushes them to a
// stream.RowHandler in batches. The first record is delivered like any
// other; the adapter treats it as the header.
type Source struct {
	r      io.Reader
	closer io.Closer
	opts   Options
	logger log.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	started bool
	paused  bool
	closed  bool
	done    chan struct{}
}

// New creates a Source over r. If r is an io.Closer it is closed by Close.
func New(r io.Reader, options ...Option) *Source {
	opts := Options{
		Delimiter:   ',',
		BatchSize:   128,
		Compression: CodecAuto,
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Compression == "" {
		opts.Compression = CodecAuto
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	s := &Source{
		r:      r,
		opts:   opts,
		logger: logger.WithField("component", "csvsource"),
		done:   make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Open creates a Source reading the file at path
func Open(path string, options ...Option) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return New(f, options...), nil
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

// Close stops the reader and closes the underlying input. No callbacks are
// made after Close returns except one already in progress.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Done is closed when the reader goroutine exits
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// proceed blocks while paused and reports whether delivery may continue
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

	input, err := NewDecompressReader(s.r, s.opts.Compression)
	if err != nil {
		if !s.isClosed() {
			h.OnError(err)
		}
		return
	}
	defer input.Close()

	reader := csv.NewReader(input)
	reader.Comma = s.opts.Delimiter
	reader.Comment = s.opts.Comment
	reader.LazyQuotes = s.opts.LazyQuotes
	reader.TrimLeadingSpace = s.opts.TrimLeadingSpace
	reader.FieldsPerRecord = -1

	var total uint64
	batch := make([]stream.Row, 0, s.opts.BatchSize)
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		if !s.proceed() {
			return false
		}
		h.OnRow(batch)
		total += uint64(len(batch))
		batch = make([]stream.Row, 0, s.opts.BatchSize)
		return true
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			if flush() && !s.isClosed() {
				s.logger.Debug("Finished reading %d records", total)
				h.OnComplete()
			}
			return
		}
		if err != nil {
			if !s.isClosed() {
				s.logger.Warn("Failed to read record: %v", err)
				h.OnError(fmt.Errorf("csv: %w", err))
			}
			return
		}

		batch = append(batch, record)
		if len(batch) == s.opts.BatchSize && !flush() {
			return
		}
	}
}
