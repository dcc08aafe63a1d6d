// Package stream bridges push-based row sources to the pull-based
// asynchronous sequence protocol.
//
// A RowSource delivers batches of rows to a RowHandler at its own pace. The
// Adapter is that handler: it buffers rows, treats the first row as the
// header, and hands rows out one at a time through Read. When a reader is
// waiting the source keeps flowing; once the reader is served, or the buffer
// reaches the high-water mark, the source is paused until the buffer drains.
package stream

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tabuladb/tabula/pkg/common/asyncseq"
	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/common/sequence"
	"github.com/tabuladb/tabula/pkg/stats"
	"github.com/tabuladb/tabula/pkg/telemetry"
)

// Row is one record as delivered by a row source
type Row = []string

// RowHandler receives rows from a RowSource. Calls for a single source are
// never concurrent but may arrive on any goroutine.
type RowHandler interface {
	// OnRow delivers a batch of rows in source order
	OnRow(rows []Row)
	// OnComplete signals that no more rows will be delivered
	OnComplete()
	// OnError signals a terminal failure
	OnError(err error)
}

// RowSource is an external push-based producer of rows.
//
// Start begins delivery to h and must not block. Pause and Resume are hints:
// a paused source stops delivering after the batch in flight. The adapter
// calls both with its lock held, so neither may block or call back into the
// handler.
type RowSource interface {
	Start(h RowHandler)
	Pause()
	Resume()
	Close() error
}

// StreamState is the mutable state of an Adapter. It is only touched with
// the adapter's mutex held.
type StreamState struct {
	Buffer      []Row
	ColumnNames []string
	Done        bool
	Err         error
	Paused      bool

	headerSeen    bool
	columnWaiters []chan columnsResult
	readWaiter    chan readResult
}

type readResult struct {
	result sequence.Result[Row]
	err    error
}

type columnsResult struct {
	names []string
	err   error
}

// Options configures an Adapter
type Options struct {
	// HighWaterMark pauses the source once this many rows are buffered.
	// Zero disables the limit.
	HighWaterMark int
	Logger        log.Logger
	Stats         stats.Collector
	Telemetry     telemetry.Telemetry
	// SourceName tags logs and metrics
	SourceName string
}

// Option is a functional option for an Adapter
type Option func(*Options)

// WithHighWaterMark sets the buffered row count that pauses the source
func WithHighWaterMark(n int) Option {
	return func(o *Options) {
		o.HighWaterMark = n
	}
}

// WithLogger sets the adapter logger
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithStats sets the collector that receives adapter statistics
func WithStats(collector stats.Collector) Option {
	return func(o *Options) {
		o.Stats = collector
	}
}

// WithTelemetry enables adapter metrics
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(o *Options) {
		o.Telemetry = tel
	}
}

// WithSourceName names the source in logs and metrics
func WithSourceName(name string) Option {
	return func(o *Options) {
		o.SourceName = name
	}
}

// Adapter turns a RowSource into a pull-based reader.
type Adapter struct {
	source  RowSource
	opts    Options
	logger  log.Logger
	stats   stats.Collector
	metrics StreamMetrics

	mu      sync.Mutex
	state   StreamState
	started time.Time
	rows    uint64

	iterated atomic.Bool
}

var _ RowHandler = (*Adapter)(nil)

// New creates an adapter over source and starts the source immediately.
func New(source RowSource, options ...Option) *Adapter {
	opts := Options{SourceName: "rows"}
	for _, opt := range options {
		opt(&opts)
	}

	a := &Adapter{
		source: source,
		opts:   opts,
		logger: opts.Logger,
		stats:  opts.Stats,
	}
	if a.logger == nil {
		a.logger = log.GetDefaultLogger()
	}
	a.logger = a.logger.WithFields(map[string]any{
		"component": telemetry.ComponentStream,
		"source":    opts.SourceName,
	})
	if a.stats == nil {
		a.stats = stats.NewAtomicCollector()
	}
	a.metrics = NewStreamMetrics(opts.Telemetry, opts.SourceName)

	a.started = a.stats.StartStream()
	a.logger.Debug("Starting row source")
	source.Start(a)
	return a
}

// Stats exposes the adapter statistics
func (a *Adapter) Stats() stats.Provider {
	return a.stats
}

// OnRow buffers a batch. The first row of the first non-empty batch becomes
// the header.
func (a *Adapter) OnRow(rows []Row) {
	a.mu.Lock()
	if a.state.Done || a.state.Err != nil {
		a.mu.Unlock()
		return
	}

	if !a.state.headerSeen && len(rows) > 0 {
		a.state.headerSeen = true
		a.state.ColumnNames = append([]string{}, rows[0]...)
		rows = rows[1:]
		for _, w := range a.state.columnWaiters {
			w <- columnsResult{names: slices.Clone(a.state.ColumnNames)}
		}
		a.state.columnWaiters = nil
	}

	a.state.Buffer = append(a.state.Buffer, rows...)
	a.rows += uint64(len(rows))

	pause := false
	if a.state.readWaiter != nil && len(a.state.Buffer) > 0 {
		a.state.readWaiter <- readResult{result: sequence.Some(a.popLocked())}
		a.state.readWaiter = nil
		pause = true
	}
	if a.opts.HighWaterMark > 0 && len(a.state.Buffer) >= a.opts.HighWaterMark {
		pause = true
	}
	// Pause and Resume are issued under the lock so a Read that resumes the
	// source can never be overtaken by an older Pause.
	pause = pause && !a.state.Paused
	if pause {
		a.state.Paused = true
		a.source.Pause()
	}
	depth := len(a.state.Buffer)
	a.mu.Unlock()

	a.stats.TrackRows(true, uint64(len(rows)))
	a.stats.TrackBufferDepth(uint64(depth))
	a.metrics.RecordRows(context.Background(), len(rows))
	if pause {
		a.trackPause(depth)
	}
}

// OnComplete marks the stream done and releases every waiter.
func (a *Adapter) OnComplete() {
	a.mu.Lock()
	if a.state.Done || a.state.Err != nil {
		a.mu.Unlock()
		return
	}
	a.state.Done = true
	if a.state.readWaiter != nil {
		a.state.readWaiter <- readResult{result: sequence.Done[Row]()}
		a.state.readWaiter = nil
	}
	for _, w := range a.state.columnWaiters {
		w <- columnsResult{names: []string{}}
	}
	a.state.columnWaiters = nil
	rows := a.rows
	a.mu.Unlock()

	a.finish(rows, nil)
}

// OnError moves the adapter into its permanent failed state. Only the first
// error is kept.
func (a *Adapter) OnError(err error) {
	a.fail(&UpstreamError{Err: err})
}

// Close closes the source. Reads on an adapter that had not finished fail
// with ErrClosed afterwards.
func (a *Adapter) Close() error {
	err := a.source.Close()
	a.fail(ErrClosed)
	return err
}

func (a *Adapter) fail(err error) {
	a.mu.Lock()
	if a.state.Done || a.state.Err != nil {
		a.mu.Unlock()
		return
	}
	a.state.Err = err
	if a.state.readWaiter != nil {
		a.state.readWaiter <- readResult{result: sequence.Done[Row](), err: err}
		a.state.readWaiter = nil
	}
	for _, w := range a.state.columnWaiters {
		w <- columnsResult{err: err}
	}
	a.state.columnWaiters = nil
	rows := a.rows
	a.mu.Unlock()

	a.finish(rows, err)
}

func (a *Adapter) finish(rows uint64, err error) {
	a.stats.FinishStream(a.started, rows, err != nil)
	a.metrics.RecordCompletion(context.Background(), time.Since(a.started), rows, err)
	if err != nil {
		a.stats.TrackError(errorType(err))
		a.logger.Warn("Row source failed after %d rows: %v", rows, err)
		return
	}
	a.logger.Debug("Row source completed with %d rows", rows)
}

func (a *Adapter) popLocked() Row {
	head := a.state.Buffer[0]
	a.state.Buffer[0] = nil
	a.state.Buffer = a.state.Buffer[1:]
	return head
}

func (a *Adapter) trackPause(depth int) {
	a.stats.TrackOperation(stats.OpPause)
	a.metrics.RecordBackpressure(context.Background(), telemetry.OpTypePause, depth)
}

func (a *Adapter) trackResume() {
	a.stats.TrackOperation(stats.OpResume)
	a.metrics.RecordBackpressure(context.Background(), telemetry.OpTypeResume, 0)
}

// Read returns the next data row, or Done once the source has completed and
// the buffer is drained. A stored error takes precedence over buffered rows.
// Calling Read while another Read is waiting fails with
// sequence.ErrProtocolViolation. Cancelling ctx abandons the wait; the
// adapter stays usable.
func (a *Adapter) Read(ctx context.Context) (sequence.Result[Row], error) {
	start := time.Now()

	a.mu.Lock()
	if a.state.readWaiter != nil {
		a.mu.Unlock()
		err := fmt.Errorf("%w: Read called while a previous Read is outstanding", sequence.ErrProtocolViolation)
		a.stats.TrackError(errorType(err))
		return sequence.Done[Row](), err
	}
	if err := a.state.Err; err != nil {
		a.mu.Unlock()
		return a.readDone(ctx, start, sequence.Done[Row](), err, telemetry.StatusError)
	}
	if len(a.state.Buffer) > 0 {
		row := a.popLocked()
		a.mu.Unlock()
		return a.readDone(ctx, start, sequence.Some(row), nil, "buffered")
	}
	if a.state.Done {
		a.mu.Unlock()
		return a.readDone(ctx, start, sequence.Done[Row](), nil, telemetry.StatusDone)
	}

	w := make(chan readResult, 1)
	a.state.readWaiter = w
	resume := a.state.Paused
	if resume {
		a.state.Paused = false
		a.source.Resume()
	}
	a.mu.Unlock()

	if resume {
		a.trackResume()
	}

	select {
	case r := <-w:
		return a.readDone(ctx, start, r.result, r.err, statusOf(r))
	case <-ctx.Done():
		a.mu.Lock()
		if a.state.readWaiter == w {
			a.state.readWaiter = nil
			a.mu.Unlock()
			return a.readDone(ctx, start, sequence.Done[Row](), ctx.Err(), telemetry.StatusError)
		}
		a.mu.Unlock()
		// Served concurrently with cancellation; deliver rather than drop the row.
		r := <-w
		return a.readDone(ctx, start, r.result, r.err, statusOf(r))
	}
}

func statusOf(r readResult) string {
	switch {
	case r.err != nil:
		return telemetry.StatusError
	case r.result.Done:
		return telemetry.StatusDone
	default:
		return "waited"
	}
}

func (a *Adapter) readDone(ctx context.Context, start time.Time, r sequence.Result[Row], err error, status string) (sequence.Result[Row], error) {
	elapsed := time.Since(start)
	a.stats.TrackOperationWithLatency(stats.OpRead, uint64(elapsed.Nanoseconds()))
	a.metrics.RecordRead(ctx, elapsed, status)
	if err != nil {
		return sequence.Done[Row](), err
	}
	if !r.Done {
		a.stats.TrackRows(false, 1)
	}
	return r, nil
}

// ColumnNames returns the header row. It resolves to an empty list when the
// source completes without delivering any row.
func (a *Adapter) ColumnNames(ctx context.Context) ([]string, error) {
	a.stats.TrackOperation(stats.OpColumnNames)

	a.mu.Lock()
	if err := a.state.Err; err != nil {
		a.mu.Unlock()
		return nil, err
	}
	if a.state.headerSeen {
		names := append([]string{}, a.state.ColumnNames...)
		a.mu.Unlock()
		return names, nil
	}
	if a.state.Done {
		a.mu.Unlock()
		return []string{}, nil
	}
	w := make(chan columnsResult, 1)
	a.state.columnWaiters = append(a.state.columnWaiters, w)
	a.mu.Unlock()

	select {
	case r := <-w:
		return r.names, r.err
	case <-ctx.Done():
		a.mu.Lock()
		i := slices.Index(a.state.columnWaiters, w)
		if i >= 0 {
			a.state.columnWaiters = slices.Delete(a.state.columnWaiters, i, i+1)
			a.mu.Unlock()
			return nil, ctx.Err()
		}
		a.mu.Unlock()
		r := <-w
		return r.names, r.err
	}
}

// State returns a snapshot of the adapter state
func (a *Adapter) State() StreamState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return StreamState{
		Buffer:      slices.Clone(a.state.Buffer),
		ColumnNames: slices.Clone(a.state.ColumnNames),
		Done:        a.state.Done,
		Err:         a.state.Err,
		Paused:      a.state.Paused,
	}
}

// Rows exposes the data rows as a single-pass asynchronous sequence. Only
// the first Iterate reads from the adapter; later cursors fail with
// sequence.ErrProtocolViolation.
func (a *Adapter) Rows() asyncseq.Sequence[Row] {
	return asyncseq.SequenceFunc[Row](func() asyncseq.Cursor[Row] {
		if !a.iterated.CompareAndSwap(false, true) {
			err := fmt.Errorf("%w: stream %q can only be iterated once", sequence.ErrProtocolViolation, a.opts.SourceName)
			return asyncseq.Fail[Row](err).Iterate()
		}
		return asyncseq.Guard[Row](asyncseq.CursorFunc[Row](a.Read))
	})
}

// Records exposes the data rows as maps keyed by column name. Missing
// trailing fields map to nil and fields beyond the header are dropped.
// It shares the single pass of Rows.
func (a *Adapter) Records() asyncseq.Sequence[map[string]any] {
	rows := a.Rows()
	return asyncseq.SequenceFunc[map[string]any](func() asyncseq.Cursor[map[string]any] {
		src := rows.Iterate()
		var columns []string
		return asyncseq.Guard[map[string]any](asyncseq.CursorFunc[map[string]any](func(ctx context.Context) (sequence.Result[map[string]any], error) {
			r, err := src.Advance(ctx)
			if err != nil || r.Done {
				return sequence.Done[map[string]any](), err
			}
			if columns == nil {
				if columns, err = a.ColumnNames(ctx); err != nil {
					return sequence.Done[map[string]any](), err
				}
			}
			return sequence.Some(RecordOf(columns, r.Value)), nil
		}))
	})
}

// RecordOf maps row fields onto column names
func RecordOf(columns []string, row Row) map[string]any {
	rec := make(map[string]any, len(columns))
	for i, name := range columns {
		if i < len(row) {
			rec[name] = row[i]
		} else {
			rec[name] = nil
		}
	}
	return rec
}
