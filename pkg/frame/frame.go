// Package frame is the column-aware pairing model: a Series of rows keyed by
// column name, with column names either supplied or inferred from the rows.
package frame

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/tabuladb/tabula/pkg/common/log"
	"github.com/tabuladb/tabula/pkg/common/sequence"
	"github.com/tabuladb/tabula/pkg/common/sequence/composite"
	"github.com/tabuladb/tabula/pkg/series"
	"github.com/tabuladb/tabula/pkg/stats"
	"github.com/tabuladb/tabula/pkg/stream"
)

// Row is one record keyed by column name
type Row = map[string]any

// Options configures a Frame and everything derived from it
type Options struct {
	Stats  stats.Collector
	Logger log.Logger
}

// Option is a functional option for a Frame
type Option func(*Options)

// WithStats records frame operations on collector
func WithStats(collector stats.Collector) Option {
	return func(o *Options) {
		o.Stats = collector
	}
}

// WithLogger sets the frame logger
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func newOptions(options []Option) Options {
	var opts Options
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

func (o *Options) track(op stats.OperationType) {
	if o.Stats != nil {
		o.Stats.TrackOperation(op)
	}
}

// columnSet resolves column names at most once
type columnSet struct {
	once  sync.Once
	names []string
	infer func() []string
}

func explicitColumns(names []string) *columnSet {
	cs := &columnSet{names: slices.Clone(names)}
	cs.once.Do(func() {})
	return cs
}

func (cs *columnSet) get() []string {
	cs.once.Do(func() {
		cs.names = cs.infer()
		cs.infer = nil
	})
	return cs.names
}

// inferColumns reads the keys of the first row, or the union of the keys of
// every row in first-seen order when all is set. Keys within a row are taken
// in sorted order.
func inferColumns[I comparable](pairs sequence.Sequence[series.Pair[I, Row]], all bool) func() []string {
	return func() []string {
		names := make([]string, 0)
		seen := make(map[string]struct{})
		c := pairs.Iterate()
		for r := c.Advance(); !r.Done; r = c.Advance() {
			if r.Value.Value == nil {
				continue
			}
			for _, k := range slices.Sorted(maps.Keys(r.Value.Value)) {
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					names = append(names, k)
				}
			}
			if !all {
				break
			}
		}
		return names
	}
}

// Init is one of the construction shapes: Values, Pairs, IndexedValues or
// Columns.
type Init[I comparable] interface {
	build() (pairs sequence.Sequence[series.Pair[I, Row]], columns *columnSet, err error)
}

func resolveColumns[I comparable](pairs sequence.Sequence[series.Pair[I, Row]], names []string, all bool) *columnSet {
	if names != nil {
		return explicitColumns(names)
	}
	return &columnSet{infer: inferColumns(pairs, all)}
}

// Values builds a positionally indexed frame from rows
type Values struct {
	Rows            sequence.Sequence[Row]
	ColumnNames     []string
	ConsiderAllRows bool
}

func (v Values) build() (sequence.Sequence[series.Pair[int, Row]], *columnSet, error) {
	if v.Rows == nil {
		return nil, nil, fmt.Errorf("%w: Values requires rows", sequence.ErrConfiguration)
	}
	pairs := series.FromValues(v.Rows).Pairs()
	return pairs, resolveColumns(pairs, v.ColumnNames, v.ConsiderAllRows), nil
}

// Pairs builds a frame from indexed rows
type Pairs[I comparable] struct {
	Pairs           sequence.Sequence[series.Pair[I, Row]]
	ColumnNames     []string
	ConsiderAllRows bool
}

func (p Pairs[I]) build() (sequence.Sequence[series.Pair[I, Row]], *columnSet, error) {
	if p.Pairs == nil {
		return nil, nil, fmt.Errorf("%w: Pairs requires a pair sequence", sequence.ErrConfiguration)
	}
	return p.Pairs, resolveColumns(p.Pairs, p.ColumnNames, p.ConsiderAllRows), nil
}

// IndexedValues builds a frame from an index and rows paired positionally
type IndexedValues[I comparable] struct {
	Index           sequence.Sequence[I]
	Rows            sequence.Sequence[Row]
	ColumnNames     []string
	ConsiderAllRows bool
}

func (iv IndexedValues[I]) build() (sequence.Sequence[series.Pair[I, Row]], *columnSet, error) {
	s, err := series.New[I, Row](series.IndexedValues[I, Row]{Index: iv.Index, Values: iv.Rows})
	if err != nil {
		return nil, nil, err
	}
	pairs := s.Pairs()
	return pairs, resolveColumns(pairs, iv.ColumnNames, iv.ConsiderAllRows), nil
}

// Columns builds a positionally indexed frame from one sequence per column.
// Columns are read in ColumnNames order, or sorted by name when ColumnNames
// is nil. The shortest column bounds the frame.
type Columns struct {
	Columns     map[string]sequence.Sequence[any]
	ColumnNames []string
}

func (c Columns) build() (sequence.Sequence[series.Pair[int, Row]], *columnSet, error) {
	if c.Columns == nil {
		return nil, nil, fmt.Errorf("%w: Columns requires a column map", sequence.ErrConfiguration)
	}
	names := c.ColumnNames
	if names == nil {
		names = slices.Sorted(maps.Keys(c.Columns))
	}
	seqs := make([]sequence.Sequence[any], len(names))
	for i, name := range names {
		seq, ok := c.Columns[name]
		if !ok || seq == nil {
			return nil, nil, fmt.Errorf("%w: no values for column %q", sequence.ErrConfiguration, name)
		}
		seqs[i] = seq
	}

	rows := sequence.Map(composite.Multiplex(seqs...), func(values []any) Row {
		row := make(Row, len(names))
		for i, name := range names {
			row[name] = values[i]
		}
		return row
	})
	return series.FromValues(rows).Pairs(), explicitColumns(names), nil
}

// Frame is a lazy Series of rows with named columns.
type Frame[I comparable] struct {
	rows    *series.Series[I, Row]
	columns *columnSet
	opts    Options
}

// New builds a frame from one of the Init variants
func New[I comparable](init Init[I], options ...Option) (*Frame[I], error) {
	if init == nil {
		return nil, fmt.Errorf("%w: nil frame init", sequence.ErrConfiguration)
	}
	pairs, columns, err := init.build()
	if err != nil {
		return nil, err
	}
	return &Frame[I]{
		rows:    series.FromPairsSequence(pairs),
		columns: columns,
		opts:    newOptions(options),
	}, nil
}

// FromRows builds a positionally indexed frame over rows
func FromRows(rows []Row, columnNames []string, options ...Option) *Frame[int] {
	f, _ := New[int](Values{Rows: sequence.FromSlice(rows), ColumnNames: columnNames}, options...)
	return f
}

// FromRecords builds a frame from string records. When columnNames is nil
// the first record is the header.
func FromRecords(columnNames []string, records [][]string, options ...Option) *Frame[int] {
	if columnNames == nil {
		columnNames = []string{}
		if len(records) > 0 {
			columnNames, records = records[0], records[1:]
		}
	}
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = stream.RecordOf(columnNames, rec)
	}
	return FromRows(rows, columnNames, options...)
}

// FromStream drains a streaming adapter into a baked frame whose columns are
// the stream header.
func FromStream(ctx context.Context, a *stream.Adapter, options ...Option) (*Frame[int], error) {
	columns, err := a.ColumnNames(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := series.FromAsync(ctx, a.Records())
	if err != nil {
		return nil, err
	}

	f := &Frame[int]{rows: rows, columns: explicitColumns(columns), opts: newOptions(options)}
	f.opts.track(stats.OpLoad)
	if f.opts.Logger != nil {
		f.opts.Logger.Debug("Loaded %d rows with %d columns", rows.Count(), len(columns))
	}
	return f, nil
}

func (f *Frame[I]) derive(rows *series.Series[I, Row]) *Frame[I] {
	return &Frame[I]{rows: rows, columns: f.columns, opts: f.opts}
}

// Series returns the rows as a Series
func (f *Frame[I]) Series() *series.Series[I, Row] {
	return f.rows
}

// ColumnNames returns the column names
func (f *Frame[I]) ColumnNames() []string {
	return slices.Clone(f.columns.get())
}

// HasColumn reports whether name is one of the column names
func (f *Frame[I]) HasColumn(name string) bool {
	return slices.Contains(f.columns.get(), name)
}

// Column returns the values of one column. Rows without the column yield nil.
func (f *Frame[I]) Column(name string) *series.Series[I, any] {
	return series.Select(f.rows, func(r Row, _ int) any {
		return r[name]
	})
}

// Where keeps the rows for which predicate holds
func (f *Frame[I]) Where(predicate func(Row) bool) *Frame[I] {
	return f.derive(f.rows.Where(predicate))
}

// Skip drops the first n rows
func (f *Frame[I]) Skip(n int) *Frame[I] {
	return f.derive(f.rows.Skip(n))
}

// Take keeps at most the first n rows
func (f *Frame[I]) Take(n int) *Frame[I] {
	return f.derive(f.rows.Take(n))
}

// Head is Take
func (f *Frame[I]) Head(n int) *Frame[I] {
	return f.Take(n)
}

// Tail keeps the last n rows
func (f *Frame[I]) Tail(n int) *Frame[I] {
	return f.derive(f.rows.Tail(n))
}

// Reverse yields the rows back to front
func (f *Frame[I]) Reverse() *Frame[I] {
	return f.derive(f.rows.Reverse())
}

func columnKey(name string) func(Row) any {
	return func(r Row) any {
		return r[name]
	}
}

func (f *Frame[I]) orderBy(descending bool, column string, more []string) *Frame[I] {
	f.opts.track(stats.OpSort)
	var ordered *series.OrderedSeries[I, Row]
	if descending {
		ordered = f.rows.OrderByDescending(columnKey(column))
	} else {
		ordered = f.rows.OrderBy(columnKey(column))
	}
	for _, name := range more {
		if descending {
			ordered = ordered.ThenByDescending(columnKey(name))
		} else {
			ordered = ordered.ThenBy(columnKey(name))
		}
	}
	return f.derive(ordered.Series)
}

// OrderBy sorts ascending by column, breaking ties with the columns in more
func (f *Frame[I]) OrderBy(column string, more ...string) *Frame[I] {
	return f.orderBy(false, column, more)
}

// OrderByDescending sorts descending by column, breaking ties with the
// columns in more
func (f *Frame[I]) OrderByDescending(column string, more ...string) *Frame[I] {
	return f.orderBy(true, column, more)
}

// Distinct keeps the first row for each value of column
func (f *Frame[I]) Distinct(column string) *Frame[I] {
	f.opts.track(stats.OpDistinct)
	return f.derive(f.rows.DistinctHashed(columnKey(column)))
}

// Window partitions the rows into frames of period rows. Panics with
// sequence.ErrConfiguration if period is not positive.
func (f *Frame[I]) Window(period int) *series.Series[int, *Frame[I]] {
	f.opts.track(stats.OpWindow)
	return series.Select(series.Window(f.rows, period), func(w *series.Series[I, Row], _ int) *Frame[I] {
		return f.derive(w)
	})
}

// Bake evaluates the rows. Baking a baked frame returns it unchanged.
func (f *Frame[I]) Bake() *Frame[I] {
	if f.rows.IsBaked() {
		return f
	}
	f.opts.track(stats.OpBake)
	return f.derive(f.rows.Bake())
}

// Count returns the number of rows
func (f *Frame[I]) Count() int {
	return f.rows.Count()
}

// ToRows returns the rows, skipping nil rows
func (f *Frame[I]) ToRows() []Row {
	return f.rows.ToArray()
}

// ToArray is ToRows
func (f *Frame[I]) ToArray() []Row {
	return f.ToRows()
}

// ToPairs returns the indexed rows, skipping nil rows
func (f *Frame[I]) ToPairs() []series.Pair[I, Row] {
	return f.rows.ToPairs()
}
