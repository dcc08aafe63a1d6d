// Package series pairs an index with a sequence of values.
//
// A Series is backed by a single sequence of (index, value) pairs. The index
// and value views are projections of that sequence, so every operation that
// filters, reorders or windows values moves the index with them. Operations
// never mutate a Series; they return a new, still lazy, one. Bake forces
// evaluation.
package series

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/tabuladb/tabula/pkg/common/asyncseq"
	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// Pair is one element of a Series
type Pair[I, V any] struct {
	Index I
	Value V
}

// Series is a lazy, index-aligned sequence of values.
type Series[I comparable, V any] struct {
	pairs sequence.Sequence[Pair[I, V]]

	// baked holds the evaluated pairs once Bake has run on this instance
	baked   []Pair[I, V]
	isBaked bool
}

// Init is one of the accepted construction shapes: IndexedValues, Pairs or
// Empty.
type Init[I comparable, V any] interface {
	pairSequence() (sequence.Sequence[Pair[I, V]], error)
}

// IndexedValues builds a Series from separate index and value sequences.
// Elements are paired positionally; the shorter sequence bounds the result.
type IndexedValues[I comparable, V any] struct {
	Index  sequence.Sequence[I]
	Values sequence.Sequence[V]
}

func (iv IndexedValues[I, V]) pairSequence() (sequence.Sequence[Pair[I, V]], error) {
	if iv.Index == nil || iv.Values == nil {
		return nil, fmt.Errorf("%w: IndexedValues requires both an index and values", sequence.ErrConfiguration)
	}
	return zipPairs(iv.Index, iv.Values), nil
}

// Pairs builds a Series from a sequence of pairs
type Pairs[I comparable, V any] struct {
	Pairs sequence.Sequence[Pair[I, V]]
}

func (p Pairs[I, V]) pairSequence() (sequence.Sequence[Pair[I, V]], error) {
	if p.Pairs == nil {
		return nil, fmt.Errorf("%w: Pairs requires a pair sequence", sequence.ErrConfiguration)
	}
	return p.Pairs, nil
}

// Empty builds a Series with no elements
type Empty[I comparable, V any] struct{}

func (Empty[I, V]) pairSequence() (sequence.Sequence[Pair[I, V]], error) {
	return sequence.Empty[Pair[I, V]](), nil
}

// New builds a Series from one of the Init variants. A nil init is treated
// as Empty.
func New[I comparable, V any](init Init[I, V]) (*Series[I, V], error) {
	if init == nil {
		init = Empty[I, V]{}
	}
	pairs, err := init.pairSequence()
	if err != nil {
		return nil, err
	}
	return fromPairs(pairs), nil
}

func fromPairs[I comparable, V any](pairs sequence.Sequence[Pair[I, V]]) *Series[I, V] {
	return &Series[I, V]{pairs: pairs}
}

func zipPairs[I comparable, V any](index sequence.Sequence[I], values sequence.Sequence[V]) sequence.Sequence[Pair[I, V]] {
	return sequence.SequenceFunc[Pair[I, V]](func() sequence.Cursor[Pair[I, V]] {
		ci, cv := index.Iterate(), values.Iterate()
		return sequence.CursorFunc[Pair[I, V]](func() sequence.Result[Pair[I, V]] {
			ri := ci.Advance()
			if ri.Done {
				return sequence.Done[Pair[I, V]]()
			}
			rv := cv.Advance()
			if rv.Done {
				return sequence.Done[Pair[I, V]]()
			}
			return sequence.Some(Pair[I, V]{Index: ri.Value, Value: rv.Value})
		})
	})
}

// FromValues indexes values by position, starting at 0
func FromValues[V any](values sequence.Sequence[V]) *Series[int, V] {
	return fromPairs(sequence.Project(values, func(v V, i int) Pair[int, V] {
		return Pair[int, V]{Index: i, Value: v}
	}))
}

// FromSlice indexes a slice by position. The slice is not copied.
func FromSlice[V any](values []V) *Series[int, V] {
	return FromValues(sequence.FromSlice(values))
}

// FromPairsSequence builds a Series over a pair sequence
func FromPairsSequence[I comparable, V any](pairs sequence.Sequence[Pair[I, V]]) *Series[I, V] {
	return fromPairs(pairs)
}

// FromPairsSlice builds a Series over existing pairs
func FromPairsSlice[I comparable, V any](pairs []Pair[I, V]) *Series[I, V] {
	return fromPairs(sequence.FromSlice(pairs))
}

// FromMap builds a Series indexed by the map keys in ascending order
func FromMap[K cmp.Ordered, V any](m map[K]V) *Series[K, V] {
	keys := slices.Sorted(maps.Keys(m))
	pairs := make([]Pair[K, V], len(keys))
	for i, k := range keys {
		pairs[i] = Pair[K, V]{Index: k, Value: m[k]}
	}
	return FromPairsSlice(pairs)
}

// FromAsync drains an asynchronous sequence and returns it as a baked Series
// indexed by position.
func FromAsync[V any](ctx context.Context, seq asyncseq.Sequence[V]) (*Series[int, V], error) {
	values, err := asyncseq.ToSlice(ctx, seq)
	if err != nil {
		return nil, err
	}
	return FromSlice(values).Bake(), nil
}

// Pairs returns the pair sequence
func (s *Series[I, V]) Pairs() sequence.Sequence[Pair[I, V]] {
	return s.pairs
}

// Keys returns the index values as a sequence
func (s *Series[I, V]) Keys() sequence.Sequence[I] {
	return sequence.Map(s.pairs, func(p Pair[I, V]) I { return p.Index })
}

// Values returns the values as a sequence
func (s *Series[I, V]) Values() sequence.Sequence[V] {
	return sequence.Map(s.pairs, func(p Pair[I, V]) V { return p.Value })
}

// Index returns the index of s as its own Series
func (s *Series[I, V]) Index() *Index[I] {
	return NewIndex(s.Keys())
}

// Index is a Series whose values are index labels, themselves indexed by
// position.
type Index[I comparable] struct {
	*Series[int, I]
}

// NewIndex wraps values as an Index
func NewIndex[I comparable](values sequence.Sequence[I]) *Index[I] {
	return &Index[I]{Series: FromValues(values)}
}

// Labels returns the index labels
func (ix *Index[I]) Labels() []I {
	return sequence.ToSlice(ix.Values())
}

// Contains reports whether label is present
func (ix *Index[I]) Contains(label I) bool {
	return sequence.Any(ix.Values(), func(v I) bool { return v == label })
}
