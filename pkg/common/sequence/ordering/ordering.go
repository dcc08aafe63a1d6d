// Package ordering provides a multi-key stable sort over sequences.
package ordering

import (
	"bytes"
	"cmp"
	"slices"
	"sync"

	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// Direction of a sort level
type Direction int

const (
	// Ascending sorts smaller keys first
	Ascending Direction = iota
	// Descending sorts larger keys first
	Descending
)

// String returns the name of the direction
func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// SortKey describes one level of a multi-level sort. Level 0 is primary.
type SortKey[T any] struct {
	Level     int
	KeyOf     func(T) any
	Direction Direction
}

// levelKeys holds the encoded keys of one sort level, computed on demand
type levelKeys[T any] struct {
	spec     SortKey[T]
	keys     [][]byte
	computed []bool
}

func (l *levelKeys[T]) key(items []T, pos int) []byte {
	if !l.computed[pos] {
		l.keys[pos] = EncodeKey(l.spec.KeyOf(items[pos]))
		l.computed[pos] = true
	}
	return l.keys[pos]
}

// Sort returns the positions of items in sorted order.
// Keys for the first level are computed for every item up front; keys for
// later levels are computed only when a tie reaches them and are then reused.
// Items that tie on every level keep their input order.
func Sort[T any](items []T, specs []SortKey[T]) []int {
	byLevel := slices.Clone(specs)
	slices.SortStableFunc(byLevel, func(a, b SortKey[T]) int {
		return cmp.Compare(a.Level, b.Level)
	})

	levels := make([]*levelKeys[T], len(byLevel))
	for i, spec := range byLevel {
		levels[i] = &levelKeys[T]{
			spec:     spec,
			keys:     make([][]byte, len(items)),
			computed: make([]bool, len(items)),
		}
	}
	if len(levels) > 0 {
		for pos := range items {
			levels[0].key(items, pos)
		}
	}

	positions := make([]int, len(items))
	for i := range positions {
		positions[i] = i
	}

	slices.SortFunc(positions, func(a, b int) int {
		for _, level := range levels {
			c := bytes.Compare(level.key(items, a), level.key(items, b))
			if c == 0 {
				continue
			}
			if level.spec.Direction == Descending {
				return -c
			}
			return c
		}
		return cmp.Compare(a, b)
	})
	return positions
}

// OrderBy sorts source by specs. The source is materialized and sorted once,
// the first time the result is iterated; every cursor then walks the same
// sorted snapshot.
func OrderBy[T any](source sequence.Sequence[T], specs ...SortKey[T]) sequence.Sequence[T] {
	var (
		once   sync.Once
		sorted []T
	)
	load := func() {
		items := sequence.ToSlice(source)
		positions := Sort(items, specs)
		sorted = make([]T, len(items))
		for i, pos := range positions {
			sorted[i] = items[pos]
		}
	}

	return sequence.SequenceFunc[T](func() sequence.Cursor[T] {
		once.Do(load)
		return sequence.FromSlice(sorted).Iterate()
	})
}

// By is a shorthand for a single ascending level
func By[T any](keyOf func(T) any) SortKey[T] {
	return SortKey[T]{KeyOf: keyOf}
}

// ByDescending is a shorthand for a single descending level
func ByDescending[T any](keyOf func(T) any) SortKey[T] {
	return SortKey[T]{KeyOf: keyOf, Direction: Descending}
}
