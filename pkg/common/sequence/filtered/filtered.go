// Package filtered provides sequences that drop elements based on different criteria
package filtered

import (
	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// Predicate reports whether a value should be kept
type Predicate[T any] func(value T) bool

// FilteredCursor wraps a cursor and forwards only matching values
type FilteredCursor[T any] struct {
	src       sequence.Cursor[T]
	predicate Predicate[T]
}

// NewFilteredCursor creates a cursor that skips values failing predicate
func NewFilteredCursor[T any](src sequence.Cursor[T], predicate Predicate[T]) *FilteredCursor[T] {
	return &FilteredCursor[T]{
		src:       src,
		predicate: predicate,
	}
}

// Advance moves to the next value that passes the predicate
func (f *FilteredCursor[T]) Advance() sequence.Result[T] {
	for {
		r := f.src.Advance()
		if r.Done || f.predicate(r.Value) {
			return r
		}
	}
}

// Filter keeps the values of source for which predicate holds, in their
// original relative order.
func Filter[T any](source sequence.Sequence[T], predicate Predicate[T]) sequence.Sequence[T] {
	return sequence.SequenceFunc[T](func() sequence.Cursor[T] {
		return NewFilteredCursor(source.Iterate(), predicate)
	})
}

// Distinct yields the first occurrence of every value.
// Equality is Go's == operator.
func Distinct[T comparable](source sequence.Sequence[T]) sequence.Sequence[T] {
	return DistinctBy(source, func(v T) T { return v })
}

// DistinctBy yields the first element for each key produced by keyOf, in
// original order. Keys are compared with ==, so value types compare
// structurally and pointers compare by identity.
func DistinctBy[T any, K comparable](source sequence.Sequence[T], keyOf func(T) K) sequence.Sequence[T] {
	return sequence.SequenceFunc[T](func() sequence.Cursor[T] {
		seen := make(map[K]struct{})
		return NewFilteredCursor(source.Iterate(), func(v T) bool {
			k := keyOf(v)
			if _, ok := seen[k]; ok {
				return false
			}
			seen[k] = struct{}{}
			return true
		})
	})
}
