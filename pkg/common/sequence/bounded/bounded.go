// Package bounded provides sequences that limit a source by count or by predicate
package bounded

import (
	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// SkipCursor discards a fixed number of leading elements before forwarding
type SkipCursor[T any] struct {
	src       sequence.Cursor[T]
	remaining int
}

// Advance drives the source past any elements still to be skipped, then
// forwards the next one
func (s *SkipCursor[T]) Advance() sequence.Result[T] {
	for s.remaining > 0 {
		s.remaining--
		if r := s.src.Advance(); r.Done {
			s.remaining = 0
			return r
		}
	}
	return s.src.Advance()
}

// Skip discards exactly min(n, len) leading elements of source.
func Skip[T any](source sequence.Sequence[T], n int) sequence.Sequence[T] {
	return sequence.SequenceFunc[T](func() sequence.Cursor[T] {
		return &SkipCursor[T]{src: source.Iterate(), remaining: max(n, 0)}
	})
}

// TakeCursor stops after a fixed number of yields
type TakeCursor[T any] struct {
	src       sequence.Cursor[T]
	remaining int
}

// Advance forwards the next element while the budget lasts
func (t *TakeCursor[T]) Advance() sequence.Result[T] {
	if t.remaining <= 0 {
		return sequence.Done[T]()
	}
	r := t.src.Advance()
	if r.Done {
		t.remaining = 0
		return r
	}
	t.remaining--
	return r
}

// Take yields at most n elements of source. The source is never advanced
// past the n-th element.
func Take[T any](source sequence.Sequence[T], n int) sequence.Sequence[T] {
	return sequence.SequenceFunc[T](func() sequence.Cursor[T] {
		return &TakeCursor[T]{src: source.Iterate(), remaining: n}
	})
}

// SkipWhile discards leading elements while predicate holds, then yields
// everything that remains. The predicate is evaluated lazily, at most once
// per element, and never again once it has returned false.
func SkipWhile[T any](source sequence.Sequence[T], predicate func(T) bool) sequence.Sequence[T] {
	return sequence.SequenceFunc[T](func() sequence.Cursor[T] {
		src := source.Iterate()
		skipping := true
		return sequence.CursorFunc[T](func() sequence.Result[T] {
			for skipping {
				r := src.Advance()
				if r.Done {
					skipping = false
					return r
				}
				if !predicate(r.Value) {
					skipping = false
					return r
				}
			}
			return src.Advance()
		})
	})
}

// TakeWhile yields leading elements while predicate holds. The first time the
// predicate fails or the source ends, the cursor is permanently exhausted.
func TakeWhile[T any](source sequence.Sequence[T], predicate func(T) bool) sequence.Sequence[T] {
	return sequence.SequenceFunc[T](func() sequence.Cursor[T] {
		src := source.Iterate()
		done := false
		return sequence.CursorFunc[T](func() sequence.Result[T] {
			if done {
				return sequence.Done[T]()
			}
			r := src.Advance()
			if r.Done || !predicate(r.Value) {
				done = true
				return sequence.Done[T]()
			}
			return r
		})
	})
}

// SkipUntil discards leading elements until predicate first holds
func SkipUntil[T any](source sequence.Sequence[T], predicate func(T) bool) sequence.Sequence[T] {
	return SkipWhile(source, func(v T) bool { return !predicate(v) })
}

// TakeUntil yields leading elements until predicate first holds
func TakeUntil[T any](source sequence.Sequence[T], predicate func(T) bool) sequence.Sequence[T] {
	return TakeWhile(source, func(v T) bool { return !predicate(v) })
}
