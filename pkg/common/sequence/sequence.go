// Package sequence defines the pull-based protocol every lazy combinator in
// tabula is built on.
//
// A Sequence is a capability: it produces a fresh Cursor each time Iterate is
// called. A Cursor exposes a single operation, Advance, which reports either
// the next value or that the sequence is exhausted. Nothing is evaluated until
// a cursor is advanced.
//
// Sequences built from slices, counters and pure combinators over such
// sources are re-iterable: every Iterate call starts from the beginning and is
// independent of other live cursors. A cursor is owned by a single consumer.
package sequence

import "iter"

// Result is the outcome of advancing a cursor.
// When Done is true, Value holds the zero value and must be ignored.
type Result[T any] struct {
	Value T
	Done  bool
}

// Some wraps a produced value
func Some[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Done returns the exhausted result
func Done[T any]() Result[T] {
	return Result[T]{Done: true}
}

// Cursor is the mutable iteration state of a sequence.
type Cursor[T any] interface {
	// Advance moves to the next element and returns it, or reports Done.
	// Once Done has been returned, every later call returns Done as well.
	Advance() Result[T]
}

// Sequence produces cursors over its elements.
type Sequence[T any] interface {
	// Iterate returns a new cursor positioned before the first element
	Iterate() Cursor[T]
}

// CursorFunc adapts a plain function to the Cursor interface
type CursorFunc[T any] func() Result[T]

// Advance calls f
func (f CursorFunc[T]) Advance() Result[T] {
	return f()
}

// SequenceFunc adapts a cursor factory to the Sequence interface
type SequenceFunc[T any] func() Cursor[T]

// Iterate calls f
func (f SequenceFunc[T]) Iterate() Cursor[T] {
	return f()
}

// All exposes a sequence as a standard library iterator so it can be ranged over.
func All[T any](seq Sequence[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		c := seq.Iterate()
		for {
			r := c.Advance()
			if r.Done {
				return
			}
			if !yield(r.Value) {
				return
			}
		}
	}
}

// Enumerate is like All but also yields the position of each element.
func Enumerate[T any](seq Sequence[T]) iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		c := seq.Iterate()
		for i := 0; ; i++ {
			r := c.Advance()
			if r.Done {
				return
			}
			if !yield(i, r.Value) {
				return
			}
		}
	}
}

// FromIter wraps a standard library iterator. Each cursor pulls from a fresh
// run of seq, so the result is re-iterable whenever seq is. A cursor that is
// abandoned before exhaustion keeps its pull coroutine alive until seq returns.
func FromIter[T any](seq iter.Seq[T]) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		var (
			next func() (T, bool)
			stop func()
			done bool
		)
		return CursorFunc[T](func() Result[T] {
			if done {
				return Done[T]()
			}
			if next == nil {
				next, stop = iter.Pull(seq)
			}
			v, ok := next()
			if !ok {
				done = true
				stop()
				return Done[T]()
			}
			return Some(v)
		})
	})
}
