package composite

import (
	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// MultiplexCursor advances several source cursors in lockstep
type MultiplexCursor[T any] struct {
	sources []sequence.Cursor[T]
	done    bool
}

// NewMultiplexCursor creates a cursor over the given source cursors
func NewMultiplexCursor[T any](sources []sequence.Cursor[T]) *MultiplexCursor[T] {
	return &MultiplexCursor[T]{
		sources: sources,
		done:    len(sources) == 0,
	}
}

// Advance pulls exactly one element from every source and returns them as a
// tuple. As soon as any source is exhausted the cursor is done and the
// partially collected tuple is discarded.
func (m *MultiplexCursor[T]) Advance() sequence.Result[[]T] {
	if m.done {
		return sequence.Done[[]T]()
	}

	tuple := make([]T, len(m.sources))
	for i, src := range m.sources {
		r := src.Advance()
		if r.Done {
			m.done = true
			return sequence.Done[[]T]()
		}
		tuple[i] = r.Value
	}
	return sequence.Some(tuple)
}

// NumSources returns the number of zipped sources
func (m *MultiplexCursor[T]) NumSources() int {
	return len(m.sources)
}

// Multiplex zips sources positionally. With no sources it yields nothing.
func Multiplex[T any](sources ...sequence.Sequence[T]) sequence.Sequence[[]T] {
	return sequence.SequenceFunc[[]T](func() sequence.Cursor[[]T] {
		cursors := make([]sequence.Cursor[T], len(sources))
		for i, s := range sources {
			cursors[i] = s.Iterate()
		}
		return NewMultiplexCursor(cursors)
	})
}

// Pair2 is one element of a two-way zip
type Pair2[A, B any] struct {
	First  A
	Second B
}

// Zip2 zips two sequences of different element types. It stops at the
// shorter of the two.
func Zip2[A, B any](a sequence.Sequence[A], b sequence.Sequence[B]) sequence.Sequence[Pair2[A, B]] {
	return sequence.SequenceFunc[Pair2[A, B]](func() sequence.Cursor[Pair2[A, B]] {
		ca, cb := a.Iterate(), b.Iterate()
		done := false
		return sequence.CursorFunc[Pair2[A, B]](func() sequence.Result[Pair2[A, B]] {
			if done {
				return sequence.Done[Pair2[A, B]]()
			}
			ra := ca.Advance()
			if ra.Done {
				done = true
				return sequence.Done[Pair2[A, B]]()
			}
			rb := cb.Advance()
			if rb.Done {
				done = true
				return sequence.Done[Pair2[A, B]]()
			}
			return sequence.Some(Pair2[A, B]{First: ra.Value, Second: rb.Value})
		})
	})
}

// ZipWith zips two sequences through a combining function
func ZipWith[A, B, C any](a sequence.Sequence[A], b sequence.Sequence[B], fn func(A, B) C) sequence.Sequence[C] {
	return sequence.Map(Zip2(a, b), func(p Pair2[A, B]) C {
		return fn(p.First, p.Second)
	})
}
