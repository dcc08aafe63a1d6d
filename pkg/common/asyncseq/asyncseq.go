// Package asyncseq is the asynchronous counterpart of package sequence.
//
// An async cursor's Advance may block until the next value is available, the
// source is exhausted, the source fails, or ctx is done. In-memory sources
// (slices, counters, wrapped synchronous sequences) never block.
//
// A cursor serves one request at a time: calling Advance while a previous
// call on the same cursor has not returned fails with
// sequence.ErrProtocolViolation. Combinators finish each upstream Advance
// before issuing the next, so output order always equals upstream order.
package asyncseq

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// Cursor is the iteration state of an asynchronous sequence
type Cursor[T any] interface {
	// Advance blocks until the next element, exhaustion or an error
	Advance(ctx context.Context) (sequence.Result[T], error)
}

// Sequence produces asynchronous cursors
type Sequence[T any] interface {
	Iterate() Cursor[T]
}

// CursorFunc adapts a function to the Cursor interface. It performs no
// overlap detection; use Guard for that.
type CursorFunc[T any] func(ctx context.Context) (sequence.Result[T], error)

// Advance calls f
func (f CursorFunc[T]) Advance(ctx context.Context) (sequence.Result[T], error) {
	return f(ctx)
}

// SequenceFunc adapts a cursor factory to the Sequence interface
type SequenceFunc[T any] func() Cursor[T]

// Iterate calls f
func (f SequenceFunc[T]) Iterate() Cursor[T] {
	return f()
}

// GuardedCursor rejects overlapping Advance calls
type GuardedCursor[T any] struct {
	inner Cursor[T]
	busy  atomic.Bool
}

// Guard wraps c so that a second Advance issued before the first returns
// fails with sequence.ErrProtocolViolation instead of reaching c.
func Guard[T any](c Cursor[T]) *GuardedCursor[T] {
	return &GuardedCursor[T]{inner: c}
}

// Advance forwards to the wrapped cursor when no other request is in flight
func (g *GuardedCursor[T]) Advance(ctx context.Context) (sequence.Result[T], error) {
	if !g.busy.CompareAndSwap(false, true) {
		return sequence.Done[T](), fmt.Errorf("%w: Advance called while a previous Advance is outstanding", sequence.ErrProtocolViolation)
	}
	defer g.busy.Store(false)
	return g.inner.Advance(ctx)
}

// newCursor builds a guarded cursor from a step function
func newCursor[T any](step func(ctx context.Context) (sequence.Result[T], error)) Cursor[T] {
	return Guard[T](CursorFunc[T](step))
}

// FromSync exposes a synchronous sequence through the asynchronous protocol.
// Advance never blocks and never fails.
func FromSync[T any](seq sequence.Sequence[T]) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		c := seq.Iterate()
		return newCursor(func(context.Context) (sequence.Result[T], error) {
			return c.Advance(), nil
		})
	})
}

// FromSlice returns a re-iterable async sequence over items
func FromSlice[T any](items []T) Sequence[T] {
	return FromSync(sequence.FromSlice(items))
}

// Of returns a re-iterable async sequence over values
func Of[T any](values ...T) Sequence[T] {
	return FromSlice(values)
}

// Empty returns an async sequence with no elements
func Empty[T any]() Sequence[T] {
	return FromSync(sequence.Empty[T]())
}

// Count returns an unbounded async sequence of integers starting at start
func Count(start int) Sequence[int] {
	return FromSync(sequence.Count(start))
}

// Fail returns a sequence whose cursors fail with err on every Advance
func Fail[T any](err error) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		return newCursor(func(context.Context) (sequence.Result[T], error) {
			return sequence.Done[T](), err
		})
	})
}
