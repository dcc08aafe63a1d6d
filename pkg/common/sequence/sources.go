package sequence

// sliceCursor walks a slice without copying it
type sliceCursor[T any] struct {
	items []T
	pos   int
}

func (c *sliceCursor[T]) Advance() Result[T] {
	if c.pos >= len(c.items) {
		return Done[T]()
	}
	v := c.items[c.pos]
	c.pos++
	return Some(v)
}

// FromSlice returns a re-iterable sequence over items.
// The slice is borrowed, not copied; callers must not mutate it while the
// sequence is in use.
func FromSlice[T any](items []T) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		return &sliceCursor[T]{items: items}
	})
}

// Of returns a re-iterable sequence over the given values
func Of[T any](values ...T) Sequence[T] {
	return FromSlice(values)
}

// Empty returns a sequence with no elements
func Empty[T any]() Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		return CursorFunc[T](Done[T])
	})
}

// Count returns an unbounded sequence of consecutive integers starting at start.
// Combine it with bounded.Take or composite.Multiplex to make it finite.
func Count(start int) Sequence[int] {
	return SequenceFunc[int](func() Cursor[int] {
		next := start
		return CursorFunc[int](func() Result[int] {
			v := next
			next++
			return Some(v)
		})
	})
}

// Range returns the n consecutive integers starting at start.
// A non-positive n yields an empty sequence.
func Range(start, n int) Sequence[int] {
	return SequenceFunc[int](func() Cursor[int] {
		i := 0
		return CursorFunc[int](func() Result[int] {
			if i >= n {
				return Done[int]()
			}
			v := start + i
			i++
			return Some(v)
		})
	})
}

// Repeated returns value n times
func Repeated[T any](value T, n int) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		i := 0
		return CursorFunc[T](func() Result[T] {
			if i >= n {
				return Done[T]()
			}
			i++
			return Some(value)
		})
	})
}
