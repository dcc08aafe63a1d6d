// Package composite provides sequences that combine several sources, or
// restructure a single source, into one logical view.
package composite

import (
	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// ConcatCursor walks a sequence of sequences, draining each in turn
type ConcatCursor[T any] struct {
	outer   sequence.Cursor[sequence.Sequence[T]]
	current sequence.Cursor[T]
	done    bool
}

// Advance returns the next value of the current sub-sequence. When it is
// exhausted, the cursor moves on to the next non-empty sub-sequence before
// reporting Done.
func (c *ConcatCursor[T]) Advance() sequence.Result[T] {
	for !c.done {
		if c.current != nil {
			if r := c.current.Advance(); !r.Done {
				return r
			}
			c.current = nil
		}

		next := c.outer.Advance()
		if next.Done {
			c.done = true
			break
		}
		if next.Value != nil {
			c.current = next.Value.Iterate()
		}
	}
	return sequence.Done[T]()
}

// Concat flattens a sequence of sequences in order
func Concat[T any](seqs sequence.Sequence[sequence.Sequence[T]]) sequence.Sequence[T] {
	return sequence.SequenceFunc[T](func() sequence.Cursor[T] {
		return &ConcatCursor[T]{outer: seqs.Iterate()}
	})
}

// ConcatOf concatenates the given sequences in argument order
func ConcatOf[T any](seqs ...sequence.Sequence[T]) sequence.Sequence[T] {
	return Concat(sequence.FromSlice(seqs))
}

// Ravel flattens a slice of sequences in input order. Sequences of different
// lengths are allowed: when one ends the next one starts.
func Ravel[T any](seqs []sequence.Sequence[T]) sequence.Sequence[T] {
	return ConcatOf(seqs...)
}

// SelectMany maps each element to an inner sequence and drains every inner
// sequence completely, in source order, before moving to the next element.
func SelectMany[T, U any](source sequence.Sequence[T], fn func(value T, index int) sequence.Sequence[U]) sequence.Sequence[U] {
	return Concat(sequence.Project(source, sequence.ProjectFunc[T, sequence.Sequence[U]](fn)))
}

// Repeat yields the contents of source n times. Only one cursor is opened on
// source per iteration; its results are cached during the first pass and
// replayed afterwards. A non-positive n yields nothing and never touches source.
func Repeat[T any](source sequence.Sequence[T], n int) sequence.Sequence[T] {
	return sequence.SequenceFunc[T](func() sequence.Cursor[T] {
		if n <= 0 {
			return sequence.CursorFunc[T](sequence.Done[T])
		}

		var (
			src   sequence.Cursor[T]
			cache []T
			pass  int
			pos   int
		)
		return sequence.CursorFunc[T](func() sequence.Result[T] {
			for pass < n {
				if pass == 0 {
					if src == nil {
						src = source.Iterate()
					}
					r := src.Advance()
					if !r.Done {
						cache = append(cache, r.Value)
						return r
					}
					src = nil
					pass++
					continue
				}
				if pos < len(cache) {
					v := cache[pos]
					pos++
					return sequence.Some(v)
				}
				pos = 0
				pass++
				if len(cache) == 0 {
					pass = n
				}
			}
			return sequence.Done[T]()
		})
	})
}

// Reverse yields the elements of source back to front.
// The source is fully materialized on the first Advance of each cursor.
func Reverse[T any](source sequence.Sequence[T]) sequence.Sequence[T] {
	return sequence.SequenceFunc[T](func() sequence.Cursor[T] {
		var items []T
		loaded := false
		pos := 0
		return sequence.CursorFunc[T](func() sequence.Result[T] {
			if !loaded {
				items = sequence.ToSlice(source)
				pos = len(items)
				loaded = true
			}
			if pos == 0 {
				return sequence.Done[T]()
			}
			pos--
			return sequence.Some(items[pos])
		})
	})
}
