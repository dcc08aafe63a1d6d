package asyncseq

import (
	"context"

	"github.com/tabuladb/tabula/pkg/common/sequence"
	"github.com/tabuladb/tabula/pkg/common/sequence/filtered"
)

// Select maps every element through fn. The index restarts at 0 per cursor.
func Select[T, U any](source Sequence[T], fn sequence.ProjectFunc[T, U]) Sequence[U] {
	return SequenceFunc[U](func() Cursor[U] {
		src := source.Iterate()
		index := 0
		return newCursor(func(ctx context.Context) (sequence.Result[U], error) {
			r, err := src.Advance(ctx)
			if err != nil || r.Done {
				return sequence.Done[U](), err
			}
			out := fn(r.Value, index)
			index++
			return sequence.Some(out), nil
		})
	})
}

// Map is Select without the index
func Map[T, U any](source Sequence[T], fn func(T) U) Sequence[U] {
	return Select(source, func(v T, _ int) U { return fn(v) })
}

// Where keeps the elements for which predicate holds
func Where[T any](source Sequence[T], predicate func(T) bool) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		src := source.Iterate()
		return newCursor(func(ctx context.Context) (sequence.Result[T], error) {
			for {
				r, err := src.Advance(ctx)
				if err != nil || r.Done {
					return sequence.Done[T](), err
				}
				if predicate(r.Value) {
					return r, nil
				}
			}
		})
	})
}

// Skip discards min(n, len) leading elements
func Skip[T any](source Sequence[T], n int) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		src := source.Iterate()
		remaining := max(n, 0)
		return newCursor(func(ctx context.Context) (sequence.Result[T], error) {
			for remaining > 0 {
				r, err := src.Advance(ctx)
				if err != nil {
					return sequence.Done[T](), err
				}
				remaining--
				if r.Done {
					remaining = 0
					return r, nil
				}
			}
			return src.Advance(ctx)
		})
	})
}

// Take yields at most n elements and never advances the source past the n-th
func Take[T any](source Sequence[T], n int) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		src := source.Iterate()
		remaining := n
		return newCursor(func(ctx context.Context) (sequence.Result[T], error) {
			if remaining <= 0 {
				return sequence.Done[T](), nil
			}
			r, err := src.Advance(ctx)
			if err != nil {
				return sequence.Done[T](), err
			}
			if r.Done {
				remaining = 0
				return r, nil
			}
			remaining--
			return r, nil
		})
	})
}

// SkipWhile discards leading elements while predicate holds
func SkipWhile[T any](source Sequence[T], predicate func(T) bool) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		src := source.Iterate()
		skipping := true
		return newCursor(func(ctx context.Context) (sequence.Result[T], error) {
			for skipping {
				r, err := src.Advance(ctx)
				if err != nil {
					return sequence.Done[T](), err
				}
				if r.Done || !predicate(r.Value) {
					skipping = false
					return r, nil
				}
			}
			return src.Advance(ctx)
		})
	})
}

// TakeWhile yields leading elements while predicate holds, then is
// permanently exhausted
func TakeWhile[T any](source Sequence[T], predicate func(T) bool) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		src := source.Iterate()
		done := false
		return newCursor(func(ctx context.Context) (sequence.Result[T], error) {
			if done {
				return sequence.Done[T](), nil
			}
			r, err := src.Advance(ctx)
			if err != nil {
				return sequence.Done[T](), err
			}
			if r.Done || !predicate(r.Value) {
				done = true
				return sequence.Done[T](), nil
			}
			return r, nil
		})
	})
}

// Concat drains each sequence in order
func Concat[T any](seqs ...Sequence[T]) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		next := 0
		var current Cursor[T]
		return newCursor(func(ctx context.Context) (sequence.Result[T], error) {
			for {
				if current == nil {
					if next >= len(seqs) {
						return sequence.Done[T](), nil
					}
					current = seqs[next].Iterate()
					next++
				}
				r, err := current.Advance(ctx)
				if err != nil {
					return sequence.Done[T](), err
				}
				if !r.Done {
					return r, nil
				}
				current = nil
			}
		})
	})
}

// Repeat yields the contents of source n times. source is iterated once; its
// values are cached during the first pass and replayed afterwards, so only
// the first pass can suspend or fail. A non-positive n never touches source.
func Repeat[T any](source Sequence[T], n int) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		if n <= 0 {
			return Empty[T]().Iterate()
		}

		var (
			src   Cursor[T]
			cache []T
			pass  int
			pos   int
		)
		return newCursor(func(ctx context.Context) (sequence.Result[T], error) {
			for pass < n {
				if pass == 0 {
					if src == nil {
						src = source.Iterate()
					}
					r, err := src.Advance(ctx)
					if err != nil {
						return sequence.Done[T](), err
					}
					if !r.Done {
						cache = append(cache, r.Value)
						return r, nil
					}
					src = nil
					pass++
					if len(cache) == 0 {
						pass = n
					}
					continue
				}
				if pos < len(cache) {
					v := cache[pos]
					pos++
					return sequence.Some(v), nil
				}
				pos = 0
				pass++
			}
			return sequence.Done[T](), nil
		})
	})
}

// SelectMany maps each element to an inner sequence and drains it completely
// before advancing the outer source
func SelectMany[T, U any](source Sequence[T], fn func(value T, index int) Sequence[U]) Sequence[U] {
	return SequenceFunc[U](func() Cursor[U] {
		src := source.Iterate()
		index := 0
		outerDone := false
		var inner Cursor[U]
		return newCursor(func(ctx context.Context) (sequence.Result[U], error) {
			for !outerDone {
				if inner != nil {
					r, err := inner.Advance(ctx)
					if err != nil {
						return sequence.Done[U](), err
					}
					if !r.Done {
						return r, nil
					}
					inner = nil
				}
				r, err := src.Advance(ctx)
				if err != nil {
					return sequence.Done[U](), err
				}
				if r.Done {
					outerDone = true
					break
				}
				inner = fn(r.Value, index).Iterate()
				index++
			}
			return sequence.Done[U](), nil
		})
	})
}

// DistinctBy yields the first element for each key
func DistinctBy[T any, K comparable](source Sequence[T], keyOf func(T) K) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		seen := make(map[K]struct{})
		return Where(source, func(v T) bool {
			k := keyOf(v)
			if _, ok := seen[k]; ok {
				return false
			}
			seen[k] = struct{}{}
			return true
		}).Iterate()
	})
}

// Distinct yields the first occurrence of every value
func Distinct[T comparable](source Sequence[T]) Sequence[T] {
	return DistinctBy(source, func(v T) T { return v })
}

// DistinctHashed yields the first element for each structurally distinct
// key, for keys that are not comparable with ==. A key that cannot be
// encoded fails the cursor.
func DistinctHashed[T any](source Sequence[T], keyOf func(T) any) Sequence[T] {
	return SequenceFunc[T](func() Cursor[T] {
		seen := filtered.NewKeySet()
		src := source.Iterate()
		return newCursor(func(ctx context.Context) (sequence.Result[T], error) {
			for {
				r, err := src.Advance(ctx)
				if err != nil || r.Done {
					return sequence.Done[T](), err
				}
				added, err := seen.Add(keyOf(r.Value))
				if err != nil {
					return sequence.Done[T](), err
				}
				if added {
					return r, nil
				}
			}
		})
	})
}

// Zip advances every source once per output and yields the tuple of their
// values. It is done as soon as any source is exhausted.
func Zip[T any](sources ...Sequence[T]) Sequence[[]T] {
	return SequenceFunc[[]T](func() Cursor[[]T] {
		cursors := make([]Cursor[T], len(sources))
		for i, s := range sources {
			cursors[i] = s.Iterate()
		}
		done := len(cursors) == 0
		return newCursor(func(ctx context.Context) (sequence.Result[[]T], error) {
			if done {
				return sequence.Done[[]T](), nil
			}
			tuple := make([]T, len(cursors))
			for i, c := range cursors {
				r, err := c.Advance(ctx)
				if err != nil {
					return sequence.Done[[]T](), err
				}
				if r.Done {
					done = true
					return sequence.Done[[]T](), nil
				}
				tuple[i] = r.Value
			}
			return sequence.Some(tuple), nil
		})
	})
}
