package asyncseq

import (
	"context"
	"fmt"

	"github.com/tabuladb/tabula/pkg/common/sequence"
	"github.com/tabuladb/tabula/pkg/common/sequence/ordering"
	"github.com/tabuladb/tabula/pkg/common/sequence/windowed"
)

// materialized drains source on the first Advance and then serves the
// snapshot produced by arrange
func materialized[T, U any](source Sequence[T], arrange func([]T) []U) Sequence[U] {
	return SequenceFunc[U](func() Cursor[U] {
		var items []U
		loaded := false
		pos := 0
		return newCursor(func(ctx context.Context) (sequence.Result[U], error) {
			if !loaded {
				all, err := ToSlice(ctx, source)
				if err != nil {
					return sequence.Done[U](), err
				}
				items = arrange(all)
				loaded = true
			}
			if pos >= len(items) {
				return sequence.Done[U](), nil
			}
			pos++
			return sequence.Some(items[pos-1]), nil
		})
	})
}

// Reverse yields source back to front. The whole source is read on the
// first Advance.
func Reverse[T any](source Sequence[T]) Sequence[T] {
	return materialized(source, func(items []T) []T {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
		return items
	})
}

// OrderBy sorts source by specs with the same stable multi-level semantics as
// ordering.OrderBy. The whole source is read on the first Advance.
func OrderBy[T any](source Sequence[T], specs ...ordering.SortKey[T]) Sequence[T] {
	return materialized(source, func(items []T) []T {
		positions := ordering.Sort(items, specs)
		sorted := make([]T, len(items))
		for i, pos := range positions {
			sorted[i] = items[pos]
		}
		return sorted
	})
}

func checkPeriod(period int) {
	if period <= 0 {
		panic(fmt.Errorf("%w: window period must be positive, got %d", sequence.ErrConfiguration, period))
	}
}

// Fixed groups source into consecutive windows of period elements without
// reading ahead of the window being filled. The last window may be short.
func Fixed[T any](source Sequence[T], period int) Sequence[[]T] {
	checkPeriod(period)
	return SequenceFunc[[]T](func() Cursor[[]T] {
		src := source.Iterate()
		done := false
		return newCursor(func(ctx context.Context) (sequence.Result[[]T], error) {
			if done {
				return sequence.Done[[]T](), nil
			}
			window := make([]T, 0, period)
			for len(window) < period {
				r, err := src.Advance(ctx)
				if err != nil {
					return sequence.Done[[]T](), err
				}
				if r.Done {
					done = true
					break
				}
				window = append(window, r.Value)
			}
			if len(window) == 0 {
				return sequence.Done[[]T](), nil
			}
			return sequence.Some(window), nil
		})
	})
}

// Rolling yields every full window of period consecutive elements, sliding
// by one. Only the current window is held in memory.
func Rolling[T any](source Sequence[T], period int) Sequence[[]T] {
	checkPeriod(period)
	return SequenceFunc[[]T](func() Cursor[[]T] {
		src := source.Iterate()
		var window []T
		done := false
		return newCursor(func(ctx context.Context) (sequence.Result[[]T], error) {
			if done {
				return sequence.Done[[]T](), nil
			}
			if len(window) == period {
				window = window[1:]
			}
			for len(window) < period {
				r, err := src.Advance(ctx)
				if err != nil {
					return sequence.Done[[]T](), err
				}
				if r.Done {
					done = true
					window = nil
					return sequence.Done[[]T](), nil
				}
				window = append(window, r.Value)
			}
			out := make([]T, period)
			copy(out, window)
			return sequence.Some(out), nil
		})
	})
}

// Variable grows each window while cmp(previous, next) holds. One element of
// look-ahead is read to decide where a window ends.
func Variable[T any](source Sequence[T], cmp windowed.Comparator[T]) Sequence[[]T] {
	return SequenceFunc[[]T](func() Cursor[[]T] {
		src := source.Iterate()
		var (
			pending    T
			hasPending bool
			done       bool
		)
		return newCursor(func(ctx context.Context) (sequence.Result[[]T], error) {
			if !hasPending {
				if done {
					return sequence.Done[[]T](), nil
				}
				r, err := src.Advance(ctx)
				if err != nil {
					return sequence.Done[[]T](), err
				}
				if r.Done {
					done = true
					return sequence.Done[[]T](), nil
				}
				pending, hasPending = r.Value, true
			}

			window := []T{pending}
			hasPending = false
			for !done {
				r, err := src.Advance(ctx)
				if err != nil {
					return sequence.Done[[]T](), err
				}
				if r.Done {
					done = true
					break
				}
				if !cmp(window[len(window)-1], r.Value) {
					pending, hasPending = r.Value, true
					break
				}
				window = append(window, r.Value)
			}
			return sequence.Some(window), nil
		})
	})
}

// Collect drains seq into a re-iterable synchronous sequence
func Collect[T any](ctx context.Context, seq Sequence[T]) (sequence.Sequence[T], error) {
	items, err := ToSlice(ctx, seq)
	if err != nil {
		return nil, err
	}
	return sequence.FromSlice(items), nil
}
