// Package windowed slices a sequence into a sequence of windows.
//
// Every cursor takes one snapshot of its source on the first Advance; the
// windows it yields are sub-slices of that snapshot and share its backing
// array. Window capacity is clipped, so appending to a window never writes
// into its neighbours.
package windowed

import (
	"fmt"

	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// Comparator decides whether next belongs to the same window as prev
type Comparator[T any] func(prev, next T) bool

// spanner returns the bounds of the window starting at start, or ok=false
// when no further window exists
type spanner[T any] func(items []T, start int) (end, nextStart int, ok bool)

func windows[T any](source sequence.Sequence[T], span spanner[T]) sequence.Sequence[[]T] {
	return sequence.SequenceFunc[[]T](func() sequence.Cursor[[]T] {
		var items []T
		loaded := false
		start := 0
		done := false
		return sequence.CursorFunc[[]T](func() sequence.Result[[]T] {
			if done {
				return sequence.Done[[]T]()
			}
			if !loaded {
				items = sequence.ToSlice(source)
				loaded = true
			}
			end, next, ok := span(items, start)
			if !ok {
				done = true
				items = nil
				return sequence.Done[[]T]()
			}
			w := items[start:end:end]
			start = next
			return sequence.Some(w)
		})
	})
}

func checkPeriod(period int) {
	if period <= 0 {
		panic(fmt.Errorf("%w: window period must be positive, got %d", sequence.ErrConfiguration, period))
	}
}

// Fixed partitions source into consecutive, non-overlapping windows of period
// elements. The last window is shorter when the length is not a multiple of
// period. Panics if period is not positive.
func Fixed[T any](source sequence.Sequence[T], period int) sequence.Sequence[[]T] {
	checkPeriod(period)
	return windows(source, func(items []T, start int) (int, int, bool) {
		if start >= len(items) {
			return 0, 0, false
		}
		end := min(start+period, len(items))
		return end, end, true
	})
}

// Rolling yields every full window of period consecutive elements, sliding
// by one. A source shorter than period yields no windows, and no short
// trailing window is ever produced. Panics if period is not positive.
func Rolling[T any](source sequence.Sequence[T], period int) sequence.Sequence[[]T] {
	checkPeriod(period)
	return windows(source, func(items []T, start int) (int, int, bool) {
		end := start + period
		if end > len(items) {
			return 0, 0, false
		}
		return end, start + 1, true
	})
}

// Variable grows each window while cmp(previous, next) holds and starts a new
// window at the first element for which it does not.
func Variable[T any](source sequence.Sequence[T], cmp Comparator[T]) sequence.Sequence[[]T] {
	return windows(source, func(items []T, start int) (int, int, bool) {
		if start >= len(items) {
			return 0, 0, false
		}
		end := start + 1
		for end < len(items) && cmp(items[end-1], items[end]) {
			end++
		}
		return end, end, true
	})
}

// Equal is a Variable comparator that groups runs of equal keys
func Equal[T any, K comparable](keyOf func(T) K) Comparator[T] {
	return func(prev, next T) bool {
		return keyOf(prev) == keyOf(next)
	}
}
