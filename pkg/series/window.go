package series

import (
	"github.com/tabuladb/tabula/pkg/common/sequence"
	"github.com/tabuladb/tabula/pkg/common/sequence/windowed"
)

func toWindows[I comparable, V any](chunks sequence.Sequence[[]Pair[I, V]]) *Series[int, *Series[I, V]] {
	return FromValues(sequence.Map(chunks, func(chunk []Pair[I, V]) *Series[I, V] {
		return baked(chunk)
	}))
}

// Window partitions s into consecutive windows of period elements; the last
// may be shorter. Windows are indexed by position and share the evaluated
// pairs of s rather than copying them. Panics with sequence.ErrConfiguration
// if period is not positive.
func Window[I comparable, V any](s *Series[I, V], period int) *Series[int, *Series[I, V]] {
	return toWindows(windowed.Fixed(s.pairs, period))
}

// RollingWindow yields every full window of period elements, sliding by one.
// Panics with sequence.ErrConfiguration if period is not positive.
func RollingWindow[I comparable, V any](s *Series[I, V], period int) *Series[int, *Series[I, V]] {
	return toWindows(windowed.Rolling(s.pairs, period))
}

// VariableWindow grows each window while cmp(previous, next) holds
func VariableWindow[I comparable, V any](s *Series[I, V], cmp func(prev, next V) bool) *Series[int, *Series[I, V]] {
	return toWindows(windowed.Variable(s.pairs, func(prev, next Pair[I, V]) bool {
		return cmp(prev.Value, next.Value)
	}))
}

func runs[I comparable, V any, K comparable](s *Series[I, V], keyOf func(V) K) sequence.Sequence[[]Pair[I, V]] {
	return windowed.Variable(s.pairs, windowed.Equal(func(p Pair[I, V]) K {
		return keyOf(p.Value)
	}))
}

// SequentialDistinct collapses every run of values with equal keys to the
// first element of the run.
func SequentialDistinct[I comparable, V any, K comparable](s *Series[I, V], keyOf func(V) K) *Series[I, V] {
	return fromPairs(sequence.Map(runs(s, keyOf), func(run []Pair[I, V]) Pair[I, V] {
		return run[0]
	}))
}

// GroupSequentialBy groups every run of values with equal keys
func GroupSequentialBy[I comparable, V any, K comparable](s *Series[I, V], keyOf func(V) K) *Series[int, *Series[I, V]] {
	return toWindows(runs(s, keyOf))
}

// GroupBy groups values by key regardless of position. Groups appear in the
// order their key is first seen and keep the original element order.
func GroupBy[I comparable, V any, K comparable](s *Series[I, V], keyOf func(V) K) *Series[K, *Series[I, V]] {
	return fromPairs(sequence.SequenceFunc[Pair[K, *Series[I, V]]](func() sequence.Cursor[Pair[K, *Series[I, V]]] {
		var keys []K
		groups := make(map[K][]Pair[I, V])
		c := s.pairs.Iterate()
		for r := c.Advance(); !r.Done; r = c.Advance() {
			k := keyOf(r.Value.Value)
			if _, ok := groups[k]; !ok {
				keys = append(keys, k)
			}
			groups[k] = append(groups[k], r.Value)
		}

		out := make([]Pair[K, *Series[I, V]], len(keys))
		for i, k := range keys {
			out[i] = Pair[K, *Series[I, V]]{Index: k, Value: baked(groups[k])}
		}
		return sequence.FromSlice(out).Iterate()
	}))
}
