package series

import (
	"github.com/tabuladb/tabula/pkg/common/sequence"
	"github.com/tabuladb/tabula/pkg/common/sequence/bounded"
	"github.com/tabuladb/tabula/pkg/common/sequence/composite"
	"github.com/tabuladb/tabula/pkg/common/sequence/filtered"
)

func valuePredicate[I comparable, V any](predicate func(V) bool) func(Pair[I, V]) bool {
	return func(p Pair[I, V]) bool {
		return predicate(p.Value)
	}
}

// Select maps every value through fn, keeping the index. fn receives the
// position of the value within the current iteration.
func Select[I comparable, V, U any](s *Series[I, V], fn func(value V, position int) U) *Series[I, U] {
	return fromPairs(sequence.Project(s.pairs, func(p Pair[I, V], pos int) Pair[I, U] {
		return Pair[I, U]{Index: p.Index, Value: fn(p.Value, pos)}
	}))
}

// SelectMany expands every value into a sequence. Each produced value keeps
// the index of the value it came from.
func SelectMany[I comparable, V, U any](s *Series[I, V], fn func(value V, position int) sequence.Sequence[U]) *Series[I, U] {
	return fromPairs(composite.SelectMany(s.pairs, func(p Pair[I, V], pos int) sequence.Sequence[Pair[I, U]] {
		return sequence.Map(fn(p.Value, pos), func(u U) Pair[I, U] {
			return Pair[I, U]{Index: p.Index, Value: u}
		})
	}))
}

// Zip combines two series positionally. The result takes the index of a and
// stops at the shorter input.
func Zip[I, J comparable, A, B, C any](a *Series[I, A], b *Series[J, B], fn func(A, B) C) *Series[I, C] {
	return fromPairs(composite.ZipWith(a.pairs, b.pairs, func(pa Pair[I, A], pb Pair[J, B]) Pair[I, C] {
		return Pair[I, C]{Index: pa.Index, Value: fn(pa.Value, pb.Value)}
	}))
}

// WithIndex replaces the index with labels, paired positionally
func WithIndex[I, J comparable, V any](s *Series[I, V], labels sequence.Sequence[J]) *Series[J, V] {
	return fromPairs(zipPairs(labels, s.Values()))
}

// Distinct keeps the first value for each key, in original order. Keys are
// compared with ==, so pointer keys compare by identity.
func Distinct[I comparable, V any, K comparable](s *Series[I, V], keyOf func(V) K) *Series[I, V] {
	return fromPairs(filtered.DistinctBy(s.pairs, func(p Pair[I, V]) K {
		return keyOf(p.Value)
	}))
}

// Aggregate folds the values from the left
func Aggregate[I comparable, V, A any](s *Series[I, V], seed A, fn func(acc A, value V) A) A {
	return sequence.Aggregate(s.Values(), seed, fn)
}

// Where keeps the values for which predicate holds
func (s *Series[I, V]) Where(predicate func(V) bool) *Series[I, V] {
	return fromPairs(filtered.Filter(s.pairs, valuePredicate[I](predicate)))
}

// Skip drops the first n elements
func (s *Series[I, V]) Skip(n int) *Series[I, V] {
	return fromPairs(bounded.Skip(s.pairs, n))
}

// Take keeps at most the first n elements
func (s *Series[I, V]) Take(n int) *Series[I, V] {
	return fromPairs(bounded.Take(s.pairs, n))
}

// SkipWhile drops leading values while predicate holds
func (s *Series[I, V]) SkipWhile(predicate func(V) bool) *Series[I, V] {
	return fromPairs(bounded.SkipWhile(s.pairs, valuePredicate[I](predicate)))
}

// TakeWhile keeps leading values while predicate holds
func (s *Series[I, V]) TakeWhile(predicate func(V) bool) *Series[I, V] {
	return fromPairs(bounded.TakeWhile(s.pairs, valuePredicate[I](predicate)))
}

// SkipUntil drops leading values until predicate holds
func (s *Series[I, V]) SkipUntil(predicate func(V) bool) *Series[I, V] {
	return fromPairs(bounded.SkipUntil(s.pairs, valuePredicate[I](predicate)))
}

// TakeUntil keeps leading values until predicate holds
func (s *Series[I, V]) TakeUntil(predicate func(V) bool) *Series[I, V] {
	return fromPairs(bounded.TakeUntil(s.pairs, valuePredicate[I](predicate)))
}

// Head is Take
func (s *Series[I, V]) Head(n int) *Series[I, V] {
	return s.Take(n)
}

// Tail keeps the last n elements. The source is evaluated when the result is
// iterated.
func (s *Series[I, V]) Tail(n int) *Series[I, V] {
	return fromPairs(sequence.SequenceFunc[Pair[I, V]](func() sequence.Cursor[Pair[I, V]] {
		all := sequence.ToSlice(s.pairs)
		if n < len(all) {
			all = all[len(all)-max(n, 0):]
		}
		return sequence.FromSlice(all).Iterate()
	}))
}

// Reverse yields the elements back to front
func (s *Series[I, V]) Reverse() *Series[I, V] {
	return fromPairs(composite.Reverse(s.pairs))
}

// Concat appends others after s
func (s *Series[I, V]) Concat(others ...*Series[I, V]) *Series[I, V] {
	seqs := make([]sequence.Sequence[Pair[I, V]], 0, len(others)+1)
	seqs = append(seqs, s.pairs)
	for _, o := range others {
		seqs = append(seqs, o.pairs)
	}
	return fromPairs(composite.Ravel(seqs))
}

// Repeat replays the elements n times
func (s *Series[I, V]) Repeat(n int) *Series[I, V] {
	return fromPairs(composite.Repeat(s.pairs, n))
}

// DistinctHashed keeps the first value for each structurally distinct key.
// Keys may be slices, maps or structs containing them.
func (s *Series[I, V]) DistinctHashed(keyOf func(V) any) *Series[I, V] {
	return fromPairs(filtered.DistinctHashed(s.pairs, func(p Pair[I, V]) any {
		return keyOf(p.Value)
	}))
}

// ResetIndex replaces the index with positions starting at 0
func (s *Series[I, V]) ResetIndex() *Series[int, V] {
	return FromValues(s.Values())
}

// At returns the first value whose index equals label
func (s *Series[I, V]) At(label I) (V, bool) {
	c := s.pairs.Iterate()
	for r := c.Advance(); !r.Done; r = c.Advance() {
		if r.Value.Index == label {
			return r.Value.Value, true
		}
	}
	var zero V
	return zero, false
}

// First returns the first value, or sequence.ErrEmptySequence
func (s *Series[I, V]) First() (V, error) {
	return sequence.First(s.Values())
}

// Last returns the last value, or sequence.ErrEmptySequence
func (s *Series[I, V]) Last() (V, error) {
	return sequence.Last(s.Values())
}

// Count returns the number of elements, nil values included
func (s *Series[I, V]) Count() int {
	if s.isBaked {
		return len(s.baked)
	}
	return sequence.Len(s.pairs)
}

// Any reports whether predicate holds for at least one value
func (s *Series[I, V]) Any(predicate func(V) bool) bool {
	return sequence.Any(s.Values(), predicate)
}

// All reports whether predicate holds for every value
func (s *Series[I, V]) All(predicate func(V) bool) bool {
	return sequence.AllMatch(s.Values(), predicate)
}

// None reports whether predicate holds for no value
func (s *Series[I, V]) None(predicate func(V) bool) bool {
	return !s.Any(predicate)
}
