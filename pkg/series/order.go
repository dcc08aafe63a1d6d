package series

import (
	"github.com/tabuladb/tabula/pkg/common/sequence/ordering"
)

// OrderedSeries is a sorted Series that can take further sort levels
type OrderedSeries[I comparable, V any] struct {
	*Series[I, V]
	parent *Series[I, V]
	specs  []ordering.SortKey[Pair[I, V]]
}

func (s *Series[I, V]) orderBy(keyOf func(V) any, dir ordering.Direction) *OrderedSeries[I, V] {
	return newOrdered(s, []ordering.SortKey[Pair[I, V]]{sortKey[I](0, keyOf, dir)})
}

func sortKey[I comparable, V any](level int, keyOf func(V) any, dir ordering.Direction) ordering.SortKey[Pair[I, V]] {
	return ordering.SortKey[Pair[I, V]]{
		Level:     level,
		KeyOf:     func(p Pair[I, V]) any { return keyOf(p.Value) },
		Direction: dir,
	}
}

func newOrdered[I comparable, V any](parent *Series[I, V], specs []ordering.SortKey[Pair[I, V]]) *OrderedSeries[I, V] {
	return &OrderedSeries[I, V]{
		Series: fromPairs(ordering.OrderBy(parent.pairs, specs...)),
		parent: parent,
		specs:  specs,
	}
}

// OrderBy sorts ascending by the key of each value. The sort is stable and
// runs once, the first time the result is iterated.
func (s *Series[I, V]) OrderBy(keyOf func(V) any) *OrderedSeries[I, V] {
	return s.orderBy(keyOf, ordering.Ascending)
}

// OrderByDescending sorts descending by the key of each value
func (s *Series[I, V]) OrderByDescending(keyOf func(V) any) *OrderedSeries[I, V] {
	return s.orderBy(keyOf, ordering.Descending)
}

func (o *OrderedSeries[I, V]) thenBy(keyOf func(V) any, dir ordering.Direction) *OrderedSeries[I, V] {
	specs := make([]ordering.SortKey[Pair[I, V]], len(o.specs), len(o.specs)+1)
	copy(specs, o.specs)
	specs = append(specs, sortKey[I](len(o.specs), keyOf, dir))
	return newOrdered(o.parent, specs)
}

// ThenBy breaks ties of the previous levels ascending by keyOf
func (o *OrderedSeries[I, V]) ThenBy(keyOf func(V) any) *OrderedSeries[I, V] {
	return o.thenBy(keyOf, ordering.Ascending)
}

// ThenByDescending breaks ties of the previous levels descending by keyOf
func (o *OrderedSeries[I, V]) ThenByDescending(keyOf func(V) any) *OrderedSeries[I, V] {
	return o.thenBy(keyOf, ordering.Descending)
}
