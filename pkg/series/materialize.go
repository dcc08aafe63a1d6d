package series

import (
	"fmt"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// baked wraps already evaluated pairs without copying them
func baked[I comparable, V any](pairs []Pair[I, V]) *Series[I, V] {
	return &Series[I, V]{
		pairs:   sequence.FromSlice(pairs),
		baked:   pairs,
		isBaked: true,
	}
}

// Bake evaluates every pair and returns a Series over the result. Baking a
// baked Series returns it unchanged.
func (s *Series[I, V]) Bake() *Series[I, V] {
	if s.isBaked {
		return s
	}
	return baked(sequence.ToSlice(s.pairs))
}

// IsBaked reports whether s holds evaluated pairs
func (s *Series[I, V]) IsBaked() bool {
	return s.isBaked
}

// isMissing reports whether v is nil, including typed nil pointers, maps,
// slices, funcs, channels and interfaces.
func isMissing(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

func (s *Series[I, V]) evaluated() []Pair[I, V] {
	if s.isBaked {
		return s.baked
	}
	return sequence.ToSlice(s.pairs)
}

// ToArray returns the values, skipping missing (nil) values
func (s *Series[I, V]) ToArray() []V {
	out := make([]V, 0)
	for _, p := range s.evaluated() {
		if !isMissing(p.Value) {
			out = append(out, p.Value)
		}
	}
	return out
}

// ToPairs returns the pairs, skipping those with a missing (nil) value
func (s *Series[I, V]) ToPairs() []Pair[I, V] {
	out := make([]Pair[I, V], 0)
	for _, p := range s.evaluated() {
		if !isMissing(p.Value) {
			out = append(out, p)
		}
	}
	return out
}

// String renders s as a two column table
func (s *Series[I, V]) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "index\tvalue")
	fmt.Fprintln(w, "-----\t-----")
	for _, p := range s.evaluated() {
		fmt.Fprintf(w, "%v\t%v\n", p.Index, p.Value)
	}
	w.Flush()
	return b.String()
}
