package sequence

// ToSlice drains a fresh cursor over seq into a new slice
func ToSlice[T any](seq Sequence[T]) []T {
	out := make([]T, 0)
	c := seq.Iterate()
	for r := c.Advance(); !r.Done; r = c.Advance() {
		out = append(out, r.Value)
	}
	return out
}

// Len counts the elements of seq by iterating it
func Len[T any](seq Sequence[T]) int {
	n := 0
	c := seq.Iterate()
	for r := c.Advance(); !r.Done; r = c.Advance() {
		n++
	}
	return n
}

// First returns the first element, or ErrEmptySequence
func First[T any](seq Sequence[T]) (T, error) {
	r := seq.Iterate().Advance()
	if r.Done {
		var zero T
		return zero, ErrEmptySequence
	}
	return r.Value, nil
}

// Last returns the final element, or ErrEmptySequence
func Last[T any](seq Sequence[T]) (T, error) {
	var last T
	found := false
	c := seq.Iterate()
	for r := c.Advance(); !r.Done; r = c.Advance() {
		last = r.Value
		found = true
	}
	if !found {
		return last, ErrEmptySequence
	}
	return last, nil
}

// Aggregate folds seq from the left starting with seed
func Aggregate[T, A any](seq Sequence[T], seed A, fn func(acc A, value T) A) A {
	acc := seed
	c := seq.Iterate()
	for r := c.Advance(); !r.Done; r = c.Advance() {
		acc = fn(acc, r.Value)
	}
	return acc
}

// Any reports whether predicate holds for at least one element.
// It stops at the first match.
func Any[T any](seq Sequence[T], predicate func(T) bool) bool {
	c := seq.Iterate()
	for r := c.Advance(); !r.Done; r = c.Advance() {
		if predicate(r.Value) {
			return true
		}
	}
	return false
}

// AllMatch reports whether predicate holds for every element.
// An empty sequence matches vacuously.
func AllMatch[T any](seq Sequence[T], predicate func(T) bool) bool {
	c := seq.Iterate()
	for r := c.Advance(); !r.Done; r = c.Advance() {
		if !predicate(r.Value) {
			return false
		}
	}
	return true
}
