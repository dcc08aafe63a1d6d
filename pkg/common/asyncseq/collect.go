package asyncseq

import (
	"context"

	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// ForEach drains a fresh cursor over seq, calling fn for every element.
// It stops at the first error from the source or from fn.
func ForEach[T any](ctx context.Context, seq Sequence[T], fn func(T) error) error {
	c := seq.Iterate()
	for {
		r, err := c.Advance(ctx)
		if err != nil {
			return err
		}
		if r.Done {
			return nil
		}
		if err := fn(r.Value); err != nil {
			return err
		}
	}
}

// ToSlice drains seq into a new slice
func ToSlice[T any](ctx context.Context, seq Sequence[T]) ([]T, error) {
	out := make([]T, 0)
	err := ForEach(ctx, seq, func(v T) error {
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len counts the elements of seq
func Len[T any](ctx context.Context, seq Sequence[T]) (int, error) {
	n := 0
	err := ForEach(ctx, seq, func(T) error {
		n++
		return nil
	})
	return n, err
}

// First returns the first element, or sequence.ErrEmptySequence
func First[T any](ctx context.Context, seq Sequence[T]) (T, error) {
	var zero T
	r, err := seq.Iterate().Advance(ctx)
	if err != nil {
		return zero, err
	}
	if r.Done {
		return zero, sequence.ErrEmptySequence
	}
	return r.Value, nil
}

// Last returns the final element, or sequence.ErrEmptySequence
func Last[T any](ctx context.Context, seq Sequence[T]) (T, error) {
	var last T
	found := false
	err := ForEach(ctx, seq, func(v T) error {
		last = v
		found = true
		return nil
	})
	if err != nil {
		return last, err
	}
	if !found {
		return last, sequence.ErrEmptySequence
	}
	return last, nil
}

// Aggregate folds seq from the left starting with seed
func Aggregate[T, A any](ctx context.Context, seq Sequence[T], seed A, fn func(acc A, value T) A) (A, error) {
	acc := seed
	err := ForEach(ctx, seq, func(v T) error {
		acc = fn(acc, v)
		return nil
	})
	return acc, err
}
