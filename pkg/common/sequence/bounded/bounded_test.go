package bounded

import (
	"reflect"
	"testing"

	"github.com/tabuladb/tabula/pkg/common/sequence"
)

// countingSequence records how many times its cursors were advanced
type countingSequence struct {
	items    []int
	advances int
}

func (c *countingSequence) Iterate() sequence.Cursor[int] {
	pos := 0
	return sequence.CursorFunc[int](func() sequence.Result[int] {
		c.advances++
		if pos >= len(c.items) {
			return sequence.Done[int]()
		}
		v := c.items[pos]
		pos++
		return sequence.Some(v)
	})
}

func TestSkip(t *testing.T) {
	tests := []struct {
		name  string
		input []int
		n     int
		want  []int
	}{
		{"skip some", []int{1, 2, 3, 4}, 2, []int{3, 4}},
		{"skip none", []int{1, 2}, 0, []int{1, 2}},
		{"skip negative", []int{1, 2}, -3, []int{1, 2}},
		{"skip all", []int{1, 2}, 2, []int{}},
		{"skip past end", []int{1, 2}, 10, []int{}},
		{"skip empty", []int{}, 1, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sequence.ToSlice(Skip(sequence.FromSlice(tt.input), tt.n))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTake(t *testing.T) {
	tests := []struct {
		name  string
		input []int
		n     int
		want  []int
	}{
		{"take some", []int{1, 2, 3, 4}, 2, []int{1, 2}},
		{"take zero", []int{1, 2}, 0, []int{}},
		{"take more than available", []int{1, 2}, 5, []int{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sequence.ToSlice(Take(sequence.FromSlice(tt.input), tt.n))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTakeDoesNotOverdrawSource(t *testing.T) {
	src := &countingSequence{items: []int{1, 2, 3, 4, 5}}
	got := sequence.ToSlice(Take[int](src, 2))

	if !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("Expected [1 2], got %v", got)
	}
	if src.advances != 2 {
		t.Errorf("Expected 2 source advances, got %d", src.advances)
	}
}

func TestTakeOverInfiniteSource(t *testing.T) {
	got := sequence.ToSlice(Take(sequence.Count(0), 3))
	if !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("Expected [0 1 2], got %v", got)
	}
}

func TestSkipWhileEvaluatesPredicateOnlyWhileSkipping(t *testing.T) {
	calls := 0
	seq := SkipWhile(sequence.Of(1, 2, 5, 1, 2), func(v int) bool {
		calls++
		return v < 3
	})

	got := sequence.ToSlice(seq)
	if !reflect.DeepEqual(got, []int{5, 1, 2}) {
		t.Errorf("Expected [5 1 2], got %v", got)
	}
	if calls != 3 {
		t.Errorf("Expected predicate to run 3 times, got %d", calls)
	}
}

func TestSkipWhileAllSkipped(t *testing.T) {
	got := sequence.ToSlice(SkipWhile(sequence.Of(1, 2), func(int) bool { return true }))
	if len(got) != 0 {
		t.Errorf("Expected nothing, got %v", got)
	}
}

func TestTakeWhileIsPermanentlyExhausted(t *testing.T) {
	c := TakeWhile(sequence.Of(1, 2, 9, 3, 4), func(v int) bool { return v < 5 }).Iterate()

	var got []int
	for r := c.Advance(); !r.Done; r = c.Advance() {
		got = append(got, r.Value)
	}
	if !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("Expected [1 2], got %v", got)
	}
	if r := c.Advance(); !r.Done {
		t.Errorf("Expected cursor to stay exhausted, got %v", r.Value)
	}
}

func TestSkipUntilTakeUntil(t *testing.T) {
	isFour := func(v int) bool { return v == 4 }

	if got := sequence.ToSlice(SkipUntil(sequence.Of(1, 4, 2), isFour)); !reflect.DeepEqual(got, []int{4, 2}) {
		t.Errorf("SkipUntil: expected [4 2], got %v", got)
	}
	if got := sequence.ToSlice(TakeUntil(sequence.Of(1, 4, 2), isFour)); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("TakeUntil: expected [1], got %v", got)
	}
}
