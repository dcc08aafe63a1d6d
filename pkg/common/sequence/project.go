package sequence

// ProjectFunc transforms a value given its position within the current cursor
type ProjectFunc[T, U any] func(value T, index int) U

// Project maps every element of source through fn.
// The positional index passed to fn restarts at 0 for each cursor.
func Project[T, U any](source Sequence[T], fn ProjectFunc[T, U]) Sequence[U] {
	return SequenceFunc[U](func() Cursor[U] {
		src := source.Iterate()
		index := 0
		return CursorFunc[U](func() Result[U] {
			r := src.Advance()
			if r.Done {
				return Done[U]()
			}
			out := fn(r.Value, index)
			index++
			return Some(out)
		})
	})
}

// Map is Project without the positional index
func Map[T, U any](source Sequence[T], fn func(T) U) Sequence[U] {
	return Project(source, func(v T, _ int) U {
		return fn(v)
	})
}
