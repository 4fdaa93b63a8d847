package session

// nonEmpty is a stack that always holds at least one element: it is seeded at
// construction and refuses to pop its last element.
type nonEmpty[T any] struct {
	items []T
}

func newNonEmpty[T any](seed T) nonEmpty[T] {
	return nonEmpty[T]{items: []T{seed}}
}

func (s *nonEmpty[T]) push(v T) {
	s.items = append(s.items, v)
}

// pop removes the top element. It returns false, leaving the stack untouched,
// when only the seed remains.
func (s *nonEmpty[T]) pop() (T, bool) {
	if len(s.items) <= 1 {
		var zero T
		return zero, false
	}
	last := len(s.items) - 1
	v := s.items[last]
	var zero T
	s.items[last] = zero
	s.items = s.items[:last]
	return v, true
}

func (s *nonEmpty[T]) top() T {
	return s.items[len(s.items)-1]
}

func (s *nonEmpty[T]) len() int {
	return len(s.items)
}

// snapshot returns a copy, bottom first.
func (s *nonEmpty[T]) snapshot() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
