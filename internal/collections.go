package internal

// Set is a collection of unique items backed by a map.
type Set[T comparable] struct {
	items map[T]struct{}
}

// NewSet creates and returns a new empty Set.
func NewSet[T comparable]() *Set[T] {
	return &Set[T]{
		items: make(map[T]struct{}),
	}
}

// NewSetFrom creates a set holding the given items.
func NewSetFrom[T comparable](items ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(items))}
	for _, item := range items {
		s.items[item] = struct{}{}
	}
	return s
}

// Add inserts an item and reports whether it was new.
func (s *Set[T]) Add(item T) bool {
	if _, exists := s.items[item]; exists {
		return false
	}
	s.items[item] = struct{}{}
	return true
}

// Contains checks if an item exists in the set.
func (s *Set[T]) Contains(item T) bool {
	_, exists := s.items[item]
	return exists
}

// Size returns the number of items in the set.
func (s *Set[T]) Size() int {
	return len(s.items)
}

// firstDuplicate returns the first item that appears twice in items.
func firstDuplicate[T comparable](items []T) (T, bool) {
	seen := NewSet[T]()
	for _, item := range items {
		if !seen.Add(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// without returns items minus every occurrence of drop, keeping order.
func without[T comparable](items []T, drop T) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if item != drop {
			out = append(out, item)
		}
	}
	return out
}
