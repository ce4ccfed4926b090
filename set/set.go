package set

// Set is a collection of unique comparable values. It is not safe for
// concurrent use; callers guard it with their own lock.
type Set[T comparable] struct {
	items map[T]struct{}
}

// New creates and returns a new empty Set.
func New[T comparable]() *Set[T] {
	return &Set[T]{
		items: make(map[T]struct{}),
	}
}

// FromSlice creates a new Set from the provided slice of items.
// Any duplicate items in the slice will only be represented once in the Set.
func FromSlice[T comparable](items []T) *Set[T] {
	set := New[T]()
	for _, item := range items {
		set.Add(item)
	}
	return set
}

// Add adds an item to the Set.
func (s *Set[T]) Add(item T) {
	s.items[item] = struct{}{}
}

// Remove removes an item from the Set. Missing items are ignored.
func (s *Set[T]) Remove(item T) {
	delete(s.items, item)
}

// Contains checks if the item exists in the Set.
func (s *Set[T]) Contains(item T) bool {
	if s == nil {
		return false
	}
	_, exists := s.items[item]
	return exists
}

// Size returns the number of items in the Set.
func (s *Set[T]) Size() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Clear drops every item.
func (s *Set[T]) Clear() {
	clear(s.items)
}

// Any reports whether at least one item satisfies match.
func (s *Set[T]) Any(match func(T) bool) bool {
	for item := range s.items {
		if match(item) {
			return true
		}
	}
	return false
}
