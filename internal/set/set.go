package set

import (
	"iter"
	"slices"
)

// Set provides a wrapper around a map[T]struct{}.
type Set[T comparable] struct {
	values map[T]struct{}
}

func (s *Set[T]) Insert(value T) bool {
	if s.values == nil {
		s.values = make(map[T]struct{})
	}

	if _, exists := s.values[value]; exists {
		return false
	}

	s.values[value] = struct{}{}
	return true
}

func (s *Set[T]) Has(value T) bool {
	_, exists := s.values[value]
	return exists
}

func (s *Set[T]) Len() int {
	return len(s.values)
}

func (s *Set[T]) Clear() {
	clear(s.values)
}

// Ordered is a set that remembers the order in which values were inserted.
// Values can not be removed, which matches the lifetime of archetypes.
type Ordered[T comparable] struct {
	index  Set[T]
	values []T
}

func (s *Ordered[T]) Insert(value T) bool {
	if !s.index.Insert(value) {
		return false
	}

	s.values = append(s.values, value)
	return true
}

func (s *Ordered[T]) Has(value T) bool {
	return s.index.Has(value)
}

func (s *Ordered[T]) Len() int {
	return len(s.values)
}

// Slice returns the values in insertion order. The slice must not be modified.
func (s *Ordered[T]) Slice() []T {
	return s.values
}

func (s *Ordered[T]) Values() iter.Seq[T] {
	return slices.Values(s.values)
}
