package typedpool

import "sync"

// Pool is a typed sync.Pool. Values are passed through reset before
// they are handed out again.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(*T)
}

func New[T any](reset func(*T)) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any { return new(T) },
		},
		reset: reset,
	}
}

func (p *Pool[T]) Get() *T {
	return p.pool.Get().(*T)
}

func (p *Pool[T]) Put(value *T) {
	if p.reset != nil {
		p.reset(value)
	}

	p.pool.Put(value)
}

// Slice returns a pool of slices that are truncated to zero length when returned.
func Slice[E any]() *Pool[[]E] {
	return New(func(s *[]E) {
		clear(*s)
		*s = (*s)[:0]
	})
}
