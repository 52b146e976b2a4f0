// Package pool provides a typed sync.Pool for values that can be reset in
// place, such as fixed-capacity batch buffers.
package pool

import (
	"sync"
)

// Resetter is implemented by values that can return to their empty state
// without releasing their backing storage.
type Resetter interface {
	Reset()
}

// Pool is a typed wrapper around sync.Pool.
//
// Put resets a value before it is stored, so Get always returns an empty
// value whose capacity was chosen by the constructor.
type Pool[T Resetter] struct {
	pool sync.Pool
}

// New returns a Pool that calls newFunc when it has nothing to hand out.
//
// Example:
//
//	buffers := pool.New(func() *frame {
//		return &frame{b: make([]byte, 0, size)}
//	})
func New[T Resetter](newFunc func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return newFunc()
			},
		},
	}
}

// Get returns a pooled value or a new one.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put resets x and makes it available to Get.
func (p *Pool[T]) Put(x T) {
	x.Reset()
	p.pool.Put(x)
}
