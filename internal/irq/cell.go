package irq

import (
	"sync"
	"sync/atomic"
)

// Resource is a shared object that vectors declare they lock. Registering a
// vector raises the resource's ceiling to the vector's priority.
type Resource interface {
	ResourceName() string
	raiseCeiling(p Priority)
}

// Cell owns a value shared between vectors. It starts empty; Replace
// installs the value once bring-up is complete. All access goes through
// Lock, which holds the cell for the duration of the callback only.
type Cell[T any] struct {
	name    string
	ceiling atomic.Uint32

	mu  sync.Mutex
	v   T
	set bool
}

// NewCell creates an empty cell.
func NewCell[T any](name string) *Cell[T] {
	return &Cell[T]{name: name}
}

// ResourceName returns the name given to NewCell.
func (c *Cell[T]) ResourceName() string {
	return c.name
}

// Replace installs v and returns the previous value, if any.
func (c *Cell[T]) Replace(v T) (old T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old, ok = c.v, c.set
	c.v, c.set = v, true
	return old, ok
}

// Lock runs f with exclusive access to the value. It returns false without
// calling f when the cell has not been initialized. The cell is released
// when f returns or panics.
func (c *Cell[T]) Lock(f func(*T)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return false
	}
	f(&c.v)
	return true
}

// Ceiling returns the highest priority of any vector that locks the cell.
func (c *Cell[T]) Ceiling() Priority {
	return Priority(c.ceiling.Load())
}

func (c *Cell[T]) raiseCeiling(p Priority) {
	for {
		cur := c.ceiling.Load()
		if uint32(p) <= cur || c.ceiling.CompareAndSwap(cur, uint32(p)) {
			return
		}
	}
}
