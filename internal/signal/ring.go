package signal

import "iter"

// Ring is a fixed-capacity FIFO. Pushing into a full ring evicts the oldest
// element. The backing array is allocated once by NewRing.
type Ring[T any] struct {
	buf   []T
	head  int // index of the oldest element
	count int
}

// NewRing creates a ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf: make([]T, capacity),
	}
}

// Push appends v, evicting the oldest element if the ring is full. It
// reports the evicted element, if any.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	tail := (r.head + r.count) % len(r.buf)
	if r.count == len(r.buf) {
		evicted, ok = r.buf[r.head], true
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		return evicted, ok
	}
	r.buf[tail] = v
	r.count++
	return evicted, false
}

// PopFront removes and returns the oldest element.
func (r *Ring[T]) PopFront() (v T, ok bool) {
	if r.count == 0 {
		return v, false
	}
	var zero T
	v = r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return v, true
}

// Front returns the oldest element.
func (r *Ring[T]) Front() (v T, ok bool) {
	if r.count == 0 {
		return v, false
	}
	return r.buf[r.head], true
}

// Back returns the newest element.
func (r *Ring[T]) Back() (v T, ok bool) {
	if r.count == 0 {
		return v, false
	}
	return r.buf[(r.head+r.count-1)%len(r.buf)], true
}

// All iterates from oldest to newest.
func (r *Ring[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < r.count; i++ {
			if !yield(r.buf[(r.head+i)%len(r.buf)]) {
				return
			}
		}
	}
}

// Backward iterates from newest to oldest.
func (r *Ring[T]) Backward() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := r.count - 1; i >= 0; i-- {
			if !yield(r.buf[(r.head+i)%len(r.buf)]) {
				return
			}
		}
	}
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// IsFull reports whether the next Push will evict.
func (r *Ring[T]) IsFull() bool {
	return r.count == len(r.buf)
}
