// Package ringbuf provides a fixed-capacity FIFO that evicts its oldest
// element when full.
package ringbuf

import "sync"

const DefaultCapacity = 32

// RingBuffer is safe for concurrent use. Push, Pop and Take are mutually
// exclusive.
type RingBuffer[T any] struct {
	mu    sync.Mutex
	items []T
	first int
	size  int
}

// New returns a ring buffer holding at most capacity items. A non-positive
// capacity falls back to DefaultCapacity.
func New[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Push appends item. When the buffer is already full the front element is
// evicted and returned with ok=true.
func (b *RingBuffer[T]) Push(item T) (evicted T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.items)
	if b.size == capacity {
		evicted = b.items[b.first]
		b.items[b.first] = item
		b.first = (b.first + 1) % capacity
		return evicted, true
	}
	b.items[(b.first+b.size)%capacity] = item
	b.size++
	return evicted, false
}

// Pop removes and returns the front element.
func (b *RingBuffer[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	item := b.items[b.first]
	b.items[b.first] = zero
	b.first = (b.first + 1) % len(b.items)
	b.size--
	return item, true
}

// Take drains the buffer, returning every retained item in arrival order.
func (b *RingBuffer[T]) Take() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, b.size)
	var zero T
	for i := 0; i < b.size; i++ {
		pos := (b.first + i) % len(b.items)
		out[i] = b.items[pos]
		b.items[pos] = zero
	}
	b.first = 0
	b.size = 0
	return out
}

func (b *RingBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *RingBuffer[T]) Cap() int {
	return len(b.items)
}
