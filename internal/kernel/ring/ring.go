// Package ring implements the lock-free single-producer/single-consumer
// ring buffer used throughout the kernel: the editor→kernel command ring
// (spec.md §4.5), the kernel→editor Zone B reclaim ring (spec.md §4.2), and
// the bridge's internal reclaim consumption path. One producer, one
// consumer, no locks, FIFO guaranteed by head/tail ordering.
package ring

import (
	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
	"sync/atomic"
)

// Ring is a fixed-capacity SPSC lock-free queue of T. Capacity is fixed at
// construction; the ring never grows, matching the kernel's "no dynamic
// growth" invariant.
type Ring[T any] struct {
	buf      []T
	capacity uint32
	head     atomic.Uint32 // consumer-owned; advanced by Read
	tail     atomic.Uint32 // producer-owned; advanced by Write
}

// New creates a ring with room for capacity-1 live elements (the classic
// SPSC ring trade of one slot to distinguish full from empty without a
// separate counter).
func New[T any](capacity uint32) *Ring[T] {
	if capacity < 2 {
		capacity = 2
	}
	return &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Write enqueues one element. Returns RingFull if the ring has no room;
// the caller (the editor) is expected to retry on the next tick.
func (r *Ring[T]) Write(v T) kerrors.RingCode {
	tail := r.tail.Load()
	head := r.head.Load() // relaxed is sufficient here per spec.md §4.5
	next := (tail + 1) % r.capacity
	if next == head {
		return kerrors.RingFull
	}
	r.buf[tail] = v
	r.tail.Store(next) // release: publishes buf[tail] to the consumer
	return kerrors.RingOK
}

// Read dequeues one element into out. Reports false if the ring is empty.
func (r *Ring[T]) Read(out *T) bool {
	tail := r.tail.Load() // acquire: pairs with the producer's release store
	head := r.head.Load()
	if head == tail {
		return false
	}
	*out = r.buf[head]
	r.head.Store((head + 1) % r.capacity)
	return true
}

// Len reports the approximate number of queued elements. Racy by
// construction (the producer/consumer may be mutating concurrently); used
// only for telemetry/diagnostics, never for correctness decisions.
func (r *Ring[T]) Len() int {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail >= head {
		return int(tail - head)
	}
	return int(r.capacity - head + tail)
}

// Capacity returns the usable capacity (buffer size minus the one reserved
// slot).
func (r *Ring[T]) Capacity() uint32 {
	return r.capacity - 1
}
