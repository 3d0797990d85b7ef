// Package freelist implements the Zone A lock-free LIFO free-slot stack
// described in spec.md §4.1: ABA-safe via a 64-bit tagged head
// (version<<32|ptr), O(1) and allocation-free.
package freelist

import (
	"sync/atomic"

	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
)

// Links abstracts the "next free" word stored in each Zone A slot. The
// region's node heap implements this by reusing each free node's Next
// field as the free-list link (the slot carries no musical meaning while
// it is on the free stack).
type Links interface {
	LoadLink(ptr uint32) uint32
	StoreLink(ptr uint32, next uint32)
}

// FreeList is the Zone A allocator. It holds no state of its own beyond
// what is already in the shared header/heap — Head, FreeCount, and
// ErrorCode all live in region.Header and are passed in by reference so the
// free list and the rest of the kernel observe the same counters.
type FreeList struct {
	head      *atomic.Uint64
	freeCount *atomic.Int32
	errorCode *atomic.Int32
	links     Links
}

// New builds a FreeList view over shared header state.
func New(head *atomic.Uint64, freeCount, errorCode *atomic.Int32, links Links) *FreeList {
	return &FreeList{head: head, freeCount: freeCount, errorCode: errorCode, links: links}
}

func packHead(version uint32, ptr uint32) uint64 {
	return uint64(version)<<32 | uint64(ptr)
}

func unpackHead(v uint64) (version uint32, ptr uint32) {
	return uint32(v >> 32), uint32(v)
}

// Alloc pops a slot off the free stack, or returns (NullPtr, false) and
// sets HEAP_EXHAUSTED when the stack is empty.
func (f *FreeList) Alloc() (uint32, bool) {
	for {
		old := f.head.Load()
		version, ptr := unpackHead(old)
		if ptr == kerrors.NullPtr {
			f.errorCode.Store(int32(kerrors.HeapExhausted))
			return kerrors.NullPtr, false
		}
		next := f.links.LoadLink(ptr)
		newHead := packHead(version+1, next)
		if f.head.CompareAndSwap(old, newHead) {
			f.freeCount.Add(-1)
			return ptr, true
		}
	}
}

// Free pushes ptr back onto the free stack. The version field is bumped on
// every push, defeating ABA (spec.md §3 invariants).
func (f *FreeList) Free(ptr uint32) {
	if ptr == kerrors.NullPtr {
		return
	}
	for {
		old := f.head.Load()
		version, oldPtr := unpackHead(old)
		f.links.StoreLink(ptr, oldPtr)
		newHead := packHead(version+1, ptr)
		if f.head.CompareAndSwap(old, newHead) {
			f.freeCount.Add(1)
			return
		}
	}
}

// InitChain pre-populates the free stack with slots [1, count] linked in
// ascending order, used once at region construction.
func InitChain(head *atomic.Uint64, links Links, count uint32) {
	if count == 0 {
		head.Store(0)
		return
	}
	for i := uint32(1); i <= count; i++ {
		if i == count {
			links.StoreLink(i, kerrors.NullPtr)
		} else {
			links.StoreLink(i, i+1)
		}
	}
	head.Store(packHead(0, 1))
}
