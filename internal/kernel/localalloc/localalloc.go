// Package localalloc implements the Zone B bump allocator described in
// spec.md §4.2: single-writer from the editor's perspective, zeroing every
// returned slot, with a reclaim-ring-fed local free list consulted before
// bumping the frontier.
package localalloc

import (
	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/ring"
)

// Zeroer abstracts "zero this node's fields", implemented by the region's
// node heap.
type Zeroer interface {
	ZeroNode(ptr uint32)
}

// Allocator is the Zone B bump allocator plus its reclaim path. Not safe
// for concurrent use from more than one goroutine — it is, by design,
// single-writer (the editor).
type Allocator struct {
	split    uint32
	capacity uint32
	frontier uint32 // next ptr to hand out, in [split+1, capacity]
	zeroer   Zeroer
	reclaim  *ring.Ring[uint32]
	local    []uint32 // LIFO of reclaimed Zone B ptrs, consulted before bumping
}

// New constructs a Zone B allocator over (split, capacity], fed by
// reclaimRing for reuse of deleted nodes.
func New(split, capacity uint32, zeroer Zeroer, reclaimRing *ring.Ring[uint32]) *Allocator {
	a := &Allocator{split: split, capacity: capacity, zeroer: zeroer, reclaim: reclaimRing}
	a.Reset()
	return a
}

// Reset rewinds the bump frontier to the start of Zone B and drops the
// local free list — used by hardReset.
func (a *Allocator) Reset() {
	a.frontier = a.split + 1
	a.local = a.local[:0]
}

// Alloc returns the next Zone B slot: from the local (reclaimed) free list
// if non-empty, else by bumping the frontier. Every returned slot is
// zeroed before release.
func (a *Allocator) Alloc() (uint32, kerrors.AllocCode) {
	if n := len(a.local); n > 0 {
		ptr := a.local[n-1]
		a.local = a.local[:n-1]
		a.zeroer.ZeroNode(ptr)
		return ptr, kerrors.AllocOK
	}
	if a.frontier > a.capacity {
		return kerrors.NullPtr, kerrors.AllocExhausted
	}
	ptr := a.frontier
	a.frontier++
	a.zeroer.ZeroNode(ptr)
	return ptr, kerrors.AllocOK
}

// DrainReclaim pulls every pending reclaimed ptr off the reclaim ring (fed
// by the kernel MMU on DELETE) into the local free list. Per spec.md §9's
// resolution of the reclaim-ring Open Question, the bridge's tick() calls
// this unconditionally on every invocation.
func (a *Allocator) DrainReclaim() int {
	drained := 0
	var ptr uint32
	for a.reclaim.Read(&ptr) {
		a.local = append(a.local, ptr)
		drained++
	}
	return drained
}

// Used reports the number of Zone B slots currently handed out via the
// bump frontier (not accounting for reclaimed-but-not-yet-realloc'd slots).
func (a *Allocator) Used() uint32 {
	return a.frontier - (a.split + 1)
}
