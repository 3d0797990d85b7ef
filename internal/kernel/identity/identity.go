// Package identity implements the linear-probe open-addressing hash tables
// described in spec.md §4.3: a source-id -> node-ptr identity table sharing
// its slot space with a parallel source-location symbol table.
package identity

import (
	"sync/atomic"

	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
)

const (
	knuthMultiplier uint32 = 0x9E3779B1
	loadFactorNum          = 3
	loadFactorDen          = 4 // warn at 75%
)

// slot states, stored in the Key word.
const (
	keyEmpty     int64 = 0
	keyTombstone int64 = -1
)

// Table is the shared slot space for the identity table (key=source_id,
// value=node ptr) and the symbol table (file hash, packed line/column) at
// the same index. Capacity must be a power of two.
type Table struct {
	capacity uint32
	keys     []atomic.Int64  // 0 = empty, -1 = tombstone, >0 = live source-id
	values   []atomic.Uint32 // node ptr
	fileHash []atomic.Uint32
	lineCol  []atomic.Uint32 // (line<<16)|column

	used atomic.Uint32
}

// New creates a table. capacity must be a power of two (the caller,
// typically region.NewRegion, is responsible for rounding).
func New(capacity uint32) *Table {
	return &Table{
		capacity: capacity,
		keys:     make([]atomic.Int64, capacity),
		values:   make([]atomic.Uint32, capacity),
		fileHash: make([]atomic.Uint32, capacity),
		lineCol:  make([]atomic.Uint32, capacity),
	}
}

func (t *Table) hash(sourceID int64) uint32 {
	return (uint32(sourceID) * knuthMultiplier) & (t.capacity - 1)
}

// Insert writes (sourceID -> ptr). If an existing live or tombstoned slot
// for sourceID is found along the probe sequence, it is overwritten in
// place; otherwise the first empty/tombstone slot found is claimed and used
// count bumped. Returns LoadFactorWarning (in addition to OK) if used now
// exceeds 75% of capacity.
func (t *Table) Insert(sourceID int32, ptr uint32) kerrors.Code {
	if sourceID <= 0 {
		return kerrors.InvalidPtr
	}
	key := int64(sourceID)
	start := t.hash(key)
	var firstFree int64 = -1
	for i := uint32(0); i < t.capacity; i++ {
		idx := (start + i) % t.capacity
		cur := t.keys[idx].Load()
		if cur == key {
			t.values[idx].Store(ptr)
			return kerrors.OK
		}
		if cur == keyEmpty {
			if firstFree == -1 {
				firstFree = int64(idx)
			}
			break
		}
		if cur == keyTombstone && firstFree == -1 {
			firstFree = int64(idx)
		}
	}
	if firstFree == -1 {
		return kerrors.InvalidPtr // table genuinely full; capacity is 2x node capacity so this should not happen
	}
	idx := uint32(firstFree)
	t.keys[idx].Store(key)
	t.values[idx].Store(ptr)
	used := t.used.Add(1)
	if used*loadFactorDen > t.capacity*loadFactorNum {
		return kerrors.LoadFactorWarning
	}
	return kerrors.OK
}

// Lookup returns the node ptr for sourceID, or (0, false).
func (t *Table) Lookup(sourceID int32) (uint32, bool) {
	key := int64(sourceID)
	start := t.hash(key)
	for i := uint32(0); i < t.capacity; i++ {
		idx := (start + i) % t.capacity
		cur := t.keys[idx].Load()
		if cur == keyEmpty {
			return 0, false
		}
		if cur == key {
			return t.values[idx].Load(), true
		}
	}
	return 0, false
}

// Remove tombstones the entry for sourceID, if present.
func (t *Table) Remove(sourceID int32) {
	key := int64(sourceID)
	start := t.hash(key)
	for i := uint32(0); i < t.capacity; i++ {
		idx := (start + i) % t.capacity
		cur := t.keys[idx].Load()
		if cur == keyEmpty {
			return
		}
		if cur == key {
			t.keys[idx].Store(keyTombstone)
			t.values[idx].Store(0)
			return
		}
	}
}

// SymbolStore finds the identical slot an Insert(sourceID, ...) would use
// and writes the packed source location there. Must be called after
// Insert for the same sourceID, so a transient reader never observes an
// identity entry without its matching location (spec.md §4.3).
func (t *Table) SymbolStore(sourceID int32, fileHash uint32, line, column uint16) {
	key := int64(sourceID)
	start := t.hash(key)
	for i := uint32(0); i < t.capacity; i++ {
		idx := (start + i) % t.capacity
		if t.keys[idx].Load() == key {
			t.fileHash[idx].Store(fileHash)
			t.lineCol[idx].Store(uint32(line)<<16 | uint32(column))
			return
		}
	}
}

// SymbolLookup returns the packed source location for sourceID.
func (t *Table) SymbolLookup(sourceID int32) (fileHash uint32, line, column uint16, ok bool) {
	key := int64(sourceID)
	start := t.hash(key)
	for i := uint32(0); i < t.capacity; i++ {
		idx := (start + i) % t.capacity
		cur := t.keys[idx].Load()
		if cur == keyEmpty {
			return 0, 0, 0, false
		}
		if cur == key {
			lc := t.lineCol[idx].Load()
			return t.fileHash[idx].Load(), uint16(lc >> 16), uint16(lc), true
		}
	}
	return 0, 0, 0, false
}

// Clear wipes every slot, used by the CLEAR command.
func (t *Table) Clear() {
	for i := range t.keys {
		t.keys[i].Store(keyEmpty)
		t.values[i].Store(0)
		t.fileHash[i].Store(0)
		t.lineCol[i].Store(0)
	}
	t.used.Store(0)
}

// Used returns the number of inserts that claimed a slot since the last
// Clear. Remove does not decrement it, and reusing a tombstoned slot
// increments it again.
func (t *Table) Used() uint32 { return t.used.Load() }

// Capacity returns the table's fixed capacity.
func (t *Table) Capacity() uint32 { return t.capacity }

// LoadFactor reports used/capacity as a float in [0,1].
func (t *Table) LoadFactor() float64 {
	return float64(t.used.Load()) / float64(t.capacity)
}
