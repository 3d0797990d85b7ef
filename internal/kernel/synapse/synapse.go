// Package synapse implements the directed, weighted connection graph
// described in spec.md §4.7: a linear-probe table keyed on source-ptr, with
// per-source overflow chains, a 256-bucket reverse index keyed on
// target-ptr, tombstoning, and ratio-triggered compaction.
package synapse

import (
	"sync/atomic"

	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
)

const (
	knuthMultiplier uint32 = 0x9E3779B1
	reverseBuckets  uint32 = 256
	chainLoopGuard  int    = 1000

	compactMinUsed     uint32 = 100
	compactRatioNum    uint32 = 1
	compactRatioDen    uint32 = 2 // tombstones/used > 0.5
)

const (
	stateFree     uint32 = 0
	stateOccupied uint32 = 1
)

// Table is the synapse graph's backing storage. Capacity is fixed at
// construction (no dynamic growth).
type Table struct {
	capacity uint32

	state          []atomic.Uint32
	sourcePtr      []atomic.Uint32
	targetPtr      []atomic.Uint32 // 0 = tombstoned, source intact
	weightJitter   []atomic.Uint32 // (weight<<16)|jitter
	plasticityNext []atomic.Uint32 // (plasticity<<24)|next(24-bit, 1-based, 0=null)
	nextSameTarget []atomic.Uint32 // reverse-index chain link, 1-based, 0=null

	reverseIndex [reverseBuckets]atomic.Uint32 // head slot (1-based), 0=null

	used       atomic.Uint32
	tombstones atomic.Uint32

	// staging arrays for compaction, lazily allocated on first use.
	stageSrc    []uint32
	stageTgt    []uint32
	stageWeight []uint32
	stageJitter []uint32
}

// New creates a synapse table with the given fixed capacity.
func New(capacity uint32) *Table {
	return &Table{
		capacity:       capacity,
		state:          make([]atomic.Uint32, capacity),
		sourcePtr:      make([]atomic.Uint32, capacity),
		targetPtr:      make([]atomic.Uint32, capacity),
		weightJitter:   make([]atomic.Uint32, capacity),
		plasticityNext: make([]atomic.Uint32, capacity),
		nextSameTarget: make([]atomic.Uint32, capacity),
	}
}

func (t *Table) hashSource(ptr uint32) uint32 {
	return (ptr * knuthMultiplier) % t.capacity
}

func (t *Table) hashTarget(ptr uint32) uint32 {
	return (ptr * knuthMultiplier) % reverseBuckets
}

func packWeightJitter(weight, jitter uint32) uint32 {
	return (weight&0xFFFF)<<16 | (jitter & 0xFFFF)
}

func unpackWeightJitter(v uint32) (weight, jitter uint32) {
	return v >> 16, v & 0xFFFF
}

func packPlasticityNext(plasticity uint8, next uint32) uint32 {
	return uint32(plasticity)<<24 | (next & 0x00FFFFFF)
}

func unpackPlasticityNext(v uint32) (plasticity uint8, next uint32) {
	return uint8(v >> 24), v & 0x00FFFFFF
}

// findHead locates the first occupied slot whose sourcePtr matches src,
// scanning from hash(src) and stopping at the first free slot. Returns the
// 0-based slot index and true if found; otherwise false with the 0-based
// index of the first free slot encountered and hasFree true, or with
// firstFree 0 and hasFree false if the whole table holds no free slot.
func (t *Table) findHead(src uint32) (slot uint32, found bool, firstFree uint32, hasFree bool) {
	start := t.hashSource(src)
	for i := uint32(0); i < t.capacity; i++ {
		idx := (start + i) % t.capacity
		switch t.state[idx].Load() {
		case stateFree:
			return idx, false, idx, true
		case stateOccupied:
			if t.sourcePtr[idx].Load() == src {
				return idx, true, 0, false
			}
		}
	}
	return 0, false, 0, false
}

// findFreeFrom scans for the first free slot starting at (from+1), wrapping
// once around the table.
func (t *Table) findFreeFrom(from uint32) (uint32, bool) {
	for i := uint32(1); i <= t.capacity; i++ {
		idx := (from + i) % t.capacity
		if t.state[idx].Load() == stateFree {
			return idx, true
		}
	}
	return 0, false
}

// Connect creates a new directed synapse src->tgt. Per spec.md §4.7/§9, a
// second Connect for an already-connected (src,tgt) pair creates a second,
// distinct entry rather than upserting the first (see DESIGN.md Open
// Question 1).
func (t *Table) Connect(src, tgt, weight, jitter uint32) (uint32, kerrors.SynapseCode) {
	if src == kerrors.NullPtr || tgt == kerrors.NullPtr {
		return 0, kerrors.SynapseInvalidPtr
	}

	headIdx, found, firstFree, hasFree := t.findHead(src)

	var slot uint32
	if !found {
		if !hasFree {
			return 0, kerrors.SynapseTableFull
		}
		slot = firstFree
	} else {
		tail := headIdx
		for steps := 0; ; steps++ {
			if steps > chainLoopGuard {
				return 0, kerrors.SynapseChainLoop
			}
			_, next := unpackPlasticityNext(t.plasticityNext[tail].Load())
			if next == 0 {
				break
			}
			tail = next - 1
		}
		freeSlot, ok := t.findFreeFrom(tail)
		if !ok {
			return 0, kerrors.SynapseTableFull
		}
		slot = freeSlot
		t.linkNext(tail, slot)
	}

	t.state[slot].Store(stateOccupied)
	t.sourcePtr[slot].Store(src)
	t.targetPtr[slot].Store(tgt)
	t.weightJitter[slot].Store(packWeightJitter(weight, jitter))
	t.plasticityNext[slot].Store(packPlasticityNext(0, 0))

	bucket := t.hashTarget(tgt)
	oldHead := t.reverseIndex[bucket].Load()
	t.nextSameTarget[slot].Store(oldHead)
	t.reverseIndex[bucket].Store(slot + 1)

	t.used.Add(1)
	t.maybeCompact()
	return slot + 1, kerrors.SynapseOK
}

// linkNext sets tailSlot's next pointer to slot (0-based slots, 1-based
// stored pointer), preserving the plasticity byte.
func (t *Table) linkNext(tailSlot, slot uint32) {
	for {
		old := t.plasticityNext[tailSlot].Load()
		plasticity, _ := unpackPlasticityNext(old)
		next := packPlasticityNext(plasticity, slot+1)
		if t.plasticityNext[tailSlot].CompareAndSwap(old, next) {
			return
		}
	}
}

// DisconnectAll tombstones every synapse from src whose target matches tgt,
// or every synapse from src if tgt is kerrors.NullPtr. Idempotent: calling
// twice in a row leaves the same set tombstoned (spec.md §8 property 9).
func (t *Table) DisconnectAll(src, tgt uint32) {
	headIdx, found, _, _ := t.findHead(src)
	if !found {
		return
	}
	cur := headIdx
	for steps := 0; ; steps++ {
		if steps > chainLoopGuard {
			return
		}
		if tgt == kerrors.NullPtr || t.targetPtr[cur].Load() == tgt {
			if t.targetPtr[cur].Swap(0) != 0 {
				t.tombstones.Add(1)
			}
		}
		_, next := unpackPlasticityNext(t.plasticityNext[cur].Load())
		if next == 0 {
			break
		}
		cur = next - 1
	}
	t.maybeCompact()
}

// TombstoneIncoming tombstones every synapse whose target is tgt, walking
// the reverse-index bucket for tgt.
func (t *Table) TombstoneIncoming(tgt uint32) {
	bucket := t.hashTarget(tgt)
	cur := t.reverseIndex[bucket].Load()
	for steps := 0; cur != 0; steps++ {
		if steps > chainLoopGuard {
			return
		}
		idx := cur - 1
		if t.targetPtr[idx].Load() == tgt {
			if t.targetPtr[idx].Swap(0) != 0 {
				t.tombstones.Add(1)
			}
		}
		cur = t.nextSameTarget[idx].Load()
	}
	t.maybeCompact()
}

// TombstoneOutgoing tombstones every live synapse whose source is src.
func (t *Table) TombstoneOutgoing(src uint32) {
	t.DisconnectAll(src, kerrors.NullPtr)
}

// Entry is a read-only view of one synapse, used by iteration/snapshot.
type Entry struct {
	SourcePtr uint32
	TargetPtr uint32
	Weight    uint32
	Jitter    uint32
}

// ForEachLive calls fn for every non-tombstoned synapse.
func (t *Table) ForEachLive(fn func(Entry)) {
	for i := uint32(0); i < t.capacity; i++ {
		if t.state[i].Load() != stateOccupied {
			continue
		}
		tgt := t.targetPtr[i].Load()
		if tgt == 0 {
			continue
		}
		w, j := unpackWeightJitter(t.weightJitter[i].Load())
		fn(Entry{SourcePtr: t.sourcePtr[i].Load(), TargetPtr: tgt, Weight: w, Jitter: j})
	}
}

// AdjustWeight applies delta to the synapse at ptr (1-based), clamping to
// [0,1000].
func (t *Table) AdjustWeight(ptr uint32, delta int32) {
	if ptr == 0 || ptr > t.capacity {
		return
	}
	idx := ptr - 1
	for {
		old := t.weightJitter[idx].Load()
		weight, jitter := unpackWeightJitter(old)
		nw := int32(weight) + delta
		if nw < 0 {
			nw = 0
		}
		if nw > 1000 {
			nw = 1000
		}
		next := packWeightJitter(uint32(nw), jitter)
		if t.weightJitter[idx].CompareAndSwap(old, next) {
			return
		}
	}
}

// ForEachFromSource calls fn for every live (non-tombstoned) synapse whose
// source is src, walking the per-source probe chain. Used by the consumer
// to resolve probabilistic next-node selection (spec.md glossary: "Synapse
// ... used by the Consumer to choose a next node probabilistically").
func (t *Table) ForEachFromSource(src uint32, fn func(ptr uint32, targetPtr uint32, weight uint32)) {
	headIdx, found, _, _ := t.findHead(src)
	if !found {
		return
	}
	cur := headIdx
	for steps := 0; ; steps++ {
		if steps > chainLoopGuard {
			return
		}
		if tgt := t.targetPtr[cur].Load(); tgt != 0 {
			w, _ := unpackWeightJitter(t.weightJitter[cur].Load())
			fn(cur+1, tgt, w)
		}
		_, next := unpackPlasticityNext(t.plasticityNext[cur].Load())
		if next == 0 {
			break
		}
		cur = next - 1
	}
}

// Weight returns the current weight of the synapse at ptr.
func (t *Table) Weight(ptr uint32) uint32 {
	if ptr == 0 || ptr > t.capacity {
		return 0
	}
	w, _ := unpackWeightJitter(t.weightJitter[ptr-1].Load())
	return w
}

// Stats reports table occupancy for diagnostics.
type Stats struct {
	UsedSlots  uint32
	Tombstones uint32
	Capacity   uint32
}

// Stats returns current occupancy counters.
func (t *Table) Stats() Stats {
	return Stats{UsedSlots: t.used.Load(), Tombstones: t.tombstones.Load(), Capacity: t.capacity}
}

// Clear resets the entire table (used by the CLEAR command).
func (t *Table) Clear() {
	for i := range t.state {
		t.state[i].Store(stateFree)
		t.sourcePtr[i].Store(0)
		t.targetPtr[i].Store(0)
		t.weightJitter[i].Store(0)
		t.plasticityNext[i].Store(0)
		t.nextSameTarget[i].Store(0)
	}
	for i := range t.reverseIndex {
		t.reverseIndex[i].Store(0)
	}
	t.used.Store(0)
	t.tombstones.Store(0)
}

// maybeCompact triggers a full rebuild when used>=100 and the tombstone
// ratio exceeds 0.5 (spec.md §4.7).
func (t *Table) maybeCompact() {
	used := t.used.Load()
	if used < compactMinUsed {
		return
	}
	tombstones := t.tombstones.Load()
	if tombstones*compactRatioDen <= used*compactRatioNum {
		return
	}
	t.compact()
}

func (t *Table) compact() {
	if t.stageSrc == nil {
		t.stageSrc = make([]uint32, t.capacity)
		t.stageTgt = make([]uint32, t.capacity)
		t.stageWeight = make([]uint32, t.capacity)
		t.stageJitter = make([]uint32, t.capacity)
	}
	n := 0
	for i := uint32(0); i < t.capacity; i++ {
		if t.state[i].Load() != stateOccupied {
			continue
		}
		tgt := t.targetPtr[i].Load()
		if tgt == 0 {
			continue
		}
		w, j := unpackWeightJitter(t.weightJitter[i].Load())
		t.stageSrc[n] = t.sourcePtr[i].Load()
		t.stageTgt[n] = tgt
		t.stageWeight[n] = w
		t.stageJitter[n] = j
		n++
	}

	t.Clear()

	for i := 0; i < n; i++ {
		t.Connect(t.stageSrc[i], t.stageTgt[i], t.stageWeight[i], t.stageJitter[i])
	}
}
