// Package bridge implements the editor-facing façade described in
// spec.md §4.8, C9: source-id generation, debounced patches and structural
// edits with coalescing, reward/penalty weight updates, and array-based
// brain snapshot/restore.
package bridge

import (
	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/localalloc"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/mmu"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/patch"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/region"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/ring"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/synapse"
)

const (
	patchRingCapacity      = 64 // spec.md §4.8
	structuralRingCapacity = 32

	defaultAttributeDebounceTicks  uint64 = 10
	defaultStructuralDebounceTicks uint64 = 10
	defaultLearningRate            uint32 = 50

	firedRingCapacity = 16

	sourceIDKnuthMultiplier uint32 = 0x9E3779B1
	maxSourceID             int32  = 0x7FFFFFFF
)

type structuralKind uint8

const (
	structInsert structuralKind = iota
	structDelete
)

type pendingPatch struct {
	sourceID int32
	field    patch.Field
	value    int32
}

type pendingStructural struct {
	kind          structuralKind
	sourceID      int32
	afterSourceID int32
	opcode        region.NodeOpcode
	pitch         uint8
	velocity      uint8
	duration      uint32
	baseTick      uint32
	muted         bool
	expressionID  uint8
}

// ClipEntry is one note in a batch passed to LoadClip, given in ascending
// tick order.
type ClipEntry struct {
	Opcode       region.NodeOpcode
	Pitch        uint8
	Velocity     uint8
	Duration     uint32
	BaseTick     uint32
	Muted        bool
	ExpressionID uint8
}

// Stats is a diagnostic snapshot of bridge/region occupancy, not part of
// the DSL-facing contract (SPEC_FULL.md's supplemented test hook).
type Stats struct {
	LiveNodes         int32
	FreeCount         int32
	IdentityUsed      uint32
	SynapseUsed       uint32
	SynapseTombstones uint32
	PendingPatches    int
	PendingStructural int
	TelemetryOps      uint64
	ErrorCode         kerrors.Code
}

// Bridge is the editor-facing façade over one region. Not safe for
// concurrent calls from more than one goroutine — the editor role is
// single-writer, matching spec.md §5.
type Bridge struct {
	Region *region.Region
	MMU    *mmu.MMU
	Alloc  *localalloc.Allocator

	// FiredRing receives synapse pointers chosen by the consumer's Linker
	// each time a node fires (spec.md §4.8's "fired-synapse ring"). Wire
	// Consumer.FiredRing = bridge.FiredRing when assembling a system so
	// both sides share the same queue.
	FiredRing *ring.Ring[uint32]

	AttributeDebounceTicks  uint64
	StructuralDebounceTicks uint64
	LearningRate            uint32

	// OnError, if set, is invoked when the bridge itself latches an error
	// code into the header, which happens only for HeapExhausted from an
	// insert. Codes the MMU latches directly (SafeZone, InvalidPtr,
	// LoadFactorWarning) do not reach this callback.
	OnError func(kerrors.Code)

	nextSourceID int32
	currentTick  uint64

	pendingPatches []pendingPatch
	patchDeadline  uint64
	patchArmed     bool

	pendingStructural []pendingStructural
	structDeadline    uint64
	structArmed       bool

	firedPtrs  [firedRingCapacity]uint32
	firedHead  int
	firedCount int
}

// New builds a Bridge over r, driving structural mutations through m.
func New(r *region.Region, m *mmu.MMU) *Bridge {
	return &Bridge{
		Region:                  r,
		MMU:                     m,
		Alloc:                   localalloc.New(r.Header.Split, r.Header.NodeCapacity, r, r.ReclaimRing),
		FiredRing:               ring.New[uint32](firedRingCapacity + 1),
		AttributeDebounceTicks:  defaultAttributeDebounceTicks,
		StructuralDebounceTicks: defaultStructuralDebounceTicks,
		LearningRate:            defaultLearningRate,
		nextSourceID:            1,
		pendingPatches:          make([]pendingPatch, 0, patchRingCapacity),
		pendingStructural:       make([]pendingStructural, 0, structuralRingCapacity),
	}
}

// notify bumps the header's reserved update-generation word, standing in
// for spec.md §4.8's "notifies the consumer via a wait-slot" — this
// implementation's consumer is poll-driven rather than parked on a futex,
// so there is nothing literal to wake, but downstream tooling (or a future
// blocking consumer) can watch UpdateGeneration for "something changed".
func (b *Bridge) notify() {
	b.Region.Header.UpdateGeneration.Add(1)
}

func (b *Bridge) surface(code kerrors.Code) {
	if code == kerrors.OK {
		return
	}
	b.Region.Header.ErrorCode.Store(int32(code))
	if b.OnError != nil {
		b.OnError(code)
	}
}

// GenerateSourceID returns the next id from a monotonic counter wrapping
// [1, maxSourceID] (spec.md §4.8, no-location path).
func (b *Bridge) GenerateSourceID() int32 {
	id := b.nextSourceID
	if b.nextSourceID >= maxSourceID {
		b.nextSourceID = 1
	} else {
		b.nextSourceID++
	}
	return id
}

// GenerateSourceIDFromLocation derives a positive 31-bit id from a source
// location via Knuth multiplicative mixing (spec.md §4.8).
func (b *Bridge) GenerateSourceIDFromLocation(fileHash uint32, line, column uint16) int32 {
	mixed := (fileHash ^ (uint32(line)<<16 | uint32(column))) * sourceIDKnuthMultiplier
	id := int32(mixed & 0x7FFFFFFF)
	if id == 0 {
		id = 1
	}
	return id
}

// InsertAsync allocates a Zone B node, writes its fields, and queues an
// INSERT command. Returns the floating pointer (not yet linked into the
// chain) even on ring-full, since the node was already allocated and
// written. On ring-full the node stays allocated and no INSERT is queued
// for it; Tick does not re-enqueue it.
func (b *Bridge) InsertAsync(opcode region.NodeOpcode, pitch, velocity uint8, duration, baseTick uint32, muted bool, sourceID, afterSourceID int32, expressionID uint8) (uint32, kerrors.BridgeCode) {
	return b.insertAsync(opcode, pitch, velocity, duration, baseTick, muted, sourceID, afterSourceID, expressionID, region.Location{})
}

// InsertNoteAtLocation derives a source id from a file/line/column triple via
// GenerateSourceIDFromLocation and inserts through the same path as
// InsertAsync, staging the location so the MMU's INSERT handling can
// populate the symbol table at the identity slot right after the identity
// insert (spec.md §4.3's symTableStore ordering). Returns the derived
// source id alongside InsertAsync's usual results.
func (b *Bridge) InsertNoteAtLocation(opcode region.NodeOpcode, pitch, velocity uint8, duration, baseTick uint32, muted bool, afterSourceID int32, expressionID uint8, fileHash uint32, line, column uint16) (int32, uint32, kerrors.BridgeCode) {
	sourceID := b.GenerateSourceIDFromLocation(fileHash, line, column)
	loc := region.Location{FileHash: fileHash, Line: line, Column: column}
	ptr, code := b.insertAsync(opcode, pitch, velocity, duration, baseTick, muted, sourceID, afterSourceID, expressionID, loc)
	return sourceID, ptr, code
}

func (b *Bridge) insertAsync(opcode region.NodeOpcode, pitch, velocity uint8, duration, baseTick uint32, muted bool, sourceID, afterSourceID int32, expressionID uint8, loc region.Location) (uint32, kerrors.BridgeCode) {
	var afterPtr uint32
	if afterSourceID != 0 {
		ptr, ok := b.Region.Identity.Lookup(afterSourceID)
		if !ok {
			return 0, kerrors.BridgeNotFound
		}
		afterPtr = ptr
	}

	ptr, code := b.Alloc.Alloc()
	if code != kerrors.AllocOK {
		b.surface(kerrors.HeapExhausted)
		return 0, kerrors.BridgeTableFull
	}

	node := b.Region.Node(ptr)
	flags := region.FlagActive
	if muted {
		flags |= region.FlagMuted
	}
	node.PackedA.Store(region.PackA(opcode, pitch, velocity, flags, expressionID))
	node.BaseTick.Store(baseTick)
	node.Duration.Store(duration)
	node.SourceID.Store(sourceID)
	node.BumpSequence()

	if loc != (region.Location{}) {
		b.Region.PendingLocations[ptr-1] = loc
	}

	if rc := b.Region.CommandRing.Write(region.Command{Op: region.CmdInsert, P1: ptr, P2: afterPtr}); rc != kerrors.RingOK {
		return ptr, kerrors.BridgeTableFull
	}
	b.notify()
	return ptr, kerrors.BridgeOK
}

// DeleteAsync queues a pointer-based DELETE, bypassing identity lookup —
// for deleting a node whose INSERT has not yet been applied by the kernel.
func (b *Bridge) DeleteAsync(ptr uint32) kerrors.BridgeCode {
	if rc := b.Region.CommandRing.Write(region.Command{Op: region.CmdDelete, P1: ptr}); rc != kerrors.RingOK {
		return kerrors.BridgeTableFull
	}
	b.notify()
	return kerrors.BridgeOK
}

// DeleteNoteImmediate resolves sourceID to a pointer, pre-emptively
// tombstones its synapses, queues DELETE, and drains the ring synchronously
// under editor-context mutex rules (spec.md §4.8).
func (b *Bridge) DeleteNoteImmediate(sourceID int32) kerrors.BridgeCode {
	ptr, ok := b.Region.Identity.Lookup(sourceID)
	if !ok {
		return kerrors.BridgeNotFound
	}
	b.Region.Synapse.TombstoneOutgoing(ptr)
	b.Region.Synapse.TombstoneIncoming(ptr)
	if rc := b.Region.CommandRing.Write(region.Command{Op: region.CmdDelete, P1: ptr}); rc != kerrors.RingOK {
		return kerrors.BridgeTableFull
	}
	b.notify()
	b.MMU.ProcessCommands(mmu.Editor)
	return kerrors.BridgeOK
}

// PatchDirect resolves sourceID to a pointer and applies field := value
// immediately, bypassing the ring and the debounce buffer.
func (b *Bridge) PatchDirect(sourceID int32, field patch.Field, value int32) kerrors.BridgeCode {
	ptr, ok := b.Region.Identity.Lookup(sourceID)
	if !ok {
		return kerrors.BridgeNotFound
	}
	node := b.Region.Node(ptr)
	if node == nil {
		return kerrors.BridgeNotFound
	}
	if !patch.Apply(node, field, value, &b.Region.Header.ErrorCode) {
		return kerrors.BridgeInvalid
	}
	return kerrors.BridgeOK
}

// PatchDebounced stages a patch, coalescing with any already-pending patch
// for the same (sourceID, field) pair (spec.md §4.8).
func (b *Bridge) PatchDebounced(sourceID int32, field patch.Field, value int32) kerrors.BridgeCode {
	for i := range b.pendingPatches {
		p := &b.pendingPatches[i]
		if p.sourceID == sourceID && p.field == field {
			p.value = value
			b.armPatchDeadline()
			return kerrors.BridgeOK
		}
	}
	if len(b.pendingPatches) >= patchRingCapacity {
		return kerrors.BridgeTableFull
	}
	b.pendingPatches = append(b.pendingPatches, pendingPatch{sourceID: sourceID, field: field, value: value})
	b.armPatchDeadline()
	return kerrors.BridgeOK
}

func (b *Bridge) armPatchDeadline() {
	b.patchDeadline = b.currentTick + b.AttributeDebounceTicks
	b.patchArmed = true
}

// InsertNoteDebounced stages a structural insert, flushed on the next Tick
// that crosses the structural debounce deadline.
func (b *Bridge) InsertNoteDebounced(opcode region.NodeOpcode, pitch, velocity uint8, duration, baseTick uint32, muted bool, sourceID, afterSourceID int32, expressionID uint8) kerrors.BridgeCode {
	if len(b.pendingStructural) >= structuralRingCapacity {
		return kerrors.BridgeTableFull
	}
	b.pendingStructural = append(b.pendingStructural, pendingStructural{
		kind: structInsert, sourceID: sourceID, afterSourceID: afterSourceID,
		opcode: opcode, pitch: pitch, velocity: velocity,
		duration: duration, baseTick: baseTick, muted: muted, expressionID: expressionID,
	})
	b.armStructDeadline()
	return kerrors.BridgeOK
}

// DeleteNoteDebounced stages a structural delete, flushed the same way.
func (b *Bridge) DeleteNoteDebounced(sourceID int32) kerrors.BridgeCode {
	if len(b.pendingStructural) >= structuralRingCapacity {
		return kerrors.BridgeTableFull
	}
	b.pendingStructural = append(b.pendingStructural, pendingStructural{kind: structDelete, sourceID: sourceID})
	b.armStructDeadline()
	return kerrors.BridgeOK
}

func (b *Bridge) armStructDeadline() {
	b.structDeadline = b.currentTick + b.StructuralDebounceTicks
	b.structArmed = true
}

// Tick advances the bridge's internal debounce clock by one, flushing
// whichever debounce classes have crossed their deadline, unconditionally
// draining the Zone B reclaim ring, and draining newly fired synapses into
// the reward/penalty window (spec.md §4.8; see DESIGN.md Open Question 2
// on always draining the reclaim ring).
func (b *Bridge) Tick() {
	b.currentTick++
	if b.patchArmed && b.currentTick >= b.patchDeadline {
		b.flushPatches()
	}
	if b.structArmed && b.currentTick >= b.structDeadline {
		b.flushStructural()
	}
	b.Alloc.DrainReclaim()
	b.drainFired()
}

func (b *Bridge) flushPatches() {
	for _, p := range b.pendingPatches {
		b.PatchDirect(p.sourceID, p.field, p.value)
	}
	b.pendingPatches = b.pendingPatches[:0]
	b.patchArmed = false
}

func (b *Bridge) flushStructural() {
	for _, s := range b.pendingStructural {
		switch s.kind {
		case structInsert:
			b.InsertAsync(s.opcode, s.pitch, s.velocity, s.duration, s.baseTick, s.muted, s.sourceID, s.afterSourceID, s.expressionID)
		case structDelete:
			b.DeleteNoteImmediate(s.sourceID)
		}
	}
	b.pendingStructural = b.pendingStructural[:0]
	b.structArmed = false
}

func (b *Bridge) drainFired() {
	var ptr uint32
	for b.FiredRing.Read(&ptr) {
		b.firedPtrs[b.firedHead] = ptr
		b.firedHead = (b.firedHead + 1) % len(b.firedPtrs)
		if b.firedCount < len(b.firedPtrs) {
			b.firedCount++
		}
	}
}

func roundToInt32(f float64) int32 {
	if f >= 0 {
		return int32(f + 0.5)
	}
	return -int32(-f + 0.5)
}

// Reward adjusts the weight of every synapse currently in the fired window
// by learningRate*mult, clamped to [0,1000] (spec.md §4.8).
func (b *Bridge) Reward(mult float64) {
	delta := roundToInt32(float64(b.LearningRate) * mult)
	for i := 0; i < b.firedCount; i++ {
		b.Region.Synapse.AdjustWeight(b.firedPtrs[i], delta)
	}
}

// Penalize is Reward's inverse.
func (b *Bridge) Penalize(mult float64) {
	delta := roundToInt32(float64(b.LearningRate) * mult)
	for i := 0; i < b.firedCount; i++ {
		b.Region.Synapse.AdjustWeight(b.firedPtrs[i], -delta)
	}
}

// SetLearningRate/GetLearningRate control the reward/penalize step size.
func (b *Bridge) SetLearningRate(rate uint32) { b.LearningRate = rate }
func (b *Bridge) GetLearningRate() uint32     { return b.LearningRate }

// Connect resolves both endpoints by sourceID and creates a new directed
// synapse. Per spec.md §9's duplicate-connect decision (DESIGN.md Open
// Question 1), a second Connect(A,B) creates a second, distinct entry.
func (b *Bridge) Connect(sourceID, targetID int32, weight, jitter uint32) (uint32, kerrors.BridgeCode) {
	srcPtr, ok := b.Region.Identity.Lookup(sourceID)
	if !ok {
		return 0, kerrors.BridgeNotFound
	}
	tgtPtr, ok := b.Region.Identity.Lookup(targetID)
	if !ok {
		return 0, kerrors.BridgeNotFound
	}
	ptr, code := b.Region.Synapse.Connect(srcPtr, tgtPtr, weight, jitter)
	if code != kerrors.SynapseOK {
		return 0, kerrors.BridgeTableFull
	}
	return ptr, kerrors.BridgeOK
}

// Disconnect tombstones every synapse from sourceID to targetID, or every
// synapse from sourceID if targetID is 0.
func (b *Bridge) Disconnect(sourceID, targetID int32) kerrors.BridgeCode {
	srcPtr, ok := b.Region.Identity.Lookup(sourceID)
	if !ok {
		return kerrors.BridgeNotFound
	}
	var tgtPtr uint32
	if targetID != 0 {
		tgtPtr, ok = b.Region.Identity.Lookup(targetID)
		if !ok {
			return kerrors.BridgeNotFound
		}
	}
	b.Region.Synapse.DisconnectAll(srcPtr, tgtPtr)
	return kerrors.BridgeOK
}

// ConnectAsync queues a pointer-based CONNECT, bypassing identity lookup
// for endpoints that have not yet been applied by the kernel.
func (b *Bridge) ConnectAsync(srcPtr, tgtPtr, weight, jitter uint32) kerrors.BridgeCode {
	packed := (weight&0xFFFF)<<16 | (jitter & 0xFFFF)
	if rc := b.Region.CommandRing.Write(region.Command{Op: region.CmdConnect, P1: srcPtr, P2: tgtPtr, P3: packed}); rc != kerrors.RingOK {
		return kerrors.BridgeTableFull
	}
	b.notify()
	return kerrors.BridgeOK
}

// DisconnectAsync queues a pointer-based DISCONNECT; tgtPtr of 0 means
// "every synapse from srcPtr".
func (b *Bridge) DisconnectAsync(srcPtr, tgtPtr uint32) kerrors.BridgeCode {
	if rc := b.Region.CommandRing.Write(region.Command{Op: region.CmdDisconnect, P1: srcPtr, P2: tgtPtr}); rc != kerrors.RingOK {
		return kerrors.BridgeTableFull
	}
	b.notify()
	return kerrors.BridgeOK
}

// SnapshotToArrays writes every live synapse's (sourceId, targetId, weight,
// jitter) into caller-provided arrays, resolving endpoints back to
// source-ids via each node's SourceID word. Returns the number written,
// bounded by len(sourceIDs).
func (b *Bridge) SnapshotToArrays(sourceIDs, targetIDs []int32, weights, jitters []uint32) int {
	count := 0
	b.Region.Synapse.ForEachLive(func(e synapse.Entry) {
		if count >= len(sourceIDs) {
			return
		}
		srcNode := b.Region.Node(e.SourcePtr)
		tgtNode := b.Region.Node(e.TargetPtr)
		if srcNode == nil || tgtNode == nil {
			return
		}
		srcID := srcNode.SourceID.Load()
		tgtID := tgtNode.SourceID.Load()
		if srcID <= 0 || tgtID <= 0 {
			return
		}
		sourceIDs[count] = srcID
		targetIDs[count] = tgtID
		weights[count] = e.Weight
		jitters[count] = e.Jitter
		count++
	})
	return count
}

// RestoreFromArrays re-creates synapses from a prior SnapshotToArrays
// dump, skipping any entry whose endpoints no longer exist in the identity
// table (spec.md §8 property 8). Returns the number restored.
func (b *Bridge) RestoreFromArrays(sourceIDs, targetIDs []int32, weights, jitters []uint32, count int) int {
	restored := 0
	for i := 0; i < count; i++ {
		srcPtr, ok := b.Region.Identity.Lookup(sourceIDs[i])
		if !ok {
			continue
		}
		tgtPtr, ok := b.Region.Identity.Lookup(targetIDs[i])
		if !ok {
			continue
		}
		if _, code := b.Region.Synapse.Connect(srcPtr, tgtPtr, weights[i], jitters[i]); code == kerrors.SynapseOK {
			restored++
		}
	}
	return restored
}

// LoadClip batch-inserts entries (given in ascending tick order) by
// head-inserting in reverse order, so the final chain lands in ascending
// order; input index i is pre-assigned source-id i+1.
func (b *Bridge) LoadClip(entries []ClipEntry) kerrors.BridgeCode {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		sourceID := int32(i + 1)
		if _, code := b.InsertAsync(e.Opcode, e.Pitch, e.Velocity, e.Duration, e.BaseTick, e.Muted, sourceID, 0, e.ExpressionID); code != kerrors.BridgeOK {
			return code
		}
	}
	b.MMU.ProcessCommands(mmu.Editor)
	return kerrors.BridgeOK
}

// SetBPM/GetBPM, GetPlayheadTick, SetHumanize/SetTranspose/SetVelocityMult,
// SetPRNGSeed, SetGroove/ClearGroove expose the register bank (spec.md §6).
func (b *Bridge) SetBPM(bpm uint32)          { b.Region.Header.TempoBPM.Store(bpm) }
func (b *Bridge) GetBPM() uint32             { return b.Region.Header.TempoBPM.Load() }
func (b *Bridge) GetPlayheadTick() uint64    { return b.Region.Header.PlayheadTick.Load() }
func (b *Bridge) SetTranspose(semitones int32) {
	b.Region.Registers.GlobalTranspose.Store(semitones)
}
func (b *Bridge) SetVelocityMult(ppt uint32) { b.Region.Registers.GlobalVelocityMult.Store(ppt) }
func (b *Bridge) SetPRNGSeed(seed uint64)    { b.Region.Registers.PrngSeed.Store(seed) }
func (b *Bridge) SetGroove(offsets []uint32) { b.Region.Registers.SetGroove(offsets) }
func (b *Bridge) ClearGroove()               { b.Region.Registers.ClearGroove() }

// SetHumanize sets both the timing and velocity humanize jitter registers,
// in parts-per-thousand.
func (b *Bridge) SetHumanize(timingPpt, velocityPpt uint32) {
	b.Region.Registers.HumanizeTimingPpt.Store(timingPpt)
	b.Region.Registers.HumanizeVelocityPpt.Store(velocityPpt)
}

// HardReset reinitializes the region and every bridge-local data structure
// derived from it (spec.md §6).
func (b *Bridge) HardReset() {
	b.Region.HardReset()
	b.Alloc = localalloc.New(b.Region.Header.Split, b.Region.Header.NodeCapacity, b.Region, b.Region.ReclaimRing)

	var discard uint32
	for b.FiredRing.Read(&discard) {
	}

	b.pendingPatches = b.pendingPatches[:0]
	b.pendingStructural = b.pendingStructural[:0]
	b.patchArmed = false
	b.structArmed = false
	b.firedHead = 0
	b.firedCount = 0
	for i := range b.firedPtrs {
		b.firedPtrs[i] = 0
	}
	b.currentTick = 0
	b.nextSourceID = 1
}

// Stats reports current occupancy for diagnostics and tests
// (SPEC_FULL.md's supplemented Bridge.Stats feature).
func (b *Bridge) Stats() Stats {
	synStats := b.Region.Synapse.Stats()
	return Stats{
		LiveNodes:         b.Region.Header.LiveNodeCount.Load(),
		FreeCount:         b.Region.Header.FreeCount.Load(),
		IdentityUsed:      b.Region.Identity.Used(),
		SynapseUsed:       synStats.UsedSlots,
		SynapseTombstones: synStats.Tombstones,
		PendingPatches:    len(b.pendingPatches),
		PendingStructural: len(b.pendingStructural),
		TelemetryOps:      b.Region.Header.TelemetryOps(),
		ErrorCode:         kerrors.Code(b.Region.Header.ErrorCode.Load()),
	}
}
