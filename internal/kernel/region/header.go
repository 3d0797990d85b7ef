package region

import "sync/atomic"

// Magic and FormatVersion match spec.md §6's binary-layout contract: the
// ASCII bytes of "SYMB" and format version 1. A real byte-addressable
// serialization (e.g. for a snapshot file) would validate these before
// trusting region_size; see Header.Validate.
const (
	Magic         uint32 = 0x53594D42 // "SYMB"
	FormatVersion uint32 = 1
)

// CommitFlag tracks whether the consumer needs to re-find its chain cursor
// after a structural mutation (spec.md §4.9 step 2).
type CommitFlag uint32

const (
	CommitNone CommitFlag = iota
	CommitPending
	CommitAck
)

// Header is the fixed control-block described in spec.md §3.1. Every
// concurrently-touched field is atomic; NodeCapacity/Split/IdentityCapacity
// are immutable after NewRegion and never need atomics.
type Header struct {
	// Immutable (fixed at construction).
	NodeCapacity     uint32
	Split            uint32 // floor(NodeCapacity/2): Zone A = [0,Split), Zone B = [Split,NodeCapacity)
	IdentityCapacity uint32
	SynapseCapacity  uint32

	// Transport/tempo.
	PPQ      atomic.Uint32
	TempoBPM atomic.Uint32

	// Chain state.
	HeadPtr      atomic.Uint32 // head of the live doubly-linked chain, 0 = empty
	FreeListHead atomic.Uint64 // Zone A tagged free-list head: (version<<32)|ptr
	CommitFlag   atomic.Uint32 // CommitFlag

	// Transport position / safe zone.
	PlayheadTick  atomic.Uint64
	SafeZoneTicks atomic.Uint32

	// Error latch (spec.md §7).
	ErrorCode atomic.Int32

	// Counters.
	LiveNodeCount atomic.Int32
	FreeCount     atomic.Int32
	IdentityUsed  atomic.Uint32

	// Telemetry: a carry-correct 64-bit add across two 32-bit atomic words
	// (spec.md §4.6), since there is no portable atomic 64-bit add that the
	// spec's source platform exposes without a tagged CAS loop — grounded
	// the same way the Zone A free-list head's (version,ptr) split is.
	telemetryHi atomic.Uint32
	telemetryLo atomic.Uint32

	// Structural mutation coordination.
	ChainMutex       ChainMutex
	YieldSlot        atomic.Uint32 // bumped by hardReset to invalidate any stale spin state
	UpdateGeneration atomic.Uint32

	instanceID string // set once at construction, surfaced via Region.InstanceID
}

// AddTelemetryOp performs a carry-correct increment of the 64-bit telemetry
// ops counter, represented as two 32-bit atomic words (telemetryHi,
// telemetryLo). Called once per applied structural command (spec.md §4.6).
func (h *Header) AddTelemetryOp() {
	for {
		lo := h.telemetryLo.Load()
		newLo := lo + 1
		if h.telemetryLo.CompareAndSwap(lo, newLo) {
			if newLo == 0 { // wrapped: carry into hi
				h.telemetryHi.Add(1)
			}
			return
		}
	}
}

// TelemetryOps reads the combined 64-bit telemetry ops counter. Racy with
// concurrent AddTelemetryOp by construction (hi/lo are not read atomically
// as a pair); acceptable for a diagnostics-only counter.
func (h *Header) TelemetryOps() uint64 {
	return uint64(h.telemetryHi.Load())<<32 | uint64(h.telemetryLo.Load())
}

// ComputedSize returns the byte-equivalent size this region would occupy if
// it were a literal byte-addressable slab (spec.md §6: "region_size >=
// computed_size(nodeCapacity)"). Retained for the binary-layout contract
// even though this implementation stores the region as typed Go slices
// rather than raw bytes (SPEC_FULL.md §1.1).
func ComputedSize(nodeCapacity uint32) uint64 {
	const (
		headerWords   = 36
		wordBytes     = 4
		nodeStride    = 32 // 8 words * 4 bytes
		identityEntry = 8  // (source-id, node-offset)
		symbolEntry   = 8  // (file-hash, line<<16|column)
		grooveBytes   = 1024
		ringCmdBytes  = 4096 * 4 * wordBytes
		synapseEntry  = 5 * wordBytes
		synapseCap    = 65536
		reverseIdxBkt = 256 * wordBytes
	)
	identityCap := uint64(nodeCapacity) * 2
	return uint64(headerWords*wordBytes) +
		uint64(nodeCapacity)*nodeStride +
		identityCap*identityEntry +
		identityCap*symbolEntry +
		grooveBytes +
		ringCmdBytes +
		synapseCap*synapseEntry +
		reverseIdxBkt
}

// Validate checks magic, format version, and that regionSize is large
// enough for nodeCapacity, as spec.md §6 mandates of any reader.
func (h *Header) Validate(magic, formatVersion uint32, regionSize uint64) bool {
	return magic == Magic && formatVersion == FormatVersion && regionSize >= ComputedSize(h.NodeCapacity)
}
