// Package region implements the kernel's shared-memory layout (spec.md §3,
// C1): a fixed-size, logically-partitioned region accessed concurrently by
// the editor and audio roles. See SPEC_FULL.md §1.1 for the pointer-model
// adaptation (slab indices rather than raw byte offsets).
package region

import (
	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/freelist"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/identity"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/ring"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/synapse"
)

// CmdOpcode is a command-ring operation (spec.md §4.5).
type CmdOpcode uint32

const (
	CmdInsert CmdOpcode = iota
	CmdDelete
	CmdClear
	CmdPatch // reserved, per spec.md §4.5
	CmdConnect
	CmdDisconnect
)

// Command is one fixed 4-word command-ring entry.
type Command struct {
	Op CmdOpcode
	P1 uint32
	P2 uint32
	P3 uint32
}

// Location is a source file/line/column triple, staged by the bridge for a
// floating node and consumed by the MMU's INSERT handling to populate the
// symbol table at the same slot as the identity entry (spec.md §4.3). The
// zero value means "no location".
type Location struct {
	FileHash uint32
	Line     uint16
	Column   uint16
}

const (
	defaultCommandRingCapacity = 4096
	defaultSynapseCapacity     = 65536
)

// Config parameterizes region construction. Every capacity is fixed for
// the region's lifetime (no dynamic growth, per spec.md's Non-goals).
type Config struct {
	NodeCapacity        uint32
	CommandRingCapacity uint32 // 0 => defaultCommandRingCapacity
	SynapseCapacity     uint32 // 0 => defaultSynapseCapacity
	PPQ                 uint32
	TempoBPM            uint32
	SafeZoneTicks       uint32
	InstanceID          string
}

// Region is the kernel's entire shared-memory state.
type Region struct {
	Header    Header
	Registers Registers

	Nodes []Node // length NodeCapacity, 0-based storage; ptr i refers to Nodes[i-1]

	// PendingLocations holds a staged Location per node slot, written by
	// InsertNoteAtLocation before the INSERT command is queued and consumed
	// (then cleared) by the MMU right after the identity insert succeeds.
	PendingLocations []Location

	Identity *identity.Table
	Synapse  *synapse.Table

	CommandRing *ring.Ring[Command]
	ReclaimRing *ring.Ring[uint32] // kernel -> editor, Zone B reclaim (spec.md §4.2)
}

func nextPow2(v uint32) uint32 {
	p := uint32(1)
	for p < v {
		p <<= 1
	}
	return p
}

// NewRegion constructs a fresh region per cfg. All capacities are fixed for
// the lifetime of the returned Region.
func NewRegion(cfg Config) *Region {
	if cfg.CommandRingCapacity == 0 {
		cfg.CommandRingCapacity = defaultCommandRingCapacity
	}
	if cfg.SynapseCapacity == 0 {
		cfg.SynapseCapacity = defaultSynapseCapacity
	}
	if cfg.PPQ == 0 {
		cfg.PPQ = 480
	}

	identityCapacity := nextPow2(cfg.NodeCapacity * 2)

	r := &Region{
		Nodes:            make([]Node, cfg.NodeCapacity),
		PendingLocations: make([]Location, cfg.NodeCapacity),
		Identity:         identity.New(identityCapacity),
		Synapse:          synapse.New(cfg.SynapseCapacity),
		CommandRing:      ring.New[Command](cfg.CommandRingCapacity + 1),
		ReclaimRing:      ring.New[uint32](cfg.CommandRingCapacity + 1),
	}
	r.Header.NodeCapacity = cfg.NodeCapacity
	r.Header.Split = cfg.NodeCapacity / 2
	r.Header.IdentityCapacity = identityCapacity
	r.Header.SynapseCapacity = cfg.SynapseCapacity
	r.Header.PPQ.Store(cfg.PPQ)
	r.Header.TempoBPM.Store(cfg.TempoBPM)
	r.Header.SafeZoneTicks.Store(cfg.SafeZoneTicks)
	r.Header.FreeCount.Store(int32(r.Header.Split))
	r.Header.instanceID = cfg.InstanceID

	r.initFreeChain()
	return r
}

// InstanceID returns the region's construction-time instance identifier.
func (r *Region) InstanceID() string { return r.Header.instanceID }

// node returns a pointer to the Node for a 1-based slot index. Callers must
// have already validated ptr via ValidPtr.
func (r *Region) node(ptr uint32) *Node {
	return &r.Nodes[ptr-1]
}

// Node exposes the node for ptr, or nil if ptr is out of range.
func (r *Region) Node(ptr uint32) *Node {
	if !r.ValidPtr(ptr) {
		return nil
	}
	return r.node(ptr)
}

// ValidPtr reports whether ptr addresses a real node slot (spec.md §4.6's
// "validates pointers (aligned and within heap)" — alignment is moot for a
// slab of typed structs, so this only checks bounds).
func (r *Region) ValidPtr(ptr uint32) bool {
	return ptr != kerrors.NullPtr && ptr <= uint32(len(r.Nodes))
}

// InZoneA reports whether ptr falls in the audio-owned half of the heap.
func (r *Region) InZoneA(ptr uint32) bool {
	return ptr != kerrors.NullPtr && ptr <= r.Header.Split
}

// ZeroNode implements localalloc.Zeroer.
func (r *Region) ZeroNode(ptr uint32) {
	r.node(ptr).Zero()
}

// LoadLink/StoreLink implement freelist.Links by reusing each free Zone A
// node's Next word as the free-stack link (see freelist.Links doc).
func (r *Region) LoadLink(ptr uint32) uint32  { return r.node(ptr).Next.Load() }
func (r *Region) StoreLink(ptr uint32, next uint32) { r.node(ptr).Next.Store(next) }

func (r *Region) initFreeChain() {
	freelist.InitChain(&r.Header.FreeListHead, r, r.Header.Split)
}

// HardReset reinitializes the region in place: header counters, free list,
// tables, rings, and the chain mutex's yield slot (spec.md §6 "hardReset").
func (r *Region) HardReset() {
	for i := range r.Nodes {
		r.Nodes[i].Zero()
	}
	for i := range r.PendingLocations {
		r.PendingLocations[i] = Location{}
	}
	r.Header.HeadPtr.Store(0)
	r.Header.CommitFlag.Store(uint32(CommitNone))
	r.Header.PlayheadTick.Store(0)
	r.Header.ErrorCode.Store(int32(kerrors.OK))
	r.Header.LiveNodeCount.Store(0)
	r.Header.FreeCount.Store(int32(r.Header.Split))
	r.Header.telemetryHi.Store(0)
	r.Header.telemetryLo.Store(0)
	r.Header.YieldSlot.Add(1)
	r.Header.ChainMutex.Unlock()

	r.Identity.Clear()
	r.Synapse.Clear()
	r.initFreeChain()

	r.CommandRing = ring.New[Command](r.CommandRing.Capacity() + 1)
	r.ReclaimRing = ring.New[uint32](r.ReclaimRing.Capacity() + 1)
}
