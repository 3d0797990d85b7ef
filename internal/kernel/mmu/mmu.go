// Package mmu implements the Kernel MMU (spec.md §4.6, C7): the only code
// that performs structural mutations on the chain, under the chain mutex,
// with context-aware lock acquisition and safe-zone enforcement.
package mmu

import (
	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/freelist"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/region"
)

// Context distinguishes the two lock-acquisition disciplines spec.md §4.6
// describes. The bridge sets this per caller; the audio poll() path always
// uses Audio, the editor's synchronous flush always uses Editor.
type Context int

const (
	Audio Context = iota
	Editor
)

const maxCommandsPerCall = 256

// MMU owns all structural mutation of a region's chain, identity table,
// and synapse graph.
type MMU struct {
	Region   *region.Region
	FreeList *freelist.FreeList
}

// New builds an MMU bound to r.
func New(r *region.Region) *MMU {
	return &MMU{
		Region:   r,
		FreeList: freelist.New(&r.Header.FreeListHead, &r.Header.FreeCount, &r.Header.ErrorCode, r),
	}
}

// ProcessCommands drains up to maxCommandsPerCall commands from the region's
// command ring, applying each under the chain mutex. Returns the number of
// commands applied. On audio-context contention it returns 0 immediately;
// on editor-context timeout it sets KERNEL_PANIC and returns 0.
func (m *MMU) ProcessCommands(ctx Context) int {
	switch ctx {
	case Audio:
		if !m.Region.Header.ChainMutex.TryAcquireAudio() {
			return 0
		}
	default:
		if !m.Region.Header.ChainMutex.AcquireEditor() {
			m.Region.Header.ErrorCode.Store(int32(kerrors.KernelPanic))
			return 0
		}
	}
	defer m.Region.Header.ChainMutex.Unlock()

	processed := 0
	var cmd region.Command
	for processed < maxCommandsPerCall {
		if !m.Region.CommandRing.Read(&cmd) {
			break
		}
		m.apply(cmd)
		m.Region.Header.AddTelemetryOp()
		processed++
	}
	return processed
}

func (m *MMU) apply(cmd region.Command) {
	switch cmd.Op {
	case region.CmdInsert:
		m.processInsert(cmd.P1, cmd.P2)
	case region.CmdDelete:
		m.processDelete(cmd.P1)
	case region.CmdClear:
		m.processClear()
	case region.CmdConnect:
		m.processConnect(cmd.P1, cmd.P2, cmd.P3)
	case region.CmdDisconnect:
		m.processDisconnect(cmd.P1, cmd.P2)
	case region.CmdPatch:
		// reserved (spec.md §4.5); patches go through internal/kernel/patch
		// directly, never through the ring.
	default:
		m.Region.Header.ErrorCode.Store(int32(kerrors.UnknownOpcode))
	}
}

// inSafeZone reports whether baseTick falls in [playhead, playhead+safeZone)
// — the window spec.md §4.6/§8 forbids structural edits from touching.
func inSafeZone(baseTick, playhead uint64, safeZone uint32) bool {
	return baseTick >= playhead && baseTick-playhead < uint64(safeZone)
}

func (m *MMU) processInsert(ptr, prevPtr uint32) {
	if !m.Region.ValidPtr(ptr) {
		m.Region.Header.ErrorCode.Store(int32(kerrors.InvalidPtr))
		return
	}
	node := m.Region.Node(ptr)
	baseTick := uint64(node.BaseTick.Load())
	playhead := m.Region.Header.PlayheadTick.Load()
	safeZone := m.Region.Header.SafeZoneTicks.Load()
	if inSafeZone(baseTick, playhead, safeZone) {
		m.Region.Header.ErrorCode.Store(int32(kerrors.SafeZone))
		return
	}

	if prevPtr == kerrors.NullPtr {
		next := m.Region.Header.HeadPtr.Load()
		node.Next.Store(next)
		node.Prev.Store(kerrors.NullPtr)
		if next != kerrors.NullPtr {
			m.Region.Node(next).Prev.Store(ptr)
		}
		m.Region.Header.HeadPtr.Store(ptr)
	} else {
		prevNode := m.Region.Node(prevPtr)
		if prevNode == nil {
			m.Region.Header.ErrorCode.Store(int32(kerrors.InvalidPtr))
			return
		}
		next := prevNode.Next.Load()
		node.Next.Store(next)
		node.Prev.Store(prevPtr)
		if next != kerrors.NullPtr {
			m.Region.Node(next).Prev.Store(ptr)
		}
		prevNode.Next.Store(ptr)
	}

	m.Region.Header.LiveNodeCount.Add(1)
	if sourceID := node.SourceID.Load(); sourceID > 0 {
		code := m.Region.Identity.Insert(sourceID, ptr)
		if code != kerrors.OK {
			m.Region.Header.ErrorCode.Store(int32(code))
		}
		// LoadFactorWarning still means the identity entry landed; store the
		// staged symbol immediately after, per spec.md §4.3's ordering (never
		// an identity entry observable without its matching location).
		if code == kerrors.OK || code == kerrors.LoadFactorWarning {
			if loc := m.Region.PendingLocations[ptr-1]; loc != (region.Location{}) {
				m.Region.Identity.SymbolStore(sourceID, loc.FileHash, loc.Line, loc.Column)
				m.Region.PendingLocations[ptr-1] = region.Location{}
			}
		}
	}
	m.Region.Header.CommitFlag.Store(uint32(region.CommitPending))
}

func (m *MMU) processDelete(ptr uint32) {
	if !m.Region.ValidPtr(ptr) {
		m.Region.Header.ErrorCode.Store(int32(kerrors.InvalidPtr))
		return
	}
	node := m.Region.Node(ptr)
	baseTick := uint64(node.BaseTick.Load())
	playhead := m.Region.Header.PlayheadTick.Load()
	safeZone := m.Region.Header.SafeZoneTicks.Load()
	if inSafeZone(baseTick, playhead, safeZone) {
		m.Region.Header.ErrorCode.Store(int32(kerrors.SafeZone))
		return
	}

	prev := node.Prev.Load()
	next := node.Next.Load()
	sourceID := node.SourceID.Load()
	inZoneA := m.Region.InZoneA(ptr)

	if prev != kerrors.NullPtr {
		m.Region.Node(prev).Next.Store(next)
	} else {
		m.Region.Header.HeadPtr.Store(next)
	}
	if next != kerrors.NullPtr {
		m.Region.Node(next).Prev.Store(prev)
	}

	if sourceID > 0 {
		m.Region.Identity.Remove(sourceID)
	}
	m.Region.Synapse.TombstoneOutgoing(ptr)
	m.Region.Synapse.TombstoneIncoming(ptr)

	m.Region.Header.LiveNodeCount.Add(-1)
	node.Zero()

	if inZoneA {
		m.FreeList.Free(ptr)
	} else {
		m.Region.ReclaimRing.Write(ptr)
	}
	m.Region.Header.CommitFlag.Store(uint32(region.CommitPending))
}

func (m *MMU) processClear() {
	ptr := m.Region.Header.HeadPtr.Load()
	for ptr != kerrors.NullPtr {
		node := m.Region.Node(ptr)
		next := node.Next.Load()
		inZoneA := m.Region.InZoneA(ptr)
		node.Zero()
		if inZoneA {
			m.FreeList.Free(ptr)
		} else {
			m.Region.ReclaimRing.Write(ptr)
		}
		ptr = next
	}
	m.Region.Identity.Clear()
	m.Region.Synapse.Clear()
	m.Region.Header.HeadPtr.Store(kerrors.NullPtr)
	m.Region.Header.LiveNodeCount.Store(0)
	m.Region.Header.CommitFlag.Store(uint32(region.CommitPending))
}

func (m *MMU) processConnect(src, tgt, weightJitter uint32) {
	weight, jitter := weightJitter>>16, weightJitter&0xFFFF
	if _, code := m.Region.Synapse.Connect(src, tgt, weight, jitter); code != kerrors.SynapseOK {
		m.Region.Header.ErrorCode.Store(int32(kerrors.InvalidPtr))
	}
}

func (m *MMU) processDisconnect(src, tgt uint32) {
	m.Region.Synapse.DisconnectAll(src, tgt)
}
