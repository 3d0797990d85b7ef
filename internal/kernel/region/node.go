package region

import "sync/atomic"

// NodeOpcode is the musical-event opcode packed into a node's packed_a word.
type NodeOpcode uint8

const (
	OpNote NodeOpcode = iota
	OpRest
	OpCC
	OpBend
	OpBarrier
)

// Flag bits packed into packed_a's low byte.
const (
	FlagActive uint32 = 1 << 0
	FlagMuted  uint32 = 1 << 1
	FlagDirty  uint32 = 1 << 2
	// bits 4-7 hold a 4-bit expression id.
	expressionShift = 4
	expressionMask  = 0xF
)

// PackA encodes opcode/pitch/velocity/flags into packed_a's layout:
// (opcode<<24) | (pitch<<16) | (velocity<<8) | flags.
func PackA(op NodeOpcode, pitch, velocity uint8, flags uint32, expressionID uint8) uint32 {
	flagByte := (flags & 0x0F) | (uint32(expressionID&expressionMask) << expressionShift)
	return uint32(op)<<24 | uint32(pitch)<<16 | uint32(velocity)<<8 | flagByte
}

// UnpackA reverses PackA.
func UnpackA(packedA uint32) (op NodeOpcode, pitch, velocity uint8, flags uint32, expressionID uint8) {
	op = NodeOpcode(packedA >> 24)
	pitch = uint8(packedA >> 16)
	velocity = uint8(packedA >> 8)
	flagByte := packedA & 0xFF
	flags = flagByte & 0x0F
	expressionID = uint8((flagByte >> expressionShift) & expressionMask)
	return
}

// PackSeqFlags encodes (sequence<<8)|flagsExt, sequence being the 24-bit
// per-node counter that writers bump once after each mutation.
func PackSeqFlags(sequence uint32, flagsExt uint8) uint32 {
	return (sequence&0x00FFFFFF)<<8 | uint32(flagsExt)
}

// UnpackSeqFlags reverses PackSeqFlags.
func UnpackSeqFlags(seqFlags uint32) (sequence uint32, flagsExt uint8) {
	return seqFlags >> 8, uint8(seqFlags & 0xFF)
}

// Node is exactly 8 concurrently-addressable words, matching spec.md §3's
// node entity. Pointers (Next, Prev) are 1-based slot indices into the
// region's node heap; 0 is the null sentinel (see SPEC_FULL.md §1.1).
type Node struct {
	PackedA    atomic.Uint32
	BaseTick   atomic.Uint32
	Duration   atomic.Uint32
	Next       atomic.Uint32
	Prev       atomic.Uint32
	SourceID   atomic.Int32
	SeqFlags   atomic.Uint32
	LastPassID atomic.Uint32
}

// Zero clears every word of a node back to its just-allocated state. Both
// allocators call this: Zone B on bump-alloc, Zone A implicitly because a
// freed node's fields are cleared by DELETE before it re-enters the free
// list.
func (n *Node) Zero() {
	n.PackedA.Store(0)
	n.BaseTick.Store(0)
	n.Duration.Store(0)
	n.Next.Store(0)
	n.Prev.Store(0)
	n.SourceID.Store(0)
	n.SeqFlags.Store(0)
	n.LastPassID.Store(0)
}

// BumpSequence increments the 24-bit sequence counter, preserving flagsExt.
// Writers (patch.Apply and the bridge's insert path) call this once, after
// mutating the node's other fields; the counter wraps to 0 after 0xFFFFFF.
func (n *Node) BumpSequence() {
	for {
		old := n.SeqFlags.Load()
		seq, flagsExt := UnpackSeqFlags(old)
		next := PackSeqFlags(seq+1, flagsExt)
		if n.SeqFlags.CompareAndSwap(old, next) {
			return
		}
	}
}

// Sequence reads the current 24-bit sequence counter.
func (n *Node) Sequence() uint32 {
	seq, _ := UnpackSeqFlags(n.SeqFlags.Load())
	return seq
}

// VersionedRead performs the read-seq/read-fields/re-read-seq loop described
// in spec.md §5, retrying up to maxRetries times. fn should copy out
// whatever fields the caller needs; VersionedRead does not itself touch
// node fields beyond the sequence word, so concurrent writers racing with a
// reader are detected rather than prevented.
func (n *Node) VersionedRead(maxRetries int, fn func()) bool {
	for i := 0; i < maxRetries; i++ {
		before := n.Sequence()
		fn()
		after := n.Sequence()
		if before == after {
			return true
		}
	}
	return false
}
