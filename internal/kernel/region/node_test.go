package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackUnpackA_RoundTrip(t *testing.T) {
	packed := PackA(OpNote, 60, 100, FlagActive|FlagMuted, 5)
	op, pitch, velocity, flags, expr := UnpackA(packed)
	assert.Equal(t, OpNote, op)
	assert.Equal(t, uint8(60), pitch)
	assert.Equal(t, uint8(100), velocity)
	assert.Equal(t, FlagActive|FlagMuted, flags)
	assert.Equal(t, uint8(5), expr)
}

func TestPackUnpackSeqFlags_RoundTrip(t *testing.T) {
	packed := PackSeqFlags(0xABCDEF, 0x42)
	seq, flagsExt := UnpackSeqFlags(packed)
	assert.Equal(t, uint32(0xABCDEF), seq)
	assert.Equal(t, uint8(0x42), flagsExt)
}

func TestNode_BumpSequenceIncrementsAndWraps(t *testing.T) {
	var n Node
	assert.Equal(t, uint32(0), n.Sequence())
	n.BumpSequence()
	assert.Equal(t, uint32(1), n.Sequence())
	n.BumpSequence()
	assert.Equal(t, uint32(2), n.Sequence())

	n.SeqFlags.Store(PackSeqFlags(0xFFFFFF, 0x5A))
	n.BumpSequence()
	assert.Equal(t, uint32(0), n.Sequence())
}

func TestNode_ZeroClearsAllFields(t *testing.T) {
	var n Node
	n.PackedA.Store(1)
	n.BaseTick.Store(2)
	n.Duration.Store(3)
	n.Next.Store(4)
	n.Prev.Store(5)
	n.SourceID.Store(6)
	n.SeqFlags.Store(7)
	n.LastPassID.Store(8)

	n.Zero()

	assert.Zero(t, n.PackedA.Load())
	assert.Zero(t, n.BaseTick.Load())
	assert.Zero(t, n.Duration.Load())
	assert.Zero(t, n.Next.Load())
	assert.Zero(t, n.Prev.Load())
	assert.Zero(t, n.SourceID.Load())
	assert.Zero(t, n.SeqFlags.Load())
	assert.Zero(t, n.LastPassID.Load())
}

func TestNode_VersionedRead_SucceedsWhenUnchanged(t *testing.T) {
	var n Node
	ok := n.VersionedRead(3, func() {})
	assert.True(t, ok)
}

func TestNode_VersionedRead_FailsWhenSequenceChangesEveryAttempt(t *testing.T) {
	var n Node
	ok := n.VersionedRead(3, func() {
		n.BumpSequence()
	})
	assert.False(t, ok)
}
