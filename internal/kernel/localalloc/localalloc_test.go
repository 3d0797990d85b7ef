package localalloc

import (
	"testing"

	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeZeroer struct {
	zeroed []uint32
}

func (z *fakeZeroer) ZeroNode(ptr uint32) {
	z.zeroed = append(z.zeroed, ptr)
}

func TestAllocator_BumpsFrontierInOrder(t *testing.T) {
	zeroer := &fakeZeroer{}
	reclaim := ring.New[uint32](4)
	a := New(4, 8, zeroer, reclaim) // Zone B is (4, 8]: 5,6,7,8

	for i := uint32(5); i <= 8; i++ {
		ptr, code := a.Alloc()
		require.Equal(t, kerrors.AllocOK, code)
		assert.Equal(t, i, ptr)
	}
}

func TestAllocator_ExhaustedPastCapacity(t *testing.T) {
	zeroer := &fakeZeroer{}
	reclaim := ring.New[uint32](4)
	a := New(4, 4, zeroer, reclaim) // empty Zone B

	_, code := a.Alloc()
	assert.Equal(t, kerrors.AllocExhausted, code)
}

func TestAllocator_DrainReclaimFeedsLocalFreeListLIFO(t *testing.T) {
	zeroer := &fakeZeroer{}
	reclaim := ring.New[uint32](8)
	a := New(4, 8, zeroer, reclaim)

	reclaim.Write(uint32(6))
	reclaim.Write(uint32(7))
	drained := a.DrainReclaim()
	assert.Equal(t, 2, drained)

	ptr, code := a.Alloc()
	require.Equal(t, kerrors.AllocOK, code)
	assert.Equal(t, uint32(7), ptr) // LIFO: most recently reclaimed first
}

func TestAllocator_AllocZeroesEverySlot(t *testing.T) {
	zeroer := &fakeZeroer{}
	reclaim := ring.New[uint32](4)
	a := New(4, 6, zeroer, reclaim)

	ptr, _ := a.Alloc()
	assert.Contains(t, zeroer.zeroed, ptr)
}

func TestAllocator_ResetRewindsFrontierAndDropsLocal(t *testing.T) {
	zeroer := &fakeZeroer{}
	reclaim := ring.New[uint32](4)
	a := New(4, 8, zeroer, reclaim)

	a.Alloc()
	a.Alloc()
	reclaim.Write(uint32(100))
	a.DrainReclaim()

	a.Reset()
	assert.Equal(t, uint32(0), a.Used())

	ptr, code := a.Alloc()
	require.Equal(t, kerrors.AllocOK, code)
	assert.Equal(t, uint32(5), ptr)
}

func TestAllocator_UsedTracksFrontierBumps(t *testing.T) {
	zeroer := &fakeZeroer{}
	reclaim := ring.New[uint32](4)
	a := New(4, 8, zeroer, reclaim)

	assert.Equal(t, uint32(0), a.Used())
	a.Alloc()
	assert.Equal(t, uint32(1), a.Used())
	a.Alloc()
	assert.Equal(t, uint32(2), a.Used())
}
