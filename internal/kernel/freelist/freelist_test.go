package freelist

import (
	"sync/atomic"
	"testing"

	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arrayLinks is the simplest Links implementation: a flat slice indexed by
// ptr, mirroring how region.Region backs a FreeList with its node heap.
type arrayLinks struct {
	next []uint32
}

func newArrayLinks(n uint32) *arrayLinks {
	return &arrayLinks{next: make([]uint32, n+1)}
}

func (a *arrayLinks) LoadLink(ptr uint32) uint32      { return a.next[ptr] }
func (a *arrayLinks) StoreLink(ptr uint32, next uint32) { a.next[ptr] = next }

func newTestFreeList(capacity uint32) (*FreeList, *atomic.Uint64, *atomic.Int32) {
	var head atomic.Uint64
	var freeCount atomic.Int32
	var errorCode atomic.Int32
	links := newArrayLinks(capacity)
	InitChain(&head, links, capacity)
	freeCount.Store(int32(capacity))
	return New(&head, &freeCount, &errorCode, links), &head, &freeCount
}

func TestFreeList_AllocDrainsChainInOrder(t *testing.T) {
	fl, _, freeCount := newTestFreeList(4)

	for i := uint32(1); i <= 4; i++ {
		ptr, ok := fl.Alloc()
		require.True(t, ok)
		assert.Equal(t, i, ptr)
	}
	assert.Equal(t, int32(0), freeCount.Load())
}

func TestFreeList_AllocOnEmptySetsHeapExhausted(t *testing.T) {
	fl, _, _ := newTestFreeList(1)
	_, ok := fl.Alloc()
	require.True(t, ok)

	ptr, ok := fl.Alloc()
	assert.False(t, ok)
	assert.Equal(t, kerrors.NullPtr, ptr)
	assert.Equal(t, int32(kerrors.HeapExhausted), fl.errorCode.Load())
}

func TestFreeList_FreeThenAllocReturnsSameSlot(t *testing.T) {
	fl, _, freeCount := newTestFreeList(4)

	a, ok := fl.Alloc()
	require.True(t, ok)
	fl.Free(a)
	assert.Equal(t, int32(4), freeCount.Load())

	b, ok := fl.Alloc()
	require.True(t, ok)
	assert.Equal(t, a, b)
}

func TestFreeList_FreeOfNullPtrIsNoop(t *testing.T) {
	fl, _, freeCount := newTestFreeList(2)
	before := freeCount.Load()
	fl.Free(kerrors.NullPtr)
	assert.Equal(t, before, freeCount.Load())
}

func TestFreeList_InitChainZeroCapacity(t *testing.T) {
	var head atomic.Uint64
	links := newArrayLinks(0)
	InitChain(&head, links, 0)
	assert.Equal(t, uint64(0), head.Load())
}
