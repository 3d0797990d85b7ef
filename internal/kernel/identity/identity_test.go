package identity

import (
	"testing"

	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_InsertLookupRoundTrip(t *testing.T) {
	tbl := New(16)
	require.Equal(t, kerrors.OK, tbl.Insert(42, 7))

	ptr, ok := tbl.Lookup(42)
	require.True(t, ok)
	assert.Equal(t, uint32(7), ptr)
}

func TestTable_LookupMissingReturnsFalse(t *testing.T) {
	tbl := New(16)
	_, ok := tbl.Lookup(99)
	assert.False(t, ok)
}

func TestTable_InsertRejectsNonPositiveSourceID(t *testing.T) {
	tbl := New(16)
	assert.Equal(t, kerrors.InvalidPtr, tbl.Insert(0, 1))
	assert.Equal(t, kerrors.InvalidPtr, tbl.Insert(-1, 1))
}

func TestTable_InsertOverwritesExistingSourceID(t *testing.T) {
	tbl := New(16)
	require.Equal(t, kerrors.OK, tbl.Insert(42, 7))
	require.Equal(t, kerrors.OK, tbl.Insert(42, 9))

	ptr, ok := tbl.Lookup(42)
	require.True(t, ok)
	assert.Equal(t, uint32(9), ptr)
	assert.Equal(t, uint32(1), tbl.Used())
}

func TestTable_RemoveTombstonesSlot(t *testing.T) {
	tbl := New(16)
	tbl.Insert(42, 7)
	tbl.Remove(42)

	_, ok := tbl.Lookup(42)
	assert.False(t, ok)
}

func TestTable_InsertAfterRemoveReclaimsTombstone(t *testing.T) {
	tbl := New(16)
	tbl.Insert(42, 7)
	tbl.Remove(42)
	// 58 hashes to the same slot as 42 in a 16-slot table.
	require.Equal(t, kerrors.OK, tbl.Insert(58, 3))

	ptr, ok := tbl.Lookup(58)
	require.True(t, ok)
	assert.Equal(t, uint32(3), ptr)
}

func TestTable_SymbolStoreLookupRoundTrip(t *testing.T) {
	tbl := New(16)
	tbl.Insert(42, 7)
	tbl.SymbolStore(42, 0xCAFE, 10, 20)

	fileHash, line, column, ok := tbl.SymbolLookup(42)
	require.True(t, ok)
	assert.Equal(t, uint32(0xCAFE), fileHash)
	assert.Equal(t, uint16(10), line)
	assert.Equal(t, uint16(20), column)
}

func TestTable_InsertWarnsAtLoadFactor(t *testing.T) {
	tbl := New(4)
	require.Equal(t, kerrors.OK, tbl.Insert(1, 1))
	require.Equal(t, kerrors.OK, tbl.Insert(2, 2))
	require.Equal(t, kerrors.OK, tbl.Insert(3, 3))
	assert.Equal(t, kerrors.LoadFactorWarning, tbl.Insert(4, 4))
}

func TestTable_ClearResetsUsedAndSlots(t *testing.T) {
	tbl := New(16)
	tbl.Insert(42, 7)
	tbl.Clear()

	assert.Equal(t, uint32(0), tbl.Used())
	_, ok := tbl.Lookup(42)
	assert.False(t, ok)
}

func TestTable_LoadFactor(t *testing.T) {
	tbl := New(4)
	tbl.Insert(1, 1)
	assert.InDelta(t, 0.25, tbl.LoadFactor(), 0.001)
}
