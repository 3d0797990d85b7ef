package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// getTestStore opens a real Store against TEST_DATABASE_URL, skipping the
// test when unset — there is no in-memory postgres in this stack to fall
// back to.
func getTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := New(dsn)
	require.NoError(t, err)
	return s
}

func TestStore_SaveThenLoadLatest_RoundTrips(t *testing.T) {
	s := getTestStore(t)
	instanceID := "test-instance-save-load"

	sourceIDs := []int32{1, 2, 3}
	targetIDs := []int32{4, 5, 6}
	weights := []uint32{100, 200, 300}
	jitters := []uint32{0, 10, 20}

	saved, err := s.Save(instanceID, sourceIDs, targetIDs, weights, jitters)
	require.NoError(t, err)
	assert.Equal(t, 3, saved.SynapseCount)

	loaded, err := s.LoadLatest(instanceID)
	require.NoError(t, err)
	assert.Equal(t, sourceIDs, loaded.SourceIDs)
	assert.Equal(t, targetIDs, loaded.TargetIDs)
	assert.Equal(t, weights, loaded.Weights)
	assert.Equal(t, jitters, loaded.Jitters)
}

func TestStore_LoadLatest_ReturnsMostRecentRow(t *testing.T) {
	s := getTestStore(t)
	instanceID := "test-instance-most-recent"

	_, err := s.Save(instanceID, []int32{1}, []int32{2}, []uint32{100}, []uint32{0})
	require.NoError(t, err)
	_, err = s.Save(instanceID, []int32{9}, []int32{8}, []uint32{999}, []uint32{5})
	require.NoError(t, err)

	loaded, err := s.LoadLatest(instanceID)
	require.NoError(t, err)
	assert.Equal(t, []int32{9}, loaded.SourceIDs)
}

func TestStore_LoadLatest_UnknownInstanceReturnsRecordNotFound(t *testing.T) {
	s := getTestStore(t)
	_, err := s.LoadLatest("no-such-instance-id")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
