package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainMutex_TryAcquireAudio_SucceedsWhenFree(t *testing.T) {
	var m ChainMutex
	assert.True(t, m.TryAcquireAudio())
}

func TestChainMutex_TryAcquireAudio_FailsImmediatelyOnContention(t *testing.T) {
	var m ChainMutex
	require.True(t, m.TryAcquireAudio())
	assert.False(t, m.TryAcquireAudio())
}

func TestChainMutex_AcquireEditor_SucceedsWhenFree(t *testing.T) {
	var m ChainMutex
	assert.True(t, m.AcquireEditor())
}

func TestChainMutex_UnlockAllowsReacquisition(t *testing.T) {
	var m ChainMutex
	require.True(t, m.TryAcquireAudio())
	m.Unlock()
	assert.True(t, m.TryAcquireAudio())
}
