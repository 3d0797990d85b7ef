package phaselock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModulatedTick_ZeroCyclePassesThrough(t *testing.T) {
	assert.Equal(t, uint64(12345), ModulatedTick(12345, 0))
}

func TestModulatedTick_WrapsAtCycle(t *testing.T) {
	assert.Equal(t, uint64(2), ModulatedTick(962, 480))
	assert.Equal(t, uint64(0), ModulatedTick(960, 480))
}
