package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisters_GrooveOffset_ZeroWhenNoTemplateInstalled(t *testing.T) {
	var r Registers
	assert.Equal(t, uint32(0), r.GrooveOffset(42))
}

func TestRegisters_SetGroove_ThenGrooveOffsetCyclesByLength(t *testing.T) {
	var r Registers
	r.SetGroove([]uint32{5, 10, 15})

	assert.Equal(t, uint32(5), r.GrooveOffset(0))
	assert.Equal(t, uint32(10), r.GrooveOffset(1))
	assert.Equal(t, uint32(15), r.GrooveOffset(2))
	assert.Equal(t, uint32(5), r.GrooveOffset(3)) // wraps back to index 0
}

func TestRegisters_SetGroove_TruncatesBeyondCapacity(t *testing.T) {
	var r Registers
	offsets := make([]uint32, grooveCapacity+10)
	for i := range offsets {
		offsets[i] = uint32(i)
	}
	r.SetGroove(offsets)
	assert.Equal(t, uint32(grooveCapacity), r.grooveLen.Load())
}

func TestRegisters_ClearGroove_RevertsToZeroOffset(t *testing.T) {
	var r Registers
	r.SetGroove([]uint32{99})
	require := assert.New(t)
	require.Equal(uint32(99), r.GrooveOffset(0))

	r.ClearGroove()
	require.Equal(uint32(0), r.GrooveOffset(0))
}
