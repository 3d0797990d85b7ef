package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeader_AddTelemetryOp_Accumulates(t *testing.T) {
	var h Header
	for i := 0; i < 5; i++ {
		h.AddTelemetryOp()
	}
	assert.Equal(t, uint64(5), h.TelemetryOps())
}

func TestHeader_AddTelemetryOp_CarriesIntoHiOnLoWrap(t *testing.T) {
	var h Header
	h.telemetryLo.Store(^uint32(0)) // one increment away from wrapping
	h.AddTelemetryOp()
	assert.Equal(t, uint64(1)<<32, h.TelemetryOps())
}

func TestHeader_Validate_AcceptsMatchingMagicVersionAndSize(t *testing.T) {
	h := Header{NodeCapacity: 64}
	assert.True(t, h.Validate(Magic, FormatVersion, ComputedSize(64)))
}

func TestHeader_Validate_RejectsWrongMagic(t *testing.T) {
	h := Header{NodeCapacity: 64}
	assert.False(t, h.Validate(0xDEADBEEF, FormatVersion, ComputedSize(64)))
}

func TestHeader_Validate_RejectsWrongFormatVersion(t *testing.T) {
	h := Header{NodeCapacity: 64}
	assert.False(t, h.Validate(Magic, FormatVersion+1, ComputedSize(64)))
}

func TestHeader_Validate_RejectsUndersizedRegion(t *testing.T) {
	h := Header{NodeCapacity: 64}
	assert.False(t, h.Validate(Magic, FormatVersion, ComputedSize(64)-1))
}

func TestComputedSize_GrowsWithNodeCapacity(t *testing.T) {
	small := ComputedSize(16)
	large := ComputedSize(256)
	assert.Greater(t, large, small)
}
