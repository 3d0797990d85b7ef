package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode_Tier(t *testing.T) {
	tests := []struct {
		name string
		code Code
		want Tier
	}{
		{"ok is absorbed", OK, TierAbsorbed},
		{"heap exhausted is surfaced", HeapExhausted, TierSurfaced},
		{"safe zone is surfaced", SafeZone, TierSurfaced},
		{"load factor warning is surfaced", LoadFactorWarning, TierSurfaced},
		{"kernel panic is fatal", KernelPanic, TierFatal},
		{"free list corrupt is fatal", FreeListCorrupt, TierFatal},
		{"unknown opcode is fatal", UnknownOpcode, TierFatal},
		{"invalid ptr is absorbed", InvalidPtr, TierAbsorbed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Tier())
		})
	}
}

func TestCode_String(t *testing.T) {
	assert.Equal(t, "OK", OK.String())
	assert.Equal(t, "KERNEL_PANIC", KernelPanic.String())
	assert.Equal(t, "UNKNOWN_CODE", Code(999).String())
}

func TestNullPtrIsZero(t *testing.T) {
	assert.Equal(t, uint32(0), NullPtr)
}
