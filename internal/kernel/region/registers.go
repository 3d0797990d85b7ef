package region

import "sync/atomic"

const grooveCapacity = 256 // 1024 bytes / 4 bytes-per-tick-offset, per spec.md §3.6

// Registers holds the editor-writable, audio-readable register bank
// described in spec.md §3.2: groove template, humanize/transpose/velocity
// modifiers, and the PRNG seed driving deterministic humanization.
type Registers struct {
	groove    [grooveCapacity]atomic.Uint32 // tick offsets; audio reads with aligned atomic loads
	grooveLen atomic.Uint32                 // length must be read first, guarding the stride (spec.md §5)

	HumanizeTimingPpt   atomic.Uint32 // parts-per-thousand
	HumanizeVelocityPpt atomic.Uint32
	GlobalTranspose     atomic.Int32
	GlobalVelocityMult  atomic.Uint32 // parts-per-thousand
	PrngSeed            atomic.Uint64
}

// SetGroove installs a new groove template, writing the length last so a
// concurrent audio-thread read that guards on length never strides past a
// partially-written template.
func (r *Registers) SetGroove(offsets []uint32) {
	n := len(offsets)
	if n > grooveCapacity {
		n = grooveCapacity
	}
	for i := 0; i < n; i++ {
		r.groove[i].Store(offsets[i])
	}
	r.grooveLen.Store(uint32(n))
}

// ClearGroove resets the groove template to empty.
func (r *Registers) ClearGroove() {
	r.grooveLen.Store(0)
}

// GrooveOffset returns the tick offset for baseTick under the current
// groove template, or 0 if no groove is installed.
func (r *Registers) GrooveOffset(baseTick uint64) uint32 {
	length := r.grooveLen.Load()
	if length == 0 {
		return 0
	}
	return r.groove[baseTick%uint64(length)].Load()
}
