// Package consumer implements the audio-thread reader described in
// spec.md §4.9, C10: per-quantum ring poll, cursor re-sync on structural
// commit, barrier phase-locking, and the groove/humanize/transpose/
// velocity-mult event transform.
package consumer

import (
	"github.com/Conceptual-Machines/magda-api/internal/kernel/mmu"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/phaselock"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/region"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/ring"
)

const (
	versionedReadRetries = 50 // audio-context cap, spec.md §5
	firedRingCapacity    = 16 // spec.md §4.8: "fired-synapse ring (16 slots)"
)

// Event is one emitted note/CC event for the current quantum.
type Event struct {
	Tick     uint64
	Pitch    uint8
	Velocity uint8
	Duration uint32
	Ptr      uint32
}

// Linker resolves which, if any, outgoing synapse from a just-emitted node
// should be recorded as "fired" for the bridge's reward/penalty windowing.
// The default weighted-random implementation is deterministic given the
// region's PRNG seed register.
type Linker interface {
	Choose(options []SynapseOption, prngState *uint64) uint32 // returns chosen synapse ptr, or 0
}

// SynapseOption is one candidate outgoing synapse considered by a Linker.
type SynapseOption struct {
	Ptr    uint32
	Target uint32
	Weight uint32 // 0-1000
}

// WeightedRandomLinker picks among live outgoing synapses with probability
// proportional to weight, using a simple deterministic xorshift-style mix
// seeded from the region's PRNG register.
type WeightedRandomLinker struct{}

func (WeightedRandomLinker) Choose(options []SynapseOption, prngState *uint64) uint32 {
	if len(options) == 0 {
		return 0
	}
	total := uint32(0)
	for _, o := range options {
		total += o.Weight
	}
	if total == 0 {
		return 0
	}
	*prngState ^= *prngState << 13
	*prngState ^= *prngState >> 7
	*prngState ^= *prngState << 17
	roll := uint32(*prngState % uint64(total))
	acc := uint32(0)
	for _, o := range options {
		acc += o.Weight
		if roll < acc {
			return o.Ptr
		}
	}
	return options[len(options)-1].Ptr
}

// Consumer is the audio-thread reader bound to one region. Not safe for
// concurrent calls from more than one goroutine — by design, the audio role
// is single-threaded.
type Consumer struct {
	Region       *region.Region
	MMU          *mmu.MMU
	QuantumTicks uint64
	Linker       Linker

	cursor      uint32
	cursorValid bool

	barrierPending bool
	barrierTarget  uint64

	prngState uint64

	// EventLog, when non-nil, accumulates every emitted event across calls
	// to Process — a test/diagnostic hook (see SPEC_FULL.md), never
	// consulted by production playback logic.
	EventLog []Event

	// FiredRing holds synapse pointers chosen by the Linker, drained by the
	// bridge's tick() for reward/penalty windowing (spec.md §4.8).
	FiredRing *ring.Ring[uint32]

	// eventBuf and optionBuf are the audio role's pre-allocated scratch
	// buffers (spec.md §2/§5: "non-blocking, allocation-free"). walk and
	// fireSynapse reset them to [:0] and fill in place instead of growing a
	// fresh slice per quantum/per emit. eventBuf is capped at one slot per
	// node (at most one event per node per quantum); optionBuf is capped at
	// the region's total synapse capacity (the worst case of every synapse
	// sharing one source). Process returns eventBuf's backing array
	// directly, so callers must consume the returned slice before the next
	// Process call overwrites it.
	eventBuf  []Event
	optionBuf []SynapseOption
}

// New constructs a Consumer over r, driven by m, emitting events at
// quantumTicks resolution.
func New(r *region.Region, m *mmu.MMU, quantumTicks uint64) *Consumer {
	return &Consumer{
		Region:       r,
		MMU:          m,
		QuantumTicks: quantumTicks,
		Linker:       WeightedRandomLinker{},
		prngState:    r.Registers.PrngSeed.Load() | 1,
		FiredRing:    ring.New[uint32](firedRingCapacity + 1),
		eventBuf:     make([]Event, 0, r.Header.NodeCapacity),
		optionBuf:    make([]SynapseOption, 0, r.Header.SynapseCapacity),
	}
}

// Poll drains the command ring under audio-context mutex rules, returning
// the number of commands applied.
func (c *Consumer) Poll() int {
	return c.MMU.ProcessCommands(mmu.Audio)
}

// Reset clears cursor and barrier state, forcing the next Process call to
// re-find the cursor from the current playhead.
func (c *Consumer) Reset() {
	c.cursor = 0
	c.cursorValid = false
	c.barrierPending = false
	c.barrierTarget = 0
}

// GetPlayheadTick returns the current playhead.
func (c *Consumer) GetPlayheadTick() uint64 { return c.Region.Header.PlayheadTick.Load() }

// SetPlayheadTick forces the playhead and invalidates the cursor so the
// next Process call re-syncs from the new position.
func (c *Consumer) SetPlayheadTick(tick uint64) {
	c.Region.Header.PlayheadTick.Store(tick)
	c.cursorValid = false
	c.barrierPending = false
}

func (c *Consumer) findCursorFrom(playhead uint64) (uint32, bool) {
	ptr := c.Region.Header.HeadPtr.Load()
	for ptr != 0 {
		node := c.Region.Node(ptr)
		if node == nil {
			return 0, false
		}
		if uint64(node.BaseTick.Load()) >= playhead {
			return ptr, true
		}
		ptr = node.Next.Load()
	}
	return 0, false
}

// Process runs one quantum of the per-quantum algorithm (spec.md §4.9):
// poll, cursor re-sync on pending commit, walk and emit, advance playhead.
// The returned slice aliases Consumer's internal scratch buffer and is only
// valid until the next Process call.
func (c *Consumer) Process() []Event {
	c.Poll()

	if region.CommitFlag(c.Region.Header.CommitFlag.Load()) == region.CommitPending {
		playhead := c.Region.Header.PlayheadTick.Load()
		ptr, ok := c.findCursorFrom(playhead)
		c.cursor, c.cursorValid = ptr, ok
		c.Region.Header.CommitFlag.Store(uint32(region.CommitAck))
	}

	playhead := c.Region.Header.PlayheadTick.Load()
	nextPlayhead := playhead + c.QuantumTicks

	events := c.walk(playhead, nextPlayhead)

	c.Region.Header.PlayheadTick.Store(nextPlayhead)
	if c.EventLog != nil {
		c.EventLog = append(c.EventLog, events...)
	}
	return events
}

func (c *Consumer) walk(playhead, nextPlayhead uint64) []Event {
	events := c.eventBuf[:0]
	if !c.cursorValid {
		c.eventBuf = events
		return events
	}

	ptr := c.cursor
	for ptr != 0 {
		node := c.Region.Node(ptr)
		if node == nil {
			c.cursor, c.cursorValid = 0, false
			c.eventBuf = events
			return events
		}
		next := node.Next.Load() // chain-mutex protected, safe without versioned read

		var opcode region.NodeOpcode
		var pitchB, velocityB uint8
		var flags uint32
		var baseTick, duration uint32
		ok := node.VersionedRead(versionedReadRetries, func() {
			packed := node.PackedA.Load()
			opcode, pitchB, velocityB, flags, _ = region.UnpackA(packed)
			baseTick = node.BaseTick.Load()
			duration = node.Duration.Load()
		})
		if !ok {
			ptr = next
			c.cursor = ptr
			continue
		}

		if opcode == region.OpBarrier {
			if stop := c.handleBarrier(ptr, next, playhead, nextPlayhead, uint64(duration)); stop {
				break
			}
			ptr = c.cursor
			continue
		}

		triggerTick := c.triggerTick(uint64(baseTick))
		active := flags&region.FlagActive != 0
		muted := flags&region.FlagMuted != 0
		if active && !muted && triggerTick >= playhead && triggerTick < nextPlayhead {
			events = append(events, c.emit(ptr, triggerTick, pitchB, velocityB, duration))
		}

		if uint64(baseTick) >= nextPlayhead {
			c.cursor = ptr
			break
		}

		ptr = next
		c.cursor = ptr
		if ptr == 0 {
			c.cursorValid = false
		}
	}
	c.eventBuf = events
	return events
}

// handleBarrier runs the barrier state machine for the node at ptr, whose
// cycle length is cycle. Returns true if traversal should stop this
// quantum (cursor parked at the barrier).
func (c *Consumer) handleBarrier(ptr, next uint32, playhead, nextPlayhead, cycle uint64) bool {
	if c.barrierPending {
		if nextPlayhead >= c.barrierTarget {
			c.barrierPending = false
			c.cursor = next
			if next == 0 {
				c.cursorValid = false
			}
			return false
		}
		c.cursor = ptr
		return true
	}

	remainder := phaselock.ModulatedTick(playhead, cycle)
	if remainder == 0 {
		c.cursor = next
		if next == 0 {
			c.cursorValid = false
		}
		return false
	}

	c.barrierPending = true
	c.barrierTarget = playhead + (cycle - remainder)
	c.cursor = ptr
	return true
}

// emit builds the transformed Event for a firing node and, if the node has
// live outgoing synapses, asks the Linker to choose one to record as fired.
func (c *Consumer) emit(ptr uint32, triggerTick uint64, pitchB, velocityB uint8, duration uint32) Event {
	transpose := c.Region.Registers.GlobalTranspose.Load()
	pitch := int32(pitchB) + transpose
	if pitch < 0 {
		pitch = 0
	} else if pitch > 127 {
		pitch = 127
	}

	velMult := c.Region.Registers.GlobalVelocityMult.Load()
	vel := int64(velocityB) * int64(velMult) / 1000
	vel += int64(c.humanizeVelocity(triggerTick))
	if vel < 0 {
		vel = 0
	} else if vel > 127 {
		vel = 127
	}

	c.fireSynapse(ptr)

	return Event{Tick: triggerTick, Pitch: uint8(pitch), Velocity: uint8(vel), Duration: duration, Ptr: ptr}
}

func (c *Consumer) fireSynapse(ptr uint32) {
	options := c.optionBuf[:0]
	c.Region.Synapse.ForEachFromSource(ptr, func(synPtr, target, weight uint32) {
		options = append(options, SynapseOption{Ptr: synPtr, Target: target, Weight: weight})
	})
	c.optionBuf = options
	if len(options) == 0 || c.Linker == nil {
		return
	}
	if chosen := c.Linker.Choose(options, &c.prngState); chosen != 0 {
		c.FiredRing.Write(chosen) // best-effort; a full ring drops this fire and keeps the unread ones
	}
}

// triggerTick applies groove and timing-humanize to a raw base tick
// (spec.md §4.9: "trigger_tick = base_tick + groove[...] + humanize(...)").
func (c *Consumer) triggerTick(baseTick uint64) uint64 {
	groove := uint64(c.Region.Registers.GrooveOffset(baseTick))
	h := c.humanizeTiming(baseTick)
	signed := int64(baseTick) + int64(groove) + h
	if signed < 0 {
		return 0
	}
	return uint64(signed)
}

// humanizeMix deterministically mixes a tick and a seed into a pseudo-random
// 64-bit value (spec.md §4.9: "deterministic integer mix of tick and seed").
func humanizeMix(tick, seed uint64) uint64 {
	x := tick ^ seed
	x *= 0x9E3779B97F4A7C15
	x ^= x >> 33
	x *= 0xFF51AFD7ED558CCD
	x ^= x >> 33
	return x
}

func (c *Consumer) humanizeTiming(baseTick uint64) int64 {
	ppt := c.Region.Registers.HumanizeTimingPpt.Load()
	if ppt == 0 {
		return 0
	}
	seed := c.Region.Registers.PrngSeed.Load()
	span := uint64(2*ppt + 1)
	frac := int64(humanizeMix(baseTick, seed)%span) - int64(ppt)
	ppq := c.Region.Header.PPQ.Load()
	return frac * int64(ppq) / 1000
}

func (c *Consumer) humanizeVelocity(baseTick uint64) int64 {
	ppt := c.Region.Registers.HumanizeVelocityPpt.Load()
	if ppt == 0 {
		return 0
	}
	seed := c.Region.Registers.PrngSeed.Load()
	span := uint64(2*ppt + 1)
	frac := int64(humanizeMix(baseTick, seed+1)%span) - int64(ppt)
	return frac * 127 / 1000
}
