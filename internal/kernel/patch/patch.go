// Package patch implements the attribute patcher described in spec.md
// §4.4: an immediate, mutex-free, allocation-free mutation of a single
// already-live node's pitch/velocity/duration/tick/muted fields, bumping
// the node's sequence counter so concurrent versioned readers detect the
// change.
package patch

import (
	"sync/atomic"

	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/region"
)

// Field selects which attribute a patch mutates. Patches never touch
// Next/Prev/SourceID (spec.md §8 property 6).
type Field int

const (
	FieldPitch Field = iota
	FieldVelocity
	FieldDuration
	FieldBaseTick
	FieldMuted
)

const pitchVelocityMax = 127

func clampByte(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > pitchVelocityMax {
		return pitchVelocityMax
	}
	return uint8(v)
}

// Apply performs the read-modify-write for field on node and bumps its
// sequence counter. Returns false (and sets *errorCode = InvalidPtr) only
// for an unrecognized field; pitch/velocity are always clamped rather than
// rejected.
func Apply(node *region.Node, field Field, value int32, errorCode *atomic.Int32) bool {
	switch field {
	case FieldPitch:
		rmwPackedA(node, func(op region.NodeOpcode, pitch, velocity uint8, flags uint32, expr uint8) uint32 {
			return region.PackA(op, clampByte(value), velocity, flags, expr)
		})
	case FieldVelocity:
		rmwPackedA(node, func(op region.NodeOpcode, pitch, velocity uint8, flags uint32, expr uint8) uint32 {
			return region.PackA(op, pitch, clampByte(value), flags, expr)
		})
	case FieldMuted:
		rmwPackedA(node, func(op region.NodeOpcode, pitch, velocity uint8, flags uint32, expr uint8) uint32 {
			if value != 0 {
				flags |= region.FlagMuted
			} else {
				flags &^= region.FlagMuted
			}
			return region.PackA(op, pitch, velocity, flags, expr)
		})
	case FieldDuration:
		node.Duration.Store(uint32(value))
	case FieldBaseTick:
		node.BaseTick.Store(uint32(value))
	default:
		if errorCode != nil {
			errorCode.Store(int32(kerrors.InvalidPtr))
		}
		return false
	}
	node.BumpSequence()
	return true
}

func rmwPackedA(node *region.Node, mutate func(op region.NodeOpcode, pitch, velocity uint8, flags uint32, expr uint8) uint32) {
	for {
		old := node.PackedA.Load()
		op, pitch, velocity, flags, expr := region.UnpackA(old)
		next := mutate(op, pitch, velocity, flags, expr)
		if node.PackedA.CompareAndSwap(old, next) {
			return
		}
	}
}
