// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package atom

import (
	"github.com/usbarmory/tamago/bits"
)

// Operand captures the 32-bit contents of a location at the time it
// was read, the sub-field selected by the address mode, and the
// bytecode PC at which the operand bytes began. The saved PC lets
// writeDst re-parse the same destination bytes so that reading the
// original value and writing back the merged one decode identical
// addressing.
type Operand struct {
	// Raw is the full 32-bit value of the location.
	Raw uint32

	Loc  Location
	Mode AddressMode

	// PC is the bytecode offset of the operand bytes.
	PC uint16
}

// shift returns the bit position of the sub-field lane.
func (m AddressMode) shift() int {
	switch m {
	case ModeWord8, ModeByte8:
		return 8
	case ModeWord16, ModeByte16:
		return 16
	case ModeByte24:
		return 24
	default:
		return 0
	}
}

// mask returns the sub-field lane mask, suitable for bits.Get/SetN.
func (m AddressMode) mask() int {
	switch m {
	case ModeDWord:
		return 0xffffffff
	case ModeWord0, ModeWord8, ModeWord16:
		return 0xffff
	default:
		return 0xff
	}
}

// Value returns the sub-field of the captured raw value selected by
// the operand address mode.
func (op Operand) Value() uint32 {
	v := op.Raw
	return bits.Get(&v, op.Mode.shift(), op.Mode.mask())
}

// merge inserts value into the operand lane of the captured raw
// value. Values wider than the lane deliberately bleed into the upper
// bits, matching vendor interpreter behavior.
func (op Operand) merge(value uint32) uint32 {
	v := op.Raw
	bits.SetN(&v, op.Mode.shift(), op.Mode.mask(), value)
	return v
}
