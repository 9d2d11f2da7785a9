// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package atom

import (
	"fmt"

	"github.com/usbarmory/tamago/bits"
)

// iioMask returns the mask for a w bit wide field. The encoding allows
// w == 32, which the mask formula used by VBIOS images cannot express,
// it is taken to mean the full 32-bit mask.
func iioMask(w uint8) int {
	if w >= 32 {
		return 0xffffffff
	}

	return 1<<w - 1
}

// executeIIO runs the indirect I/O program that mangles register
// index and data for accesses performed while an IIO port is
// selected. Read programs receive data 0, write programs are selected
// by setting bit 7 of the program ID.
func (in *Interpreter) executeIIO(program uint8, index uint32, data uint32) (temp uint32, err error) {
	pc := uint32(in.bios.IIOProgram(program))

	if pc == 0 {
		return 0, fmt.Errorf("%w: invalid IIO program %#02x", ErrIO, program)
	}

	read8 := func() uint8 {
		v, rerr := in.bios.img.Read8(pc)

		if rerr != nil && err == nil {
			err = rerr
		}

		pc++
		return v
	}

	read16 := func() uint16 {
		lo := read8()
		hi := read8()
		return uint16(lo) | uint16(hi)<<8
	}

	temp = 0xcdcdcdcd

	for {
		op := read8()

		if err != nil {
			return 0, err
		}

		switch op {
		case iioNop:
		case iioRead:
			temp = in.dev.ReadRegister(uint32(read16()))
		case iioWrite:
			in.dev.WriteRegister(uint32(read16()), temp)
		case iioClear:
			w := read8()
			s := read8()
			bits.SetN(&temp, int(s), iioMask(w), 0)
		case iioSet:
			w := read8()
			s := read8()
			m := iioMask(w)
			bits.SetN(&temp, int(s), m, uint32(m))
		case iioMoveIndex:
			w := read8()
			src := read8()
			dst := read8()
			m := iioMask(w)
			bits.SetN(&temp, int(dst), m, index>>src&uint32(m))
		case iioMoveData:
			w := read8()
			src := read8()
			dst := read8()
			m := iioMask(w)
			bits.SetN(&temp, int(dst), m, data>>src&uint32(m))
		case iioMoveAttr:
			w := read8()
			src := read8()
			dst := read8()
			m := iioMask(w)
			bits.SetN(&temp, int(dst), m, uint32(in.ctx.IOAttr)>>src&uint32(m))
		case iioEnd:
			// the two trailing bytes are consumed but ignored
			read8()
			read8()
			return temp, err
		default:
			return 0, fmt.Errorf("%w: invalid IIO opcode %#02x", ErrIO, op)
		}
	}
}
