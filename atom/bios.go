// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package atom

import (
	"fmt"
	"log"
	"strings"
)

// Bios owns a validated VBIOS image along with cached views of its
// master tables and the indirect I/O program index.
type Bios struct {
	// Debug enables per-instruction execution tracing.
	Debug bool

	img *Image

	rom       ROM
	romTable  ROMTable
	dataTable DataTableV11

	// image offset of the first post-header opcode of each IIO
	// program, zero when absent
	iio [maxIIOPrograms]uint16
}

// NewBios validates the VBIOS image, caches its ROM header, command
// table and data table locations and indexes the indirect I/O
// programs.
func NewBios(data []byte, debug bool) (b *Bios, err error) {
	b = &Bios{
		img:   NewImage(data),
		Debug: debug,
	}

	if err = b.img.Validate(); err != nil {
		return nil, err
	}

	if err = b.img.ReadStruct(0, &b.rom); err != nil {
		return nil, err
	}

	if err = b.img.ReadStruct(uint32(b.rom.RomTableOffset), &b.romTable); err != nil {
		return nil, err
	}

	if err = b.img.ReadStruct(uint32(b.romTable.CmdTableOffset), &TableHeader{}); err != nil {
		return nil, err
	}

	if err = b.img.ReadStruct(uint32(b.romTable.DataTableOffset), &b.dataTable); err != nil {
		return nil, err
	}

	if err = b.indexIIO(); err != nil {
		return nil, err
	}

	return
}

// indexIIO pre-fills the IIO program table so that register access
// does not require a linear scan of the program blob every time.
func (b *Bios) indexIIO() (err error) {
	base := uint32(b.dataTable.Entries[dataTableIndirectIOAccess]) + tableHeaderSize

	i := uint32(0)
	for {
		op, err := b.img.Read8(base + i)

		if err != nil {
			return err
		}

		if op != iioStart {
			break
		}

		id, err := b.img.Read8(base + i + 1)

		if err != nil {
			return err
		}

		b.iio[id] = uint16(base + i + 2)

		if b.Debug {
			log.Printf("atom: iio[%02x] = %04x", id, base+i+2)
		}

		i += 2
	scan:
		for {
			op, err := b.img.Read8(base + i)

			if err != nil {
				return err
			}

			switch op {
			case iioNop:
				i += 1
			case iioStart:
				i += 2
			case iioRead, iioWrite, iioClear, iioSet:
				i += 3
			case iioMoveIndex, iioMoveAttr, iioMoveData:
				i += 4
			case iioEnd:
				i += 3
				break scan
			default:
				return fmt.Errorf("%w: invalid opcode %#02x while indexing IIO program", ErrIO, op)
			}
		}
	}

	return
}

// IIOProgram returns the image offset of the given IIO program, or
// zero when the VBIOS does not define it.
func (b *Bios) IIOProgram(index uint8) uint16 {
	return b.iio[index]
}

// Datatable returns the image offset of the given data table entry.
func (b *Bios) Datatable(index uint8) (uint16, error) {
	return b.img.Read16(uint32(b.romTable.DataTableOffset) + tableHeaderSize + 2*uint32(index))
}

// Command returns the descriptor of the given command table entry.
// Commands absent from this VBIOS have a zero offset and report
// ErrNotPresent.
func (b *Bios) Command(cmd Command) (desc CommandDescriptor, err error) {
	off, err := b.img.Read16(uint32(b.romTable.CmdTableOffset) + tableHeaderSize + 2*uint32(cmd))

	if err != nil {
		return
	}

	if off == 0 {
		return desc, fmt.Errorf("%w: command %#02x unsupported by this VBIOS", ErrNotPresent, cmd)
	}

	var entry commandTableEntry

	if err = b.img.ReadStruct(uint32(off), &entry); err != nil {
		return
	}

	desc = CommandDescriptor{
		Base:               off,
		Size:               entry.Size,
		WorkSpaceSize:      entry.WS,
		ParameterSpaceSize: entry.PS & 0x7f,
	}

	return
}

// Read8 returns the VBIOS byte at off.
func (b *Bios) Read8(off uint32) (uint8, error) {
	return b.img.Read8(off)
}

// Read16 returns the little-endian 16-bit VBIOS value at off.
func (b *Bios) Read16(off uint32) (uint16, error) {
	return b.img.Read16(off)
}

// Read32 returns the little-endian 32-bit VBIOS value at off.
func (b *Bios) Read32(off uint32) (uint32, error) {
	return b.img.Read32(off)
}

// Name extracts the VBIOS product name string that follows the
// atombios message strings.
func (b *Bios) Name() string {
	if b.rom.NumberOfStrings == 0 {
		return "(unknown)"
	}

	off := uint32(b.rom.VBIOSNameOffset)

	// skip atombios strings
	for i := 0; i < int(b.rom.NumberOfStrings); i++ {
		for {
			c, err := b.img.Read8(off)

			if err != nil {
				return "(unknown)"
			}

			off++

			if c == 0 {
				break
			}
		}
	}

	// skip \r\n
	off += 2

	var name []byte

	for len(name) < 64 {
		c, err := b.img.Read8(off + uint32(len(name)))

		if err != nil || c == 0 {
			break
		}

		name = append(name, c)
	}

	return strings.TrimRightFunc(string(name), func(r rune) bool {
		return r <= ' '
	})
}
