// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package atom

import (
	"errors"
	"testing"
)

func TestInstructionTable(t *testing.T) {
	if len(instructionTable) != 127 {
		t.Fatalf("instruction table has %d entries", len(instructionTable))
	}

	if instructionTable[0].op != OpInvalid {
		t.Fatal("entry 0 is not invalid")
	}

	// spot checks against the vendor layout
	checks := []struct {
		index int
		op    OpCode
		loc   Location
	}{
		{bMoveReg, OpMove, LocRegister},
		{0x06, OpMove, LocMemController},
		{0x07, OpAnd, LocRegister},
		{bEot, OpEot, 0},
		{bNop, OpNop, 0},
		{0x7e, OpDiv32, LocWorkSpace},
	}

	for _, c := range checks {
		if d := instructionTable[c.index]; d.op != c.op || d.loc != c.loc {
			t.Fatalf("entry %#02x decodes as %v/%v", c.index, d.op, d.loc)
		}
	}

	if d := instructionTable[bJumpEqual]; d.op != OpJump || d.cond != CondEqual {
		t.Fatalf("entry %#02x decodes as %v/%v", bJumpEqual, d.op, d.cond)
	}

	if d := instructionTable[bDelayUS]; d.op != OpDelay || d.unit != UnitMicroSecond {
		t.Fatalf("entry %#02x decodes as %v/%v", bDelayUS, d.op, d.unit)
	}

	if d := instructionTable[bSetPortSIO]; d.op != OpSetPort || d.port != PortSysIO {
		t.Fatalf("entry %#02x decodes as %v/%v", bSetPortSIO, d.op, d.port)
	}
}

func TestCommandDescriptor(t *testing.T) {
	b := newTestBios()
	b.command(0, testCmd0, 8, 0x48, []byte{bEot})

	bios := b.bios(t)

	desc, err := bios.Command(CommandAsicInit)

	if err != nil {
		t.Fatal(err)
	}

	if desc.Base != testCmd0 {
		t.Fatalf("descriptor base is %#x", desc.Base)
	}

	if desc.Size != commandHeaderSize+1 {
		t.Fatalf("descriptor size is %#x", desc.Size)
	}

	if desc.WorkSpaceSize != 8 {
		t.Fatalf("workspace size is %d", desc.WorkSpaceSize)
	}

	// bit 7 of the parameter space field is reserved
	if desc.ParameterSpaceSize != 0x48 {
		t.Fatalf("parameter space size is %d", desc.ParameterSpaceSize)
	}

	if _, err = bios.Command(Command(1)); !errors.Is(err, ErrNotPresent) {
		t.Fatalf("unsupported command returned %v", err)
	}
}

func TestCommandReservedBit(t *testing.T) {
	b := newTestBios()
	b.command(0, testCmd0, 0, 0x80|0x10, []byte{bEot})

	desc, err := b.bios(t).Command(CommandAsicInit)

	if err != nil {
		t.Fatal(err)
	}

	if desc.ParameterSpaceSize != 0x10 {
		t.Fatalf("parameter space size is %d", desc.ParameterSpaceSize)
	}
}

func TestDatatable(t *testing.T) {
	bios := newTestBios().bios(t)

	off, err := bios.Datatable(dataTableFirmwareInfo)

	if err != nil {
		t.Fatal(err)
	}

	if off != testFwInfo {
		t.Fatalf("firmware info offset is %#x", off)
	}

	off, err = bios.Datatable(dataTableIndirectIOAccess)

	if err != nil {
		t.Fatal(err)
	}

	if off != testIIOBlock {
		t.Fatalf("indirect io offset is %#x", off)
	}
}

func TestIIOIndex(t *testing.T) {
	b := newTestBios()
	b.iio(
		// the one, three and four byte skip widths are exercised
		// while scanning past the first program
		[]byte{0x02,
			iioNop,
			iioRead, 0x10, 0x00,
			iioClear, 8, 0,
			iioSet, 8, 8,
			iioMoveIndex, 16, 0, 0,
			iioMoveData, 16, 0, 0,
			iioMoveAttr, 8, 0, 0,
			iioEnd, 0, 0,
		},
		[]byte{0x83,
			iioWrite, 0x20, 0x00,
			iioEnd, 0, 0,
		},
	)

	bios := b.bios(t)

	if off := bios.IIOProgram(0x02); off != testIIOBlock+tableHeaderSize+2 {
		t.Fatalf("program 2 indexed at %#x", off)
	}

	// second program follows the 25 opcode bytes of the first
	if off := bios.IIOProgram(0x83); off != testIIOBlock+tableHeaderSize+2+25+2 {
		t.Fatalf("program 0x83 indexed at %#x", off)
	}

	if off := bios.IIOProgram(0x05); off != 0 {
		t.Fatalf("absent program indexed at %#x", off)
	}
}

func TestIIOIndexInvalid(t *testing.T) {
	b := newTestBios()
	b.iio([]byte{0x02, 0xff})

	if _, err := NewBios(b.data, false); !errors.Is(err, ErrIO) {
		t.Fatalf("invalid IIO program returned %v", err)
	}
}

func TestName(t *testing.T) {
	b := newTestBios()

	// two atombios message strings, then \r\n and the product name
	b.data[0x2f] = 2
	name := append([]byte("first\x00second\x00"), '\r', '\n')
	name = append(name, []byte("C67101 Polaris10 XT A1 GDDR5 256Mx32 8GB  \x00")...)
	copy(b.data[testNameBlock:], name)

	if got := b.bios(t).Name(); got != "C67101 Polaris10 XT A1 GDDR5 256Mx32 8GB" {
		t.Fatalf("name is %q", got)
	}
}

func TestNameUnknown(t *testing.T) {
	if got := newTestBios().bios(t).Name(); got != "(unknown)" {
		t.Fatalf("name is %q", got)
	}
}
