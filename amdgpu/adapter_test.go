// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amdgpu

import (
	"encoding/binary"
	"errors"
	"testing"
)

// testVBIOS assembles a minimal VBIOS whose AsicInit program simply
// terminates.
func testVBIOS() []byte {
	data := make([]byte, 0x1000)
	le := binary.LittleEndian

	const (
		romTable  = 0x100
		cmdTable  = 0x300
		dataTable = 0x400
		cmd0      = 0x500
		fwInfo    = 0x700
	)

	le.PutUint16(data[0:], 0xaa55)
	le.PutUint16(data[0x48:], romTable)

	copy(data[romTable+4:], "ATOM")
	le.PutUint16(data[romTable+30:], cmdTable)
	le.PutUint16(data[romTable+32:], dataTable)

	// AsicInit entry with a single Eot opcode
	le.PutUint16(data[cmdTable+4:], cmd0)
	le.PutUint16(data[cmd0:], 7)
	data[cmd0+6] = 0x5b

	// firmware info, revision 2.2
	le.PutUint16(data[dataTable+4+2*4:], fwInfo)
	data[fwInfo+2] = 2
	data[fwInfo+3] = 2
	le.PutUint32(data[fwInfo+8:], 40000)
	le.PutUint32(data[fwInfo+12:], 80000)

	return data
}

func TestAdapterInitialize(t *testing.T) {
	const (
		mmioAddr = 0xe0000000
		romAddr  = 0xfc000000
	)

	vbios := testVBIOS()

	cfg := newFakeConfig()
	cfg.regs[expansionROMPointer] = romAddr

	mm := newFakeMapper()
	mm.mem[mmioAddr] = make([]byte, 0x40000)
	mm.mem[romAddr] = vbios

	adapter := NewAdapter(cfg, mm, mmioAddr, 0x40000, len(vbios))

	// a POST-only adapter completes initialization by reporting
	// that it cannot be used further
	if err := adapter.Initialize(); !errors.Is(err, ErrNoModeset) {
		t.Fatalf("Initialize returned %v", err)
	}

	if len(cfg.enabled) != 3 {
		t.Fatalf("bus enables are %v", cfg.enabled)
	}

	if adapter.Device == nil || adapter.Bios == nil {
		t.Fatal("adapter state incomplete")
	}

	if err := adapter.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestAdapterInitializeNoROM(t *testing.T) {
	const mmioAddr = 0xe0000000

	cfg := newFakeConfig()

	mm := newFakeMapper()
	mm.mem[mmioAddr] = make([]byte, 0x40000)

	adapter := NewAdapter(cfg, mm, mmioAddr, 0x40000, 0)

	if err := adapter.Initialize(); errors.Is(err, ErrNoModeset) || err == nil {
		t.Fatalf("Initialize returned %v", err)
	}
}
