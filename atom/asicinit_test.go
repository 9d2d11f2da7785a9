// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package atom

import (
	"errors"
	"testing"
)

func TestAsicInit(t *testing.T) {
	b := newTestBios()

	// program the engine and memory clocks from the parameter
	// space defaults
	b.command(0, testCmd0, 0, 8, []byte{
		bMoveReg, attr(LocParameterSpace, ModeDWord, 0), 0x30, 0x00, 0x00,
		bMoveReg, attr(LocParameterSpace, ModeDWord, 0), 0x31, 0x00, 0x01,
		bEot,
	})

	dev := newFakeDevice()

	if err := b.bios(t).AsicInit(dev); err != nil {
		t.Fatal(err)
	}

	if len(dev.writes) != 2 {
		t.Fatalf("writes are %v", dev.writes)
	}

	if dev.writes[0] != (regAccess{0x30, 40000}) {
		t.Fatalf("sclk write is %v", dev.writes[0])
	}

	if dev.writes[1] != (regAccess{0x31, 80000}) {
		t.Fatalf("mclk write is %v", dev.writes[1])
	}
}

func TestAsicInitBadRevision(t *testing.T) {
	b := newTestBios()
	b.command(0, testCmd0, 0, 8, []byte{bEot})
	b.data[testFwInfo+3] = 1

	if err := b.bios(t).AsicInit(newFakeDevice()); !errors.Is(err, ErrIO) {
		t.Fatalf("firmware info revision 2.1 returned %v", err)
	}
}

func TestAsicInitUnsupported(t *testing.T) {
	// no command table entry
	if err := newTestBios().bios(t).AsicInit(newFakeDevice()); !errors.Is(err, ErrNotPresent) {
		t.Fatalf("missing command returned %v", err)
	}
}

func TestAsicInitParameterSpace(t *testing.T) {
	b := newTestBios()

	// the command may use the full 64-byte parameter block
	b.command(0, testCmd0, 0, 64, []byte{
		bMovePS, attr(LocParameterSpace, ModeDWord, 0), 0x0f, 0x00,
		bEot,
	})

	if err := b.bios(t).AsicInit(newFakeDevice()); err != nil {
		t.Fatal(err)
	}
}
