// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amdgpu

import (
	"encoding/binary"
	"testing"
)

func TestDeviceMMIO(t *testing.T) {
	mmio := make([]byte, 0x100)
	dev := NewDevice(mmio)

	dev.WriteRegister(0x10, 0xcafebabe)

	if v := dev.ReadRegister(0x10); v != 0xcafebabe {
		t.Fatalf("register reads back %08x", v)
	}

	if v := binary.NativeEndian.Uint32(mmio[0x40:]); v != 0xcafebabe {
		t.Fatalf("aperture holds %08x", v)
	}
}

func TestDevicePCIEFallback(t *testing.T) {
	// a 16 register window, indices beyond it go through the
	// index/data pair
	mmio := make([]byte, 0x40)
	dev := NewDevice(mmio)

	dev.WriteRegister(0x1234, 0x11223344)

	if v := binary.NativeEndian.Uint32(mmio[regPCIEIndex*4:]); v != 0x1234*4 {
		t.Fatalf("index register holds %08x", v)
	}

	if v := binary.NativeEndian.Uint32(mmio[regPCIEData*4:]); v != 0x11223344 {
		t.Fatalf("data register holds %08x", v)
	}

	binary.NativeEndian.PutUint32(mmio[regPCIEData*4:], 0x55667788)

	if v := dev.ReadRegister(0x4321); v != 0x55667788 {
		t.Fatalf("fallback read returns %08x", v)
	}

	if v := binary.NativeEndian.Uint32(mmio[regPCIEIndex*4:]); v != 0x4321*4 {
		t.Fatalf("index register holds %08x", v)
	}
}

func TestProbe(t *testing.T) {
	if !Probe(VendorAMD, 0x67df) {
		t.Fatal("RX 580X not probed")
	}

	if Probe(VendorAMD, 0x1234) {
		t.Fatal("unknown AMD device probed")
	}

	if Probe(0x10de, 0x67df) {
		t.Fatal("foreign vendor probed")
	}
}
