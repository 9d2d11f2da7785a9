// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amdgpu

import (
	"bytes"
	"fmt"

	"github.com/usbarmory/gpu-post/atom"
)

// PCI configuration space register offsets.
const (
	configCommand            = 0x04
	expansionROMPointer      = 0x30
	expansionROMDecodeEnable = 1
)

// Config provides access to the adapter PCI configuration space.
type Config interface {
	// Read32 returns the configuration dword at off.
	Read32(off int64) (uint32, error)

	// Write32 sets the configuration dword at off.
	Write32(off int64, val uint32) error

	// EnableMemorySpace enables response to memory space accesses.
	EnableMemorySpace() error

	// EnableIOSpace enables response to I/O space accesses.
	EnableIOSpace() error

	// EnableBusMastering allows the device to issue memory requests.
	EnableBusMastering() error
}

// Mapper maps device physical memory into the caller address space.
type Mapper interface {
	// Map returns a byte view over size bytes of device physical
	// memory at addr.
	Map(addr uint64, size int, write bool) ([]byte, error)

	// Unmap releases a mapping previously returned by Map.
	Unmap(buf []byte) error
}

// readExpansionROM copies the VBIOS image out of the device expansion
// ROM. The ROM decode enable bit is set for the duration of the copy
// and the previous pointer value is restored on every exit path. The
// caller must hold the configuration space lock.
func readExpansionROM(cfg Config, mm Mapper, size int) (data []byte, err error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: no expansion ROM", atom.ErrNotPresent)
	}

	p, err := cfg.Read32(expansionROMPointer)

	if err != nil {
		return
	}

	if p == 0 {
		return nil, fmt.Errorf("%w: no expansion ROM", atom.ErrNotPresent)
	}

	defer func() {
		if restoreErr := cfg.Write32(expansionROMPointer, p); restoreErr != nil && err == nil {
			err = restoreErr
		}
	}()

	if err = cfg.Write32(expansionROMPointer, p|expansionROMDecodeEnable); err != nil {
		return
	}

	buf, err := mm.Map(uint64(p), size, false)

	if err != nil {
		return nil, fmt.Errorf("%w: mapping expansion ROM: %v", atom.ErrNoMemory, err)
	}

	defer func() {
		if unmapErr := mm.Unmap(buf); unmapErr != nil && err == nil {
			err = unmapErr
		}
	}()

	// copy the image out so that the device mapping can be torn
	// down promptly
	data = bytes.Clone(buf)

	return
}
