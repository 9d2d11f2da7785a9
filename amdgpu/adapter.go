// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package amdgpu implements early initialization (POST) of AMD
// Volcanic Islands discrete GPUs, by executing the AsicInit procedure
// embedded in the adapter video BIOS through the atom package
// interpreter.
//
// The package performs no display mode-setting, POST only brings the
// engine and memory clocks out of reset so that MMIO register access
// behaves.
package amdgpu

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/usbarmory/gpu-post/atom"
)

// ErrNoModeset is returned by a successful Initialize, the adapter
// only performs POST and cannot be used for display output.
var ErrNoModeset = errors.New("modesetting not supported")

// Adapter drives POST of one supported GPU.
type Adapter struct {
	// Debug enables AtomBIOS execution tracing.
	Debug bool

	// Device is the register transport, valid after Initialize.
	Device *Device

	// Bios is the adapter VBIOS, valid after Initialize.
	Bios *atom.Bios

	cfg Config
	mm  Mapper

	// MMIO aperture (BAR5) physical window
	mmioAddr uint64
	mmioSize int

	// expansion ROM size as advertised by the ROM BAR
	romSize int

	// cfgMu is the configuration space lock, held across the
	// expansion ROM decode enable/restore write pair.
	cfgMu sync.Mutex

	mmio []byte
}

// NewAdapter returns an adapter ready for Initialize. The MMIO BAR
// and expansion ROM geometry come from PCI resource discovery, which
// is left to the caller.
func NewAdapter(cfg Config, mm Mapper, mmioAddr uint64, mmioSize int, romSize int) *Adapter {
	return &Adapter{
		cfg:      cfg,
		mm:       mm,
		mmioAddr: mmioAddr,
		mmioSize: mmioSize,
		romSize:  romSize,
	}
}

// Initialize enables the adapter on the bus, maps its register
// aperture, loads the VBIOS from the expansion ROM and performs POST.
// On success ErrNoModeset is returned, as the adapter has no further
// use to a display stack.
func (a *Adapter) Initialize() (err error) {
	if err = a.cfg.EnableMemorySpace(); err != nil {
		return
	}

	if err = a.cfg.EnableIOSpace(); err != nil {
		return
	}

	if err = a.cfg.EnableBusMastering(); err != nil {
		return
	}

	if a.mmio, err = a.mm.Map(a.mmioAddr, a.mmioSize, true); err != nil {
		return fmt.Errorf("%w: mapping MMIO: %v", atom.ErrNoMemory, err)
	}

	log.Printf("amdgpu: MMIO @ %#x, space size is %#x bytes", a.mmioAddr, a.mmioSize)

	a.Device = NewDevice(a.mmio)

	data, err := a.loadVBIOS()

	if err != nil {
		return
	}

	if a.Bios, err = atom.NewBios(data, a.Debug); err != nil {
		return
	}

	log.Printf("amdgpu: VBIOS is %s", a.Bios.Name())

	if err = a.Bios.AsicInit(a.Device); err != nil {
		return
	}

	return ErrNoModeset
}

// loadVBIOS copies the VBIOS image out of the PCI expansion ROM.
func (a *Adapter) loadVBIOS() (data []byte, err error) {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()

	if data, err = readExpansionROM(a.cfg, a.mm, a.romSize); err != nil {
		return
	}

	log.Printf("amdgpu: loaded VBIOS from PCI expansion ROM")

	return
}

// Close releases the MMIO mapping.
func (a *Adapter) Close() (err error) {
	if a.mmio != nil {
		err = a.mm.Unmap(a.mmio)
		a.mmio = nil
		a.Device = nil
	}

	return
}
