// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build linux

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/u-root/u-root/pkg/pci"
	"golang.org/x/sys/unix"

	"github.com/usbarmory/gpu-post/amdgpu"
)

// sysfs resource indices of a type 0 header device
const (
	mmioBAR = 5
	romBAR  = 6
)

// PCI configuration space offsets and command register bits.
const (
	configVendor  = 0x00
	configDevice  = 0x02
	configCommand = 0x04

	commandIOSpace      = 1 << 0
	commandMemorySpace  = 1 << 1
	commandBusMastering = 1 << 2
)

// findAdapter scans the PCI bus for the first supported adapter
// matching the address globs.
func findAdapter(globs []string) (*pci.PCI, error) {
	br, err := pci.NewBusReader(globs...)

	if err != nil {
		return nil, err
	}

	devs, err := br.Read()

	if err != nil {
		return nil, err
	}

	for _, dev := range devs {
		vendor, err := dev.ReadConfigRegister(configVendor, 16)

		if err != nil {
			continue
		}

		device, err := dev.ReadConfigRegister(configDevice, 16)

		if err != nil {
			continue
		}

		if amdgpu.Probe(uint16(vendor), uint16(device)) {
			return dev, nil
		}
	}

	return nil, fmt.Errorf("no supported adapter found")
}

// resource parses the sysfs resource table of the device, returning
// the physical address and size of the given BAR.
func resource(dev *pci.PCI, index int) (addr uint64, size int, err error) {
	buf, err := os.ReadFile(filepath.Join(dev.FullPath, "resource"))

	if err != nil {
		return
	}

	lines := strings.Split(strings.TrimSpace(string(buf)), "\n")

	if index >= len(lines) {
		return 0, 0, fmt.Errorf("resource %d out of range", index)
	}

	fields := strings.Fields(lines[index])

	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("malformed resource entry %q", lines[index])
	}

	start, err := strconv.ParseUint(fields[0], 0, 64)

	if err != nil {
		return
	}

	end, err := strconv.ParseUint(fields[1], 0, 64)

	if err != nil {
		return
	}

	if start == 0 {
		return 0, 0, fmt.Errorf("resource %d is not assigned", index)
	}

	return start, int(end - start + 1), nil
}

// pciConfig adapts a u-root PCI device to the amdgpu configuration
// space interface.
type pciConfig struct {
	dev *pci.PCI
}

func (c *pciConfig) Read32(off int64) (uint32, error) {
	val, err := c.dev.ReadConfigRegister(off, 32)
	return uint32(val), err
}

func (c *pciConfig) Write32(off int64, val uint32) error {
	return c.dev.WriteConfigRegister(off, 32, uint64(val))
}

func (c *pciConfig) enable(bits uint64) error {
	cmd, err := c.dev.ReadConfigRegister(configCommand, 16)

	if err != nil {
		return err
	}

	return c.dev.WriteConfigRegister(configCommand, 16, cmd|bits)
}

func (c *pciConfig) EnableMemorySpace() error {
	return c.enable(commandMemorySpace)
}

func (c *pciConfig) EnableIOSpace() error {
	return c.enable(commandIOSpace)
}

func (c *pciConfig) EnableBusMastering() error {
	return c.enable(commandBusMastering)
}

// devMem maps device physical memory through /dev/mem.
type devMem struct {
	f *os.File

	mu sync.Mutex

	// mmap base of each view handed out, keyed by the view first
	// byte
	maps map[*byte][]byte
}

func openDevMem() (*devMem, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR, 0)

	if err != nil {
		return nil, err
	}

	return &devMem{
		f:    f,
		maps: make(map[*byte][]byte),
	}, nil
}

func (m *devMem) Map(addr uint64, size int, write bool) ([]byte, error) {
	page := uint64(unix.Getpagesize())
	off := addr % page

	prot := unix.PROT_READ

	if write {
		prot |= unix.PROT_WRITE
	}

	buf, err := unix.Mmap(int(m.f.Fd()), int64(addr-off), int(off)+size, prot, unix.MAP_SHARED)

	if err != nil {
		return nil, err
	}

	view := buf[off : uint64(size)+off]

	m.mu.Lock()
	m.maps[&view[0]] = buf
	m.mu.Unlock()

	return view, nil
}

func (m *devMem) Unmap(view []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.maps[&view[0]]

	if !ok {
		return fmt.Errorf("unknown mapping")
	}

	delete(m.maps, &view[0])

	return unix.Munmap(buf)
}

func (m *devMem) Close() error {
	return m.f.Close()
}
