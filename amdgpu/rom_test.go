// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amdgpu

import (
	"bytes"
	"errors"
	"testing"

	"github.com/usbarmory/gpu-post/atom"
)

type cfgAccess struct {
	off int64
	val uint32
}

// fakeConfig emulates the adapter PCI configuration space.
type fakeConfig struct {
	regs    map[int64]uint32
	writes  []cfgAccess
	enabled []string
}

func newFakeConfig() *fakeConfig {
	return &fakeConfig{
		regs: make(map[int64]uint32),
	}
}

func (c *fakeConfig) Read32(off int64) (uint32, error) {
	return c.regs[off], nil
}

func (c *fakeConfig) Write32(off int64, val uint32) error {
	c.writes = append(c.writes, cfgAccess{off, val})
	c.regs[off] = val
	return nil
}

func (c *fakeConfig) EnableMemorySpace() error {
	c.enabled = append(c.enabled, "mem")
	return nil
}

func (c *fakeConfig) EnableIOSpace() error {
	c.enabled = append(c.enabled, "io")
	return nil
}

func (c *fakeConfig) EnableBusMastering() error {
	c.enabled = append(c.enabled, "master")
	return nil
}

// fakeMapper hands out copies of preloaded physical ranges.
type fakeMapper struct {
	mem    map[uint64][]byte
	mapped int
	unmaps int
}

func newFakeMapper() *fakeMapper {
	return &fakeMapper{
		mem: make(map[uint64][]byte),
	}
}

func (m *fakeMapper) Map(addr uint64, size int, write bool) ([]byte, error) {
	buf, ok := m.mem[addr]

	if !ok || len(buf) < size {
		return nil, errors.New("no such physical range")
	}

	m.mapped++
	return buf[:size], nil
}

func (m *fakeMapper) Unmap(buf []byte) error {
	m.unmaps++
	return nil
}

func TestReadExpansionROM(t *testing.T) {
	image := bytes.Repeat([]byte{0xa5}, 0x800)

	cfg := newFakeConfig()
	cfg.regs[expansionROMPointer] = 0xfc000000

	mm := newFakeMapper()
	mm.mem[0xfc000000] = image

	data, err := readExpansionROM(cfg, mm, len(image))

	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(data, image) {
		t.Fatal("ROM contents differ")
	}

	// the returned buffer is an owned copy
	image[0] = 0x00

	if data[0] != 0xa5 {
		t.Fatal("ROM contents alias the device mapping")
	}

	// decode is enabled for the copy and the pointer restored on
	// exit
	if len(cfg.writes) != 2 {
		t.Fatalf("config writes are %v", cfg.writes)
	}

	if cfg.writes[0] != (cfgAccess{expansionROMPointer, 0xfc000000 | expansionROMDecodeEnable}) {
		t.Fatalf("decode enable write is %v", cfg.writes[0])
	}

	if cfg.writes[1] != (cfgAccess{expansionROMPointer, 0xfc000000}) {
		t.Fatalf("restore write is %v", cfg.writes[1])
	}

	if mm.mapped != 1 || mm.unmaps != 1 {
		t.Fatalf("%d maps, %d unmaps", mm.mapped, mm.unmaps)
	}
}

func TestReadExpansionROMAbsent(t *testing.T) {
	cfg := newFakeConfig()
	mm := newFakeMapper()

	if _, err := readExpansionROM(cfg, mm, 0); !errors.Is(err, atom.ErrNotPresent) {
		t.Fatalf("zero sized ROM returned %v", err)
	}

	if _, err := readExpansionROM(cfg, mm, 0x800); !errors.Is(err, atom.ErrNotPresent) {
		t.Fatalf("zero ROM pointer returned %v", err)
	}

	if len(cfg.writes) != 0 {
		t.Fatalf("config writes are %v", cfg.writes)
	}
}

func TestReadExpansionROMRestoreOnError(t *testing.T) {
	cfg := newFakeConfig()
	cfg.regs[expansionROMPointer] = 0xfc000000

	// mapping fails, the pointer must still be restored
	if _, err := readExpansionROM(cfg, newFakeMapper(), 0x800); !errors.Is(err, atom.ErrNoMemory) {
		t.Fatalf("unmappable ROM returned %v", err)
	}

	if n := len(cfg.writes); n == 0 || cfg.writes[n-1] != (cfgAccess{expansionROMPointer, 0xfc000000}) {
		t.Fatalf("config writes are %v", cfg.writes)
	}
}
