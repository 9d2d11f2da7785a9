// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package atom

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Image is an immutable VBIOS byte buffer with bounds-checked
// little-endian accessors. Multi-byte reads are byte-granular, VBIOS
// structures have no alignment guarantees.
type Image struct {
	data []byte
}

// NewImage wraps a VBIOS buffer. The buffer is owned by the returned
// Image and must not be modified by the caller.
func NewImage(data []byte) *Image {
	return &Image{data: data}
}

// Len returns the image size in bytes.
func (img *Image) Len() int {
	return len(img.data)
}

// Read8 returns the byte at off.
func (img *Image) Read8(off uint32) (uint8, error) {
	if off >= uint32(len(img.data)) {
		return 0, fmt.Errorf("%w: read of %#x beyond VBIOS size %#x", ErrIO, off, len(img.data))
	}

	return img.data[off], nil
}

// Read16 returns the little-endian 16-bit value at off.
func (img *Image) Read16(off uint32) (uint16, error) {
	lo, err := img.Read8(off)

	if err != nil {
		return 0, err
	}

	hi, err := img.Read8(off + 1)

	if err != nil {
		return 0, err
	}

	return uint16(lo) | uint16(hi)<<8, nil
}

// Read32 returns the little-endian 32-bit value at off.
func (img *Image) Read32(off uint32) (uint32, error) {
	lo, err := img.Read16(off)

	if err != nil {
		return 0, err
	}

	hi, err := img.Read16(off + 2)

	if err != nil {
		return 0, err
	}

	return uint32(lo) | uint32(hi)<<16, nil
}

// ReadStruct decodes the packed little-endian structure at off into
// data, which must be a pointer to a fixed-size value. An error is
// returned if the structure does not lie entirely within the image.
func (img *Image) ReadStruct(off uint32, data any) error {
	n := binary.Size(data)

	if n < 0 {
		return fmt.Errorf("%w: unsized structure %T", ErrIO, data)
	}

	if uint64(off)+uint64(n) > uint64(len(img.data)) {
		return fmt.Errorf("%w: structure %T at %#x beyond VBIOS size %#x", ErrIO, data, off, len(img.data))
	}

	_, err := binary.Decode(img.data[off:uint32(n)+off], binary.LittleEndian, data)

	return err
}

// Validate checks the expansion ROM signature and the master table
// magic. Everything else about the image is only validated on access.
func (img *Image) Validate() error {
	var rom ROM

	if err := img.ReadStruct(0, &rom); err != nil {
		return fmt.Errorf("%w: VBIOS size is too small", ErrIO)
	}

	if rom.Magic != romSignature {
		return fmt.Errorf("%w: VBIOS signature incorrect %#x", ErrNotPresent, rom.Magic)
	}

	if rom.RomTableOffset == 0 {
		return fmt.Errorf("%w: cannot locate VBIOS ROM table header", ErrNotPresent)
	}

	var tab ROMTable

	if err := img.ReadStruct(uint32(rom.RomTableOffset), &tab); err != nil {
		return err
	}

	if !bytes.Equal(tab.Magic[:], []byte("ATOM")) && !bytes.Equal(tab.Magic[:], []byte("MOTA")) {
		return fmt.Errorf("%w: invalid VBIOS magic %q", ErrNotPresent, tab.Magic)
	}

	return nil
}
