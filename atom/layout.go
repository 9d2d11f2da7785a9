// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package atom

// All VBIOS structures are little-endian and byte-packed. Blank fields
// cover the regions the driver never consults.

// ROM is the expansion ROM header at offset 0 of the image.
type ROM struct {
	Magic           uint16
	_               [45]byte
	NumberOfStrings uint8
	ATIMagic        [10]byte
	_               [14]byte
	RomTableOffset  uint16
	_               [36]byte
	VBIOSNameOffset uint16
}

// romSignature is the PC expansion ROM magic at offset 0.
const romSignature = 0xAA55

// TableHeader precedes every command and data table structure.
type TableHeader struct {
	StructureSize   uint16
	FormatRevision  uint8
	ContentRevision uint8
}

const tableHeaderSize = 4

// ROMTable is the master table located through ROM.RomTableOffset.
type ROMTable struct {
	Header               TableHeader
	Magic                [4]byte
	BIOSSegmentAddress   uint16
	ProtectedModeOffset  uint16
	ConfigFilenameOffset uint16
	CRCBlockOffset       uint16
	BootupMessageOffset  uint16
	Int10Offset          uint16
	PCIBusDevInitCode    uint16
	IOBaseAddress        uint16
	SubsystemVendorID    uint16
	SubsystemID          uint16
	PCIInfoOffset        uint16
	CmdTableOffset       uint16
	DataTableOffset      uint16
	_                    uint16
}

// DataTableV11 indexes the per-subsystem data blocks. Only two entries
// are consulted by the POST path, the rest are reachable through
// SetDataBlock.
type DataTableV11 struct {
	Header  TableHeader
	Entries [34]uint16
}

// DataTableV11 entry indices.
const (
	dataTableFirmwareInfo     = 4
	dataTableIndirectIOAccess = 23
)

// FirmwareInfoV22 carries the power-on clock defaults. Many more
// fields follow in the VBIOS, the driver does not consult them.
type FirmwareInfoV22 struct {
	Header           TableHeader
	FirmwareRevision uint32
	DefaultSclkFreq  uint32 // in 10kHz units
	DefaultMclkFreq  uint32 // in 10kHz units
}

// commandTableEntry is the 6-byte header preceding command bytecode.
type commandTableEntry struct {
	Size uint16
	_    uint16
	WS   uint8
	PS   uint8 // bit 7 reserved
}

const commandHeaderSize = 6

// CommandDescriptor groups the interesting bits of a command table
// entry. Base is the image offset of the 6-byte header, the bytecode
// begins at Base + commandHeaderSize.
type CommandDescriptor struct {
	Base               uint16
	Size               uint16
	WorkSpaceSize      uint8
	ParameterSpaceSize uint8
}

// asicInitParamWords is the parameter space size of AsicInitV11Parameters
// in 32-bit words: sclk, mclk and 14 reserved zero words.
const asicInitParamWords = 16
