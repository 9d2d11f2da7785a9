// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amdgpu

// Volcanic Islands register indices, from the amdgpu bif_5_0_d.h
// header. Both must lie within the mapped MMIO window.
const (
	regPCIEIndex = 0xe
	regPCIEData  = 0xf
)

// PCI identifiers of supported adapters.
const (
	// VendorAMD is the PCI vendor ID of AMD/ATI devices.
	VendorAMD = 0x1002
)

// supportedModels lists the device IDs the POST path is validated on.
var supportedModels = []uint16{
	0x67df, // RX 580X
}

// Probe reports whether the PCI identifiers belong to a supported
// adapter.
func Probe(vendor uint16, device uint16) bool {
	if vendor != VendorAMD {
		return false
	}

	for _, id := range supportedModels {
		if id == device {
			return true
		}
	}

	return false
}
