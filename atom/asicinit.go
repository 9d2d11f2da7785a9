// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package atom

import (
	"fmt"
	"log"
)

// AsicInit performs the GPU power-on self-test by executing the
// AsicInit command table with the default engine and memory clocks
// advertised in the firmware information block.
func (b *Bios) AsicInit(dev Device) error {
	var fw FirmwareInfoV22

	if err := b.img.ReadStruct(uint32(b.dataTable.Entries[dataTableFirmwareInfo]), &fw); err != nil {
		return err
	}

	if fw.Header.FormatRevision != 2 || fw.Header.ContentRevision != 2 {
		return fmt.Errorf("%w: firmware info revision %d.%d", ErrIO,
			fw.Header.FormatRevision, fw.Header.ContentRevision)
	}

	params := make([]uint32, asicInitParamWords)
	params[0] = fw.DefaultSclkFreq
	params[1] = fw.DefaultMclkFreq

	if b.Debug {
		log.Printf("atom: asic_init sclk=%dkHz mclk=%dkHz", fw.DefaultSclkFreq*10, fw.DefaultMclkFreq*10)
	}

	return Execute(b, dev, CommandAsicInit, params)
}
