// Copyright (c) The gpu-post authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build linux

// gpu-post performs early initialization (POST) of a supported AMD
// discrete GPU by executing its AtomBIOS AsicInit procedure.
//
// Usage:
//
//	gpu-post [pci address glob]
//
// The environment variable ATOMBIOS_DEBUG=1 enables per-instruction
// execution tracing.
package main

import (
	"errors"
	"log"
	"os"
	"time"

	"github.com/hako/durafmt"

	"github.com/usbarmory/gpu-post/amdgpu"
)

func init() {
	log.SetFlags(0)
}

func main() {
	var globs []string

	if len(os.Args) > 1 {
		globs = os.Args[1:]
	}

	dev, err := findAdapter(globs)

	if err != nil {
		log.Fatalf("gpu-post: %v", err)
	}

	log.Printf("gpu-post: AMD adapter @ %s", dev.Addr)

	mmioAddr, mmioSize, err := resource(dev, mmioBAR)

	if err != nil {
		log.Fatalf("gpu-post: %v", err)
	}

	_, romSize, err := resource(dev, romBAR)

	if err != nil {
		log.Fatalf("gpu-post: %v", err)
	}

	mm, err := openDevMem()

	if err != nil {
		log.Fatalf("gpu-post: %v", err)
	}
	defer mm.Close()

	adapter := amdgpu.NewAdapter(&pciConfig{dev: dev}, mm, mmioAddr, mmioSize, romSize)
	adapter.Debug = os.Getenv("ATOMBIOS_DEBUG") == "1"
	defer adapter.Close()

	start := time.Now()

	if err = adapter.Initialize(); err != nil && !errors.Is(err, amdgpu.ErrNoModeset) {
		log.Fatalf("gpu-post: POST failed, %v", err)
	}

	log.Printf("gpu-post: POST completed in %s", durafmt.Parse(time.Since(start).Round(time.Millisecond)))
}
