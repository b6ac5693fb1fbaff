// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && riscv64

package main

import (
	"fmt"
	"log"

	"github.com/usbarmory/tamago/dma"

	"github.com/usbarmory/armory-boot/exec"

	"github.com/usbarmory/GoVFM/config"
	"github.com/usbarmory/GoVFM/mem"
)

func loadELF(name string, region *dma.Region, buf []byte) (entry uint64, err error) {
	image := &exec.ELFImage{
		Region: region,
		ELF:    buf,
	}

	if err = image.Load(); err != nil {
		return 0, fmt.Errorf("could not load %s, %v", name, err)
	}

	entry = uint64(image.Entry())

	log.Printf("VFM loaded %s size:%d entry:%#x", name, len(buf), entry)

	return
}

func inside(r config.Region, addr uint64) bool {
	return addr >= r.Start && addr < r.End()
}

// load places the firmware and payload images in their regions and returns
// the firmware entry point.
func load(conf *config.Config) (entry uint64, err error) {
	if entry, err = loadELF("firmware", mem.FirmwareRegion, firmwareELF); err != nil {
		return
	}

	if !inside(conf.Memory.Firmware, entry) {
		return 0, fmt.Errorf("firmware entry %#x outside its region", entry)
	}

	payload, err := loadELF("payload", mem.PayloadRegion, payloadELF)

	if err != nil {
		return
	}

	if !inside(conf.Memory.Payload, payload) {
		return 0, fmt.Errorf("payload entry %#x outside its region", payload)
	}

	return
}
