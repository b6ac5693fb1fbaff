// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && riscv64

package mem

import (
	"github.com/usbarmory/tamago/dma"
)

var (
	FirmwareRegion *dma.Region
	PayloadRegion  *dma.Region
)

func Init() {
	FirmwareRegion, _ = dma.NewRegion(FirmwareStart, FirmwareSize, false)
	FirmwareRegion.Reserve(FirmwareSize, 0)

	PayloadRegion, _ = dma.NewRegion(PayloadStart, PayloadSize, false)
	PayloadRegion.Reserve(PayloadSize, 0)
}
