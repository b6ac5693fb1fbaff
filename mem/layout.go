// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package mem

// QEMU sifive_u memory layout.
const (
	// Monitor
	MonitorStart = 0x80000000
	MonitorSize  = 0x01f00000 // 31MB

	// Monitor DMA (relocated to avoid conflicts with the guests)
	MonitorDMAStart = 0x81f00000
	MonitorDMASize  = 0x00100000 // 1MB

	// Firmware (deprivileged M-mode)
	FirmwareStart = 0x82000000
	FirmwareSize  = 0x02000000 // 32MB

	// Device tree blob, at the end of the firmware region
	DTBStart = FirmwareStart + FirmwareSize - DTBSize
	DTBSize  = 0x00100000 // 1MB

	// Payload (S-mode)
	PayloadStart = 0x84000000
	PayloadSize  = 0x0c000000 // 192MB

	// Core local interruptor
	ClintStart = 0x02000000
)
