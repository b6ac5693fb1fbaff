// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && riscv64

package main

import (
	"unsafe"

	"github.com/usbarmory/GoVFM/monitor"
)

const outputLimit = 1024
const flushChr = 0x0a // \n

var output [outputLimit]byte
var outputLen int

// defined in api_riscv64.s
func vfmCall(fid uint64, a0 uint64, a1 uint64, a2 uint64) uint64
func sbiCall(eid uint64, fid uint64, a0 uint64) uint64

// bufferedLog forwards complete lines to the monitor log.
func bufferedLog(c byte) {
	output[outputLen] = c
	outputLen++

	if c == flushChr || outputLen == outputLimit {
		vfmCall(monitor.FIDLog, monitor.LevelInfo, uint64(uintptr(unsafe.Pointer(&output[0]))), uint64(outputLen))
		outputLen = 0
	}
}
