// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && riscv64

package main

import (
	"log"
	"math"
	"os"
	"runtime"
	_ "unsafe"

	"github.com/usbarmory/tamago/soc/sifive/fu540"

	"github.com/usbarmory/GoVFM/mem"
	"github.com/usbarmory/GoVFM/monitor"
	"github.com/usbarmory/GoVFM/modules"
)

//go:linkname ramStart runtime/goos.RamStart
var ramStart uint64 = mem.PayloadStart

//go:linkname ramSize runtime/goos.RamSize
var ramSize uint64 = mem.PayloadSize

//go:linkname hwinit runtime/goos.Hwinit
func hwinit() {
	fu540.RV64.InitSupervisor()
}

//go:linkname printk runtime/goos.Printk
func printk(c byte) {
	bufferedLog(c)
}

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)
}

func main() {
	log.Printf("%s/%s (%s) • payload (S-mode)", runtime.GOOS, runtime.GOARCH, runtime.Version())

	// served by the offload module when loaded, by the firmware otherwise
	if err := sbiCall(modules.SBITimeEID, 0, math.MaxUint64); err != 0 {
		log.Printf("payload set_timer error %d", int64(err))
	}

	log.Printf("payload is about to request the benchmark report")
	vfmCall(monitor.FIDBenchmark, 0, 0, 0)

	// this should be unreachable
	log.Printf("payload says goodbye")
	vfmCall(monitor.FIDFailure, 0, 0, 0)
}
