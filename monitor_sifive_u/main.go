// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && riscv64

package main

import (
	_ "embed"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	_ "unsafe"

	"github.com/usbarmory/tamago/board/qemu/sifive_u"
	"github.com/usbarmory/tamago/dma"
	"github.com/usbarmory/tamago/soc/sifive/fu540"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/config"
	"github.com/usbarmory/GoVFM/device"
	"github.com/usbarmory/GoVFM/mem"
	"github.com/usbarmory/GoVFM/monitor"
	"github.com/usbarmory/GoVFM/monitor_sifive_u/cmd"
	"github.com/usbarmory/GoVFM/util"
)

// The firmware and payload ELF binaries are embedded within the monitor
// executable, using Go embed package.

//go:embed config.yaml
var configYAML []byte

//go:embed assets/firmware.elf
var firmwareELF []byte

//go:embed assets/payload.elf
var payloadELF []byte

//go:linkname ramStart runtime/goos.RamStart
var ramStart uint64 = mem.MonitorStart

//go:linkname ramSize runtime/goos.RamSize
var ramSize uint64 = mem.MonitorSize

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)

	mem.Init()
	dma.Init(mem.MonitorDMAStart, mem.MonitorDMASize)

	cmd.Banner = fmt.Sprintf("%s/%s (%s) • Virtual Firmware Monitor (M-mode)", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func main() {
	log.Println(cmd.Banner)

	conf, err := config.Parse(configYAML)

	if err != nil {
		log.Fatalf("VFM could not parse configuration, %v", err)
	}

	entry, err := load(conf)

	if err != nil {
		log.Fatalf("VFM could not load guests, %v", err)
	}

	mon, err := monitor.Setup(arch.NewNative(fu540.RV64), &device.MMIO{Base: conf.Memory.Clint}, 0, conf)

	if err != nil {
		log.Fatalf("VFM could not initialize, %v", err)
	}

	mon.Output = util.BufferedStdoutLog
	mon.Report = os.Stdout

	cmd.Monitor = mon
	cmd.Config = conf
	cmd.Entry = entry
	cmd.Payload = payloadELF

	if conf.SSH != "" {
		if err = startSSH(conf.SSH); err != nil {
			log.Printf("VFM could not start SSH console, %v", err)
		}
	}

	if conf.Console {
		cmd.SerialConsole(sifive_u.UART0)
	} else {
		err = cmd.Run()
	}

	var exit *monitor.ExitError

	if errors.As(err, &exit) && !exit.Success {
		log.Printf("VFM guest reported failure")
	}

	log.Printf("VFM says goodbye")
}

func startSSH(addr string) (err error) {
	listener, err := net.Listen("tcp", addr)

	if err != nil {
		return
	}

	log.Printf("VFM SSH console on %s", listener.Addr())

	return cmd.SSHConsole(listener)
}
