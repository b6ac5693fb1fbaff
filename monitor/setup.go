// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package monitor

import (
	"fmt"
	"log"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/config"
	"github.com/usbarmory/GoVFM/device"
	"github.com/usbarmory/GoVFM/pmp"
	"github.com/usbarmory/GoVFM/vcpu"
)

// Setup assembles the dispatcher of a hart from the boot configuration, the
// CLINT driver is ignored when the configuration disables its emulation.
func Setup(a arch.Architecture, driver device.Driver, hartID uint64, conf *config.Config) (mon *Monitor, err error) {
	var devs device.Devices
	var clint *device.Clint

	hw, err := a.DetectHardware()

	if err != nil {
		return nil, fmt.Errorf("could not detect hardware, %v", err)
	}

	log.Printf("VFM hart %d %s", hartID, &hw)

	if conf.Memory.Clint != 0 {
		if clint, err = device.NewClint(conf.Memory.Clint, conf.Harts, driver); err != nil {
			return
		}

		devs = append(devs, clint)
	}

	mods, err := conf.LoadModules()

	if err != nil {
		return
	}

	l, err := pmp.New(pmp.Config{
		Entries:       hw.PMPs,
		Monitor:       conf.Memory.Monitor.PMP(),
		Devices:       devs.Regions(),
		ModuleEntries: mods.NumPMPs(),
		VirtualPMPs:   conf.VirtualPMPs,
	})

	if err != nil {
		return nil, fmt.Errorf("could not partition PMP, %v", err)
	}

	m := &vcpu.Machine{
		Arch:                 a,
		PMP:                  l,
		Devices:              devs,
		Clint:                clint,
		DelegatePerfCounters: conf.DelegatePerfCounters,
	}

	mon = New(vcpu.New(hartID, hw, l.WindowSize()), m, mods)
	mon.MaxExits = conf.MaxExits
	mon.Debug = conf.Debug

	return
}
