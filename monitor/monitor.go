// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package monitor implements the trap dispatcher of the virtual firmware
// monitor: it resumes the guest on its hart, classifies every trap and
// routes it to the emulators, the policy modules or the guest itself.
package monitor

import (
	"io"
	"log"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/modules"
	"github.com/usbarmory/GoVFM/vcpu"
)

// Monitor is the trap dispatcher of a hart.
type Monitor struct {
	Hart    *vcpu.Hart
	Machine *vcpu.Machine
	Modules modules.Set

	// MaxExits stops the monitor after the given number of exits, 0
	// disables the limit.
	MaxExits uint64
	// Output receives guest log messages one byte at a time, log is used
	// when nil.
	Output func(c byte, firmware bool)
	// Report receives the benchmark dump, log is used when nil.
	Report io.Writer
	// Debug enables the logging of every trap.
	Debug bool
}

// New returns the dispatcher of a virtual hart.
func New(h *vcpu.Hart, m *vcpu.Machine, mods modules.Set) *Monitor {
	return &Monitor{
		Hart:    h,
		Machine: m,
		Modules: mods,
	}
}

func (mon *Monitor) reportWriter() io.Writer {
	if mon.Report != nil {
		return mon.Report
	}

	return log.Writer()
}

func (mon *Monitor) fatal(err error) error {
	h := mon.Hart

	return &FatalError{
		Err:    err,
		Hart:   h.HartID,
		Mode:   h.Mode,
		PC:     h.PC,
		Trap:   h.Trap,
		NbExit: h.NbExits,
	}
}

// Boot initializes the modules and prepares the first firmware execution.
func (mon *Monitor) Boot(entry uint64, dtb uint64) (err error) {
	if err = mon.Modules.Init(mon.Hart, mon.Machine); err != nil {
		return
	}

	mon.Hart.Boot(mon.Machine, entry, dtb).Flush()

	return
}

// Run executes the guest until an exit is requested (*ExitError) or a
// fatal condition occurs (*FatalError).
func (mon *Monitor) Run() (err error) {
	for {
		if err = mon.Step(); err != nil {
			return
		}
	}
}

// Step resumes the guest until the next trap and handles it.
func (mon *Monitor) Step() (err error) {
	h := mon.Hart

	if err = mon.Machine.PMP.Committed(); err != nil {
		return mon.fatal(err)
	}

	h.Trap = mon.Machine.Arch.RunVCPU(&h.Regs, h.PC, h.HardwareMode())

	return mon.HandleTrap()
}

// HandleTrap handles the trap in h.Trap.
func (mon *Monitor) HandleTrap() (err error) {
	h := mon.Hart
	m := mon.Machine

	if h.Trap.FromMonitor() {
		return mon.fatal(ErrMonitorTrap)
	}

	h.NbExits++

	if mon.MaxExits > 0 && h.NbExits > mon.MaxExits {
		return mon.fatal(ErrMaxExits)
	}

	if mon.Debug {
		log.Printf("hart %d: %s %s", h.HartID, world(h.InFirmware()), &h.Trap)
	}

	from := h.Mode
	h.PC = h.Trap.Mepc

	mon.updatePending()

	switch {
	case h.Trap.IsInterrupt():
		err = mon.handleInterrupt()
	case h.InFirmware():
		err = mon.handleFirmwareTrap()
	default:
		err = mon.handlePayloadTrap()
	}

	if err != nil {
		return
	}

	mon.updatePending()
	mon.injectInterrupt()

	switch {
	case from != arch.M && h.InFirmware():
		mon.Modules.SwitchFromPayloadToFirmware(h, m)
		h.SwitchToFirmware(m).Flush()
	case from == arch.M && !h.InFirmware():
		mon.Modules.SwitchFromFirmwareToPayload(h, m)
		h.SwitchToPayload(m).Flush()
	}

	return
}

func (mon *Monitor) handleFirmwareTrap() (err error) {
	h := mon.Hart
	m := mon.Machine

	if h.Trap.Cause() == arch.EcallFromU {
		if mon.isABI() {
			return mon.handleABI()
		}

		if mon.Modules.EcallFromFirmware(h, m) == modules.Handled {
			return
		}

		h.InjectException(arch.EcallFromM, 0)

		return
	}

	if mon.Modules.TrapFromFirmware(h, m) == modules.Handled {
		return
	}

	switch h.Trap.Cause() {
	case arch.IllegalInstruction:
		var raw uint32

		if raw, err = h.Fetch(m, h.PC); err != nil {
			h.EmulateJumpTrap()
			return nil
		}

		err = h.EmulatePrivileged(m, raw)
	case arch.LoadAddressMisaligned, arch.StoreAddressMisaligned:
		err = h.EmulateMisaligned(m)
	case arch.LoadAccessFault, arch.StoreAccessFault:
		err = h.EmulateAccessFault(m)
	case arch.Breakpoint, arch.InstructionAccessFault, arch.InstructionAddressMisaligned:
		h.EmulateJumpTrap()
	default:
		return mon.fatal(ErrNotImplemented)
	}

	if err != nil {
		return mon.fatal(err)
	}

	return
}

func (mon *Monitor) handlePayloadTrap() (err error) {
	h := mon.Hart
	m := mon.Machine

	switch h.Trap.Cause() {
	case arch.EcallFromU, arch.EcallFromS:
		if mon.isABI() {
			return mon.handleABI()
		}

		if mon.Modules.EcallFromPayload(h, m) == modules.Handled {
			return
		}
	default:
		if mon.Modules.TrapFromPayload(h, m) == modules.Handled {
			return
		}
	}

	h.EmulateJumpTrap()

	return
}
