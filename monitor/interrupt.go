// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package monitor

import "github.com/usbarmory/GoVFM/arch"

// updatePending recomputes the virtual machine interrupt lines.
func (mon *Monitor) updatePending() {
	h := mon.Hart
	m := mon.Machine
	hart := int(h.HartID)

	mip := h.Csr.Mip &^ arch.MachineInterrupts

	if m.Clint != nil {
		if m.Clint.TimerPending(hart) {
			mip |= arch.MipMTIP
		}

		if m.Clint.VirtualMsip(hart) {
			mip |= arch.MipMSIP
		}
	}

	mip |= h.Trap.Mip & arch.MipMEIP
	h.Csr.Mip = mip & h.HW.Interrupts
}

// handleInterrupt acknowledges the physical interrupt, virtual lines are
// delivered by injectInterrupt.
func (mon *Monitor) handleInterrupt() (err error) {
	h := mon.Hart
	m := mon.Machine
	hart := int(h.HartID)

	switch h.Trap.Cause() {
	case arch.MTI, arch.MSI:
		if m.Clint == nil {
			return mon.fatal(ErrNoClint)
		}
	}

	switch h.Trap.Cause() {
	case arch.MTI:
		m.Clint.DisarmTimer(hart)
	case arch.MSI:
		m.Clint.ClearPhysicalMsip(hart)

		if m.Clint.TakePolicyInterrupt(hart) {
			mon.Modules.OnInterrupt(h, m)
		}
	}

	if h.InFirmware() {
		mon.Modules.TrapFromFirmware(h, m)
	} else {
		mon.Modules.TrapFromPayload(h, m)
	}

	return
}

// injectInterrupt delivers the highest priority virtual interrupt to the
// firmware, if any.
func (mon *Monitor) injectInterrupt() {
	h := mon.Hart
	m := mon.Machine

	irq, ok := h.NextInterrupt(m)

	if ok {
		h.InjectInterrupt(irq)
	}

	// a level triggered external line which cannot be delivered is masked
	// until the firmware enables it again
	switch h.Trap.Mcause {
	case arch.MachineExtInterrupt:
		if !ok || irq != arch.MEI {
			m.Arch.ClearCSRBits(arch.Mie, arch.MipMEIP)
		}
	case arch.SupervisorExtInterrupt:
		if !ok || irq != arch.SEI {
			m.Arch.ClearCSRBits(arch.Mie, arch.MipSEIP)
		}
	}
}
