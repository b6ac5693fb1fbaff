// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vcpu

import (
	"log"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/pmp"
)

// mstatus fields owned by the payload, saved and restored by the world
// switch.
const payloadStatus = arch.MstatusSIE | arch.MstatusSPIE | arch.MstatusSPP |
	arch.MstatusSUM | arch.MstatusMXR | arch.MstatusFS | arch.MstatusVS

// mip lines which the firmware can raise for the payload.
const payloadPending = arch.MipSSIP | arch.MipSTIP

// counters always available to the firmware.
const firmwareCounters = arch.CounterCY | arch.CounterTM | arch.CounterIR

// supervisor registers handed to the payload hardware as is.
var supervisorRegisters = []arch.Register{
	arch.Stvec, arch.Sscratch, arch.Sepc, arch.Scause, arch.Stval, arch.Satp,
}

var hypervisorRegisters = []arch.Register{
	arch.Hstatus, arch.Hedeleg, arch.Hideleg, arch.Hvip, arch.Hie,
	arch.Hcounteren, arch.Htimedelta, arch.Htval, arch.Htinst, arch.Hgatp,
	arch.Henvcfg, arch.Vsstatus, arch.Vsie, arch.Vstvec, arch.Vsscratch,
	arch.Vsepc, arch.Vscause, arch.Vstval, arch.Vsip, arch.Vsatp,
}

func (h *Hart) csrField(r arch.Register) *uint64 {
	c := &h.Csr

	switch r {
	case arch.Stvec:
		return &c.Stvec
	case arch.Sscratch:
		return &c.Sscratch
	case arch.Sepc:
		return &c.Sepc
	case arch.Scause:
		return &c.Scause
	case arch.Stval:
		return &c.Stval
	case arch.Satp:
		return &c.Satp
	case arch.Hstatus:
		return &c.Hstatus
	case arch.Hedeleg:
		return &c.Hedeleg
	case arch.Hideleg:
		return &c.Hideleg
	case arch.Hvip:
		return &c.Hvip
	case arch.Hie:
		return &c.Hie
	case arch.Hcounteren:
		return &c.Hcounteren
	case arch.Htimedelta:
		return &c.Htimedelta
	case arch.Htval:
		return &c.Htval
	case arch.Htinst:
		return &c.Htinst
	case arch.Hgatp:
		return &c.Hgatp
	case arch.Henvcfg:
		return &c.Henvcfg
	case arch.Vsstatus:
		return &c.Vsstatus
	case arch.Vsie:
		return &c.Vsie
	case arch.Vstvec:
		return &c.Vstvec
	case arch.Vsscratch:
		return &c.Vsscratch
	case arch.Vsepc:
		return &c.Vsepc
	case arch.Vscause:
		return &c.Vscause
	case arch.Vstval:
		return &c.Vstval
	case arch.Vsip:
		return &c.Vsip
	case arch.Vsatp:
		return &c.Vsatp
	}

	panic("no virtual field for " + r.String())
}

func (h *Hart) installRegisters(m *Machine, regs []arch.Register) {
	for _, r := range regs {
		m.Arch.WriteCSR(r, *h.csrField(r))
	}
}

func (h *Hart) saveRegisters(m *Machine, regs []arch.Register) {
	for _, r := range regs {
		*h.csrField(r) = m.Arch.ReadCSR(r)
	}
}

// SwitchToPayload installs the virtual supervisor state on the hardware and
// programs the PMP window with the virtual PMP entries configured by the
// firmware. It must be called once the virtual mode left M, the returned
// Flush must be consumed before resuming the payload.
func (h *Hart) SwitchToPayload(m *Machine) pmp.Flush {
	c := &h.Csr
	ext := h.ext()

	m.Arch.WriteCSR(arch.Mstatus, c.Mstatus&^(arch.MstatusMIE|arch.MstatusMPRV|arch.MstatusMPP))
	m.Arch.WriteCSR(arch.Mideleg, c.Mideleg)
	m.Arch.WriteCSR(arch.Medeleg, c.Medeleg)
	m.Arch.WriteCSR(arch.Mie, c.Mie)

	mip := m.Arch.ReadCSR(arch.Mip)&^payloadPending | c.Mip&payloadPending
	m.Arch.WriteCSR(arch.Mip, mip)

	counters := c.Mcounteren

	if !m.DelegatePerfCounters {
		counters &= firmwareCounters
	}

	m.Arch.WriteCSR(arch.Mcounteren, counters)

	if ext.HasS {
		h.installRegisters(m, supervisorRegisters)
		m.Arch.WriteCSR(arch.Scounteren, c.Scounteren)
	}

	if ext.HasMenvcfg {
		m.Arch.WriteCSR(arch.Menvcfg, c.Menvcfg)
	}

	if ext.HasSenvcfg {
		m.Arch.WriteCSR(arch.Senvcfg, c.Senvcfg)
	}

	if ext.HasSstc {
		m.Arch.WriteCSR(arch.Stimecmp, c.Stimecmp)
	}

	if ext.HasH {
		h.installRegisters(m, hypervisorRegisters)
	}

	l := m.PMP
	l.SetInactive(l.ScratchIndex(), 0)

	addrs, cfgs := h.VirtualPMP()

	if err := l.LoadWindow(addrs, cfgs, l.WindowIndex(), len(addrs)); err != nil {
		log.Printf("hart %d: %v", h.HartID, err)
	}

	if h.NbPMP > 0 {
		l.SetAllMemory(l.CatchAllIndex(), 0)
	} else {
		l.SetAllMemory(l.CatchAllIndex(), pmp.RWX)
	}

	return m.Arch.WritePMP(l)
}

// SwitchToFirmware saves the payload supervisor state into the virtual
// registers and restores the hardware configuration in which the firmware
// executes: no delegation, no translation and the PMP window opened to
// all memory. It must be called once the virtual mode entered M, the
// returned Flush must be consumed before resuming the firmware.
func (h *Hart) SwitchToFirmware(m *Machine) pmp.Flush {
	c := &h.Csr
	ext := h.ext()

	status := m.Arch.ReadCSR(arch.Mstatus)
	c.Mstatus = c.Mstatus&^payloadStatus | status&payloadStatus&h.mstatusWritable()
	c.Mstatus &^= arch.MstatusMPRV

	c.Mie = m.Arch.ReadCSR(arch.Mie) & h.mieMask()

	mip := m.Arch.ReadCSR(arch.Mip)
	c.Mip = c.Mip&^payloadPending | mip&payloadPending&h.mipMask()

	if ext.HasS {
		h.saveRegisters(m, supervisorRegisters)
		c.Scounteren = m.Arch.ReadCSR(arch.Scounteren) & counterenMask
	}

	if ext.HasSenvcfg {
		c.Senvcfg = m.Arch.ReadCSR(arch.Senvcfg) & arch.EnvcfgFIOM
	}

	if ext.HasSstc {
		c.Stimecmp = m.Arch.ReadCSR(arch.Stimecmp)
	}

	if ext.HasH {
		h.saveRegisters(m, hypervisorRegisters)
	}

	return h.installFirmware(m)
}

// installFirmware programs the hardware for firmware execution.
func (h *Hart) installFirmware(m *Machine) pmp.Flush {
	c := &h.Csr
	ext := h.ext()

	m.Arch.WriteCSR(arch.Mideleg, 0)
	m.Arch.WriteCSR(arch.Medeleg, 0)
	m.Arch.WriteCSR(arch.Mcounteren, firmwareCounters)

	if ext.HasS {
		m.Arch.WriteCSR(arch.Satp, 0)
	}

	if ext.HasSenvcfg {
		m.Arch.WriteCSR(arch.Senvcfg, 0)
	}

	if ext.HasMenvcfg {
		m.Arch.WriteCSR(arch.Menvcfg, c.Menvcfg)
	}

	status := m.Arch.ReadCSR(arch.Mstatus)
	status &^= arch.MstatusMIE | arch.MstatusMPRV | arch.MstatusSUM |
		arch.MstatusMXR | arch.MstatusFS | arch.MstatusVS
	status |= arch.MstatusTW | c.Mstatus&(arch.MstatusFS|arch.MstatusVS)
	m.Arch.WriteCSR(arch.Mstatus, status)

	m.Arch.WriteCSR(arch.Mie, h.firmwareMie())
	m.Arch.ClearCSRBits(arch.Mip, payloadPending)

	l := m.PMP
	l.ClearWindow()
	l.SetAllMemory(l.CatchAllIndex(), pmp.RWX)

	if c.Mstatus&arch.MstatusMPRV != 0 {
		l.SetAllMemory(l.ScratchIndex(), pmp.X)
	} else {
		l.SetInactive(l.ScratchIndex(), 0)
	}

	return m.Arch.WritePMP(l)
}

// Boot configures the hardware for the first firmware execution at entry,
// with a0 holding the hart identifier and a1 the device tree address. The
// virtual PMP count is capped to the PMP window of the machine.
func (h *Hart) Boot(m *Machine, entry uint64, dtb uint64) pmp.Flush {
	if n := m.PMP.WindowSize(); h.NbPMP > n {
		log.Printf("hart %d: %d virtual PMP entries exceed the window, capped to %d", h.HartID, h.NbPMP, n)
		h.NbPMP = n
	}

	h.Mode = arch.M
	h.PC = entry
	h.SetReg(10, h.HartID)
	h.SetReg(11, dtb)

	return h.installFirmware(m)
}
