// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !no_offload

package modules

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/vcpu"
)

// SBI extensions served by the offload module.
const (
	SBITimeEID = 0x54494d45
	SBIIPIEID  = 0x735049

	sbiSetTimer = 0
	sbiSendIPI  = 0
	sbiSuccess  = 0
)

// general purpose register numbers
const (
	regA0 = 10
	regA1 = 11
	regA6 = 16
	regA7 = 17
)

// Offload serves the payload timer and inter-processor interrupt SBI calls
// directly from the monitor, avoiding two world switches per call.
type Offload struct {
	Base

	// timer is indexed by hart and only accessed by its owner.
	timer []bool
	// ipi is set by the sender and cleared by the target hart.
	ipi []atomic.Bool
}

func init() {
	Register("offload", NewOffload)
}

// NewOffload returns the offload module.
func NewOffload(opts Options) (Module, error) {
	if opts.Harts <= 0 {
		return nil, errors.New("invalid hart count")
	}

	return &Offload{
		timer: make([]bool, opts.Harts),
		ipi:   make([]atomic.Bool, opts.Harts),
	}, nil
}

func (o *Offload) Name() string { return "offload" }

func (o *Offload) hart(h *vcpu.Hart) (int, bool) {
	hart := int(h.HartID)
	return hart, hart < len(o.timer)
}

// raise sets a supervisor interrupt line for the payload.
func raise(h *vcpu.Hart, m *vcpu.Machine, line uint64) {
	h.Csr.Mip |= line

	if !h.InFirmware() {
		m.Arch.SetCSRBits(arch.Mip, line)
	}
}

func (o *Offload) EcallFromPayload(h *vcpu.Hart, m *vcpu.Machine) Action {
	hart, ok := o.hart(h)

	if !ok || m.Clint == nil {
		return NotHandled
	}

	eid := h.Reg(regA7)
	fid := h.Reg(regA6)

	switch {
	case eid == SBITimeEID && fid == sbiSetTimer:
		o.timer[hart] = true
		m.Clint.SetVirtualMtimecmp(hart, h.Reg(regA0))

		h.Csr.Mip &^= arch.MipSTIP
		m.Arch.ClearCSRBits(arch.Mip, arch.MipSTIP)

		h.Csr.Mie |= arch.MipMTIP
		m.Arch.SetCSRBits(arch.Mie, arch.MipMTIP)
	case eid == SBIIPIEID && fid == sbiSendIPI:
		o.sendIPI(h, m, h.Reg(regA0), h.Reg(regA1))
	default:
		return NotHandled
	}

	h.SetReg(regA0, sbiSuccess)
	h.SetReg(regA1, 0)
	h.PC += 4

	return Handled
}

func (o *Offload) sendIPI(h *vcpu.Hart, m *vcpu.Machine, mask uint64, base uint64) {
	for hart := 0; hart < len(o.ipi) && hart < m.Clint.Harts(); hart++ {
		if base != math.MaxUint64 {
			if uint64(hart) < base || uint64(hart)-base >= 64 || (mask>>(uint64(hart)-base))&1 == 0 {
				continue
			}
		}

		if uint64(hart) == h.HartID {
			raise(h, m, arch.MipSSIP)
			continue
		}

		o.ipi[hart].Store(true)
		m.Clint.TriggerPolicyInterrupt(hart)
	}
}

func (o *Offload) TrapFromPayload(h *vcpu.Hart, m *vcpu.Machine) Action {
	hart, ok := o.hart(h)

	if !ok || m.Clint == nil || h.Trap.Mcause != arch.MachineTimerInterrupt {
		return NotHandled
	}

	if !o.timer[hart] || !m.Clint.TimerPending(hart) {
		return NotHandled
	}

	o.timer[hart] = false
	m.Clint.SetVirtualMtimecmp(hart, math.MaxUint64)
	raise(h, m, arch.MipSTIP)

	return Handled
}

func (o *Offload) OnInterrupt(h *vcpu.Hart, m *vcpu.Machine) Action {
	hart, ok := o.hart(h)

	if !ok || !o.ipi[hart].Swap(false) {
		return NotHandled
	}

	raise(h, m, arch.MipSSIP)

	return Handled
}
