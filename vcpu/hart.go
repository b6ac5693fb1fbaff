// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package vcpu implements the virtual hart: its architectural state, the
// CSR access layer enforcing legality masks, the privileged instruction and
// memory access emulators and the world switch between firmware and payload.
//
// A Hart is exclusively owned by the physical hart which created it, no
// method is safe for concurrent use.
package vcpu

import (
	"fmt"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/device"
	"github.com/usbarmory/GoVFM/pmp"
)

// Machine holds the resources used by the emulation of a hart.
type Machine struct {
	// Arch performs every hardware side effect.
	Arch arch.Architecture
	// PMP is the hardware PMP layout of the hart.
	PMP *pmp.Layout
	// Devices are the memory mapped devices emulated for the firmware.
	Devices device.Devices
	// Clint is the virtual CLINT, nil when not emulated.
	Clint *device.Clint
	// DelegatePerfCounters exposes the hardware performance counters to
	// the payload as configured by the firmware, otherwise only cycle,
	// time and instret can be enabled.
	DelegatePerfCounters bool
}

// CsrBlock holds every virtualized control and status register, each field
// satisfies its legality mask after any Hart.Set.
type CsrBlock struct {
	Mstatus       uint64
	Misa          uint64
	Medeleg       uint64
	Mideleg       uint64
	Mie           uint64
	Mip           uint64
	Mtvec         uint64
	Mcounteren    uint64
	Menvcfg       uint64
	Mcountinhibit uint64
	Mscratch      uint64
	Mepc          uint64
	Mcause        uint64
	Mtval         uint64
	Mtinst        uint64
	Mtval2        uint64
	Mcycle        uint64
	Minstret      uint64
	Mhpmcounter   [arch.NumHPM]uint64
	Mhpmevent     [arch.NumHPM]uint64

	// Pmpcfg holds the even pmpcfg registers (pmpcfg0, pmpcfg2, ...).
	Pmpcfg  [pmp.MaxEntries / 8]uint64
	Pmpaddr [pmp.MaxEntries]uint64

	Stvec      uint64
	Scounteren uint64
	Senvcfg    uint64
	Sscratch   uint64
	Sepc       uint64
	Scause     uint64
	Stval      uint64
	Satp       uint64
	Stimecmp   uint64

	Hstatus    uint64
	Hedeleg    uint64
	Hideleg    uint64
	Hvip       uint64
	Hip        uint64
	Hie        uint64
	Hgeip      uint64
	Hgeie      uint64
	Henvcfg    uint64
	Hcounteren uint64
	Htimedelta uint64
	Htval      uint64
	Htinst     uint64
	Hgatp      uint64

	Vsstatus  uint64
	Vsie      uint64
	Vstvec    uint64
	Vsscratch uint64
	Vsepc     uint64
	Vscause   uint64
	Vstval    uint64
	Vsip      uint64
	Vsatp     uint64

	Fcsr   uint64
	Vstart uint64
	Vxsat  uint64
	Vxrm   uint64
	Vl     uint64
	Vtype  uint64
	Vlenb  uint64
}

// Hart is the state of a virtual hart.
type Hart struct {
	// Regs are the guest general purpose registers, x0 is always zero.
	Regs [32]uint64
	// PC is the guest program counter.
	PC uint64
	// Mode is the virtual privilege mode, the firmware executes in M and
	// the payload in S or U.
	Mode arch.Mode
	// Trap is the snapshot of the last hardware trap.
	Trap arch.TrapInfo
	// Csr holds the virtual CSRs.
	Csr CsrBlock
	// NbPMP is the number of virtual PMP entries.
	NbPMP int
	// HW describes the hardware capabilities.
	HW arch.Hardware
	// HartID is the hart identifier.
	HartID uint64
	// NbExits counts the traps into the monitor.
	NbExits uint64
}

// New returns a virtual hart in its reset state, ready to execute the
// firmware in machine mode.
func New(hartID uint64, hw arch.Hardware, nbPMP int) *Hart {
	if nbPMP > pmp.MaxEntries {
		nbPMP = pmp.MaxEntries
	}

	h := &Hart{
		Mode:   arch.M,
		HW:     hw,
		HartID: hartID,
		NbPMP:  nbPMP,
	}

	h.Csr.Misa = hw.Misa&^(3<<arch.MisaMXLShift) | arch.XLen64<<arch.MisaMXLShift
	h.Csr.Mstatus = h.mstatusFixed()

	return h
}

// Reg returns the value of a general purpose register.
func (h *Hart) Reg(i int) uint64 {
	if i == 0 {
		return 0
	}

	return h.Regs[i]
}

// SetReg sets a general purpose register, writes to x0 are ignored.
func (h *Hart) SetReg(i int, v uint64) {
	if i == 0 {
		return
	}

	h.Regs[i] = v
}

// InFirmware reports whether the hart is executing the firmware (virtual
// machine mode).
func (h *Hart) InFirmware() bool {
	return h.Mode == arch.M
}

// HardwareMode returns the privilege mode in which the guest executes on the
// physical hart, the firmware is deprivileged to U.
func (h *Hart) HardwareMode() arch.Mode {
	if h.Mode == arch.M {
		return arch.U
	}

	return h.Mode
}

// VirtualPMP returns the virtual pmpaddr values and configuration bytes of
// the implemented entries.
func (h *Hart) VirtualPMP() (addrs []uint64, cfgs []uint8) {
	for i := 0; i < h.NbPMP; i++ {
		addrs = append(addrs, h.Csr.Pmpaddr[i])
		cfgs = append(cfgs, h.pmpcfg(i))
	}

	return
}

func (h *Hart) pmpcfg(i int) uint8 {
	return uint8(h.Csr.Pmpcfg[i/8] >> (8 * (i % 8)))
}

func (h *Hart) String() string {
	return fmt.Sprintf("hart:%d mode:%s pc:%#x exits:%d", h.HartID, h.Mode, h.PC, h.NbExits)
}
