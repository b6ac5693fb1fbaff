// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vcpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/decoder"
)

// ErrIllegalMPP is returned when mret targets a reserved privilege mode.
var ErrIllegalMPP = errors.New("illegal mstatus.MPP on mret")

const instrLen = 4

// Fetch reads the instruction at addr from the guest memory, compressed
// instructions are returned in the lower 16 bits.
func (h *Hart) Fetch(m *Machine, addr uint64) (raw uint32, err error) {
	var buf [4]byte

	n := uint64(2)

	for i := uint64(0); i < n; i++ {
		if buf[i], err = m.Arch.ReadByteAs(arch.M, addr+i); err != nil {
			return
		}

		if i == 1 && decoder.Length(uint32(binary.LittleEndian.Uint16(buf[:]))) == 4 {
			n = 4
		}
	}

	return binary.LittleEndian.Uint32(buf[:]), nil
}

// EmulatePrivileged emulates a privileged instruction executed by the
// firmware. Instructions which the firmware is not allowed to execute are
// reflected as an illegal instruction trap, a returned error is fatal.
func (h *Hart) EmulatePrivileged(m *Machine, raw uint32) (err error) {
	p := decoder.DecodePrivileged(raw, &h.HW)

	if p.Op.IsCSR() {
		return h.emulateCSR(m, p, raw)
	}

	switch p.Op {
	case decoder.Mret:
		return h.emulateMret(m)
	case decoder.Sret:
		return h.emulateSret(m, raw)
	case decoder.Wfi:
		// a pending virtual interrupt ends the wait immediately
		if h.Csr.Mie&h.Csr.Mip == 0 {
			m.Arch.WriteCSR(arch.Mie, h.firmwareMie())
			m.Arch.Wfi()
		}
	case decoder.SfenceVma:
		vaddr, asid := h.fenceOperands(p)
		m.Arch.SfenceVMA(vaddr, asid)
	case decoder.HfenceGvma, decoder.HfenceVvma:
		if !h.ext().HasH {
			h.InjectException(arch.IllegalInstruction, uint64(raw))
			return
		}

		addr, id := h.fenceOperands(p)

		if p.Op == decoder.HfenceGvma {
			m.Arch.HfenceGVMA(addr, id)
		} else {
			m.Arch.HfenceVVMA(addr, id)
		}
	default:
		// ecall, ebreak and unknown encodings
		h.InjectException(arch.IllegalInstruction, uint64(raw))
		return
	}

	h.PC += instrLen

	return
}

func (h *Hart) fenceOperands(p decoder.Privileged) (addr *uint64, id *uint64) {
	if p.Rs1 != 0 {
		v := h.Reg(p.Rs1)
		addr = &v
	}

	if p.Rs2 != 0 {
		v := h.Reg(p.Rs2)
		id = &v
	}

	return
}

func floatRegister(r arch.Register) bool {
	return r == arch.Fflags || r == arch.Frm || r == arch.Fcsr
}

func vectorRegister(r arch.Register) bool {
	switch r {
	case arch.Vstart, arch.Vxsat, arch.Vxrm, arch.Vcsr, arch.Vl, arch.Vtype, arch.Vlenb:
		return true
	}

	return false
}

func (h *Hart) emulateCSR(m *Machine, p decoder.Privileged, raw uint32) (err error) {
	var operand uint64

	if p.Op.Immediate() {
		operand = p.Uimm
	} else {
		operand = h.Reg(p.Rs1)
	}

	write := true

	switch p.Op {
	case decoder.Csrrs, decoder.Csrrc:
		write = p.Rs1 != 0
	case decoder.Csrrsi, decoder.Csrrci:
		write = p.Uimm != 0
	}

	status := h.Csr.Mstatus

	switch {
	case p.CSR == arch.Unknown,
		write && p.CSR.ReadOnly(),
		floatRegister(p.CSR) && status&arch.MstatusFS == 0,
		vectorRegister(p.CSR) && status&arch.MstatusVS == 0:
		h.InjectException(arch.IllegalInstruction, uint64(raw))
		return
	}

	var old uint64

	if p.Rd != 0 || (p.Op != decoder.Csrrw && p.Op != decoder.Csrrwi) {
		if old, err = h.readCSR(m, p.CSR); err != nil {
			return fmt.Errorf("%s, %w", p, err)
		}
	}

	if write {
		v := operand

		switch p.Op {
		case decoder.Csrrs, decoder.Csrrsi:
			v = old | operand
		case decoder.Csrrc, decoder.Csrrci:
			v = old &^ operand
		}

		if err = h.Set(m, p.CSR, v); err != nil {
			return fmt.Errorf("%s, %w", p, err)
		}
	}

	h.SetReg(p.Rd, old)
	h.PC += instrLen

	return
}

// readCSR returns the value of a CSR as observed by the firmware, which
// includes the live hardware state not tracked in the virtual copy.
func (h *Hart) readCSR(m *Machine, r arch.Register) (uint64, error) {
	switch r {
	case arch.Time:
		if m.Clint != nil {
			return m.Clint.Mtime(), nil
		}

		return m.Arch.ReadCSR(arch.Time), nil
	case arch.Mip:
		return h.pending(m), nil
	case arch.Sip:
		return h.pending(m) & h.Csr.Mideleg, nil
	}

	return h.Get(r)
}

// pending returns the virtual mip including the live supervisor external
// interrupt line.
func (h *Hart) pending(m *Machine) uint64 {
	if m == nil {
		return h.Csr.Mip
	}

	return h.Csr.Mip | m.Arch.ReadCSR(arch.Mip)&arch.MipSEIP
}

func (h *Hart) emulateMret(m *Machine) (err error) {
	status := h.Csr.Mstatus
	mode, ok := arch.ModeFromBits(status >> arch.MstatusMPPShift)

	if !ok {
		return ErrIllegalMPP
	}

	if status&arch.MstatusMPIE != 0 {
		status |= arch.MstatusMIE
	} else {
		status &^= arch.MstatusMIE
	}

	status |= arch.MstatusMPIE
	status &^= arch.MstatusMPP

	if mode != arch.M {
		status &^= arch.MstatusMPRV
	}

	if err = h.Set(m, arch.Mstatus, status); err != nil {
		return
	}

	h.Mode = mode
	h.PC = h.Csr.Mepc

	return
}

func (h *Hart) emulateSret(m *Machine, raw uint32) (err error) {
	if !h.ext().HasS {
		h.InjectException(arch.IllegalInstruction, uint64(raw))
		return
	}

	status := h.Csr.Mstatus
	mode := arch.U

	if status&arch.MstatusSPP != 0 {
		mode = arch.S
	}

	if status&arch.MstatusSPIE != 0 {
		status |= arch.MstatusSIE
	} else {
		status &^= arch.MstatusSIE
	}

	status |= arch.MstatusSPIE
	status &^= arch.MstatusSPP | arch.MstatusMPRV

	if err = h.Set(m, arch.Mstatus, status); err != nil {
		return
	}

	h.Mode = mode
	h.PC = h.Csr.Sepc

	return
}

// EmulateJumpTrap delivers the last hardware trap to the firmware trap
// handler, as the hardware would do when taking a trap into machine mode.
func (h *Hart) EmulateJumpTrap() {
	h.jumpTrap(h.Trap.Mcause, h.Trap.Mtval)
}

// InjectException delivers a synchronous exception to the firmware.
func (h *Hart) InjectException(cause uint64, tval uint64) {
	h.jumpTrap(cause, tval)
}

// InjectInterrupt delivers an interrupt to the firmware.
func (h *Hart) InjectInterrupt(irq int) {
	h.jumpTrap(arch.InterruptBit|uint64(irq), 0)
}

func (h *Hart) jumpTrap(mcause uint64, mtval uint64) {
	c := &h.Csr

	c.Mcause = mcause
	c.Mtval = mtval
	c.Mepc = h.PC & h.epcMask()

	status := c.Mstatus &^ (arch.MstatusMPP | arch.MstatusMPIE)
	status |= h.Mode.Bits() << arch.MstatusMPPShift

	if status&arch.MstatusMIE != 0 {
		status |= arch.MstatusMPIE
	}

	c.Mstatus = status &^ arch.MstatusMIE
	h.Mode = arch.M

	base := c.Mtvec &^ arch.TvecModeMask

	if c.Mtvec&arch.TvecModeMask == arch.TvecVectored && mcause&arch.InterruptBit != 0 {
		base += 4 * (mcause &^ arch.InterruptBit)
	}

	h.PC = base
}

// PendingInterrupt returns the lowest numbered interrupt which is enabled,
// pending and not delegated.
func PendingInterrupt(mie uint64, mip uint64, mideleg uint64) (irq int, ok bool) {
	pending := mie & mip &^ mideleg

	if pending == 0 {
		return
	}

	return bits.TrailingZeros64(pending), true
}

// NextInterrupt returns the interrupt to inject into the firmware, if any.
// Machine interrupts are globally disabled by mstatus.MIE only while the
// firmware executes.
func (h *Hart) NextInterrupt(m *Machine) (irq int, ok bool) {
	c := &h.Csr

	if h.InFirmware() && c.Mstatus&arch.MstatusMIE == 0 {
		return
	}

	return PendingInterrupt(c.Mie, h.pending(m), c.Mideleg)
}
