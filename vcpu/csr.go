// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vcpu

import (
	"errors"
	"fmt"
	"log"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/pmp"
)

// ErrUnsupportedRegister is returned for registers whose virtualization is
// not supported, accessing them is fatal to the monitor.
var ErrUnsupportedRegister = errors.New("unsupported register")

func unsupported(r arch.Register) error {
	return fmt.Errorf("%w %s", ErrUnsupportedRegister, r)
}

// Legal virtual satp/hgatp translation modes.
var (
	satpModes  = map[uint64]bool{arch.SatpBare: true, arch.SatpSv39: true, arch.SatpSv48: true, arch.SatpSv57: true}
	hgatpModes = map[uint64]bool{0: true, 8: true, 9: true, 10: true}
)

const (
	counterenMask     = 0xffffffff
	mcountinhibitMask = 0xfffffffd
	fcsrMask          = 0xff
	vstartMask        = 0xffff
)

func (h *Hart) ext() *arch.Extensions {
	return &h.HW.Extensions
}

// mstatusFixed returns the read-only fields of mstatus.
func (h *Hart) mstatusFixed() (v uint64) {
	v = arch.XLen64 << arch.MstatusUXLShift

	if h.ext().HasS {
		v |= arch.XLen64 << arch.MstatusSXLShift
	}

	return
}

// mstatusWritable returns the writable fields of mstatus.
func (h *Hart) mstatusWritable() uint64 {
	ext := h.ext()
	mask := arch.MstatusMIE | arch.MstatusMPIE | arch.MstatusMPP |
		arch.MstatusMPRV | arch.MstatusTW

	if ext.HasS {
		mask |= arch.MstatusSIE | arch.MstatusSPIE | arch.MstatusSPP |
			arch.MstatusSUM | arch.MstatusMXR | arch.MstatusTVM | arch.MstatusTSR
	}

	if ext.HasF {
		mask |= arch.MstatusFS
	}

	if ext.HasV {
		mask |= arch.MstatusVS
	}

	if ext.HasH {
		mask |= arch.MstatusMPV | arch.MstatusGVA
	}

	return mask
}

func withSD(status uint64) uint64 {
	fs := status & arch.MstatusFS
	vs := status & arch.MstatusVS
	xs := status & arch.MstatusXS

	if fs == arch.MstatusFS || vs == arch.MstatusVS || xs == arch.MstatusXS {
		return status | arch.MstatusSD
	}

	return status &^ arch.MstatusSD
}

func (h *Hart) medelegMask() uint64 {
	if !h.ext().HasS {
		return 0
	}

	mask := uint64(0xb3ff)

	if h.ext().HasH {
		mask |= 1<<arch.EcallFromVS | 1<<arch.InstructionGuestPageFault |
			1<<arch.LoadGuestPageFault | 1<<arch.VirtualInstruction |
			1<<arch.StoreGuestPageFault
	}

	return mask
}

// midelegMask returns the delegable interrupts, and those which are always
// delegated.
func (h *Hart) midelegMask() (mask uint64, forced uint64) {
	if !h.ext().HasS {
		return
	}

	mask = (arch.SupervisorInterrupts | arch.MipLCOFIP) & h.HW.Interrupts

	if h.ext().HasH {
		forced = arch.HypervisorInterrupts & h.HW.Interrupts
	}

	return
}

func (h *Hart) mieMask() uint64 {
	return arch.AllInterrupts & h.HW.Interrupts
}

// mipMask returns the mip bits writable by machine mode software.
func (h *Hart) mipMask() uint64 {
	if !h.ext().HasS {
		return 0
	}

	return arch.SupervisorInterrupts & h.HW.Interrupts
}

func (h *Hart) menvcfgMask() uint64 {
	mask := arch.EnvcfgFIOM

	if h.ext().HasSstc {
		mask |= arch.EnvcfgSTCE
	}

	return mask
}

func (h *Hart) epcMask() uint64 {
	if h.ext().HasC {
		return ^uint64(1)
	}

	return ^uint64(3)
}

func legalTvec(v uint64) uint64 {
	if v&arch.TvecModeMask > arch.TvecVectored {
		v &^= arch.TvecModeMask
	}

	return v
}

func legalAtp(old uint64, v uint64, modes map[uint64]bool) uint64 {
	if !modes[v>>arch.SatpModeShift] {
		return old
	}

	return v
}

// Get returns the value of a virtual CSR.
func (h *Hart) Get(r arch.Register) (uint64, error) {
	c := &h.Csr

	if i, ok := r.PmpcfgIndex(); ok {
		if i%2 != 0 {
			return 0, unsupported(r)
		}

		return c.Pmpcfg[i/2], nil
	}

	if i, ok := r.PmpaddrIndex(); ok {
		if i >= h.NbPMP {
			return 0, nil
		}

		return c.Pmpaddr[i], nil
	}

	if i, ok := r.HpmIndex(); ok {
		if r >= arch.Mhpmevent3 && r <= arch.Mhpmevent31 {
			return c.Mhpmevent[i], nil
		}

		return c.Mhpmcounter[i], nil
	}

	switch r {
	case arch.Mstatus:
		return withSD(c.Mstatus), nil
	case arch.Misa:
		return c.Misa, nil
	case arch.Medeleg:
		return c.Medeleg, nil
	case arch.Mideleg:
		return c.Mideleg, nil
	case arch.Mie:
		return c.Mie, nil
	case arch.Mip:
		return c.Mip, nil
	case arch.Mtvec:
		return c.Mtvec, nil
	case arch.Mcounteren:
		return c.Mcounteren, nil
	case arch.Menvcfg:
		return c.Menvcfg, nil
	case arch.Mcountinhibit:
		return c.Mcountinhibit, nil
	case arch.Mscratch:
		return c.Mscratch, nil
	case arch.Mepc:
		return c.Mepc, nil
	case arch.Mcause:
		return c.Mcause, nil
	case arch.Mtval:
		return c.Mtval, nil
	case arch.Mtinst:
		return c.Mtinst, nil
	case arch.Mtval2:
		return c.Mtval2, nil
	case arch.Mcycle, arch.Cycle:
		return c.Mcycle, nil
	case arch.Minstret, arch.Instret:
		return c.Minstret, nil
	case arch.Mvendorid:
		return h.HW.VendorID, nil
	case arch.Marchid:
		return h.HW.ArchID, nil
	case arch.Mimpid:
		return h.HW.ImpID, nil
	case arch.Mhartid:
		return h.HartID, nil
	case arch.Mconfigptr:
		return 0, nil

	case arch.Sstatus:
		return withSD(c.Mstatus) & arch.SstatusMask, nil
	case arch.Sie:
		return c.Mie & c.Mideleg, nil
	case arch.Sip:
		return c.Mip & c.Mideleg, nil
	case arch.Stvec:
		return c.Stvec, nil
	case arch.Scounteren:
		return c.Scounteren, nil
	case arch.Senvcfg:
		return c.Senvcfg, nil
	case arch.Sscratch:
		return c.Sscratch, nil
	case arch.Sepc:
		return c.Sepc, nil
	case arch.Scause:
		return c.Scause, nil
	case arch.Stval:
		return c.Stval, nil
	case arch.Satp:
		return c.Satp, nil
	case arch.Stimecmp:
		return c.Stimecmp, nil

	case arch.Hstatus:
		return c.Hstatus, nil
	case arch.Hedeleg:
		return c.Hedeleg, nil
	case arch.Hideleg:
		return c.Hideleg, nil
	case arch.Hvip:
		return c.Hvip, nil
	case arch.Hip:
		return c.Hip, nil
	case arch.Hie:
		return c.Hie, nil
	case arch.Hgeip:
		return c.Hgeip, nil
	case arch.Hgeie:
		return c.Hgeie, nil
	case arch.Henvcfg:
		return c.Henvcfg, nil
	case arch.Hcounteren:
		return c.Hcounteren, nil
	case arch.Htimedelta:
		return c.Htimedelta, nil
	case arch.Htval:
		return c.Htval, nil
	case arch.Htinst:
		return c.Htinst, nil
	case arch.Hgatp:
		return c.Hgatp, nil

	case arch.Vsstatus:
		return c.Vsstatus, nil
	case arch.Vsie:
		return c.Vsie, nil
	case arch.Vstvec:
		return c.Vstvec, nil
	case arch.Vsscratch:
		return c.Vsscratch, nil
	case arch.Vsepc:
		return c.Vsepc, nil
	case arch.Vscause:
		return c.Vscause, nil
	case arch.Vstval:
		return c.Vstval, nil
	case arch.Vsip:
		return c.Vsip, nil
	case arch.Vsatp:
		return c.Vsatp, nil

	case arch.Fflags:
		return c.Fcsr & 0x1f, nil
	case arch.Frm:
		return (c.Fcsr >> 5) & 0x7, nil
	case arch.Fcsr:
		return c.Fcsr, nil
	case arch.Vstart:
		return c.Vstart, nil
	case arch.Vxsat:
		return c.Vxsat, nil
	case arch.Vxrm:
		return c.Vxrm, nil
	case arch.Vcsr:
		return c.Vxrm<<1 | c.Vxsat, nil
	case arch.Vl:
		return c.Vl, nil
	case arch.Vtype:
		return c.Vtype, nil
	case arch.Vlenb:
		return c.Vlenb, nil

	case arch.Tselect, arch.Tdata1, arch.Tdata2, arch.Tdata3, arch.Tinfo,
		arch.Tcontrol, arch.Mcontext:
		// no trigger implemented
		return 0, nil
	}

	// time, seed, debug mode registers
	return 0, unsupported(r)
}

// Set writes a virtual CSR, applying its legality mask.
func (h *Hart) Set(m *Machine, r arch.Register, v uint64) (err error) {
	c := &h.Csr

	if i, ok := r.PmpcfgIndex(); ok {
		if i%2 != 0 {
			return unsupported(r)
		}

		h.setPmpcfg(i, v)
		return
	}

	if i, ok := r.PmpaddrIndex(); ok {
		if i < h.NbPMP {
			c.Pmpaddr[i] = v & pmp.AddrMask
		}

		return
	}

	if i, ok := r.HpmIndex(); ok {
		switch {
		case r >= arch.Mhpmevent3 && r <= arch.Mhpmevent31:
			c.Mhpmevent[i] = v
		case r >= arch.Mhpmcounter3 && r <= arch.Mhpmcounter31:
			c.Mhpmcounter[i] = v
		}

		return
	}

	switch r {
	case arch.Mstatus:
		return h.setMstatus(m, v)
	case arch.Misa:
		// extensions cannot be disabled
	case arch.Medeleg:
		c.Medeleg = v & h.medelegMask()
	case arch.Mideleg:
		mask, forced := h.midelegMask()
		c.Mideleg = v&mask | forced
		h.syncMie(m)
	case arch.Mie:
		c.Mie = v & h.mieMask()
		h.syncMie(m)
	case arch.Mip:
		h.setMip(m, c.Mip&^h.mipMask()|v&h.mipMask())
	case arch.Mtvec:
		c.Mtvec = legalTvec(v)
	case arch.Mcounteren:
		c.Mcounteren = v & counterenMask
	case arch.Menvcfg:
		c.Menvcfg = v & h.menvcfgMask()
	case arch.Mcountinhibit:
		c.Mcountinhibit = v & mcountinhibitMask
	case arch.Mscratch:
		c.Mscratch = v
	case arch.Mepc:
		c.Mepc = v & h.epcMask()
	case arch.Mcause:
		c.Mcause = v
	case arch.Mtval:
		c.Mtval = v
	case arch.Mtinst:
		c.Mtinst = v
	case arch.Mtval2:
		c.Mtval2 = v
	case arch.Mcycle:
		c.Mcycle = v
	case arch.Minstret:
		c.Minstret = v
	case arch.Mvendorid, arch.Marchid, arch.Mimpid, arch.Mhartid, arch.Mconfigptr,
		arch.Cycle, arch.Instret:
		// read-only

	case arch.Sstatus:
		mask := arch.SstatusMask & h.mstatusWritable()
		return h.setMstatus(m, c.Mstatus&^mask|v&mask)
	case arch.Sie:
		mask := c.Mideleg & h.mieMask()
		c.Mie = c.Mie&^mask | v&mask
		h.syncMie(m)
	case arch.Sip:
		mask := c.Mideleg & arch.MipSSIP
		c.Mip = c.Mip&^mask | v&mask
	case arch.Stvec:
		c.Stvec = legalTvec(v)
	case arch.Scounteren:
		c.Scounteren = v & counterenMask
	case arch.Senvcfg:
		c.Senvcfg = v & arch.EnvcfgFIOM
	case arch.Sscratch:
		c.Sscratch = v
	case arch.Sepc:
		c.Sepc = v & h.epcMask()
	case arch.Scause:
		c.Scause = v
	case arch.Stval:
		c.Stval = v
	case arch.Satp:
		c.Satp = legalAtp(c.Satp, v, satpModes)
	case arch.Stimecmp:
		c.Stimecmp = v

	case arch.Hstatus:
		mask := arch.HstatusGVA | arch.HstatusSPV | arch.HstatusSPVP | arch.HstatusHU |
			arch.HstatusVTVM | arch.HstatusVTW | arch.HstatusVTSR
		c.Hstatus = v&mask | arch.XLen64<<arch.HstatusVSXLShift
	case arch.Hedeleg:
		c.Hedeleg = v & 0xb1ff
	case arch.Hideleg:
		c.Hideleg = v & arch.HypervisorInterrupts &^ arch.MipSGEIP & h.HW.Interrupts
	case arch.Hvip:
		c.Hvip = v & (arch.MipVSSIP | arch.MipVSTIP | arch.MipVSEIP)
	case arch.Hip:
		c.Hip = c.Hip&^arch.MipVSSIP | v&arch.MipVSSIP
	case arch.Hie:
		c.Hie = v & arch.HypervisorInterrupts & h.HW.Interrupts
	case arch.Hgeip, arch.Hgeie:
		// no guest external interrupt line
	case arch.Henvcfg:
		c.Henvcfg = v & arch.EnvcfgFIOM
	case arch.Hcounteren:
		c.Hcounteren = v & counterenMask
	case arch.Htimedelta:
		c.Htimedelta = v
	case arch.Htval:
		c.Htval = v
	case arch.Htinst:
		c.Htinst = v
	case arch.Hgatp:
		c.Hgatp = legalAtp(c.Hgatp, v, hgatpModes)

	case arch.Vsstatus:
		mask := arch.MstatusSIE | arch.MstatusSPIE | arch.MstatusSPP |
			arch.MstatusSUM | arch.MstatusMXR | arch.MstatusFS | arch.MstatusVS
		c.Vsstatus = v&mask | arch.XLen64<<arch.MstatusUXLShift
	case arch.Vsie:
		c.Vsie = v & arch.SupervisorInterrupts
	case arch.Vstvec:
		c.Vstvec = legalTvec(v)
	case arch.Vsscratch:
		c.Vsscratch = v
	case arch.Vsepc:
		c.Vsepc = v & h.epcMask()
	case arch.Vscause:
		c.Vscause = v
	case arch.Vstval:
		c.Vstval = v
	case arch.Vsip:
		c.Vsip = c.Vsip&^arch.MipSSIP | v&arch.MipSSIP
	case arch.Vsatp:
		c.Vsatp = legalAtp(c.Vsatp, v, satpModes)

	case arch.Fflags:
		c.Fcsr = c.Fcsr&^0x1f | v&0x1f
	case arch.Frm:
		c.Fcsr = c.Fcsr&^(0x7<<5) | (v&0x7)<<5
	case arch.Fcsr:
		c.Fcsr = v & fcsrMask
	case arch.Vstart:
		c.Vstart = v & vstartMask
	case arch.Vxsat:
		c.Vxsat = v & 1
	case arch.Vxrm:
		c.Vxrm = v & 3
	case arch.Vcsr:
		c.Vxsat = v & 1
		c.Vxrm = (v >> 1) & 3

	default:
		// vl, vtype, vlenb, time, seed, triggers and debug registers
		return unsupported(r)
	}

	return
}

func (h *Hart) setMstatus(m *Machine, v uint64) error {
	c := &h.Csr
	prev := c.Mstatus
	mask := h.mstatusWritable()

	next := v&mask | h.mstatusFixed()

	// illegal privilege encodings fall back to U
	mpp := (next & arch.MstatusMPP) >> arch.MstatusMPPShift

	if mode, ok := arch.ModeFromBits(mpp); !ok || (mode == arch.S && !h.ext().HasS) {
		next &^= arch.MstatusMPP
	}

	c.Mstatus = next

	switch {
	case prev&arch.MstatusMPRV == 0 && next&arch.MstatusMPRV != 0:
		h.setScratch(m, true)
	case prev&arch.MstatusMPRV != 0 && next&arch.MstatusMPRV == 0:
		h.setScratch(m, false)
	}

	if prev&arch.MstatusMIE != next&arch.MstatusMIE {
		h.syncMie(m)
	}

	return nil
}

// setScratch installs (or removes) the emulation scratch entry which traps
// every data access performed by the firmware while MPRV is set.
func (h *Hart) setScratch(m *Machine, mprv bool) {
	if m == nil || m.PMP == nil {
		return
	}

	idx := m.PMP.ScratchIndex()

	if mprv {
		m.PMP.SetAllMemory(idx, pmp.X)
	} else {
		m.PMP.SetInactive(idx, 0)
	}

	m.Arch.WritePMP(m.PMP).Flush()
}

// setMip updates the virtual mip, mirroring the supervisor external
// interrupt to the hardware as its pending state is the logical OR of the
// software written bit and of the external line.
func (h *Hart) setMip(m *Machine, v uint64) {
	prev := h.Csr.Mip
	h.Csr.Mip = v

	if m == nil || (prev^v)&arch.MipSEIP == 0 {
		return
	}

	if v&arch.MipSEIP != 0 {
		m.Arch.SetCSRBits(arch.Mip, arch.MipSEIP)
	} else {
		m.Arch.ClearCSRBits(arch.Mip, arch.MipSEIP)
	}
}

// firmwareMie returns the hardware interrupt enable register while the
// firmware executes, interrupts delegated to the payload stay pending until
// the next switch.
func (h *Hart) firmwareMie() uint64 {
	return h.Csr.Mie &^ h.Csr.Mideleg
}

// syncMie programs the hardware interrupt enable register with the virtual
// one while the firmware executes.
func (h *Hart) syncMie(m *Machine) {
	if m == nil || !h.InFirmware() {
		return
	}

	m.Arch.WriteCSR(arch.Mie, h.firmwareMie())
}

func (h *Hart) setPmpcfg(idx int, v uint64) {
	var val uint64

	for j := 0; j < 8; j++ {
		entry := idx*4 + j

		if entry >= h.NbPMP {
			break
		}

		cfg, locked := pmp.SanitizeCfg(uint8(v >> (8 * j)))

		if locked {
			log.Printf("hart %d: pmp%d lock bit not supported, ignored", h.HartID, entry)
		}

		val |= uint64(cfg) << (8 * j)
	}

	h.Csr.Pmpcfg[idx/2] = val
}
