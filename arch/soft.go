// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arch

import (
	"encoding/binary"

	"github.com/usbarmory/GoVFM/pmp"
)

// GuestFunc models guest execution on a Soft core: it receives the guest
// registers, program counter and hardware privilege mode and returns the
// trap which ends the execution (Mstatus and Mip are filled by the core).
type GuestFunc func(regs *[32]uint64, pc uint64, mode Mode) TrapInfo

// SoftConfig describes the hart modeled by a Soft core.
type SoftConfig struct {
	// Misa extensions (the MXL field is always set to 64-bit).
	Misa uint64
	// PMPs is the number of implemented PMP entries.
	PMPs int
	// Interrupts is the mask of implemented interrupt lines.
	Interrupts uint64

	Sstc    bool
	Menvcfg bool
	Senvcfg bool
	Zihpm   bool

	HartID   uint64
	VendorID uint64
}

// DefaultSoftConfig models an RV64GC hart with S-mode, 16 PMP entries and
// the standard S and M interrupt lines.
var DefaultSoftConfig = SoftConfig{
	Misa:       MisaI | MisaM | MisaA | MisaF | MisaD | MisaC | MisaS | MisaU,
	PMPs:       16,
	Interrupts: SupervisorInterrupts | MachineInterrupts,
	Menvcfg:    true,
	Senvcfg:    true,
}

// Soft is a software model of a RISC-V hart implementing Architecture, it is
// meant for host side tests and owned by the test which creates it.
type Soft struct {
	// Guest is invoked by RunVCPU.
	Guest GuestFunc

	// Sfences counts SFENCE.VMA (including PMP flushes).
	Sfences int
	// Hfences counts HFENCE.GVMA and HFENCE.VVMA.
	Hfences int
	// Wfis counts WFI.
	Wfis int
	// PMPWrites counts hardware PMP writes.
	PMPWrites int
	// Runs counts RunVCPU calls.
	Runs int

	mask map[Register]uint64
	csr  map[Register]uint64
	mem  map[uint64]byte
	pmps int
}

// NewSoft returns a Soft core modeling the given hart configuration.
func NewSoft(cfg SoftConfig) *Soft {
	s := &Soft{
		mask: make(map[Register]uint64),
		csr:  make(map[Register]uint64),
		mem:  make(map[uint64]byte),
		pmps: cfg.PMPs,
	}

	all := ^uint64(0)
	irq := cfg.Interrupts

	medeleg := uint64(0xb3ff)

	if cfg.Misa&MisaH != 0 {
		medeleg |= 1<<10 | 0xf<<20
	}

	s.fixed(Misa, cfg.Misa|XLen64<<MisaMXLShift)
	s.fixed(Mvendorid, cfg.VendorID)
	s.fixed(Marchid, 0)
	s.fixed(Mimpid, 0)
	s.fixed(Mhartid, cfg.HartID)
	s.fixed(Mconfigptr, 0)

	s.impl(Mstatus, MstatusSIE|MstatusMIE|MstatusSPIE|MstatusMPIE|MstatusSPP|
		MstatusMPP|MstatusFS|MstatusVS|MstatusMPRV|MstatusSUM|MstatusMXR|
		MstatusTVM|MstatusTW|MstatusTSR)
	s.csr[Mstatus] = XLen64<<MstatusUXLShift | XLen64<<MstatusSXLShift

	s.impl(Medeleg, medeleg)
	s.impl(Mideleg, SupervisorInterrupts&irq)
	s.impl(Mie, irq)
	s.impl(Mip, irq)
	s.impl(Mtvec, all&^2)
	s.impl(Mcounteren, 0xffffffff)
	s.impl(Mcountinhibit, 0xfffffffd)
	s.impl(Mscratch, all)
	s.impl(Mepc, all&^1)
	s.impl(Mcause, all)
	s.impl(Mtval, all)
	s.impl(Mcycle, all)
	s.impl(Minstret, all)
	s.impl(Cycle, 0)
	s.impl(Time, 0)
	s.impl(Instret, 0)

	for i := 0; i < NumHPM; i++ {
		s.impl(Mhpmcounter3+Register(i), 0)
		s.impl(Mhpmevent3+Register(i), 0)

		if cfg.Zihpm {
			s.impl(Hpmcounter3+Register(i), 0)
		}
	}

	for i := 0; i < pmp.MaxEntries; i++ {
		m := uint64(0)

		if i < cfg.PMPs {
			m = pmp.AddrMask
		}

		s.impl(Pmpaddr0+Register(i), m)
	}

	for i := 0; i < 16; i += 2 {
		s.impl(Pmpcfg0+Register(i), all)
	}

	if cfg.Misa&(MisaF|MisaD) != 0 {
		s.impl(Fflags, 0x1f)
		s.impl(Frm, 0x7)
		s.impl(Fcsr, 0xff)
	}

	if cfg.Menvcfg {
		s.impl(Menvcfg, all)
	}

	if cfg.Misa&MisaS != 0 {
		for _, r := range []Register{Stvec, Sscratch, Sepc, Scause, Stval, Satp} {
			s.impl(r, all)
		}

		s.impl(Scounteren, 0xffffffff)
		// views of machine registers
		s.impl(Sstatus, 0)
		s.impl(Sie, 0)
		s.impl(Sip, 0)

		if cfg.Sstc {
			s.impl(Stimecmp, all)
		}

		if cfg.Senvcfg {
			s.impl(Senvcfg, all)
		}
	}

	if cfg.Misa&MisaH != 0 {
		for _, r := range []Register{
			Hstatus, Hedeleg, Hideleg, Hie, Htimedelta, Hcounteren, Hgeie,
			Henvcfg, Htval, Hip, Hvip, Htinst, Hgatp, Hgeip,
			Vsstatus, Vsie, Vstvec, Vsscratch, Vsepc, Vscause, Vstval, Vsip, Vsatp,
			Mtinst, Mtval2,
		} {
			s.impl(r, all)
		}
	}

	return s
}

func (s *Soft) impl(r Register, mask uint64) {
	s.mask[r] = mask
}

func (s *Soft) fixed(r Register, v uint64) {
	s.mask[r] = 0
	s.csr[r] = v
}

func (s *Soft) tryReadCSR(r Register) (uint64, bool) {
	if _, ok := s.mask[r]; !ok {
		return 0, false
	}

	return s.ReadCSR(r), true
}

func (s *Soft) tryWriteCSR(r Register, v uint64) bool {
	if _, ok := s.mask[r]; !ok || r.ReadOnly() {
		return false
	}

	s.WriteCSR(r, v)

	return true
}

// DetectHardware implements Architecture.
func (s *Soft) DetectHardware() (Hardware, error) {
	return detect(s)
}

// ReadCSR implements Architecture, unimplemented registers read as zero.
func (s *Soft) ReadCSR(r Register) uint64 {
	switch r {
	case Sstatus:
		return s.csr[Mstatus] & SstatusMask
	case Sie:
		return s.csr[Mie] & s.csr[Mideleg]
	case Sip:
		return s.csr[Mip] & s.csr[Mideleg]
	case Cycle:
		return s.csr[Mcycle]
	case Instret:
		return s.csr[Minstret]
	}

	return s.csr[r]
}

// WriteCSR implements Architecture, writes to unimplemented registers are
// ignored.
func (s *Soft) WriteCSR(r Register, v uint64) {
	switch r {
	case Sstatus:
		m := SstatusMask & s.mask[Mstatus]
		s.csr[Mstatus] = s.csr[Mstatus]&^m | v&m
		return
	case Sie:
		m := s.csr[Mideleg]
		s.csr[Mie] = s.csr[Mie]&^m | v&m
		return
	case Sip:
		m := s.csr[Mideleg] & MipSSIP
		s.csr[Mip] = s.csr[Mip]&^m | v&m
		return
	}

	mask, ok := s.mask[r]

	if !ok {
		return
	}

	s.csr[r] = s.csr[r]&^mask | v&mask
}

// SetCSRBits implements Architecture.
func (s *Soft) SetCSRBits(r Register, mask uint64) {
	s.WriteCSR(r, s.ReadCSR(r)|mask)
}

// ClearCSRBits implements Architecture.
func (s *Soft) ClearCSRBits(r Register, mask uint64) {
	s.WriteCSR(r, s.ReadCSR(r)&^mask)
}

// WritePMP implements Architecture.
func (s *Soft) WritePMP(l *pmp.Layout) pmp.Flush {
	var cfgs [pmp.MaxEntries]uint8

	for i := 0; i < l.Len() && i < s.pmps; i++ {
		addr, cfg := l.Entry(i)
		s.WriteCSR(Pmpaddr0+Register(i), addr)
		cfgs[i] = cfg
	}

	for i := 0; i < pmp.MaxEntries; i += 8 {
		s.WriteCSR(Pmpcfg0+Register(i/4), binary.LittleEndian.Uint64(cfgs[i:i+8]))
	}

	s.PMPWrites++

	return l.Written(func() { s.SfenceVMA(nil, nil) })
}

// PMP returns the hardware PMP address and configuration registers.
func (s *Soft) PMP() (addrs []uint64, cfgs []uint8) {
	for i := 0; i < s.pmps; i++ {
		cfg := s.csr[Pmpcfg0+Register(i/8*2)] >> (8 * (i % 8))
		addrs = append(addrs, s.csr[Pmpaddr0+Register(i)])
		cfgs = append(cfgs, uint8(cfg))
	}

	return
}

// SfenceVMA implements Architecture.
func (s *Soft) SfenceVMA(_ *uint64, _ *uint64) {
	s.Sfences++
}

// HfenceGVMA implements Architecture.
func (s *Soft) HfenceGVMA(_ *uint64, _ *uint64) {
	s.Hfences++
}

// HfenceVVMA implements Architecture.
func (s *Soft) HfenceVVMA(_ *uint64, _ *uint64) {
	s.Hfences++
}

// Wfi implements Architecture.
func (s *Soft) Wfi() {
	s.Wfis++
}

// RunVCPU implements Architecture by invoking the Guest function and
// emulating the hardware trap entry.
func (s *Soft) RunVCPU(regs *[32]uint64, pc uint64, mode Mode) (trap TrapInfo) {
	s.Runs++

	if s.Guest == nil {
		panic("soft core has no guest")
	}

	mstatus := s.csr[Mstatus]
	mstatus = mstatus&^MstatusMPP | mode.Bits()<<MstatusMPPShift
	s.csr[Mstatus] = mstatus

	trap = s.Guest(regs, pc, mode)
	regs[0] = 0

	// trap entry: MPIE = MIE, MIE = 0, MPP = previous mode
	mstatus = s.csr[Mstatus]&^(MstatusMPP|MstatusMPIE|MstatusMIE) | mode.Bits()<<MstatusMPPShift

	if s.csr[Mstatus]&MstatusMIE != 0 {
		mstatus |= MstatusMPIE
	}

	s.csr[Mstatus] = mstatus
	s.csr[Mepc] = trap.Mepc
	s.csr[Mcause] = trap.Mcause
	s.csr[Mtval] = trap.Mtval

	trap.Mstatus = mstatus
	trap.Mip = s.csr[Mip]

	return
}

func (s *Soft) allowed(mode Mode, addr uint64, perm uint8) bool {
	if mode == M {
		return true
	}

	addrs, cfgs := s.PMP()
	segs := pmp.Segments(addrs, cfgs)

	if perm == pmp.R && s.csr[Mstatus]&MstatusMXR != 0 {
		return pmp.Check(segs, s.pmps, addr, 1, pmp.R) || pmp.Check(segs, s.pmps, addr, 1, pmp.X)
	}

	return pmp.Check(segs, s.pmps, addr, 1, perm)
}

// ReadByteAs implements Architecture, S and U accesses are checked against
// the hardware PMP entries.
func (s *Soft) ReadByteAs(mode Mode, addr uint64) (byte, error) {
	if !s.allowed(mode, addr, pmp.R) {
		return 0, &AccessFault{Addr: addr, Cause: LoadAccessFault}
	}

	return s.mem[addr], nil
}

// WriteByteAs implements Architecture, S and U accesses are checked against
// the hardware PMP entries.
func (s *Soft) WriteByteAs(mode Mode, addr uint64, v byte) error {
	if !s.allowed(mode, addr, pmp.W) {
		return &AccessFault{Addr: addr, Store: true, Cause: StoreAccessFault}
	}

	s.mem[addr] = v

	return nil
}

// Load copies buf to memory at addr.
func (s *Soft) Load(addr uint64, buf []byte) {
	for i, b := range buf {
		s.mem[addr+uint64(i)] = b
	}
}

// Store32 writes a little-endian 32-bit word (e.g. an instruction) to memory
// at addr.
func (s *Soft) Store32(addr uint64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	s.Load(addr, buf[:])
}

// Bytes returns n bytes of memory at addr.
func (s *Soft) Bytes(addr uint64, n int) []byte {
	buf := make([]byte, n)

	for i := range buf {
		buf[i] = s.mem[addr+uint64(i)]
	}

	return buf
}

// Raise sets pending interrupt lines, as an external source would.
func (s *Soft) Raise(mask uint64) {
	s.csr[Mip] |= mask & s.mask[Mip]
}

// Lower clears pending interrupt lines.
func (s *Soft) Lower(mask uint64) {
	s.csr[Mip] &^= mask
}
