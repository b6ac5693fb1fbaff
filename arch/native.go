// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && riscv64

package arch

import (
	"fmt"
	"sort"

	"github.com/usbarmory/tamago/riscv64"

	"github.com/usbarmory/GoVFM/pmp"
)

//go:generate go run gen_csr.go

// defined in csr_riscv64.s
func csrRead(slot uint64) uint64
func csrWrite(slot uint64, val uint64)
func csrSet(slot uint64, val uint64)
func csrClear(slot uint64, val uint64)
func csrProbeRead(slot uint64) (val uint64, fault uint64)
func csrProbeWrite(slot uint64, val uint64) (fault uint64)

// defined in access_riscv64.s
func loadByteAs(addr uint64, mpp uint64) (val uint64, cause uint64, fault uint64)
func storeByteAs(addr uint64, mpp uint64, val uint64) (cause uint64, fault uint64)

// defined in fence_riscv64.s
func sfenceVMA(vaddr uint64, asid uint64, sel uint64)
func hfenceGVMA(gaddr uint64, vmid uint64, sel uint64)
func hfenceVVMA(vaddr uint64, asid uint64, sel uint64)
func wfi()

// Native implements Architecture on a TamaGo riscv64 machine mode runtime.
type Native struct {
	// CPU is the hart on which the monitor runs.
	CPU *riscv64.CPU

	ctx context
}

// NewNative returns the Architecture of the hart executing the monitor.
func NewNative(cpu *riscv64.CPU) *Native {
	return &Native{CPU: cpu}
}

// slot returns the jump table entry of a CSR, the table holds every register
// known to Lookup.
func slot(r Register) uint64 {
	i := sort.Search(len(csrTable), func(i int) bool { return csrTable[i] >= uint16(r) })

	if i == len(csrTable) || csrTable[i] != uint16(r) {
		panic(fmt.Sprintf("no access primitive for %s", r))
	}

	return uint64(i)
}

func (n *Native) tryReadCSR(r Register) (uint64, bool) {
	val, fault := csrProbeRead(slot(r))
	return val, fault == 0
}

func (n *Native) tryWriteCSR(r Register, v uint64) bool {
	return csrProbeWrite(slot(r), v) == 0
}

// DetectHardware implements Architecture.
func (n *Native) DetectHardware() (Hardware, error) {
	return detect(n)
}

// ReadCSR implements Architecture.
func (n *Native) ReadCSR(r Register) uint64 {
	return csrRead(slot(r))
}

// WriteCSR implements Architecture.
func (n *Native) WriteCSR(r Register, v uint64) {
	csrWrite(slot(r), v)
}

// SetCSRBits implements Architecture.
func (n *Native) SetCSRBits(r Register, mask uint64) {
	csrSet(slot(r), mask)
}

// ClearCSRBits implements Architecture.
func (n *Native) ClearCSRBits(r Register, mask uint64) {
	csrClear(slot(r), mask)
}

// pmp address matching modes are passed unchanged to the tamago PMP driver
func _() {
	var x [1]struct{}
	_ = x[int(pmp.OFF)-riscv64.PMP_A_OFF]
	_ = x[int(pmp.TOR)-riscv64.PMP_A_TOR]
}

// WritePMP implements Architecture.
func (n *Native) WritePMP(l *pmp.Layout) pmp.Flush {
	for i := 0; i < l.Len(); i++ {
		addr, cfg := l.Entry(i)

		r := cfg&pmp.R != 0
		w := cfg&pmp.W != 0
		x := cfg&pmp.X != 0

		// the PMP driver takes byte addresses
		if err := n.CPU.WritePMP(i, addr<<2, r, w, x, int(pmp.Mode(cfg)), false); err != nil {
			panic(fmt.Sprintf("PMP write %d, %v", i, err))
		}
	}

	return l.Written(func() { n.SfenceVMA(nil, nil) })
}

func fenceArgs(addr *uint64, id *uint64) (a uint64, b uint64, sel uint64) {
	if addr != nil {
		a = *addr
		sel |= 1
	}

	if id != nil {
		b = *id
		sel |= 2
	}

	return
}

// SfenceVMA implements Architecture.
func (n *Native) SfenceVMA(vaddr *uint64, asid *uint64) {
	sfenceVMA(fenceArgs(vaddr, asid))
}

// HfenceGVMA implements Architecture.
func (n *Native) HfenceGVMA(gaddr *uint64, vmid *uint64) {
	hfenceGVMA(fenceArgs(gaddr, vmid))
}

// HfenceVVMA implements Architecture.
func (n *Native) HfenceVVMA(vaddr *uint64, asid *uint64) {
	hfenceVVMA(fenceArgs(vaddr, asid))
}

// Wfi implements Architecture.
func (n *Native) Wfi() {
	wfi()
}

// RunVCPU implements Architecture.
func (n *Native) RunVCPU(regs *[32]uint64, pc uint64, mode Mode) TrapInfo {
	n.ClearCSRBits(Mstatus, MstatusMPP|MstatusMIE)
	n.SetCSRBits(Mstatus, mode.Bits()<<MstatusMPPShift)

	n.ctx.regs = *regs
	n.ctx.pc = pc

	enterGuest(&n.ctx)

	*regs = n.ctx.regs
	regs[0] = 0

	return TrapInfo{
		Mepc:    n.ctx.pc,
		Mstatus: n.ctx.mstatus,
		Mcause:  n.ctx.mcause,
		Mip:     n.ctx.mip,
		Mtval:   n.ctx.mtval,
	}
}

// ReadByteAs implements Architecture.
func (n *Native) ReadByteAs(mode Mode, addr uint64) (byte, error) {
	val, cause, fault := loadByteAs(addr, mode.Bits())

	if fault != 0 {
		return 0, &AccessFault{Addr: addr, Cause: cause}
	}

	return byte(val), nil
}

// WriteByteAs implements Architecture.
func (n *Native) WriteByteAs(mode Mode, addr uint64, v byte) error {
	cause, fault := storeByteAs(addr, mode.Bits(), uint64(v))

	if fault != 0 {
		return &AccessFault{Addr: addr, Store: true, Cause: cause}
	}

	return nil
}
