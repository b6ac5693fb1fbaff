// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arch

import "unsafe"

// contextLayoutVersion identifies the memory layout of context shared with
// the trap entry and exit assembly (context_riscv64.s), it must be bumped on
// any change to the offsets below.
const contextLayoutVersion = 1

// context is the guest register state saved and restored across the
// enterGuest and trapEntry boundary.
//
//	offset  field
//	0       regs[0..31]   guest general purpose registers
//	256     pc            guest pc on entry, mepc on exit
//	264     mstatus       mstatus on exit
//	272     mcause        mcause on exit
//	280     mtval         mtval on exit
//	288     mip           mip on exit
//	296     sp            monitor stack pointer
//	304     ra            monitor return address
//	312     g             monitor goroutine pointer (X27)
//	320     gp            monitor global pointer (X3)
//	328     tp            monitor thread pointer (X4)
//	336     mtvec         monitor trap vector
type context struct {
	regs    [32]uint64
	pc      uint64
	mstatus uint64
	mcause  uint64
	mtval   uint64
	mip     uint64
	sp      uint64
	ra      uint64
	g       uint64
	gp      uint64
	tp      uint64
	mtvec   uint64
}

// offsets referenced by context_riscv64.s
const (
	ctxPC      = unsafe.Offsetof(context{}.pc)
	ctxMstatus = unsafe.Offsetof(context{}.mstatus)
	ctxMcause  = unsafe.Offsetof(context{}.mcause)
	ctxMtval   = unsafe.Offsetof(context{}.mtval)
	ctxMip     = unsafe.Offsetof(context{}.mip)
	ctxSP      = unsafe.Offsetof(context{}.sp)
	ctxRA      = unsafe.Offsetof(context{}.ra)
	ctxG       = unsafe.Offsetof(context{}.g)
	ctxGP      = unsafe.Offsetof(context{}.gp)
	ctxTP      = unsafe.Offsetof(context{}.tp)
	ctxMtvec   = unsafe.Offsetof(context{}.mtvec)
	ctxSize    = unsafe.Sizeof(context{})
)
