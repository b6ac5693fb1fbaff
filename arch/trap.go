// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arch

import "fmt"

// InterruptBit marks interrupt causes in mcause/scause.
const InterruptBit uint64 = 1 << 63

// Exception causes
const (
	InstructionAddressMisaligned = 0
	InstructionAccessFault       = 1
	IllegalInstruction           = 2
	Breakpoint                   = 3
	LoadAddressMisaligned        = 4
	LoadAccessFault              = 5
	StoreAddressMisaligned       = 6
	StoreAccessFault             = 7
	EcallFromU                   = 8
	EcallFromS                   = 9
	EcallFromVS                  = 10
	EcallFromM                   = 11
	InstructionPageFault         = 12
	LoadPageFault                = 13
	StorePageFault               = 15
	InstructionGuestPageFault    = 20
	LoadGuestPageFault           = 21
	VirtualInstruction           = 22
	StoreGuestPageFault          = 23
)

// Interrupt causes
const (
	SupervisorSoftInterrupt  = InterruptBit | SSI
	MachineSoftInterrupt     = InterruptBit | MSI
	SupervisorTimerInterrupt = InterruptBit | STI
	MachineTimerInterrupt    = InterruptBit | MTI
	SupervisorExtInterrupt   = InterruptBit | SEI
	MachineExtInterrupt      = InterruptBit | MEI
)

// TrapInfo is the snapshot of the trap CSRs taken on each trap into the
// monitor, it is overwritten as a whole on the next trap.
type TrapInfo struct {
	Mepc    uint64
	Mstatus uint64
	Mcause  uint64
	Mip     uint64
	Mtval   uint64
}

// IsInterrupt reports whether the trap was caused by an interrupt.
func (t *TrapInfo) IsInterrupt() bool {
	return t.Mcause&InterruptBit != 0
}

// Cause returns the exception code, without the interrupt bit.
func (t *TrapInfo) Cause() uint64 {
	return t.Mcause &^ InterruptBit
}

// PreviousMode returns the privilege mode the trap was taken from
// (mstatus.MPP).
func (t *TrapInfo) PreviousMode() Mode {
	m, _ := ModeFromBits(t.Mstatus >> MstatusMPPShift)
	return m
}

// FromMonitor reports whether the trap was taken from the monitor itself.
func (t *TrapInfo) FromMonitor() bool {
	return (t.Mstatus&MstatusMPP)>>MstatusMPPShift == M.Bits()
}

func (t *TrapInfo) String() string {
	return fmt.Sprintf("cause:%s mepc:%#x mtval:%#x mstatus:%#x mip:%#x",
		CauseName(t.Mcause), t.Mepc, t.Mtval, t.Mstatus, t.Mip)
}

var exceptionNames = []string{
	"instruction address misaligned",
	"instruction access fault",
	"illegal instruction",
	"breakpoint",
	"load address misaligned",
	"load access fault",
	"store address misaligned",
	"store access fault",
	"ecall from U-mode",
	"ecall from S-mode",
	"ecall from VS-mode",
	"ecall from M-mode",
	"instruction page fault",
	"load page fault",
	"reserved",
	"store page fault",
}

var interruptNames = map[uint64]string{
	SSI: "supervisor software",
	MSI: "machine software",
	STI: "supervisor timer",
	MTI: "machine timer",
	SEI: "supervisor external",
	MEI: "machine external",
}

// CauseName returns a human readable description of an mcause value.
func CauseName(mcause uint64) string {
	code := mcause &^ InterruptBit

	if mcause&InterruptBit != 0 {
		if name, ok := interruptNames[code]; ok {
			return name + " interrupt"
		}

		return fmt.Sprintf("interrupt %d", code)
	}

	if code < uint64(len(exceptionNames)) {
		return exceptionNames[code]
	}

	return fmt.Sprintf("exception %d", code)
}
