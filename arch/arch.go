// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arch

import (
	"fmt"

	"github.com/usbarmory/GoVFM/pmp"
)

// Architecture is the boundary through which the monitor performs every
// hardware side effect.
type Architecture interface {
	// DetectHardware probes the hart capabilities.
	DetectHardware() (Hardware, error)

	// ReadCSR reads a hardware CSR.
	ReadCSR(r Register) uint64
	// WriteCSR writes a hardware CSR.
	WriteCSR(r Register, v uint64)
	// SetCSRBits sets the mask bits of a hardware CSR.
	SetCSRBits(r Register, mask uint64)
	// ClearCSRBits clears the mask bits of a hardware CSR.
	ClearCSRBits(r Register, mask uint64)

	// WritePMP writes the layout to the hardware PMP registers.
	WritePMP(l *pmp.Layout) pmp.Flush

	// SfenceVMA, HfenceGVMA and HfenceVVMA execute the corresponding
	// fence, nil operands select all addresses or address spaces.
	SfenceVMA(vaddr *uint64, asid *uint64)
	HfenceGVMA(gaddr *uint64, vmid *uint64)
	HfenceVVMA(vaddr *uint64, asid *uint64)

	// Wfi stalls the hart until an interrupt is pending.
	Wfi()

	// RunVCPU resumes guest execution, with the given registers and
	// program counter, at privilege mode until the next trap.
	RunVCPU(regs *[32]uint64, pc uint64, mode Mode) TrapInfo

	// ReadByteAs and WriteByteAs perform a memory access with the
	// privileges of the given mode (MPRV override).
	ReadByteAs(mode Mode, addr uint64) (byte, error)
	WriteByteAs(mode Mode, addr uint64, v byte) error
}

// AccessFault is returned by memory accesses performed on behalf of another
// privilege mode which trapped.
type AccessFault struct {
	Addr  uint64
	Store bool
	// Cause is the hardware cause of the trap (access or page fault).
	Cause uint64
}

func (e *AccessFault) Error() string {
	op := "load"

	if e.Store {
		op = "store"
	}

	return fmt.Sprintf("%s fault at %#x (%s)", op, e.Addr, CauseName(e.Cause))
}
