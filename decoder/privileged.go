// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package decoder

import (
	"fmt"

	"github.com/usbarmory/GoVFM/arch"
)

// Op identifies a privileged instruction.
type Op int

// Privileged instructions
const (
	Unknown Op = iota
	Ecall
	Ebreak
	Wfi
	Mret
	Sret
	Csrrw
	Csrrs
	Csrrc
	Csrrwi
	Csrrsi
	Csrrci
	SfenceVma
	HfenceGvma
	HfenceVvma
)

var opNames = [...]string{
	Unknown:    "unknown",
	Ecall:      "ecall",
	Ebreak:     "ebreak",
	Wfi:        "wfi",
	Mret:       "mret",
	Sret:       "sret",
	Csrrw:      "csrrw",
	Csrrs:      "csrrs",
	Csrrc:      "csrrc",
	Csrrwi:     "csrrwi",
	Csrrsi:     "csrrsi",
	Csrrci:     "csrrci",
	SfenceVma:  "sfence.vma",
	HfenceGvma: "hfence.gvma",
	HfenceVvma: "hfence.vvma",
}

func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}

	return fmt.Sprintf("op(%d)", int(op))
}

// IsCSR reports whether the instruction accesses a CSR.
func (op Op) IsCSR() bool {
	return op >= Csrrw && op <= Csrrci
}

// Immediate reports whether a CSR instruction takes its operand from the
// immediate field rather than from a register.
func (op Op) Immediate() bool {
	return op >= Csrrwi && op <= Csrrci
}

// Privileged describes a decoded privileged instruction.
type Privileged struct {
	Op Op
	// CSR is the accessed register, arch.Unknown for registers not
	// implemented on the hart.
	CSR arch.Register
	// Num is the raw CSR number.
	Num uint16

	Rd  int
	Rs1 int
	Rs2 int

	// Uimm is the zero extended immediate operand of CSR*I instructions.
	Uimm uint64
}

func (p Privileged) String() string {
	switch {
	case p.Op.Immediate():
		return fmt.Sprintf("%s x%d, %s, %d", p.Op, p.Rd, p.CSR, p.Uimm)
	case p.Op.IsCSR():
		return fmt.Sprintf("%s x%d, %s, x%d", p.Op, p.Rd, p.CSR, p.Rs1)
	case p.Op == SfenceVma || p.Op == HfenceGvma || p.Op == HfenceVvma:
		return fmt.Sprintf("%s x%d, x%d", p.Op, p.Rs1, p.Rs2)
	}

	return p.Op.String()
}

// Fixed encodings
const (
	rawEcall  = 0x00000073
	rawEbreak = 0x00100073
	rawSret   = 0x10200073
	rawWfi    = 0x10500073
	rawMret   = 0x30200073
)

// Fence funct7 fields
const (
	funct7SfenceVma  = 0b0001001
	funct7HfenceVvma = 0b0010001
	funct7HfenceGvma = 0b0110001
)

var csrOps = [8]Op{
	1: Csrrw,
	2: Csrrs,
	3: Csrrc,
	5: Csrrwi,
	6: Csrrsi,
	7: Csrrci,
}

// DecodePrivileged decodes a SYSTEM instruction, instructions which are not
// recognized are returned with Op set to Unknown.
func DecodePrivileged(raw uint32, hw *arch.Hardware) (p Privileged) {
	if Compressed(raw) || opcode(raw) != opSystem {
		return
	}

	switch raw {
	case rawEcall:
		p.Op = Ecall
		return
	case rawEbreak:
		p.Op = Ebreak
		return
	case rawSret:
		p.Op = Sret
		return
	case rawWfi:
		p.Op = Wfi
		return
	case rawMret:
		p.Op = Mret
		return
	}

	p.Rd = rd(raw)
	p.Rs1 = rs1(raw)
	p.Rs2 = rs2(raw)

	f3 := funct3(raw)

	if f3 == 0 {
		if p.Rd != 0 {
			return
		}

		switch funct7(raw) {
		case funct7SfenceVma:
			p.Op = SfenceVma
		case funct7HfenceGvma:
			p.Op = HfenceGvma
		case funct7HfenceVvma:
			p.Op = HfenceVvma
		}

		return
	}

	if op := csrOps[f3]; op != Unknown {
		p.Op = op
		p.Num = uint16(raw >> 20)
		p.CSR = arch.Lookup(p.Num, hw)
		p.Uimm = uint64(p.Rs1)
		p.Rs2 = 0
	}

	return
}
