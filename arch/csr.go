// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arch

import "fmt"

// Register identifies a control and status register by its 12-bit number.
type Register uint16

// Unknown is returned by Lookup for CSR numbers that do not exist on the
// (virtual) hart, accessing it must raise an illegal instruction exception.
const Unknown Register = 0x1000

// Unprivileged
const (
	Fflags  Register = 0x001
	Frm     Register = 0x002
	Fcsr    Register = 0x003
	Vstart  Register = 0x008
	Vxsat   Register = 0x009
	Vxrm    Register = 0x00a
	Vcsr    Register = 0x00f
	Seed    Register = 0x015
	Cycle   Register = 0xc00
	Time    Register = 0xc01
	Instret Register = 0xc02
	Vl      Register = 0xc20
	Vtype   Register = 0xc21
	Vlenb   Register = 0xc22

	Hpmcounter3  Register = 0xc03
	Hpmcounter31 Register = 0xc1f
)

// Supervisor
const (
	Sstatus    Register = 0x100
	Sie        Register = 0x104
	Stvec      Register = 0x105
	Scounteren Register = 0x106
	Senvcfg    Register = 0x10a
	Sscratch   Register = 0x140
	Sepc       Register = 0x141
	Scause     Register = 0x142
	Stval      Register = 0x143
	Sip        Register = 0x144
	Stimecmp   Register = 0x14d
	Satp       Register = 0x180
	Scontext   Register = 0x5a8
)

// Hypervisor and virtual supervisor
const (
	Hstatus    Register = 0x600
	Hedeleg    Register = 0x602
	Hideleg    Register = 0x603
	Hie        Register = 0x604
	Htimedelta Register = 0x605
	Hcounteren Register = 0x606
	Hgeie      Register = 0x607
	Henvcfg    Register = 0x60a
	Htval      Register = 0x643
	Hip        Register = 0x644
	Hvip       Register = 0x645
	Htinst     Register = 0x64a
	Hgatp      Register = 0x680
	Hcontext   Register = 0x6a8
	Hgeip      Register = 0xe12

	Vsstatus  Register = 0x200
	Vsie      Register = 0x204
	Vstvec    Register = 0x205
	Vsscratch Register = 0x240
	Vsepc     Register = 0x241
	Vscause   Register = 0x242
	Vstval    Register = 0x243
	Vsip      Register = 0x244
	Vsatp     Register = 0x280
)

// Machine
const (
	Mvendorid     Register = 0xf11
	Marchid       Register = 0xf12
	Mimpid        Register = 0xf13
	Mhartid       Register = 0xf14
	Mconfigptr    Register = 0xf15
	Mstatus       Register = 0x300
	Misa          Register = 0x301
	Medeleg       Register = 0x302
	Mideleg       Register = 0x303
	Mie           Register = 0x304
	Mtvec         Register = 0x305
	Mcounteren    Register = 0x306
	Menvcfg       Register = 0x30a
	Mcountinhibit Register = 0x320
	Mscratch      Register = 0x340
	Mepc          Register = 0x341
	Mcause        Register = 0x342
	Mtval         Register = 0x343
	Mip           Register = 0x344
	Mtinst        Register = 0x34a
	Mtval2        Register = 0x34b
	Mseccfg       Register = 0x747
	Mcycle        Register = 0xb00
	Minstret      Register = 0xb02

	Pmpcfg0   Register = 0x3a0
	Pmpcfg15  Register = 0x3af
	Pmpaddr0  Register = 0x3b0
	Pmpaddr63 Register = 0x3ef

	Mhpmcounter3  Register = 0xb03
	Mhpmcounter31 Register = 0xb1f
	Mhpmevent3    Register = 0x323
	Mhpmevent31   Register = 0x33f
)

// Debug and trigger
const (
	Tselect   Register = 0x7a0
	Tdata1    Register = 0x7a1
	Tdata2    Register = 0x7a2
	Tdata3    Register = 0x7a3
	Tinfo     Register = 0x7a4
	Tcontrol  Register = 0x7a5
	Mcontext  Register = 0x7a8
	Dcsr      Register = 0x7b0
	Dpc       Register = 0x7b1
	Dscratch0 Register = 0x7b2
	Dscratch1 Register = 0x7b3
)

// NumHPM is the number of programmable hardware performance counters
// (mhpmcounter3 to mhpmcounter31).
const NumHPM = 29

// ReadOnly reports whether the CSR number encodes a read-only register.
func (r Register) ReadOnly() bool {
	return (r>>10)&0b11 == 0b11
}

// MinPrivilege returns the lowest privilege mode allowed to access the
// register, as encoded in bits [9:8] of its number.
func (r Register) MinPrivilege() Mode {
	switch (r >> 8) & 0b11 {
	case 0:
		return U
	case 1, 2:
		return S
	default:
		return M
	}
}

// PmpcfgIndex returns the pmpcfg register index (0 to 15) when r is a
// pmpcfg register.
func (r Register) PmpcfgIndex() (int, bool) {
	if r >= Pmpcfg0 && r <= Pmpcfg15 {
		return int(r - Pmpcfg0), true
	}

	return 0, false
}

// PmpaddrIndex returns the pmpaddr register index (0 to 63) when r is a
// pmpaddr register.
func (r Register) PmpaddrIndex() (int, bool) {
	if r >= Pmpaddr0 && r <= Pmpaddr63 {
		return int(r - Pmpaddr0), true
	}

	return 0, false
}

// HpmIndex returns the index into the performance counter arrays (0 for
// counter 3) for mhpmcounter, hpmcounter and mhpmevent registers.
func (r Register) HpmIndex() (int, bool) {
	switch {
	case r >= Mhpmcounter3 && r <= Mhpmcounter31:
		return int(r - Mhpmcounter3), true
	case r >= Hpmcounter3 && r <= Hpmcounter31:
		return int(r - Hpmcounter3), true
	case r >= Mhpmevent3 && r <= Mhpmevent31:
		return int(r - Mhpmevent3), true
	}

	return 0, false
}

// Lookup resolves a raw CSR number against the hart capabilities, numbers
// of registers which are not implemented resolve to Unknown.
func Lookup(num uint16, hw *Hardware) Register {
	r := Register(num & 0xfff)
	ext := &hw.Extensions

	switch {
	case r == Fflags || r == Frm || r == Fcsr:
		return known(r, ext.HasF)
	case r == Vstart || r == Vxsat || r == Vxrm || r == Vcsr ||
		r == Vl || r == Vtype || r == Vlenb:
		return known(r, ext.HasV)
	case r == Seed:
		return known(r, ext.HasZkr)
	case r == Cycle || r == Time || r == Instret:
		return r
	case r >= Hpmcounter3 && r <= Hpmcounter31:
		return known(r, ext.HasZihpm)

	case r == Stimecmp:
		return known(r, ext.HasS && ext.HasSstc)
	case r == Senvcfg:
		return known(r, ext.HasS && ext.HasSenvcfg)
	case r == Sstatus || r == Sie || r == Stvec || r == Scounteren ||
		r == Sscratch || r == Sepc || r == Scause || r == Stval ||
		r == Sip || r == Satp:
		return known(r, ext.HasS)

	case r == Hstatus || r == Hedeleg || r == Hideleg || r == Hie ||
		r == Htimedelta || r == Hcounteren || r == Hgeie || r == Henvcfg ||
		r == Htval || r == Hip || r == Hvip || r == Htinst || r == Hgatp ||
		r == Hgeip:
		return known(r, ext.HasH)
	case r == Vsstatus || r == Vsie || r == Vstvec || r == Vsscratch ||
		r == Vsepc || r == Vscause || r == Vstval || r == Vsip || r == Vsatp:
		return known(r, ext.HasH)

	case r == Mvendorid || r == Marchid || r == Mimpid || r == Mhartid ||
		r == Mconfigptr:
		return r
	case r == Mstatus || r == Misa || r == Medeleg || r == Mideleg ||
		r == Mie || r == Mtvec || r == Mcounteren || r == Mcountinhibit ||
		r == Mscratch || r == Mepc || r == Mcause || r == Mtval || r == Mip ||
		r == Mcycle || r == Minstret:
		return r
	case r == Menvcfg:
		return known(r, ext.HasMenvcfg)
	case r == Mtinst || r == Mtval2:
		return known(r, ext.HasH)
	case r >= Pmpcfg0 && r <= Pmpcfg15:
		// odd pmpcfg registers only exist on RV32
		return known(r, (r-Pmpcfg0)%2 == 0)
	case r >= Pmpaddr0 && r <= Pmpaddr63:
		return r
	case r >= Mhpmcounter3 && r <= Mhpmcounter31:
		return r
	case r >= Mhpmevent3 && r <= Mhpmevent31:
		return r

	case r >= Tselect && r <= Tcontrol, r == Mcontext:
		return r
	}

	// debug mode registers (dcsr, dpc, dscratch) are not accessible
	// outside of debug mode
	return Unknown
}

func known(r Register, present bool) Register {
	if present {
		return r
	}

	return Unknown
}

var names = map[Register]string{
	Fflags: "fflags", Frm: "frm", Fcsr: "fcsr", Vstart: "vstart",
	Vxsat: "vxsat", Vxrm: "vxrm", Vcsr: "vcsr", Seed: "seed",
	Cycle: "cycle", Time: "time", Instret: "instret", Vl: "vl",
	Vtype: "vtype", Vlenb: "vlenb",

	Sstatus: "sstatus", Sie: "sie", Stvec: "stvec", Scounteren: "scounteren",
	Senvcfg: "senvcfg", Sscratch: "sscratch", Sepc: "sepc", Scause: "scause",
	Stval: "stval", Sip: "sip", Stimecmp: "stimecmp", Satp: "satp",
	Scontext: "scontext",

	Hstatus: "hstatus", Hedeleg: "hedeleg", Hideleg: "hideleg", Hie: "hie",
	Htimedelta: "htimedelta", Hcounteren: "hcounteren", Hgeie: "hgeie",
	Henvcfg: "henvcfg", Htval: "htval", Hip: "hip", Hvip: "hvip",
	Htinst: "htinst", Hgatp: "hgatp", Hcontext: "hcontext", Hgeip: "hgeip",

	Vsstatus: "vsstatus", Vsie: "vsie", Vstvec: "vstvec",
	Vsscratch: "vsscratch", Vsepc: "vsepc", Vscause: "vscause",
	Vstval: "vstval", Vsip: "vsip", Vsatp: "vsatp",

	Mvendorid: "mvendorid", Marchid: "marchid", Mimpid: "mimpid",
	Mhartid: "mhartid", Mconfigptr: "mconfigptr", Mstatus: "mstatus",
	Misa: "misa", Medeleg: "medeleg", Mideleg: "mideleg", Mie: "mie",
	Mtvec: "mtvec", Mcounteren: "mcounteren", Menvcfg: "menvcfg",
	Mcountinhibit: "mcountinhibit", Mscratch: "mscratch", Mepc: "mepc",
	Mcause: "mcause", Mtval: "mtval", Mip: "mip", Mtinst: "mtinst",
	Mtval2: "mtval2", Mseccfg: "mseccfg", Mcycle: "mcycle",
	Minstret: "minstret",

	Tselect: "tselect", Tdata1: "tdata1", Tdata2: "tdata2", Tdata3: "tdata3",
	Tinfo: "tinfo", Tcontrol: "tcontrol", Mcontext: "mcontext",
	Dcsr: "dcsr", Dpc: "dpc", Dscratch0: "dscratch0", Dscratch1: "dscratch1",

	Unknown: "unknown",
}

func (r Register) String() string {
	if name, ok := names[r]; ok {
		return name
	}

	if i, ok := r.PmpcfgIndex(); ok {
		return fmt.Sprintf("pmpcfg%d", i)
	}

	if i, ok := r.PmpaddrIndex(); ok {
		return fmt.Sprintf("pmpaddr%d", i)
	}

	switch {
	case r >= Mhpmcounter3 && r <= Mhpmcounter31:
		return fmt.Sprintf("mhpmcounter%d", r-Mhpmcounter3+3)
	case r >= Hpmcounter3 && r <= Hpmcounter31:
		return fmt.Sprintf("hpmcounter%d", r-Hpmcounter3+3)
	case r >= Mhpmevent3 && r <= Mhpmevent31:
		return fmt.Sprintf("mhpmevent%d", r-Mhpmevent3+3)
	}

	return fmt.Sprintf("csr(%#x)", uint16(r))
}

// ParseRegister resolves a register name (e.g. "mstatus", "pmpaddr3") or a
// numeric CSR index to its Register.
func ParseRegister(name string) (Register, error) {
	for r, n := range names {
		if n == name && r != Unknown {
			return r, nil
		}
	}

	for r := Register(0); r < 0x1000; r++ {
		if r.String() == name {
			return r, nil
		}
	}

	var num uint16

	if _, err := fmt.Sscanf(name, "%v", &num); err != nil || num >= 0x1000 {
		return Unknown, fmt.Errorf("invalid register %q", name)
	}

	return Register(num), nil
}
