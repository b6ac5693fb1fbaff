// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/usbarmory/GoVFM/pmp"
)

// Extensions describes the optional ISA extensions implemented by a hart.
type Extensions struct {
	HasS       bool
	HasH       bool
	HasF       bool
	HasV       bool
	HasC       bool
	HasSstc    bool
	HasMenvcfg bool
	HasSenvcfg bool
	HasZkr     bool
	HasZihpm   bool
}

// Hardware describes the capabilities of a hart, it is detected once at boot
// and never modified afterwards.
type Hardware struct {
	Extensions Extensions
	// Misa is the hardware misa value.
	Misa uint64
	// Interrupts is the mask of implemented interrupt lines.
	Interrupts uint64
	// PMPs is the number of implemented PMP entries.
	PMPs int

	VendorID uint64
	ArchID   uint64
	ImpID    uint64
}

func (hw *Hardware) String() string {
	var ext []string

	e := hw.Extensions

	for _, f := range []struct {
		name string
		has  bool
	}{
		{"S", e.HasS}, {"H", e.HasH}, {"F", e.HasF}, {"V", e.HasV}, {"C", e.HasC},
		{"Sstc", e.HasSstc}, {"menvcfg", e.HasMenvcfg}, {"senvcfg", e.HasSenvcfg},
		{"Zkr", e.HasZkr}, {"Zihpm", e.HasZihpm},
	} {
		if f.has {
			ext = append(ext, f.name)
		}
	}

	return fmt.Sprintf("ext:%s irq:%#x pmp:%d vendor:%#x arch:%#x impl:%#x",
		strings.Join(ext, ","), hw.Interrupts, hw.PMPs, hw.VendorID, hw.ArchID, hw.ImpID)
}

// prober is the trap-and-catch CSR access primitive used during hardware
// detection, each access reports whether it completed without trapping.
type prober interface {
	tryReadCSR(r Register) (uint64, bool)
	tryWriteCSR(r Register, v uint64) bool
}

// ErrNoMisa is returned when the misa register cannot be accessed.
var ErrNoMisa = errors.New("misa not accessible")

func detect(p prober) (hw Hardware, err error) {
	misa, ok := p.tryReadCSR(Misa)

	if !ok {
		return hw, ErrNoMisa
	}

	hw.Misa = misa

	ext := &hw.Extensions

	if misa != 0 {
		ext.HasS = misa&MisaS != 0
		ext.HasH = misa&MisaH != 0
		ext.HasF = misa&(MisaF|MisaD) != 0
		ext.HasV = misa&MisaV != 0
		ext.HasC = misa&MisaC != 0
	} else {
		// misa may be hardwired to zero, probe for the registers instead
		_, ext.HasS = p.tryReadCSR(Sstatus)
		_, ext.HasH = p.tryReadCSR(Hstatus)
		_, ext.HasF = p.tryReadCSR(Fcsr)
		_, ext.HasV = p.tryReadCSR(Vlenb)
	}

	if ext.HasS {
		_, ext.HasSstc = p.tryReadCSR(Stimecmp)
		_, ext.HasSenvcfg = p.tryReadCSR(Senvcfg)
	}

	_, ext.HasMenvcfg = p.tryReadCSR(Menvcfg)
	_, ext.HasZihpm = p.tryReadCSR(Hpmcounter3)
	ext.HasZkr = p.tryWriteCSR(Seed, 0)

	hw.Interrupts = probeMask(p, Mie, ^uint64(0))
	hw.PMPs = probePMP(p)

	hw.VendorID, _ = p.tryReadCSR(Mvendorid)
	hw.ArchID, _ = p.tryReadCSR(Marchid)
	hw.ImpID, _ = p.tryReadCSR(Mimpid)

	return
}

// probeMask returns the writable bits of a register, restoring its value.
func probeMask(p prober, r Register, mask uint64) uint64 {
	prev, ok := p.tryReadCSR(r)

	if !ok || !p.tryWriteCSR(r, mask) {
		return 0
	}

	val, _ := p.tryReadCSR(r)
	p.tryWriteCSR(r, prev)

	return val & mask
}

// probePMP counts the implemented PMP entries, an entry is implemented when
// its address register holds a non-zero value after writing all ones.
func probePMP(p prober) (n int) {
	for n = 0; n < pmp.MaxEntries; n++ {
		if probeMask(p, Pmpaddr0+Register(n), ^uint64(0)) == 0 {
			break
		}
	}

	return
}
