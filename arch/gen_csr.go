// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build ignore

// gen_csr generates the native CSR access jump tables (csr_table_riscv64.s)
// and their index (csr_table.go) for every register resolved by
// arch.Lookup on a hart implementing all supported extensions.
package main

import (
	"bytes"
	"fmt"
	"log"
	"os"

	"github.com/usbarmory/GoVFM/arch"
)

const header = `// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Code generated by gen_csr.go; DO NOT EDIT.
`

const (
	a0 = 10
	a1 = 11
	t0 = 5

	// jalr zero, 0(t0)
	ret = t0<<15 | 0x67
)

type table struct {
	name string
	op   string
	enc  func(csr uint32) uint32
}

var tables = []table{
	{"csrReadTable", "csrr a0", func(csr uint32) uint32 { return csr<<20 | 2<<12 | a0<<7 | 0x73 }},
	{"csrWriteTable", "csrw a1", func(csr uint32) uint32 { return csr<<20 | a1<<15 | 1<<12 | 0x73 }},
	{"csrSetTable", "csrs a1", func(csr uint32) uint32 { return csr<<20 | a1<<15 | 2<<12 | 0x73 }},
	{"csrClearTable", "csrc a1", func(csr uint32) uint32 { return csr<<20 | a1<<15 | 3<<12 | 0x73 }},
}

func main() {
	hw := &arch.Hardware{
		Extensions: arch.Extensions{
			HasS:       true,
			HasH:       true,
			HasF:       true,
			HasV:       true,
			HasC:       true,
			HasSstc:    true,
			HasMenvcfg: true,
			HasSenvcfg: true,
			HasZkr:     true,
			HasZihpm:   true,
		},
	}

	var csrs []uint32

	for num := uint16(0); num < 0x1000; num++ {
		if arch.Lookup(num, hw) != arch.Unknown {
			csrs = append(csrs, uint32(num))
		}
	}

	asm := new(bytes.Buffer)
	fmt.Fprintf(asm, "%s\n//go:build tamago && riscv64\n\n#include \"textflag.h\"\n\n", header)

	for _, t := range tables {
		fmt.Fprintf(asm, "TEXT ·%s(SB),NOSPLIT|NOFRAME,$0\n", t.name)

		for _, csr := range csrs {
			fmt.Fprintf(asm, "\tWORD\t$0x%08x\t// %s, 0x%03x\n", t.enc(csr), t.op, csr)
			fmt.Fprintf(asm, "\tWORD\t$0x%08x\t// jalr zero, 0(t0)\n", ret)
		}

		fmt.Fprintf(asm, "\n")
	}

	idx := new(bytes.Buffer)
	fmt.Fprintf(idx, "%s\npackage arch\n\n", header)
	fmt.Fprintf(idx, "// csrTable lists, in ascending order, the CSR numbers reachable through the\n// native access primitives.\n")
	fmt.Fprintf(idx, "var csrTable = [...]uint16{\n")

	for i := 0; i < len(csrs); i += 8 {
		fmt.Fprintf(idx, "\t")

		for j := i; j < i+8 && j < len(csrs); j++ {
			if j > i {
				fmt.Fprintf(idx, " ")
			}

			fmt.Fprintf(idx, "0x%03x,", csrs[j])
		}

		fmt.Fprintf(idx, "\n")
	}

	fmt.Fprintf(idx, "}\n")

	if err := os.WriteFile("csr_table_riscv64.s", asm.Bytes(), 0644); err != nil {
		log.Fatal(err)
	}

	if err := os.WriteFile("csr_table.go", idx.Bytes(), 0644); err != nil {
		log.Fatal(err)
	}
}
