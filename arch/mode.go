// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package arch describes the RISC-V privileged architecture as seen by the
// monitor: privilege modes, CSR identities and bit fields, trap causes, the
// detected hardware capabilities and the Architecture boundary through which
// every hardware side effect is performed.
//
// Two Architecture implementations exist: Native, which runs on a TamaGo
// riscv64 machine-mode runtime, and Soft, a software core used by host side
// tests.
package arch

import "fmt"

// Mode represents a RISC-V privilege mode.
type Mode uint8

// Privilege mode encodings (mstatus.MPP, mstatus.SPP).
const (
	U Mode = 0
	S Mode = 1
	M Mode = 3
)

// ModeFromBits converts a 2-bit privilege encoding, the reserved encoding
// (2) is reported as invalid.
func ModeFromBits(b uint64) (Mode, bool) {
	switch b & 0b11 {
	case 0:
		return U, true
	case 1:
		return S, true
	case 3:
		return M, true
	default:
		return U, false
	}
}

// Bits returns the 2-bit encoding of the mode.
func (m Mode) Bits() uint64 {
	return uint64(m) & 0b11
}

func (m Mode) String() string {
	switch m {
	case U:
		return "U"
	case S:
		return "S"
	case M:
		return "M"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(m))
	}
}
