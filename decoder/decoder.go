// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package decoder turns trapping instruction words into structured
// descriptors of privileged instructions and memory accesses.
//
// Decoding is purely combinational, the hart capabilities are only used to
// resolve CSR numbers.
package decoder

import "errors"

var (
	// ErrNotImplemented is returned for instruction encodings which are
	// not supported by the decoder (compressed stack-based forms).
	ErrNotImplemented = errors.New("instruction encoding not implemented")
	// ErrInvalid is returned when the instruction is not of the decoded
	// kind.
	ErrInvalid = errors.New("invalid instruction")
)

// Instruction encoding, from the two least significant bits.
const (
	quadrant0  = 0b00
	quadrant1  = 0b01
	quadrant2  = 0b10
	uncompress = 0b11
)

// Major opcodes
const (
	opLoad   = 0x03
	opStore  = 0x23
	opSystem = 0x73
)

// Compressed reports whether the instruction word uses a 16-bit encoding.
func Compressed(raw uint32) bool {
	return raw&0b11 != uncompress
}

// Length returns the length in bytes of the instruction.
func Length(raw uint32) uint64 {
	if Compressed(raw) {
		return 2
	}

	return 4
}

func opcode(raw uint32) uint32 { return raw & 0x7f }
func rd(raw uint32) int        { return int(raw>>7) & 0x1f }
func funct3(raw uint32) uint32 { return (raw >> 12) & 0x7 }
func rs1(raw uint32) int       { return int(raw>>15) & 0x1f }
func rs2(raw uint32) int       { return int(raw>>20) & 0x1f }
func funct7(raw uint32) uint32 { return raw >> 25 }

// signExtend sign extends the n bit value v.
func signExtend(v uint64, n uint) int64 {
	shift := 64 - n
	return int64(v<<shift) >> shift
}

func immI(raw uint32) int64 {
	return signExtend(uint64(raw>>20), 12)
}

func immS(raw uint32) int64 {
	return signExtend(uint64(raw>>25)<<5|uint64(raw>>7)&0x1f, 12)
}

// compressed register index (x8 to x15)
func cReg(v uint32) int {
	return 8 + int(v&0x7)
}

