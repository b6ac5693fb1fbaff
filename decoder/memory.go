// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package decoder

import "fmt"

// Load describes a decoded load instruction.
type Load struct {
	Rd  int
	Rs1 int
	Imm int64
	// Width is the access size in bytes.
	Width uint64
	// Unsigned loads zero extend the loaded value.
	Unsigned   bool
	Compressed bool
}

func (l Load) String() string {
	return fmt.Sprintf("load%d x%d, %d(x%d)", l.Width*8, l.Rd, l.Imm, l.Rs1)
}

// Store describes a decoded store instruction.
type Store struct {
	Rs1 int
	Rs2 int
	Imm int64
	// Width is the access size in bytes.
	Width      uint64
	Compressed bool
}

func (s Store) String() string {
	return fmt.Sprintf("store%d x%d, %d(x%d)", s.Width*8, s.Rs2, s.Imm, s.Rs1)
}

// Len returns the instruction length in bytes.
func (l Load) Len() uint64 {
	if l.Compressed {
		return 2
	}

	return 4
}

// Len returns the instruction length in bytes.
func (s Store) Len() uint64 {
	if s.Compressed {
		return 2
	}

	return 4
}

var loadWidths = [8]struct {
	width    uint64
	unsigned bool
}{
	0: {1, false}, // lb
	1: {2, false}, // lh
	2: {4, false}, // lw
	3: {8, false}, // ld
	4: {1, true},  // lbu
	5: {2, true},  // lhu
	6: {4, true},  // lwu
}

// Compressed quadrant 0 funct3
const (
	cLW = 0b010
	cLD = 0b011
	cSW = 0b110
	cSD = 0b111
)

// compressed word offset: offset[5:3] = raw[12:10], offset[2] = raw[6],
// offset[6] = raw[5]
func cOffsetW(raw uint32) int64 {
	return int64((raw>>10)&0x7)<<3 | int64((raw>>6)&1)<<2 | int64((raw>>5)&1)<<6
}

// compressed double word offset: offset[5:3] = raw[12:10],
// offset[7:6] = raw[6:5]
func cOffsetD(raw uint32) int64 {
	return int64((raw>>10)&0x7)<<3 | int64((raw>>5)&0x3)<<6
}

// DecodeLoad decodes an integer load instruction.
func DecodeLoad(raw uint32) (l Load, err error) {
	switch raw & 0b11 {
	case uncompress:
	case quadrant0:
		return decodeCompressedLoad(raw)
	case quadrant2:
		return l, ErrNotImplemented
	default:
		return l, ErrInvalid
	}

	f3 := funct3(raw)

	if opcode(raw) != opLoad || f3 == 7 {
		return l, ErrInvalid
	}

	l.Rd = rd(raw)
	l.Rs1 = rs1(raw)
	l.Imm = immI(raw)
	l.Width = loadWidths[f3].width
	l.Unsigned = loadWidths[f3].unsigned

	return
}

func decodeCompressedLoad(raw uint32) (l Load, err error) {
	raw &= 0xffff

	l.Compressed = true
	l.Rd = cReg(raw >> 2)
	l.Rs1 = cReg(raw >> 7)

	switch (raw >> 13) & 0x7 {
	case cLW:
		l.Width = 4
		l.Imm = cOffsetW(raw)
	case cLD:
		l.Width = 8
		l.Imm = cOffsetD(raw)
	default:
		return Load{}, ErrInvalid
	}

	return
}

// DecodeStore decodes an integer store instruction.
func DecodeStore(raw uint32) (s Store, err error) {
	switch raw & 0b11 {
	case uncompress:
	case quadrant0:
		return decodeCompressedStore(raw)
	case quadrant2:
		return s, ErrNotImplemented
	default:
		return s, ErrInvalid
	}

	f3 := funct3(raw)

	if opcode(raw) != opStore || f3 > 3 {
		return s, ErrInvalid
	}

	s.Rs1 = rs1(raw)
	s.Rs2 = rs2(raw)
	s.Imm = immS(raw)
	s.Width = 1 << f3

	return
}

func decodeCompressedStore(raw uint32) (s Store, err error) {
	raw &= 0xffff

	s.Compressed = true
	s.Rs2 = cReg(raw >> 2)
	s.Rs1 = cReg(raw >> 7)

	switch (raw >> 13) & 0x7 {
	case cSW:
		s.Width = 4
		s.Imm = cOffsetW(raw)
	case cSD:
		s.Width = 8
		s.Imm = cOffsetD(raw)
	default:
		return Store{}, ErrInvalid
	}

	return
}
