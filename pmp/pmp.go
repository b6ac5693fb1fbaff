// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pmp implements the Physical Memory Protection layout of the
// monitor.
//
// The hardware PMP entries are partitioned in fixed regions, in priority
// order:
//
//	monitor   (OFF + TOR pair protecting the monitor itself)
//	devices   (one NAPOT entry per virtual device)
//	modules   (entries reserved to policy modules)
//	scratch   (emulation scratch entry, used to trap MPRV accesses)
//	null      (inactive entry at address zero)
//	window    (virtual PMP entries owned by the firmware)
//	catch-all (last entry)
//
// Entries with isolation responsibilities always precede the firmware
// controlled window, the null entry provides the architectural zero lower
// bound to a TOR entry at the beginning of the window.
package pmp

import (
	"fmt"
)

// Configuration register fields
const (
	R     uint8 = 1 << 0
	W     uint8 = 1 << 1
	X     uint8 = 1 << 2
	A     uint8 = 0b11 << 3
	L     uint8 = 1 << 7
	RWX         = R | W | X
	Perms       = RWX

	AShift = 3

	// reserved configuration bits, read-only zero
	reserved uint8 = 0b11 << 5
)

// Address matching modes
const (
	OFF   uint8 = 0
	TOR   uint8 = 1
	NA4   uint8 = 2
	NAPOT uint8 = 3
)

// MaxEntries is the architectural maximum number of PMP entries.
const MaxEntries = 64

// AddrBits is the number of implemented pmpaddr bits on RV64 (physical
// address bits 55:2).
const AddrBits = 54

// AddrMask is the legal pmpaddr value mask.
const AddrMask uint64 = 1<<AddrBits - 1

// allMemory is the NAPOT pmpaddr value covering the whole address space.
const allMemory = AddrMask

// Cfg builds a configuration byte for the given address matching mode and
// permissions.
func Cfg(mode uint8, perm uint8) uint8 {
	return (mode<<AShift)&A | perm&Perms
}

// Mode returns the address matching mode of a configuration byte.
func Mode(cfg uint8) uint8 {
	return (cfg & A) >> AShift
}

// BuildNAPOT returns the pmpaddr encoding of the naturally aligned power of
// two region [start, start+size), ok is false when the region cannot be
// encoded (size below 8 bytes, size not a power of two, start not aligned to
// size).
func BuildNAPOT(start uint64, size uint64) (addr uint64, ok bool) {
	if size < 8 || size&(size-1) != 0 || start&(size-1) != 0 {
		return 0, false
	}

	return (start >> 2) | ((size - 1) >> 3), true
}

// SanitizeCfg returns the legal value of a firmware controlled
// configuration byte: the lock bit and reserved bits are cleared, and the
// reserved R=0/W=1 combination is turned into R=0/W=0.
func SanitizeCfg(cfg uint8) (legal uint8, locked bool) {
	locked = cfg&L != 0
	legal = cfg &^ (L | reserved)

	if legal&W != 0 && legal&R == 0 {
		legal &^= W
	}

	return
}

func permString(perm uint8) string {
	s := []byte("---")

	if perm&R != 0 {
		s[0] = 'r'
	}

	if perm&W != 0 {
		s[1] = 'w'
	}

	if perm&X != 0 {
		s[2] = 'x'
	}

	return string(s)
}

func modeString(mode uint8) string {
	switch mode {
	case OFF:
		return "OFF"
	case TOR:
		return "TOR"
	case NA4:
		return "NA4"
	default:
		return "NAPOT"
	}
}

// CfgString returns a human readable representation of a configuration byte.
func CfgString(cfg uint8) string {
	s := fmt.Sprintf("%-5s %s", modeString(Mode(cfg)), permString(cfg))

	if cfg&L != 0 {
		s += " L"
	}

	return s
}
