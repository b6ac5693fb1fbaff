// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pmp

import (
	"fmt"
	"math"
	"math/bits"
)

// Segment is the byte address range [Start, End) matched by an active PMP
// entry.
type Segment struct {
	Start uint64
	End   uint64
	Perm  uint8
	Index int
}

// Contains reports whether the address falls in the segment.
func (s Segment) Contains(addr uint64) bool {
	return addr >= s.Start && addr < s.End
}

func (s Segment) String() string {
	return fmt.Sprintf("pmp%d %#x-%#x %s", s.Index, s.Start, s.End, permString(s.Perm))
}

// ContainsRange reports whether [addr, addr+size) falls entirely in the
// segment.
func (s Segment) ContainsRange(addr uint64, size uint64) bool {
	if size == 0 || addr+size < addr {
		return false
	}

	return addr >= s.Start && addr+size-1 < s.End
}

// Segments decodes the active entries of a PMP configuration, in priority
// order, into byte address segments.
//
// TOR entries whose lower bound is not strictly below their upper bound
// match nothing and produce no segment.
func Segments(addrs []uint64, cfgs []uint8) (segs []Segment) {
	n := len(addrs)

	if len(cfgs) < n {
		n = len(cfgs)
	}

	for i := 0; i < n; i++ {
		cfg := cfgs[i]
		perm := cfg & Perms

		switch Mode(cfg) {
		case OFF:
			continue
		case TOR:
			var prev uint64

			if i > 0 {
				prev = addrs[i-1]
			}

			start := prev << 2
			end := addrs[i] << 2

			if prev >= addrs[i] {
				continue
			}

			segs = append(segs, Segment{Start: start, End: end, Perm: perm, Index: i})
		case NA4:
			start := addrs[i] << 2
			segs = append(segs, Segment{Start: start, End: start + 4, Perm: perm, Index: i})
		case NAPOT:
			start, end := decodeNAPOT(addrs[i])
			segs = append(segs, Segment{Start: start, End: end, Perm: perm, Index: i})
		}
	}

	return
}

func decodeNAPOT(addr uint64) (start uint64, end uint64) {
	addr &= AddrMask
	ones := bits.TrailingZeros64(^addr)

	// size = 2^(ones+3), saturating at the end of the address space
	if ones+3 >= AddrBits+2 {
		return 0, math.MaxUint64
	}

	size := uint64(1) << (ones + 3)
	start = (addr &^ (1<<ones - 1)) << 2
	end = start + size

	if end < start {
		end = math.MaxUint64
	}

	return
}

// Match returns the highest priority segment containing addr, ok is false
// when no active entry matches.
func Match(segs []Segment, addr uint64) (seg Segment, ok bool) {
	for _, s := range segs {
		if s.Contains(addr) {
			return s, true
		}
	}

	return
}

// Check reports whether an access of the given size at addr, with the
// requested permission, is allowed for S or U mode by the given entries.
//
// When no entry matches, the access is allowed only if no entry is
// implemented (implemented == 0).
func Check(segs []Segment, implemented int, addr uint64, size uint64, perm uint8) bool {
	for _, s := range segs {
		if !s.Contains(addr) && !s.Contains(addr+size-1) {
			continue
		}

		// partial matches fail
		if !s.ContainsRange(addr, size) {
			return false
		}

		return s.Perm&perm == perm
	}

	return implemented == 0
}
