// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pmp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildNAPOT(t *testing.T) {
	addr, ok := BuildNAPOT(0x1000, 8)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x400), addr)

	addr, ok = BuildNAPOT(0x80000000, 0x200000)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x80000000>>2|(0x200000-1)>>3), addr)

	for _, tc := range []struct {
		start uint64
		size  uint64
	}{
		{0x1001, 8},    // unaligned
		{0x1000, 4},    // too small
		{0x1000, 0},    // empty
		{0x1000, 24},   // not a power of two
		{0x1800, 4096}, // not aligned to size
	} {
		_, ok := BuildNAPOT(tc.start, tc.size)
		assert.False(t, ok, "%#x+%#x", tc.start, tc.size)
	}
}

func TestNAPOTRoundTrip(t *testing.T) {
	for _, size := range []uint64{8, 16, 4096, 1 << 20, 1 << 31} {
		addr, ok := BuildNAPOT(2*size, size)
		require.True(t, ok)

		segs := Segments([]uint64{addr}, []uint8{Cfg(NAPOT, R)})
		require.Len(t, segs, 1)
		assert.Equal(t, 2*size, segs[0].Start)
		assert.Equal(t, 3*size, segs[0].End)
	}
}

func TestSegmentsTOR(t *testing.T) {
	segs := Segments([]uint64{1000, 1500}, []uint8{Cfg(OFF, 0), Cfg(TOR, R|X)})
	require.Len(t, segs, 1)
	assert.Equal(t, Segment{Start: 1000 << 2, End: 1500 << 2, Perm: R | X, Index: 1}, segs[0])

	// empty when the previous address is not below the current one
	assert.Empty(t, Segments([]uint64{1500, 1500}, []uint8{0, Cfg(TOR, RWX)}))
	assert.Empty(t, Segments([]uint64{2000, 1500}, []uint8{0, Cfg(TOR, RWX)}))

	// entry 0 uses zero as lower bound
	segs = Segments([]uint64{1500}, []uint8{Cfg(TOR, W|R)})
	require.Len(t, segs, 1)
	assert.Equal(t, uint64(0), segs[0].Start)
}

func TestSegmentsAllMemory(t *testing.T) {
	segs := Segments([]uint64{allMemory}, []uint8{Cfg(NAPOT, RWX)})
	require.Len(t, segs, 1)
	assert.Equal(t, uint64(0), segs[0].Start)
	assert.Equal(t, uint64(math.MaxUint64), segs[0].End)

	segs = Segments([]uint64{0x100}, []uint8{Cfg(NA4, R)})
	require.Len(t, segs, 1)
	assert.Equal(t, uint64(0x400), segs[0].Start)
	assert.Equal(t, uint64(0x404), segs[0].End)
}

func TestCheck(t *testing.T) {
	segs := Segments([]uint64{0x1000 >> 2, 0x2000 >> 2}, []uint8{0, Cfg(TOR, R)})

	assert.True(t, Check(segs, 2, 0x1000, 8, R))
	assert.False(t, Check(segs, 2, 0x1000, 8, W))
	assert.False(t, Check(segs, 2, 0x1ffc, 8, R), "partial match")
	assert.False(t, Check(segs, 2, 0x3000, 1, R), "no match")
	assert.True(t, Check(nil, 0, 0x3000, 1, R), "no entries")
}

func TestSanitizeCfg(t *testing.T) {
	cfg, locked := SanitizeCfg(L | Cfg(TOR, RWX))
	assert.True(t, locked)
	assert.Equal(t, Cfg(TOR, RWX), cfg)

	cfg, locked = SanitizeCfg(Cfg(NAPOT, W) | 0x60)
	assert.False(t, locked)
	assert.Equal(t, Cfg(NAPOT, 0), cfg)
}

func newLayout(t *testing.T) *Layout {
	l, err := New(Config{
		Entries:       16,
		Monitor:       Region{Start: 0x80000000, Size: 0x200000},
		Devices:       []Region{{Name: "clint", Start: 0x2000000, Size: 0x10000}},
		ModuleEntries: 1,
		VirtualPMPs:   8,
	})
	require.NoError(t, err)

	return l
}

func TestLayout(t *testing.T) {
	l := newLayout(t)

	assert.Equal(t, 16, l.Len())
	assert.Equal(t, 2, l.DeviceIndex(0))
	assert.Equal(t, 3, l.ModuleIndex())
	assert.Equal(t, 1, l.ModuleEntries())
	assert.Equal(t, 4, l.ScratchIndex())
	assert.Equal(t, 6, l.WindowIndex())
	assert.Equal(t, 8, l.WindowSize())
	assert.Equal(t, 15, l.CatchAllIndex())

	// isolation entries precede the window
	assert.Less(t, l.DeviceIndex(0), l.WindowIndex())
	assert.Less(t, l.ScratchIndex(), l.WindowIndex())

	addr, cfg := l.Entry(5)
	assert.Equal(t, uint64(0), addr)
	assert.Equal(t, OFF, Mode(cfg))

	segs := l.Segments()
	require.Len(t, segs, 3)
	assert.Equal(t, Segment{Start: 0x80000000, End: 0x80200000, Index: 1}, segs[0])
	assert.Equal(t, Segment{Start: 0x2000000, End: 0x2010000, Index: 2}, segs[1])
	assert.Equal(t, RWX, segs[2].Perm)
	assert.Equal(t, 15, segs[2].Index)
}

func TestLayoutWindowCap(t *testing.T) {
	l, err := New(Config{
		Entries:     8,
		Monitor:     Region{Start: 0x80000000, Size: 0x1000},
		VirtualPMPs: 16,
	})
	require.NoError(t, err)

	// monitor (2), scratch, null, catch-all
	assert.Equal(t, 3, l.WindowSize())
}

func TestLayoutErrors(t *testing.T) {
	_, err := New(Config{Entries: 4, Monitor: Region{Start: 0x80000000, Size: 0x1000}})
	assert.Error(t, err)

	_, err = New(Config{
		Entries: 16,
		Monitor: Region{Start: 0x80000000, Size: 0x1000},
		Devices: []Region{{Name: "bad", Start: 0x2000000, Size: 0x3000}},
	})
	assert.Error(t, err)

	_, err = New(Config{Entries: 16, Monitor: Region{Start: 0x80000001, Size: 0x1000}})
	assert.Error(t, err)
}

func TestLoadWindow(t *testing.T) {
	l := newLayout(t)

	addrs := []uint64{0x1000, 0x2000, ^uint64(0)}
	cfgs := []uint8{0, Cfg(TOR, RWX) | L, Cfg(NAPOT, W)}

	require.NoError(t, l.LoadWindow(addrs, cfgs, l.WindowIndex(), 3))

	addr, cfg := l.Entry(l.WindowIndex() + 1)
	assert.Equal(t, uint64(0x2000), addr)
	assert.Equal(t, Cfg(TOR, RWX), cfg, "lock bit stripped")

	addr, cfg = l.Entry(l.WindowIndex() + 2)
	assert.Equal(t, AddrMask, addr)
	assert.Equal(t, Cfg(NAPOT, 0), cfg)

	assert.Error(t, l.LoadWindow(addrs, cfgs, l.WindowIndex(), 12))
	assert.Error(t, l.LoadWindow(addrs, cfgs, l.ScratchIndex(), 1))

	l.ClearWindow()
	_, cfg = l.Entry(l.WindowIndex() + 1)
	assert.Equal(t, uint8(0), cfg)
}

func TestFlush(t *testing.T) {
	l := newLayout(t)
	assert.ErrorIs(t, l.Committed(), ErrNotCommitted)

	fences := 0
	f := l.Written(func() { fences++ })
	assert.ErrorIs(t, l.Committed(), ErrFlushPending)

	f.Flush()
	assert.NoError(t, l.Committed())
	assert.Equal(t, 1, fences)

	l.SetInactive(l.ScratchIndex(), 0)
	assert.ErrorIs(t, l.Committed(), ErrNotCommitted)

	l.Written(func() { fences++ }).SkipFlush()
	assert.NoError(t, l.Committed())
	assert.Equal(t, 1, fences)
}

func TestSetNAPOTError(t *testing.T) {
	l := newLayout(t)
	assert.Error(t, l.SetNAPOT(l.ScratchIndex(), 0x1001, 8, R))
}
