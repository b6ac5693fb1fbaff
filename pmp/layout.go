// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pmp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotCommitted is returned by Layout.Committed when the layout has
	// been modified after its last hardware write.
	ErrNotCommitted = errors.New("PMP layout modified but not written")
	// ErrFlushPending is returned by Layout.Committed when a hardware write
	// has not been followed by Flush or SkipFlush.
	ErrFlushPending = errors.New("PMP flush not consumed")
)

// Region is a physical memory range.
type Region struct {
	Name  string
	Start uint64
	Size  uint64
}

// End returns the first address following the region.
func (r Region) End() uint64 {
	return r.Start + r.Size
}

// Config describes the static partitioning of the hardware PMP entries.
type Config struct {
	// Entries is the number of PMP entries implemented by the hardware.
	Entries int
	// Monitor is the memory protected from both firmware and payload.
	Monitor Region
	// Devices are the regions emulated by the monitor, each must be NAPOT
	// encodable.
	Devices []Region
	// ModuleEntries is the number of entries reserved to policy modules.
	ModuleEntries int
	// VirtualPMPs caps the number of PMP entries exposed to the firmware.
	VirtualPMPs int
}

// Layout holds the monitor view of the hardware PMP entries.
//
// A Layout is owned by a single hart. Mutations are only visible to
// hardware once written with Architecture.WritePMP and published through
// the returned Flush.
type Layout struct {
	addrs []uint64
	cfgs  []uint8

	devices  int
	modules  int
	scratch  int
	null     int
	window   int
	nbWindow int
	catchAll int

	dirty   bool
	pending bool
}

const (
	monitorEntries = 2
	// scratch, null and catch-all entries
	fixedEntries = monitorEntries + 3
)

// New computes the static partitioning of the PMP entries and initializes
// the monitor and device protection entries.
func New(cfg Config) (l *Layout, err error) {
	if cfg.Entries > MaxEntries {
		return nil, fmt.Errorf("invalid PMP count %d", cfg.Entries)
	}

	if cfg.ModuleEntries < 0 || cfg.VirtualPMPs < 0 {
		return nil, errors.New("invalid PMP reservation")
	}

	required := fixedEntries + len(cfg.Devices) + cfg.ModuleEntries

	if cfg.Entries < required {
		return nil, fmt.Errorf("%d PMP entries required, %d available", required, cfg.Entries)
	}

	if cfg.Monitor.Start&3 != 0 || cfg.Monitor.Size == 0 || cfg.Monitor.Size&3 != 0 {
		return nil, fmt.Errorf("invalid monitor region %#x-%#x", cfg.Monitor.Start, cfg.Monitor.End())
	}

	l = &Layout{
		addrs: make([]uint64, cfg.Entries),
		cfgs:  make([]uint8, cfg.Entries),
	}

	l.devices = monitorEntries
	l.modules = l.devices + len(cfg.Devices)
	l.scratch = l.modules + cfg.ModuleEntries
	l.null = l.scratch + 1
	l.window = l.null + 1
	l.catchAll = cfg.Entries - 1
	l.nbWindow = l.catchAll - l.window

	if l.nbWindow > cfg.VirtualPMPs {
		l.nbWindow = cfg.VirtualPMPs
	}

	// protect monitor
	l.SetInactive(0, cfg.Monitor.Start)
	l.SetTOR(1, cfg.Monitor.End(), 0)

	for i, dev := range cfg.Devices {
		if err = l.SetNAPOT(l.devices+i, dev.Start, dev.Size, 0); err != nil {
			return nil, fmt.Errorf("device %s, %v", dev.Name, err)
		}
	}

	l.SetInactive(l.scratch, 0)
	l.SetInactive(l.null, 0)
	l.SetAllMemory(l.catchAll, RWX)

	return
}

func (l *Layout) check(idx int) {
	if idx < 0 || idx >= len(l.addrs) {
		panic(fmt.Sprintf("PMP index %d out of range", idx))
	}
}

// SetNAPOT configures entry idx to match [start, start+size) with the given
// permissions.
func (l *Layout) SetNAPOT(idx int, start uint64, size uint64, perm uint8) error {
	l.check(idx)

	addr, ok := BuildNAPOT(start, size)

	if !ok {
		return fmt.Errorf("region %#x+%#x is not NAPOT encodable", start, size)
	}

	l.addrs[idx] = addr
	l.cfgs[idx] = Cfg(NAPOT, perm)
	l.dirty = true

	return nil
}

// SetTOR configures entry idx to match from the previous entry address up to
// (excluding) until, with the given permissions.
func (l *Layout) SetTOR(idx int, until uint64, perm uint8) {
	l.check(idx)

	l.addrs[idx] = until >> 2
	l.cfgs[idx] = Cfg(TOR, perm)
	l.dirty = true
}

// SetInactive disables entry idx, keeping addr as lower bound for a
// following TOR entry.
func (l *Layout) SetInactive(idx int, addr uint64) {
	l.check(idx)

	l.addrs[idx] = addr >> 2
	l.cfgs[idx] = Cfg(OFF, 0)
	l.dirty = true
}

// SetAllMemory configures entry idx to match the whole address space.
func (l *Layout) SetAllMemory(idx int, perm uint8) {
	l.check(idx)

	l.addrs[idx] = allMemory
	l.cfgs[idx] = Cfg(NAPOT, perm)
	l.dirty = true
}

// LoadWindow copies count virtual PMP entries, as raw pmpaddr values and
// configuration bytes, starting at hardware index offset. Lock bits are
// stripped.
func (l *Layout) LoadWindow(addrs []uint64, cfgs []uint8, offset int, count int) error {
	if count < 0 || offset < l.window || offset+count > l.catchAll ||
		count > len(addrs) || count > len(cfgs) {
		return fmt.Errorf("invalid PMP window load (offset:%d count:%d)", offset, count)
	}

	for i := 0; i < count; i++ {
		cfg, _ := SanitizeCfg(cfgs[i])
		l.addrs[offset+i] = addrs[i] & AddrMask
		l.cfgs[offset+i] = cfg
	}

	l.dirty = true

	return nil
}

// ClearWindow disables all virtual PMP entries.
func (l *Layout) ClearWindow() {
	for i := l.window; i < l.window+l.nbWindow; i++ {
		l.addrs[i] = 0
		l.cfgs[i] = 0
	}

	l.dirty = true
}

// Len returns the number of hardware PMP entries.
func (l *Layout) Len() int {
	return len(l.addrs)
}

// Entry returns the raw pmpaddr value and configuration of entry idx.
func (l *Layout) Entry(idx int) (addr uint64, cfg uint8) {
	l.check(idx)
	return l.addrs[idx], l.cfgs[idx]
}

// Segments returns the decoded active entries.
func (l *Layout) Segments() []Segment {
	return Segments(l.addrs, l.cfgs)
}

// DeviceIndex returns the index of the entry protecting the i-th device.
func (l *Layout) DeviceIndex(i int) int { return l.devices + i }

// ModuleIndex returns the index of the first entry reserved to modules.
func (l *Layout) ModuleIndex() int { return l.modules }

// ModuleEntries returns the number of entries reserved to modules.
func (l *Layout) ModuleEntries() int { return l.scratch - l.modules }

// ScratchIndex returns the index of the emulation scratch entry.
func (l *Layout) ScratchIndex() int { return l.scratch }

// WindowIndex returns the index of the first virtual PMP entry.
func (l *Layout) WindowIndex() int { return l.window }

// WindowSize returns the number of virtual PMP entries.
func (l *Layout) WindowSize() int { return l.nbWindow }

// CatchAllIndex returns the index of the catch-all entry.
func (l *Layout) CatchAllIndex() int { return l.catchAll }

// Written marks the layout as written to hardware, the returned Flush must
// be consumed before the new configuration can be relied upon.
//
// Written is meant to be called by Architecture implementations only.
func (l *Layout) Written(fence func()) Flush {
	l.dirty = false
	l.pending = true

	return Flush{layout: l, fence: fence}
}

// Committed returns an error if the hardware may not reflect the layout.
func (l *Layout) Committed() error {
	switch {
	case l.dirty:
		return ErrNotCommitted
	case l.pending:
		return ErrFlushPending
	}

	return nil
}

// Flush publishes a hardware PMP write.
//
// Every Flush returned by Architecture.WritePMP must be consumed with either
// Flush or SkipFlush, the monitor refuses to resume a guest while a write is
// outstanding.
type Flush struct {
	layout *Layout
	fence  func()
}

// Flush synchronizes the address translation caches with the new PMP
// configuration.
func (f Flush) Flush() {
	if f.fence != nil {
		f.fence()
	}

	if f.layout != nil {
		f.layout.pending = false
	}
}

// SkipFlush consumes the write without synchronization, for callers which
// perform an equivalent fence themselves.
func (f Flush) SkipFlush() {
	if f.layout != nil {
		f.layout.pending = false
	}
}
