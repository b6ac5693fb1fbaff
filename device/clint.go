// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package device

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/usbarmory/tamago/bits"
)

// CLINT register map
const (
	MsipOffset     = 0x0000
	MtimecmpOffset = 0x4000
	MtimeOffset    = 0xbff8
	ClintSize      = 0x10000

	// MSIP register bit
	MSIP = 0
)

// Driver gives access to the physical core local interruptor.
type Driver interface {
	Mtime() uint64
	Mtimecmp(hart int) uint64
	SetMtimecmp(hart int, v uint64)
	Msip(hart int) bool
	SetMsip(hart int, pending bool)
}

// Clint is the virtual core local interruptor exposed to the firmware, it
// virtualizes the per-hart software interrupt and timer compare registers on
// top of the physical driver.
//
// The physical driver and the virtual msip registers are shared by all harts
// and guarded by a mutex, the virtual timer compare registers of a hart are
// only accessed from that hart.
type Clint struct {
	base  uint64
	harts int

	mu     sync.Mutex
	driver Driver

	vmtimecmp []uint64
	vmsip     []uint32

	// policy interrupt doorbells
	policy []atomic.Bool
}

// NewClint returns a virtual CLINT mapped at base for the given number of
// harts.
func NewClint(base uint64, harts int, driver Driver) (*Clint, error) {
	if harts <= 0 || MsipOffset+4*harts > MtimecmpOffset {
		return nil, fmt.Errorf("invalid hart count %d", harts)
	}

	if driver == nil {
		return nil, fmt.Errorf("missing CLINT driver")
	}

	c := &Clint{
		base:      base,
		harts:     harts,
		driver:    driver,
		vmtimecmp: make([]uint64, harts),
		vmsip:     make([]uint32, harts),
		policy:    make([]atomic.Bool, harts),
	}

	for i := range c.vmtimecmp {
		c.vmtimecmp[i] = math.MaxUint64
	}

	return c, nil
}

// Name implements Device.
func (c *Clint) Name() string { return "clint" }

// Start implements Device.
func (c *Clint) Start() uint64 { return c.base }

// Size implements Device.
func (c *Clint) Size() uint64 { return ClintSize }

// Harts returns the number of harts served by the CLINT.
func (c *Clint) Harts() int { return c.harts }

func (c *Clint) hart(offset uint64, base uint64, stride uint64) (int, bool) {
	if offset < base {
		return 0, false
	}

	h := (offset - base) / stride

	return int(h), h < uint64(c.harts)
}

// Read implements Device.
func (c *Clint) Read(offset uint64, width uint64) (uint64, error) {
	if err := CheckAccess(ClintSize, offset, width); err != nil {
		return 0, err
	}

	switch {
	case offset < MtimecmpOffset:
		h, ok := c.hart(offset, MsipOffset, 4)

		if !ok || width != 4 {
			return 0, ErrOutOfRange
		}

		if c.VirtualMsip(h) {
			return 1, nil
		}

		return 0, nil
	case offset >= MtimeOffset:
		val := c.Mtime()
		return half(val, offset-MtimeOffset, width), nil
	default:
		h, ok := c.hart(offset, MtimecmpOffset, 8)

		if !ok || width < 4 {
			return 0, ErrOutOfRange
		}

		return half(c.vmtimecmp[h], (offset-MtimecmpOffset)%8, width), nil
	}
}

// Write implements Device.
func (c *Clint) Write(offset uint64, width uint64, value uint64) error {
	if err := CheckAccess(ClintSize, offset, width); err != nil {
		return err
	}

	switch {
	case offset < MtimecmpOffset:
		h, ok := c.hart(offset, MsipOffset, 4)

		if !ok || width != 4 {
			return ErrOutOfRange
		}

		c.SetVirtualMsip(h, value&1 != 0)
	case offset >= MtimeOffset:
		return ErrReadOnly
	default:
		h, ok := c.hart(offset, MtimecmpOffset, 8)

		if !ok || width < 4 {
			return ErrOutOfRange
		}

		v := c.vmtimecmp[h]

		if width == 8 {
			v = value
		} else if (offset-MtimecmpOffset)%8 == 0 {
			v = v&^0xffffffff | value&0xffffffff
		} else {
			v = v&0xffffffff | value<<32
		}

		c.SetVirtualMtimecmp(h, v)
	}

	return nil
}

// half extracts the 4 or 8 byte field at byte offset off of a 64-bit register.
func half(v uint64, off uint64, width uint64) uint64 {
	if width == 8 {
		return v
	}

	return (v >> (8 * off)) & 0xffffffff
}

// Mtime returns the current time.
func (c *Clint) Mtime() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.driver.Mtime()
}

// VirtualMtimecmp returns the virtual timer compare value of a hart.
func (c *Clint) VirtualMtimecmp(hart int) uint64 {
	return c.vmtimecmp[hart]
}

// SetVirtualMtimecmp sets the virtual timer compare value of a hart and arms
// the physical timer accordingly.
func (c *Clint) SetVirtualMtimecmp(hart int, v uint64) {
	c.vmtimecmp[hart] = v

	c.mu.Lock()
	c.driver.SetMtimecmp(hart, v)
	c.mu.Unlock()
}

// TimerPending reports whether the virtual timer interrupt of a hart is
// pending.
func (c *Clint) TimerPending(hart int) bool {
	return c.Mtime() >= c.vmtimecmp[hart]
}

// DisarmTimer disables the physical timer interrupt of a hart, the virtual
// compare value is preserved.
func (c *Clint) DisarmTimer(hart int) {
	c.mu.Lock()
	c.driver.SetMtimecmp(hart, math.MaxUint64)
	c.mu.Unlock()
}

// VirtualMsip reports whether the virtual software interrupt of a hart is
// pending.
func (c *Clint) VirtualMsip(hart int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return bits.Get(&c.vmsip[hart], MSIP, 1) == 1
}

// SetVirtualMsip sets the virtual software interrupt of a hart, raising the
// physical one so that the target hart traps into the monitor.
func (c *Clint) SetVirtualMsip(hart int, pending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !pending {
		bits.Clear(&c.vmsip[hart], MSIP)
		return
	}

	bits.Set(&c.vmsip[hart], MSIP)
	c.driver.SetMsip(hart, true)
}

// ClearPhysicalMsip acknowledges the physical software interrupt of a hart.
func (c *Clint) ClearPhysicalMsip(hart int) {
	c.mu.Lock()
	c.driver.SetMsip(hart, false)
	c.mu.Unlock()
}

// TriggerPolicyInterrupt rings the policy doorbell of a hart. Delivery is
// best effort and unordered with respect to other harts.
func (c *Clint) TriggerPolicyInterrupt(hart int) {
	c.policy[hart].Store(true)

	c.mu.Lock()
	c.driver.SetMsip(hart, true)
	c.mu.Unlock()
}

// TakePolicyInterrupt consumes the policy doorbell of a hart.
func (c *Clint) TakePolicyInterrupt(hart int) bool {
	return c.policy[hart].Swap(false)
}
