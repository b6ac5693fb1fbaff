// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago

package device

import (
	"sync/atomic"
	"unsafe"

	"github.com/usbarmory/tamago/bits"
)

// MMIO drives a physical SiFive compatible CLINT.
type MMIO struct {
	Base uint64
}

func (c *MMIO) reg32(off uint64) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(c.Base + off)))
}

func (c *MMIO) reg64(off uint64) *uint64 {
	return (*uint64)(unsafe.Pointer(uintptr(c.Base + off)))
}

// Mtime implements Driver.
func (c *MMIO) Mtime() uint64 {
	return atomic.LoadUint64(c.reg64(MtimeOffset))
}

// Mtimecmp implements Driver.
func (c *MMIO) Mtimecmp(hart int) uint64 {
	return atomic.LoadUint64(c.reg64(MtimecmpOffset + 8*uint64(hart)))
}

// SetMtimecmp implements Driver.
func (c *MMIO) SetMtimecmp(hart int, v uint64) {
	atomic.StoreUint64(c.reg64(MtimecmpOffset+8*uint64(hart)), v)
}

// Msip implements Driver.
func (c *MMIO) Msip(hart int) bool {
	v := atomic.LoadUint32(c.reg32(MsipOffset + 4*uint64(hart)))
	return bits.Get(&v, MSIP, 1) == 1
}

// SetMsip implements Driver.
func (c *MMIO) SetMsip(hart int, pending bool) {
	var v uint32

	if pending {
		bits.Set(&v, MSIP)
	}

	atomic.StoreUint32(c.reg32(MsipOffset+4*uint64(hart)), v)
}
