// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package device

// SoftDriver is a software CLINT driver, Time is advanced by its owner.
type SoftDriver struct {
	Time     uint64
	Timecmp  map[int]uint64
	Software map[int]bool
}

// NewSoftDriver returns an initialized SoftDriver.
func NewSoftDriver() *SoftDriver {
	return &SoftDriver{
		Timecmp:  make(map[int]uint64),
		Software: make(map[int]bool),
	}
}

// Mtime implements Driver.
func (d *SoftDriver) Mtime() uint64 { return d.Time }

// Mtimecmp implements Driver.
func (d *SoftDriver) Mtimecmp(hart int) uint64 { return d.Timecmp[hart] }

// SetMtimecmp implements Driver.
func (d *SoftDriver) SetMtimecmp(hart int, v uint64) { d.Timecmp[hart] = v }

// Msip implements Driver.
func (d *SoftDriver) Msip(hart int) bool { return d.Software[hart] }

// SetMsip implements Driver.
func (d *SoftDriver) SetMsip(hart int, pending bool) { d.Software[hart] = pending }
