// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package device defines the memory mapped devices emulated by the monitor.
package device

import (
	"errors"

	"github.com/usbarmory/GoVFM/pmp"
)

var (
	// ErrOutOfRange is returned for accesses beyond a device register
	// map.
	ErrOutOfRange = errors.New("device offset out of range")
	// ErrUnaligned is returned for accesses not aligned to their width.
	ErrUnaligned = errors.New("unaligned device access")
	// ErrWidth is returned for accesses of an unsupported width.
	ErrWidth = errors.New("invalid device access width")
	// ErrReadOnly is returned for writes to read-only registers.
	ErrReadOnly = errors.New("read-only device register")
)

// Device represents a memory mapped device emulated by the monitor, offsets
// are relative to Start and widths are in bytes.
type Device interface {
	Name() string
	Start() uint64
	Size() uint64
	Read(offset uint64, width uint64) (uint64, error)
	Write(offset uint64, width uint64, value uint64) error
}

// Devices is the set of emulated devices of a machine.
type Devices []Device

// Find returns the device mapped at addr.
func (d Devices) Find(addr uint64) (Device, bool) {
	for _, dev := range d {
		if addr >= dev.Start() && addr-dev.Start() < dev.Size() {
			return dev, true
		}
	}

	return nil, false
}

// Regions returns the memory regions of the devices, to be protected by
// PMP.
func (d Devices) Regions() (regions []pmp.Region) {
	for _, dev := range d {
		regions = append(regions, pmp.Region{
			Name:  dev.Name(),
			Start: dev.Start(),
			Size:  dev.Size(),
		})
	}

	return
}

// CheckAccess validates an access against a register map of the given size.
func CheckAccess(size uint64, offset uint64, width uint64) error {
	switch width {
	case 1, 2, 4, 8:
	default:
		return ErrWidth
	}

	if offset%width != 0 {
		return ErrUnaligned
	}

	if offset >= size || size-offset < width {
		return ErrOutOfRange
	}

	return nil
}
