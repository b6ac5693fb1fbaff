// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package monitor

import (
	"errors"
	"fmt"

	"github.com/usbarmory/GoVFM/arch"
)

var (
	// ErrMonitorTrap is returned when a trap is taken from the monitor
	// itself.
	ErrMonitorTrap = errors.New("trap taken from the monitor")
	// ErrMaxExits is returned when the configured exit count is exceeded.
	ErrMaxExits = errors.New("maximum number of exits reached")
	// ErrNotImplemented is returned for traps without emulation.
	ErrNotImplemented = errors.New("trap handling not implemented")
	// ErrInvalidFID is returned for unknown monitor ABI functions.
	ErrInvalidFID = errors.New("invalid monitor ABI function")
	// ErrNoClint is returned for timer or software interrupts on a
	// machine without virtual CLINT.
	ErrNoClint = errors.New("no virtual CLINT")
)

// FatalError reports a condition which stops the monitor, it carries the
// full diagnostic state of the hart.
type FatalError struct {
	Err    error
	Hart   uint64
	Mode   arch.Mode
	PC     uint64
	Trap   arch.TrapInfo
	NbExit uint64
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("hart %d: %v (mode:%s pc:%#x exits:%d %s)",
		e.Hart, e.Err, e.Mode, e.PC, e.NbExit, &e.Trap)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// ExitError reports an exit requested by a guest through the monitor ABI.
type ExitError struct {
	Hart    uint64
	Success bool
}

func (e *ExitError) Error() string {
	if e.Success {
		return fmt.Sprintf("hart %d: exit (success)", e.Hart)
	}

	return fmt.Sprintf("hart %d: exit (failure)", e.Hart)
}
