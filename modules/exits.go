// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !no_exits

package modules

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"text/tabwriter"

	"github.com/usbarmory/GoVFM/vcpu"
)

// counters are written by their owning hart only and padded to a cache line
// to avoid false sharing.
type counters struct {
	exits      atomic.Uint64
	firmware   atomic.Uint64
	payload    atomic.Uint64
	ecalls     atomic.Uint64
	switches   atomic.Uint64
	interrupts atomic.Uint64
	_          [16]byte
}

// Stats is a snapshot of the counters of a hart.
type Stats struct {
	Exits      uint64
	Firmware   uint64
	Payload    uint64
	Ecalls     uint64
	Switches   uint64
	Interrupts uint64
}

// Exits counts the monitor exits, it never handles events.
type Exits struct {
	Base
	harts []counters
}

func init() {
	Register("exits", NewExits)
}

// NewExits returns the exits telemetry module.
func NewExits(opts Options) (Module, error) {
	if opts.Harts <= 0 {
		return nil, errors.New("invalid hart count")
	}

	return &Exits{harts: make([]counters, opts.Harts)}, nil
}

func (e *Exits) Name() string { return "exits" }

func (e *Exits) counters(h *vcpu.Hart) *counters {
	if h.HartID >= uint64(len(e.harts)) {
		return nil
	}

	return &e.harts[h.HartID]
}

func (e *Exits) trap(h *vcpu.Hart, firmware bool, ecall bool) Action {
	c := e.counters(h)

	if c == nil {
		return NotHandled
	}

	c.exits.Add(1)

	if firmware {
		c.firmware.Add(1)
	} else {
		c.payload.Add(1)
	}

	if ecall {
		c.ecalls.Add(1)
	}

	return NotHandled
}

func (e *Exits) EcallFromFirmware(h *vcpu.Hart, _ *vcpu.Machine) Action {
	return e.trap(h, true, true)
}

func (e *Exits) EcallFromPayload(h *vcpu.Hart, _ *vcpu.Machine) Action {
	return e.trap(h, false, true)
}

func (e *Exits) TrapFromFirmware(h *vcpu.Hart, _ *vcpu.Machine) Action {
	return e.trap(h, true, false)
}

func (e *Exits) TrapFromPayload(h *vcpu.Hart, _ *vcpu.Machine) Action {
	return e.trap(h, false, false)
}

func (e *Exits) switched(h *vcpu.Hart) Action {
	if c := e.counters(h); c != nil {
		c.switches.Add(1)
	}

	return NotHandled
}

func (e *Exits) SwitchFromFirmwareToPayload(h *vcpu.Hart, _ *vcpu.Machine) Action {
	return e.switched(h)
}

func (e *Exits) SwitchFromPayloadToFirmware(h *vcpu.Hart, _ *vcpu.Machine) Action {
	return e.switched(h)
}

func (e *Exits) OnInterrupt(h *vcpu.Hart, _ *vcpu.Machine) Action {
	if c := e.counters(h); c != nil {
		c.interrupts.Add(1)
	}

	return NotHandled
}

// Stats returns the counters of a hart.
func (e *Exits) Stats(hart int) (s Stats) {
	if hart < 0 || hart >= len(e.harts) {
		return
	}

	c := &e.harts[hart]

	return Stats{
		Exits:      c.exits.Load(),
		Firmware:   c.firmware.Load(),
		Payload:    c.payload.Load(),
		Ecalls:     c.ecalls.Load(),
		Switches:   c.switches.Load(),
		Interrupts: c.interrupts.Load(),
	}
}

// Report implements Reporter.
func (e *Exits) Report(w io.Writer) {
	t := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(t, "hart\texits\tfirmware\tpayload\tecalls\tswitches\tinterrupts\n")

	for i := range e.harts {
		s := e.Stats(i)
		fmt.Fprintf(t, "%d\t%d\t%d\t%d\t%d\t%d\t%d\n", i, s.Exits, s.Firmware, s.Payload, s.Ecalls, s.Switches, s.Interrupts)
	}

	t.Flush()
}
