// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package modules

import (
	"fmt"
	"io"

	"github.com/usbarmory/GoVFM/vcpu"
)

// Set is the ordered collection of installed modules, for each event the
// first module returning Handled short-circuits the following ones.
type Set []Module

// NumPMPs returns the number of PMP entries reserved by all modules.
func (s Set) NumPMPs() (n int) {
	for _, mod := range s {
		n += mod.NumPMPs()
	}

	return
}

// Init initializes all modules for a hart, assigning their PMP entries
// starting at m.PMP.ModuleIndex().
func (s Set) Init(h *vcpu.Hart, m *vcpu.Machine) (err error) {
	idx := m.PMP.ModuleIndex()

	if s.NumPMPs() > m.PMP.ModuleEntries() {
		return fmt.Errorf("modules require %d PMP entries, %d reserved", s.NumPMPs(), m.PMP.ModuleEntries())
	}

	for _, mod := range s {
		if err = mod.Init(h, m, idx); err != nil {
			return fmt.Errorf("module %s, %v", mod.Name(), err)
		}

		idx += mod.NumPMPs()
	}

	return
}

func (s Set) first(hook func(Module) Action) Action {
	for _, mod := range s {
		if hook(mod) == Handled {
			return Handled
		}
	}

	return NotHandled
}

// EcallFromFirmware dispatches an ecall executed by the firmware.
func (s Set) EcallFromFirmware(h *vcpu.Hart, m *vcpu.Machine) Action {
	return s.first(func(mod Module) Action { return mod.EcallFromFirmware(h, m) })
}

// EcallFromPayload dispatches an ecall executed by the payload.
func (s Set) EcallFromPayload(h *vcpu.Hart, m *vcpu.Machine) Action {
	return s.first(func(mod Module) Action { return mod.EcallFromPayload(h, m) })
}

// TrapFromFirmware dispatches a firmware trap.
func (s Set) TrapFromFirmware(h *vcpu.Hart, m *vcpu.Machine) Action {
	return s.first(func(mod Module) Action { return mod.TrapFromFirmware(h, m) })
}

// TrapFromPayload dispatches a payload trap.
func (s Set) TrapFromPayload(h *vcpu.Hart, m *vcpu.Machine) Action {
	return s.first(func(mod Module) Action { return mod.TrapFromPayload(h, m) })
}

// SwitchFromFirmwareToPayload is invoked before the world switch to the
// payload.
func (s Set) SwitchFromFirmwareToPayload(h *vcpu.Hart, m *vcpu.Machine) Action {
	return s.first(func(mod Module) Action { return mod.SwitchFromFirmwareToPayload(h, m) })
}

// SwitchFromPayloadToFirmware is invoked before the world switch to the
// firmware.
func (s Set) SwitchFromPayloadToFirmware(h *vcpu.Hart, m *vcpu.Machine) Action {
	return s.first(func(mod Module) Action { return mod.SwitchFromPayloadToFirmware(h, m) })
}

// OnInterrupt dispatches a policy interrupt.
func (s Set) OnInterrupt(h *vcpu.Hart, m *vcpu.Machine) Action {
	return s.first(func(mod Module) Action { return mod.OnInterrupt(h, m) })
}

// Report writes the statistics of all modules implementing Reporter.
func (s Set) Report(w io.Writer) {
	for _, mod := range s {
		if r, ok := mod.(Reporter); ok {
			fmt.Fprintf(w, "%s:\n", mod.Name())
			r.Report(w)
		}
	}
}
