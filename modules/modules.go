// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package modules implements the policy hooks through which optional
// isolation and telemetry modules extend the monitor.
//
// Modules are compiled in through build tags: each module registers its
// factory from an init function guarded by a tag (e.g. no_offload excludes
// the offload module) and the boot configuration selects among the
// registered ones.
package modules

import (
	"fmt"
	"io"
	"sort"

	"github.com/usbarmory/GoVFM/pmp"
	"github.com/usbarmory/GoVFM/vcpu"
)

// Action is the outcome of a hook.
type Action int

const (
	// NotHandled lets the monitor, or the next module, handle the event.
	NotHandled Action = iota
	// Handled marks the event as fully handled, no other hook is
	// invoked and the monitor default handling is skipped.
	Handled
)

func (a Action) String() string {
	if a == Handled {
		return "handled"
	}

	return "not handled"
}

// Module is a policy module.
//
// Hooks are invoked by the hart which owns h, concurrently across harts.
type Module interface {
	Name() string
	// NumPMPs returns the number of PMP entries reserved by the module.
	NumPMPs() int
	// Init is invoked once per hart before the firmware starts, first is
	// the index of the first PMP entry reserved to the module.
	Init(h *vcpu.Hart, m *vcpu.Machine, first int) error

	EcallFromFirmware(h *vcpu.Hart, m *vcpu.Machine) Action
	EcallFromPayload(h *vcpu.Hart, m *vcpu.Machine) Action
	TrapFromFirmware(h *vcpu.Hart, m *vcpu.Machine) Action
	TrapFromPayload(h *vcpu.Hart, m *vcpu.Machine) Action
	SwitchFromFirmwareToPayload(h *vcpu.Hart, m *vcpu.Machine) Action
	SwitchFromPayloadToFirmware(h *vcpu.Hart, m *vcpu.Machine) Action
	// OnInterrupt is invoked when the hart receives a policy interrupt.
	OnInterrupt(h *vcpu.Hart, m *vcpu.Machine) Action
}

// Reporter is implemented by modules which collect statistics.
type Reporter interface {
	Report(w io.Writer)
}

// Base implements every hook of Module as a no-op, modules embed it and
// override the hooks they need.
type Base struct{}

func (Base) NumPMPs() int                                                { return 0 }
func (Base) Init(*vcpu.Hart, *vcpu.Machine, int) error                   { return nil }
func (Base) EcallFromFirmware(*vcpu.Hart, *vcpu.Machine) Action           { return NotHandled }
func (Base) EcallFromPayload(*vcpu.Hart, *vcpu.Machine) Action            { return NotHandled }
func (Base) TrapFromFirmware(*vcpu.Hart, *vcpu.Machine) Action            { return NotHandled }
func (Base) TrapFromPayload(*vcpu.Hart, *vcpu.Machine) Action             { return NotHandled }
func (Base) SwitchFromFirmwareToPayload(*vcpu.Hart, *vcpu.Machine) Action { return NotHandled }
func (Base) SwitchFromPayloadToFirmware(*vcpu.Hart, *vcpu.Machine) Action { return NotHandled }
func (Base) OnInterrupt(*vcpu.Hart, *vcpu.Machine) Action                 { return NotHandled }

// Options are the boot parameters passed to module factories.
type Options struct {
	// Harts is the number of harts running the monitor.
	Harts int
	// Protected are the memory regions reserved to the payload.
	Protected []pmp.Region
}

// Factory instantiates a module, a single instance serves every hart.
type Factory func(opts Options) (Module, error)

var registry = make(map[string]Factory)

// Register makes a module available for selection, it is meant to be
// called from init functions.
func Register(name string, f Factory) {
	if _, ok := registry[name]; ok {
		panic("module " + name + " registered twice")
	}

	registry[name] = f
}

// Available returns the names of the registered modules.
func Available() (names []string) {
	for name := range registry {
		names = append(names, name)
	}

	sort.Strings(names)

	return
}

// Load instantiates the selected modules, in order.
func Load(names []string, opts Options) (s Set, err error) {
	seen := make(map[string]bool)

	for _, name := range names {
		f, ok := registry[name]

		if !ok {
			return nil, fmt.Errorf("unknown module %q (available: %v)", name, Available())
		}

		if seen[name] {
			return nil, fmt.Errorf("module %q selected twice", name)
		}

		seen[name] = true

		mod, err := f(opts)

		if err != nil {
			return nil, fmt.Errorf("module %s, %v", name, err)
		}

		s = append(s, mod)
	}

	return
}
