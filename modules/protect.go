// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !no_protect

package modules

import (
	"errors"

	"github.com/usbarmory/GoVFM/pmp"
	"github.com/usbarmory/GoVFM/vcpu"
)

// Protect reserves memory regions to the payload: they are inaccessible
// while the firmware executes, including through privilege override
// accesses, and fully accessible to the payload.
type Protect struct {
	Base

	regions []pmp.Region
	// first PMP entry, indexed by hart
	first []int
}

func init() {
	Register("protect", NewProtect)
}

// NewProtect returns the payload protection module.
func NewProtect(opts Options) (Module, error) {
	if opts.Harts <= 0 {
		return nil, errors.New("invalid hart count")
	}

	for _, r := range opts.Protected {
		if _, ok := pmp.BuildNAPOT(r.Start, r.Size); !ok {
			return nil, errors.New("region " + r.Name + " is not NAPOT encodable")
		}
	}

	return &Protect{
		regions: opts.Protected,
		first:   make([]int, opts.Harts),
	}, nil
}

func (p *Protect) Name() string { return "protect" }

func (p *Protect) NumPMPs() int { return len(p.regions) }

func (p *Protect) Init(h *vcpu.Hart, m *vcpu.Machine, first int) error {
	if h.HartID >= uint64(len(p.first)) {
		return errors.New("invalid hart")
	}

	p.first[h.HartID] = first

	return p.set(h, m, 0)
}

func (p *Protect) set(h *vcpu.Hart, m *vcpu.Machine, perm uint8) (err error) {
	first := p.first[h.HartID]

	for i, r := range p.regions {
		if err = m.PMP.SetNAPOT(first+i, r.Start, r.Size, perm); err != nil {
			return
		}
	}

	return
}

func (p *Protect) SwitchFromFirmwareToPayload(h *vcpu.Hart, m *vcpu.Machine) Action {
	// regions are validated at creation
	_ = p.set(h, m, pmp.RWX)
	return NotHandled
}

func (p *Protect) SwitchFromPayloadToFirmware(h *vcpu.Hart, m *vcpu.Machine) Action {
	_ = p.set(h, m, 0)
	return NotHandled
}
