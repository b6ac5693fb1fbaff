// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package modules

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/device"
	"github.com/usbarmory/GoVFM/pmp"
	"github.com/usbarmory/GoVFM/vcpu"
)

const clintBase = 0x2000000

type fixture struct {
	soft   *arch.Soft
	driver *device.SoftDriver
	m      *vcpu.Machine
	harts  []*vcpu.Hart
}

func newFixture(t *testing.T, harts int, moduleEntries int) *fixture {
	s := arch.NewSoft(arch.DefaultSoftConfig)

	hw, err := s.DetectHardware()
	require.NoError(t, err)

	driver := device.NewSoftDriver()

	clint, err := device.NewClint(clintBase, harts, driver)
	require.NoError(t, err)

	l, err := pmp.New(pmp.Config{
		Entries:       hw.PMPs,
		Monitor:       pmp.Region{Start: 0x80000000, Size: 0x200000},
		Devices:       device.Devices{clint}.Regions(),
		ModuleEntries: moduleEntries,
		VirtualPMPs:   4,
	})
	require.NoError(t, err)

	f := &fixture{
		soft:   s,
		driver: driver,
		m:      &vcpu.Machine{Arch: s, PMP: l, Devices: device.Devices{clint}, Clint: clint},
	}

	for i := 0; i < harts; i++ {
		f.harts = append(f.harts, vcpu.New(uint64(i), hw, l.WindowSize()))
	}

	return f
}

type claim struct {
	Base
	name  string
	calls *[]string
	act   Action
}

func (c *claim) Name() string { return c.name }

func (c *claim) EcallFromPayload(*vcpu.Hart, *vcpu.Machine) Action {
	*c.calls = append(*c.calls, c.name)
	return c.act
}

func TestFirstClaim(t *testing.T) {
	var calls []string

	s := Set{
		&claim{name: "a", calls: &calls, act: NotHandled},
		&claim{name: "b", calls: &calls, act: Handled},
		&claim{name: "c", calls: &calls, act: Handled},
	}

	assert.Equal(t, Handled, s.EcallFromPayload(nil, nil))
	assert.Equal(t, []string{"a", "b"}, calls)

	assert.Equal(t, NotHandled, s.TrapFromPayload(nil, nil))
	assert.Equal(t, NotHandled, Set{}.EcallFromPayload(nil, nil))
}

func TestLoad(t *testing.T) {
	assert.Subset(t, Available(), []string{"exits", "offload", "protect"})

	s, err := Load([]string{"exits", "offload"}, Options{Harts: 2})
	require.NoError(t, err)
	require.Len(t, s, 2)
	assert.Equal(t, "exits", s[0].Name())
	assert.Equal(t, "offload", s[1].Name())

	_, err = Load([]string{"keystone"}, Options{Harts: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown module")

	_, err = Load([]string{"exits", "exits"}, Options{Harts: 1})
	assert.Error(t, err)

	_, err = Load([]string{"exits"}, Options{})
	assert.Error(t, err)

	_, err = Load([]string{"protect"}, Options{Harts: 1, Protected: []pmp.Region{{Name: "odd", Start: 0x1000, Size: 0x3000}}})
	assert.Error(t, err)
}

func TestExits(t *testing.T) {
	f := newFixture(t, 2, 0)

	mod, err := NewExits(Options{Harts: 2})
	require.NoError(t, err)

	e := mod.(*Exits)
	s := Set{e}

	h := f.harts[1]
	assert.Equal(t, NotHandled, s.EcallFromFirmware(h, f.m))
	assert.Equal(t, NotHandled, s.TrapFromFirmware(h, f.m))
	assert.Equal(t, NotHandled, s.TrapFromPayload(h, f.m))
	assert.Equal(t, NotHandled, s.SwitchFromFirmwareToPayload(h, f.m))
	assert.Equal(t, NotHandled, s.OnInterrupt(h, f.m))

	assert.Equal(t, Stats{Exits: 3, Firmware: 2, Payload: 1, Ecalls: 1, Switches: 1, Interrupts: 1}, e.Stats(1))
	assert.Equal(t, Stats{}, e.Stats(0))
	assert.Equal(t, Stats{}, e.Stats(5))

	var buf bytes.Buffer
	s.Report(&buf)
	assert.Contains(t, buf.String(), "exits:")
	assert.Contains(t, buf.String(), "interrupts")
}

func TestOffloadTimer(t *testing.T) {
	f := newFixture(t, 1, 0)

	mod, err := NewOffload(Options{Harts: 1})
	require.NoError(t, err)

	h := f.harts[0]
	h.Mode = arch.S
	h.PC = 0x80400000
	h.Csr.Mip = arch.MipSTIP
	h.SetReg(regA7, SBITimeEID)
	h.SetReg(regA6, 0)
	h.SetReg(regA0, 500)

	require.Equal(t, Handled, mod.EcallFromPayload(h, f.m))
	assert.Equal(t, uint64(0x80400004), h.PC)
	assert.Zero(t, h.Reg(regA0))
	assert.Equal(t, uint64(500), f.m.Clint.VirtualMtimecmp(0))
	assert.Equal(t, uint64(500), f.driver.Timecmp[0])
	assert.Zero(t, h.Csr.Mip&arch.MipSTIP)
	assert.NotZero(t, h.Csr.Mie&arch.MipMTIP)

	// not yet expired
	h.Trap = arch.TrapInfo{Mcause: arch.MachineTimerInterrupt}
	assert.Equal(t, NotHandled, mod.TrapFromPayload(h, f.m))

	f.driver.Time = 600
	require.Equal(t, Handled, mod.TrapFromPayload(h, f.m))
	assert.NotZero(t, h.Csr.Mip&arch.MipSTIP)
	assert.NotZero(t, f.soft.ReadCSR(arch.Mip)&arch.MipSTIP)
	assert.Equal(t, uint64(math.MaxUint64), f.m.Clint.VirtualMtimecmp(0))
	assert.False(t, f.m.Clint.TimerPending(0))

	// the firmware timer is not claimed
	f.m.Clint.SetVirtualMtimecmp(0, 0)
	assert.Equal(t, NotHandled, mod.TrapFromPayload(h, f.m))

	// other SBI calls go to the firmware
	h.SetReg(regA7, 0x10)
	assert.Equal(t, NotHandled, mod.EcallFromPayload(h, f.m))
}

func TestOffloadIPI(t *testing.T) {
	f := newFixture(t, 2, 0)

	mod, err := NewOffload(Options{Harts: 2})
	require.NoError(t, err)

	sender := f.harts[0]
	sender.Mode = arch.S
	sender.SetReg(regA7, SBIIPIEID)
	sender.SetReg(regA6, 0)
	// all harts
	sender.SetReg(regA0, 0)
	sender.SetReg(regA1, math.MaxUint64)

	require.Equal(t, Handled, mod.EcallFromPayload(sender, f.m))
	assert.NotZero(t, sender.Csr.Mip&arch.MipSSIP)
	assert.NotZero(t, f.soft.ReadCSR(arch.Mip)&arch.MipSSIP)
	f.soft.Lower(arch.MipSSIP)

	// the target is notified through the policy doorbell
	assert.True(t, f.driver.Software[1])
	assert.True(t, f.m.Clint.TakePolicyInterrupt(1))

	target := f.harts[1]
	require.Equal(t, Handled, mod.OnInterrupt(target, f.m))
	assert.NotZero(t, target.Csr.Mip&arch.MipSSIP)
	// the firmware runs on the target, the line stays virtual
	assert.Zero(t, f.soft.ReadCSR(arch.Mip)&arch.MipSSIP)

	assert.Equal(t, NotHandled, mod.OnInterrupt(target, f.m))

	// hart mask relative to a base
	target.Csr.Mip = 0
	sender.Csr.Mip = 0
	sender.SetReg(regA0, 0b1)
	sender.SetReg(regA1, 1)

	require.Equal(t, Handled, mod.EcallFromPayload(sender, f.m))
	assert.Zero(t, sender.Csr.Mip&arch.MipSSIP)
	assert.True(t, f.m.Clint.TakePolicyInterrupt(1))
}

func TestProtect(t *testing.T) {
	f := newFixture(t, 1, 1)

	region := pmp.Region{Name: "payload", Start: 0x80400000, Size: 0x100000}

	s, err := Load([]string{"protect"}, Options{Harts: 1, Protected: []pmp.Region{region}})
	require.NoError(t, err)
	require.Equal(t, 1, s.NumPMPs())

	h := f.harts[0]
	require.NoError(t, s.Init(h, f.m))

	idx := f.m.PMP.ModuleIndex()
	napot, _ := pmp.BuildNAPOT(region.Start, region.Size)

	addr, cfg := f.m.PMP.Entry(idx)
	assert.Equal(t, napot, addr)
	assert.Equal(t, pmp.Cfg(pmp.NAPOT, 0), cfg)

	s.SwitchFromFirmwareToPayload(h, f.m)
	_, cfg = f.m.PMP.Entry(idx)
	assert.Equal(t, pmp.Cfg(pmp.NAPOT, pmp.RWX), cfg)

	s.SwitchFromPayloadToFirmware(h, f.m)
	_, cfg = f.m.PMP.Entry(idx)
	assert.Equal(t, pmp.Cfg(pmp.NAPOT, 0), cfg)

	// not enough reserved entries
	f = newFixture(t, 1, 0)
	assert.Error(t, s.Init(f.harts[0], f.m))
}
