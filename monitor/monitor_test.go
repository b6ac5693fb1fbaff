// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package monitor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/config"
	"github.com/usbarmory/GoVFM/device"
	"github.com/usbarmory/GoVFM/modules"
	"github.com/usbarmory/GoVFM/pmp"
	"github.com/usbarmory/GoVFM/vcpu"
)

const (
	firmwareEntry = 0x80200000
	firmwareTrap  = 0x80100000
	payloadEntry  = 0x80400000
	clintBase     = 0x2000000

	mret   = 0x30200073
	sdA1A0 = 0x00b532a3 // sd a1, 5(a0)
)

// csrrw x0, csr, a0
func csrw(csr arch.Register) uint32 {
	return uint32(csr)<<20 | regA0<<15 | 1<<12 | 0x73
}

// csrrsi x0, csr, uimm
func csrsi(csr arch.Register, uimm uint64) uint32 {
	return uint32(csr)<<20 | uint32(uimm)<<15 | 6<<12 | 0x73
}

type fixture struct {
	mon    *Monitor
	soft   *arch.Soft
	driver *device.SoftDriver
}

func newFixture(t *testing.T, mods modules.Set) *fixture {
	s := arch.NewSoft(arch.DefaultSoftConfig)

	hw, err := s.DetectHardware()
	require.NoError(t, err)

	driver := device.NewSoftDriver()

	clint, err := device.NewClint(clintBase, 1, driver)
	require.NoError(t, err)

	devs := device.Devices{clint}

	l, err := pmp.New(pmp.Config{
		Entries:       hw.PMPs,
		Monitor:       pmp.Region{Name: "monitor", Start: 0x80000000, Size: 0x100000},
		Devices:       devs.Regions(),
		ModuleEntries: mods.NumPMPs(),
		VirtualPMPs:   4,
	})
	require.NoError(t, err)

	m := &vcpu.Machine{Arch: s, PMP: l, Devices: devs, Clint: clint}
	h := vcpu.New(0, hw, l.WindowSize())

	mon := New(h, m, mods)
	require.NoError(t, mon.Boot(firmwareEntry, 0))

	return &fixture{mon: mon, soft: s, driver: driver}
}

type step func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo

// script runs the given steps as successive guest executions.
func (f *fixture) script(t *testing.T, steps ...step) {
	i := 0

	f.soft.Guest = func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
		require.Less(t, i, len(steps), "unexpected guest execution at %#x", pc)
		i++
		return steps[i-1](regs, pc, mode)
	}
}

// emulate returns a firmware step trapping on a privileged instruction.
func (f *fixture) emulate(t *testing.T, wantPC uint64, instr uint32, a0 uint64) step {
	return func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
		assert.Equal(t, arch.U, mode)
		assert.Equal(t, wantPC, pc)

		regs[regA0] = a0
		f.soft.Store32(pc, instr)

		return arch.TrapInfo{Mepc: pc, Mcause: arch.IllegalInstruction, Mtval: uint64(instr)}
	}
}

func ecall(t *testing.T, wantMode arch.Mode, setup func(regs *[32]uint64)) step {
	return func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
		assert.Equal(t, wantMode, mode)
		setup(regs)

		cause := uint64(arch.EcallFromU)

		if mode == arch.S {
			cause = arch.EcallFromS
		}

		return arch.TrapInfo{Mepc: pc, Mcause: cause}
	}
}

func abi(fid uint64) func(regs *[32]uint64) {
	return func(regs *[32]uint64) {
		regs[regA7] = EID
		regs[regA6] = fid
	}
}

func requireExit(t *testing.T, err error, success bool) {
	var exit *ExitError

	require.ErrorAs(t, err, &exit)
	assert.Equal(t, success, exit.Success)
}

func TestExit(t *testing.T) {
	f := newFixture(t, nil)
	f.script(t, ecall(t, arch.U, abi(FIDSuccess)))
	requireExit(t, f.mon.Run(), true)

	f = newFixture(t, nil)
	f.script(t, ecall(t, arch.U, abi(FIDFailure)))
	requireExit(t, f.mon.Run(), false)
}

func TestInvalidFID(t *testing.T) {
	f := newFixture(t, nil)
	f.script(t, ecall(t, arch.U, abi(42)))

	err := f.mon.Run()

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, ErrInvalidFID)
	assert.Equal(t, uint64(firmwareEntry), fatal.PC)
}

func TestMonitorTrap(t *testing.T) {
	f := newFixture(t, nil)
	f.mon.Hart.Trap = arch.TrapInfo{
		Mcause:  arch.LoadAccessFault,
		Mstatus: arch.M.Bits() << arch.MstatusMPPShift,
	}

	err := f.mon.HandleTrap()
	assert.ErrorIs(t, err, ErrMonitorTrap)
	assert.Contains(t, err.Error(), "load access fault")
}

func TestMaxExits(t *testing.T) {
	f := newFixture(t, nil)
	f.mon.MaxExits = 2

	f.script(t,
		f.emulate(t, firmwareEntry, csrw(arch.Mscratch), 1),
		f.emulate(t, firmwareEntry+4, csrw(arch.Mscratch), 2),
		f.emulate(t, firmwareEntry+8, csrw(arch.Mscratch), 3),
	)

	assert.ErrorIs(t, f.mon.Run(), ErrMaxExits)
	assert.Equal(t, 3, f.soft.Runs)
	assert.Equal(t, uint64(2), f.mon.Hart.Csr.Mscratch)
}

func TestNotImplemented(t *testing.T) {
	f := newFixture(t, nil)

	f.script(t, func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
		return arch.TrapInfo{Mepc: pc, Mcause: arch.StorePageFault}
	})

	assert.ErrorIs(t, f.mon.Run(), ErrNotImplemented)
}

func TestUncommittedPMP(t *testing.T) {
	f := newFixture(t, nil)
	l := f.mon.Machine.PMP

	l.SetInactive(l.ScratchIndex(), 0)
	assert.ErrorIs(t, f.mon.Step(), pmp.ErrNotCommitted)

	f.soft.WritePMP(l)
	assert.ErrorIs(t, f.mon.Step(), pmp.ErrFlushPending)
	assert.Zero(t, f.soft.Runs)
}

func TestLog(t *testing.T) {
	f := newFixture(t, nil)

	var out []byte

	f.mon.Output = func(c byte, firmware bool) {
		assert.True(t, firmware)
		out = append(out, c)
	}

	msg := []byte("hello")
	f.soft.Load(payloadEntry, msg)

	f.script(t,
		ecall(t, arch.U, func(regs *[32]uint64) {
			abi(FIDLog)(regs)
			regs[regA0] = LevelInfo
			regs[regA1] = payloadEntry
			regs[regA2] = uint64(len(msg))
		}),
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			assert.Equal(t, uint64(firmwareEntry+4), pc)
			assert.Zero(t, regs[regA0])

			abi(FIDSuccess)(regs)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromU}
		},
	)

	requireExit(t, f.mon.Run(), true)
	assert.Equal(t, "[INFO  firmware] hello\n", string(out))
}

func TestBreakpoint(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.mon.Hart.Set(f.mon.Machine, arch.Mtvec, firmwareTrap))

	f.script(t,
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			return arch.TrapInfo{Mepc: pc, Mcause: arch.Breakpoint, Mtval: pc}
		},
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			assert.Equal(t, uint64(firmwareTrap), pc)
			assert.Equal(t, uint64(arch.Breakpoint), f.mon.Hart.Csr.Mcause)

			abi(FIDSuccess)(regs)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromU}
		},
	)

	requireExit(t, f.mon.Run(), true)
}

func TestFirmwareEcall(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.mon.Hart.Set(f.mon.Machine, arch.Mtvec, firmwareTrap))

	f.script(t,
		ecall(t, arch.U, func(regs *[32]uint64) {}),
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			assert.Equal(t, uint64(firmwareTrap), pc)
			assert.Equal(t, uint64(arch.EcallFromM), f.mon.Hart.Csr.Mcause)

			abi(FIDSuccess)(regs)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromU}
		},
	)

	requireExit(t, f.mon.Run(), true)
}

func TestPayloadRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	h := f.mon.Hart
	l := f.mon.Machine.PMP

	f.script(t,
		f.emulate(t, firmwareEntry, csrw(arch.Mideleg), math.MaxUint64),
		f.emulate(t, firmwareEntry+4, csrw(arch.Mtvec), firmwareTrap),
		f.emulate(t, firmwareEntry+8, csrw(arch.Mepc), payloadEntry),
		f.emulate(t, firmwareEntry+12, csrw(arch.Mstatus), arch.S.Bits()<<arch.MstatusMPPShift),
		f.emulate(t, firmwareEntry+16, mret, 0),
		// payload
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			assert.Equal(t, arch.S, mode)
			assert.Equal(t, uint64(payloadEntry), pc)
			assert.Equal(t, arch.SupervisorInterrupts, f.soft.ReadCSR(arch.Mideleg))

			// SBI probe, handled by the firmware
			regs[regA7] = 0x10
			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromS}
		},
		// firmware trap handler
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			assert.Equal(t, arch.U, mode)
			assert.Equal(t, uint64(firmwareTrap), pc)
			assert.Equal(t, uint64(arch.EcallFromS), h.Csr.Mcause)
			assert.Equal(t, uint64(payloadEntry), h.Csr.Mepc)
			assert.Equal(t, arch.S, arch.Mode(h.Csr.Mstatus>>arch.MstatusMPPShift&3))

			// no delegation while the firmware runs
			assert.Zero(t, f.soft.ReadCSR(arch.Mideleg))
			assert.Zero(t, f.soft.ReadCSR(arch.Medeleg))

			_, cfgs := f.soft.PMP()
			assert.Equal(t, pmp.Cfg(pmp.OFF, 0), cfgs[l.WindowIndex()])
			assert.Equal(t, pmp.Cfg(pmp.NAPOT, pmp.RWX), cfgs[l.CatchAllIndex()])

			abi(FIDSuccess)(regs)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromU}
		},
	)

	requireExit(t, f.mon.Run(), true)
	assert.Equal(t, arch.SupervisorInterrupts, h.Csr.Mideleg)
	assert.Equal(t, uint64(7), h.NbExits)
}

func TestTimerInterrupt(t *testing.T) {
	f := newFixture(t, nil)
	h := f.mon.Hart
	mtimecmp := uint64(clintBase + device.MtimecmpOffset)

	f.script(t,
		f.emulate(t, firmwareEntry, csrw(arch.Mtvec), firmwareTrap),
		f.emulate(t, firmwareEntry+4, csrw(arch.Mie), arch.MipMTIP),
		// sd a1, 5(a0) to mtimecmp
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			regs[regA0] = mtimecmp - 5
			regs[regA1] = 100
			f.soft.Store32(pc, sdA1A0)

			return arch.TrapInfo{Mepc: pc, Mcause: arch.StoreAccessFault, Mtval: mtimecmp}
		},
		f.emulate(t, firmwareEntry+12, csrsi(arch.Mstatus, arch.MstatusMIE), 0),
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			assert.Equal(t, uint64(firmwareEntry+16), pc)
			assert.Equal(t, uint64(100), f.driver.Timecmp[0])

			f.driver.Time = 200
			return arch.TrapInfo{Mepc: pc, Mcause: arch.MachineTimerInterrupt}
		},
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			assert.Equal(t, uint64(firmwareTrap), pc)
			assert.Equal(t, arch.MachineTimerInterrupt, h.Csr.Mcause)
			assert.Equal(t, uint64(firmwareEntry+16), h.Csr.Mepc)
			assert.NotZero(t, h.Csr.Mip&arch.MipMTIP)
			assert.Zero(t, h.Csr.Mstatus&arch.MstatusMIE)

			// the physical timer is disarmed
			assert.Equal(t, uint64(math.MaxUint64), f.driver.Timecmp[0])

			abi(FIDSuccess)(regs)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromU}
		},
	)

	requireExit(t, f.mon.Run(), true)
}

type doorbell struct {
	modules.Base
	calls int
}

func (d *doorbell) Name() string { return "doorbell" }

func (d *doorbell) OnInterrupt(*vcpu.Hart, *vcpu.Machine) modules.Action {
	d.calls++
	return modules.Handled
}

func TestPolicyInterrupt(t *testing.T) {
	d := &doorbell{}
	f := newFixture(t, modules.Set{d})

	f.mon.Machine.Clint.TriggerPolicyInterrupt(0)
	require.True(t, f.driver.Software[0])

	f.script(t,
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			return arch.TrapInfo{Mepc: pc, Mcause: arch.MachineSoftInterrupt}
		},
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			// not delivered to the firmware
			assert.Equal(t, uint64(firmwareEntry), pc)

			abi(FIDSuccess)(regs)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromU}
		},
	)

	requireExit(t, f.mon.Run(), true)
	assert.Equal(t, 1, d.calls)
	assert.False(t, f.driver.Software[0])
}

func TestExternalInterruptMasked(t *testing.T) {
	f := newFixture(t, nil)
	h := f.mon.Hart

	f.script(t,
		f.emulate(t, firmwareEntry, csrw(arch.Mie), arch.MipMEIP),
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			assert.NotZero(t, f.soft.ReadCSR(arch.Mie)&arch.MipMEIP)

			f.soft.Raise(arch.MipMEIP)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.MachineExtInterrupt}
		},
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			// mstatus.MIE is clear, the line is masked
			assert.Equal(t, uint64(firmwareEntry+4), pc)
			assert.Zero(t, f.soft.ReadCSR(arch.Mie)&arch.MipMEIP)
			assert.NotZero(t, h.Csr.Mie&arch.MipMEIP)
			assert.NotZero(t, h.Csr.Mip&arch.MipMEIP)

			abi(FIDSuccess)(regs)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromU}
		},
	)

	requireExit(t, f.mon.Run(), true)
}

func TestSupervisorExtInterrupt(t *testing.T) {
	f := newFixture(t, nil)
	h := f.mon.Hart

	f.script(t,
		f.emulate(t, firmwareEntry, csrw(arch.Mtvec), firmwareTrap),
		f.emulate(t, firmwareEntry+4, csrw(arch.Mie), arch.MipSEIP),
		f.emulate(t, firmwareEntry+8, csrsi(arch.Mstatus, arch.MstatusMIE), 0),
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			assert.Equal(t, uint64(firmwareEntry+12), pc)
			assert.NotZero(t, f.soft.ReadCSR(arch.Mie)&arch.MipSEIP)

			f.soft.Raise(arch.MipSEIP)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.SupervisorExtInterrupt}
		},
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			assert.Equal(t, uint64(firmwareTrap), pc)
			assert.Equal(t, arch.SupervisorExtInterrupt, h.Csr.Mcause)
			assert.Equal(t, uint64(firmwareEntry+12), h.Csr.Mepc)
			assert.Zero(t, h.Csr.Mstatus&arch.MstatusMIE)

			abi(FIDSuccess)(regs)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromU}
		},
	)

	requireExit(t, f.mon.Run(), true)
}

func TestSupervisorExtInterruptMasked(t *testing.T) {
	f := newFixture(t, nil)
	h := f.mon.Hart

	f.script(t,
		f.emulate(t, firmwareEntry, csrw(arch.Mtvec), firmwareTrap),
		f.emulate(t, firmwareEntry+4, csrw(arch.Mie), arch.MipSEIP),
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			f.soft.Raise(arch.MipSEIP)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.SupervisorExtInterrupt}
		},
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			// mstatus.MIE is clear, the line is masked
			assert.Equal(t, uint64(firmwareEntry+8), pc)
			assert.Zero(t, f.soft.ReadCSR(arch.Mie)&arch.MipSEIP)
			assert.NotZero(t, h.Csr.Mie&arch.MipSEIP)

			f.soft.Store32(pc, csrsi(arch.Mstatus, arch.MstatusMIE))
			return arch.TrapInfo{Mepc: pc, Mcause: arch.IllegalInstruction}
		},
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			// enabling interrupts delivers the pending line
			assert.Equal(t, uint64(firmwareTrap), pc)
			assert.Equal(t, arch.SupervisorExtInterrupt, h.Csr.Mcause)
			assert.Equal(t, uint64(firmwareEntry+12), h.Csr.Mepc)
			assert.NotZero(t, f.soft.ReadCSR(arch.Mie)&arch.MipSEIP)

			abi(FIDSuccess)(regs)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromU}
		},
	)

	requireExit(t, f.mon.Run(), true)
}

func TestOffloadTimer(t *testing.T) {
	mods, err := modules.Load([]string{"exits", "offload"}, modules.Options{Harts: 1})
	require.NoError(t, err)

	f := newFixture(t, mods)
	h := f.mon.Hart

	require.NoError(t, h.Set(f.mon.Machine, arch.Mepc, payloadEntry))
	require.NoError(t, h.Set(f.mon.Machine, arch.Mstatus, arch.S.Bits()<<arch.MstatusMPPShift))

	f.script(t,
		f.emulate(t, firmwareEntry, mret, 0),
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			assert.Equal(t, arch.S, mode)

			regs[regA7] = modules.SBITimeEID
			regs[regA6] = 0
			regs[regA0] = 1000

			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromS}
		},
		func(regs *[32]uint64, pc uint64, mode arch.Mode) arch.TrapInfo {
			// served without entering the firmware
			assert.Equal(t, arch.S, mode)
			assert.Equal(t, uint64(payloadEntry+4), pc)
			assert.Zero(t, regs[regA0])
			assert.Equal(t, uint64(1000), f.driver.Timecmp[0])

			abi(FIDSuccess)(regs)
			return arch.TrapInfo{Mepc: pc, Mcause: arch.EcallFromS}
		},
	)

	requireExit(t, f.mon.Run(), true)

	exits := mods[0].(*modules.Exits)
	assert.Equal(t, modules.Stats{Exits: 2, Firmware: 1, Payload: 1, Ecalls: 1, Switches: 1}, exits.Stats(0))
}

func TestSetup(t *testing.T) {
	s := arch.NewSoft(arch.DefaultSoftConfig)
	driver := device.NewSoftDriver()

	conf := config.Default()
	conf.VirtualPMPs = 4
	conf.MaxExits = 10
	conf.Modules = []string{"exits", "offload"}

	mon, err := Setup(s, driver, 0, conf)
	require.NoError(t, err)

	m := mon.Machine

	require.NotNil(t, m.Clint)
	assert.Equal(t, conf.Memory.Clint, m.Clint.Start())
	assert.Equal(t, 4, m.PMP.WindowSize())
	assert.Equal(t, 4, mon.Hart.NbPMP)
	assert.Equal(t, uint64(10), mon.MaxExits)
	assert.Len(t, mon.Modules, 2)

	require.NoError(t, mon.Boot(conf.Memory.Firmware.Start, conf.Memory.DTB))
	assert.Equal(t, conf.Memory.Firmware.Start, mon.Hart.PC)
	assert.Equal(t, conf.Memory.DTB, mon.Hart.Reg(regA1))
	assert.NoError(t, m.PMP.Committed())

	// the monitor region is protected
	addr, cfg := m.PMP.Entry(1)
	assert.Equal(t, conf.Memory.Monitor.End()>>2, addr)
	assert.Equal(t, pmp.Cfg(pmp.TOR, 0), cfg)
}

func TestSetupWithoutClint(t *testing.T) {
	conf := config.Default()
	conf.Memory.Clint = 0

	mon, err := Setup(arch.NewSoft(arch.DefaultSoftConfig), nil, 0, conf)
	require.NoError(t, err)

	assert.Nil(t, mon.Machine.Clint)
	assert.Empty(t, mon.Machine.Devices)

	// timer interrupts cannot be virtualized
	require.NoError(t, mon.Boot(conf.Memory.Firmware.Start, 0))
	mon.Hart.Trap = arch.TrapInfo{Mepc: conf.Memory.Firmware.Start, Mcause: arch.MachineTimerInterrupt}

	assert.ErrorIs(t, mon.HandleTrap(), ErrNoClint)
}
