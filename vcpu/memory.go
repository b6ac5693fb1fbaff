// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package vcpu

import (
	"errors"
	"log"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/decoder"
	"github.com/usbarmory/GoVFM/device"
	"github.com/usbarmory/GoVFM/pmp"
)

// access describes a decoded load or store.
type access struct {
	store bool
	// reg is the destination register of loads, the source of stores
	reg      int
	addr     uint64
	width    uint64
	unsigned bool
	len      uint64
}

func (h *Hart) decodeAccess(m *Machine, store bool) (a access, err error) {
	raw, err := h.Fetch(m, h.PC)

	if err != nil {
		return
	}

	if store {
		var s decoder.Store

		if s, err = decoder.DecodeStore(raw); err != nil {
			return
		}

		return access{
			store: true,
			reg:   s.Rs2,
			addr:  h.Reg(s.Rs1) + uint64(s.Imm),
			width: s.Width,
			len:   s.Len(),
		}, nil
	}

	var l decoder.Load

	if l, err = decoder.DecodeLoad(raw); err != nil {
		return
	}

	return access{
		reg:      l.Rd,
		addr:     h.Reg(l.Rs1) + uint64(l.Imm),
		width:    l.Width,
		unsigned: l.Unsigned,
		len:      l.Len(),
	}, nil
}

// reflect delivers an emulation failure to the firmware, errors which cannot
// be attributed to the guest are returned.
func (h *Hart) reflect(err error) error {
	var fault *arch.AccessFault

	switch {
	case errors.As(err, &fault):
		h.InjectException(fault.Cause, fault.Addr)
	case errors.Is(err, decoder.ErrNotImplemented), errors.Is(err, decoder.ErrInvalid):
		h.EmulateJumpTrap()
	default:
		return err
	}

	return nil
}

func (h *Hart) complete(a access, v uint64) {
	if !a.store {
		if !a.unsigned && a.width < 8 {
			shift := 64 - 8*a.width
			v = uint64(int64(v<<shift) >> shift)
		}

		h.SetReg(a.reg, v)
	}

	h.PC += a.len
}

func loadAs(m *Machine, mode arch.Mode, addr uint64, width uint64) (v uint64, err error) {
	for i := uint64(0); i < width; i++ {
		var b byte

		if b, err = m.Arch.ReadByteAs(mode, addr+i); err != nil {
			return
		}

		v |= uint64(b) << (8 * i)
	}

	return
}

func storeAs(m *Machine, mode arch.Mode, addr uint64, width uint64, v uint64) (err error) {
	for i := uint64(0); i < width; i++ {
		if err = m.Arch.WriteByteAs(mode, addr+i, byte(v>>(8*i))); err != nil {
			return
		}
	}

	return
}

// perform executes a decoded access byte by byte with the privileges of
// mode.
func (h *Hart) perform(m *Machine, mode arch.Mode, a access) (v uint64, err error) {
	if a.store {
		err = storeAs(m, mode, a.addr, a.width, h.Reg(a.reg))
		return
	}

	return loadAs(m, mode, a.addr, a.width)
}

// EmulateMisaligned emulates the misaligned load or store which caused the
// last trap.
func (h *Hart) EmulateMisaligned(m *Machine) (err error) {
	store := h.Trap.Cause() == arch.StoreAddressMisaligned

	a, err := h.decodeAccess(m, store)

	if err != nil {
		return h.reflect(err)
	}

	if h.Csr.Mstatus&arch.MstatusMPRV != 0 {
		return h.privilegedAccess(m, a)
	}

	v, err := h.perform(m, h.HardwareMode(), a)

	if err != nil {
		return h.reflect(err)
	}

	h.complete(a, v)

	return
}

// EmulateAccessFault emulates the load or store which caused the last
// access fault taken from the firmware. Device accesses are forwarded to the
// device model, accesses performed with mstatus.MPRV set are emulated with
// the effective privilege, any other fault is reflected to the firmware.
func (h *Hart) EmulateAccessFault(m *Machine) (err error) {
	if dev, ok := m.Devices.Find(h.Trap.Mtval); ok {
		return h.EmulateDeviceAccess(m, dev)
	}

	if h.Csr.Mstatus&arch.MstatusMPRV != 0 {
		return h.EmulatePrivilegedAccess(m)
	}

	h.EmulateJumpTrap()

	return
}

// EmulateDeviceAccess emulates a firmware access to a memory mapped device.
func (h *Hart) EmulateDeviceAccess(m *Machine, dev device.Device) (err error) {
	store := h.Trap.Cause() == arch.StoreAccessFault

	a, err := h.decodeAccess(m, store)

	if err != nil {
		return h.reflect(err)
	}

	var v uint64
	offset := a.addr - dev.Start()

	if a.store {
		err = dev.Write(offset, a.width, h.Reg(a.reg))
	} else {
		v, err = dev.Read(offset, a.width)
	}

	if err != nil {
		log.Printf("hart %d: %s %s@%#x, %v", h.HartID, dev.Name(), accessName(a), offset, err)
		h.InjectException(h.Trap.Cause(), a.addr)
		return nil
	}

	h.complete(a, v)

	return
}

func accessName(a access) string {
	if a.store {
		return "store"
	}

	return "load"
}

// EmulatePrivilegedAccess emulates a firmware load or store performed with
// mstatus.MPRV set, using the privileges of mstatus.MPP.
func (h *Hart) EmulatePrivilegedAccess(m *Machine) (err error) {
	store := h.Trap.Cause() == arch.StoreAccessFault

	a, err := h.decodeAccess(m, store)

	if err != nil {
		return h.reflect(err)
	}

	return h.privilegedAccess(m, a)
}

func (h *Hart) privilegedAccess(m *Machine, a access) (err error) {
	c := &h.Csr
	l := m.PMP
	scratch := l.ScratchIndex()
	mpp, _ := arch.ModeFromBits(c.Mstatus >> arch.MstatusMPPShift)

	var satp, status uint64

	// the firmware itself executes in hardware U-mode
	mode := arch.U
	l.SetInactive(scratch, 0)

	if mpp != arch.M {
		mode = mpp

		addrs, cfgs := h.VirtualPMP()

		if err = l.LoadWindow(addrs, cfgs, l.WindowIndex(), len(addrs)); err != nil {
			return
		}

		if h.NbPMP > 0 {
			l.SetAllMemory(l.CatchAllIndex(), 0)
		}

		satp = m.Arch.ReadCSR(arch.Satp)
		status = m.Arch.ReadCSR(arch.Mstatus)

		m.Arch.WriteCSR(arch.Satp, c.Satp)
		m.Arch.ClearCSRBits(arch.Mstatus, arch.MstatusSUM|arch.MstatusMXR)
		m.Arch.SetCSRBits(arch.Mstatus, c.Mstatus&(arch.MstatusSUM|arch.MstatusMXR))
		m.Arch.SfenceVMA(nil, nil)
	}

	m.Arch.WritePMP(l).Flush()

	v, err := h.perform(m, mode, a)

	if mpp != arch.M {
		l.ClearWindow()
		l.SetAllMemory(l.CatchAllIndex(), pmp.RWX)

		m.Arch.WriteCSR(arch.Satp, satp)
		m.Arch.WriteCSR(arch.Mstatus, status)
	}

	l.SetAllMemory(scratch, pmp.X)
	m.Arch.WritePMP(l).Flush()

	if err != nil {
		return h.reflect(err)
	}

	h.complete(a, v)

	return
}
