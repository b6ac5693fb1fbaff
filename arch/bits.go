// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package arch

// mstatus fields
const (
	MstatusSIE  uint64 = 1 << 1
	MstatusMIE  uint64 = 1 << 3
	MstatusSPIE uint64 = 1 << 5
	MstatusUBE  uint64 = 1 << 6
	MstatusMPIE uint64 = 1 << 7
	MstatusSPP  uint64 = 1 << 8
	MstatusVS   uint64 = 3 << 9
	MstatusMPP  uint64 = 3 << 11
	MstatusFS   uint64 = 3 << 13
	MstatusXS   uint64 = 3 << 15
	MstatusMPRV uint64 = 1 << 17
	MstatusSUM  uint64 = 1 << 18
	MstatusMXR  uint64 = 1 << 19
	MstatusTVM  uint64 = 1 << 20
	MstatusTW   uint64 = 1 << 21
	MstatusTSR  uint64 = 1 << 22
	MstatusUXL  uint64 = 3 << 32
	MstatusSXL  uint64 = 3 << 34
	MstatusSBE  uint64 = 1 << 36
	MstatusMBE  uint64 = 1 << 37
	MstatusGVA  uint64 = 1 << 38
	MstatusMPV  uint64 = 1 << 39
	MstatusSD   uint64 = 1 << 63
)

// mstatus field offsets
const (
	MstatusSPPShift = 8
	MstatusVSShift  = 9
	MstatusMPPShift = 11
	MstatusFSShift  = 13
	MstatusXSShift  = 15
	MstatusUXLShift = 32
	MstatusSXLShift = 34
)

// XLEN encoding for the 64-bit base ISA (misa.MXL, mstatus.UXL/SXL).
const XLen64 uint64 = 2

// SstatusMask is the set of mstatus fields visible through sstatus.
const SstatusMask = MstatusSIE | MstatusSPIE | MstatusUBE | MstatusSPP |
	MstatusVS | MstatusFS | MstatusXS | MstatusSUM | MstatusMXR |
	MstatusUXL | MstatusSD

// mip/mie interrupt lines
const (
	SSI    = 1
	VSSI   = 2
	MSI    = 3
	STI    = 5
	VSTI   = 6
	MTI    = 7
	SEI    = 9
	VSEI   = 10
	MEI    = 11
	SGEI   = 12
	LCOFI  = 13
	MaxIRQ = 16
)

// mip/mie bit masks
const (
	MipSSIP   uint64 = 1 << SSI
	MipVSSIP  uint64 = 1 << VSSI
	MipMSIP   uint64 = 1 << MSI
	MipSTIP   uint64 = 1 << STI
	MipVSTIP  uint64 = 1 << VSTI
	MipMTIP   uint64 = 1 << MTI
	MipSEIP   uint64 = 1 << SEI
	MipVSEIP  uint64 = 1 << VSEI
	MipMEIP   uint64 = 1 << MEI
	MipSGEIP  uint64 = 1 << SGEI
	MipLCOFIP uint64 = 1 << LCOFI
)

// Standard interrupt lines which may exist on a hart.
const (
	SupervisorInterrupts = MipSSIP | MipSTIP | MipSEIP
	MachineInterrupts    = MipMSIP | MipMTIP | MipMEIP
	HypervisorInterrupts = MipVSSIP | MipVSTIP | MipVSEIP | MipSGEIP
	AllInterrupts        = SupervisorInterrupts | MachineInterrupts | HypervisorInterrupts | MipLCOFIP
)

// mtvec/stvec modes
const (
	TvecDirect   uint64 = 0
	TvecVectored uint64 = 1
	TvecModeMask uint64 = 0b11
)

// satp modes
const (
	SatpModeShift        = 60
	SatpBare      uint64 = 0
	SatpSv39      uint64 = 8
	SatpSv48      uint64 = 9
	SatpSv57      uint64 = 10
)

// hstatus fields
const (
	HstatusVSBE  uint64 = 1 << 5
	HstatusGVA   uint64 = 1 << 6
	HstatusSPV   uint64 = 1 << 7
	HstatusSPVP  uint64 = 1 << 8
	HstatusHU    uint64 = 1 << 9
	HstatusVGEIN uint64 = 0x3f << 12
	HstatusVTVM  uint64 = 1 << 20
	HstatusVTW   uint64 = 1 << 21
	HstatusVTSR  uint64 = 1 << 22
	HstatusVSXL  uint64 = 3 << 32

	HstatusVSXLShift = 32
)

// menvcfg/senvcfg fields
const (
	EnvcfgFIOM  uint64 = 1 << 0
	EnvcfgCBIE  uint64 = 3 << 4
	EnvcfgCBCFE uint64 = 1 << 6
	EnvcfgCBZE  uint64 = 1 << 7
	EnvcfgADUE  uint64 = 1 << 61
	EnvcfgPBMTE uint64 = 1 << 62
	EnvcfgSTCE  uint64 = 1 << 63
)

// mcounteren/scounteren fields
const (
	CounterCY uint64 = 1 << 0
	CounterTM uint64 = 1 << 1
	CounterIR uint64 = 1 << 2
)

// misa extension bits
const (
	MisaA uint64 = 1 << ('A' - 'A')
	MisaC uint64 = 1 << ('C' - 'A')
	MisaD uint64 = 1 << ('D' - 'A')
	MisaF uint64 = 1 << ('F' - 'A')
	MisaH uint64 = 1 << ('H' - 'A')
	MisaI uint64 = 1 << ('I' - 'A')
	MisaM uint64 = 1 << ('M' - 'A')
	MisaS uint64 = 1 << ('S' - 'A')
	MisaU uint64 = 1 << ('U' - 'A')
	MisaV uint64 = 1 << ('V' - 'A')

	MisaMXLShift = 62
)
