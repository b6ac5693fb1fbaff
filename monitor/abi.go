// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package monitor

import (
	"fmt"
	"log"
)

// Monitor ABI, selected by EID in a7 and FID in a6.
const (
	EID = 0x08475bcd

	FIDFailure   = 0
	FIDSuccess   = 1
	FIDLog       = 2
	FIDBenchmark = 3
)

// Log levels of FIDLog.
const (
	LevelError = iota + 1
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var levelNames = map[uint64]string{
	LevelError: "ERROR",
	LevelWarn:  "WARN",
	LevelInfo:  "INFO",
	LevelDebug: "DEBUG",
	LevelTrace: "TRACE",
}

// maximum length of a guest log message
const logLimit = 1024

const (
	regA0 = 10
	regA1 = 11
	regA2 = 12
	regA6 = 16
	regA7 = 17
)

func (mon *Monitor) isABI() bool {
	return mon.Hart.Reg(regA7) == EID
}

func (mon *Monitor) handleABI() (err error) {
	h := mon.Hart

	switch fid := h.Reg(regA6); fid {
	case FIDFailure:
		return &ExitError{Hart: h.HartID}
	case FIDSuccess:
		return &ExitError{Hart: h.HartID, Success: true}
	case FIDLog:
		mon.guestLog(h.Reg(regA0), h.Reg(regA1), h.Reg(regA2))
	case FIDBenchmark:
		mon.Modules.Report(mon.reportWriter())
		return &ExitError{Hart: h.HartID, Success: true}
	default:
		return mon.fatal(fmt.Errorf("%w %d", ErrInvalidFID, fid))
	}

	h.SetReg(regA0, 0)
	h.PC += 4

	return
}

func (mon *Monitor) guestLog(level uint64, addr uint64, size uint64) {
	h := mon.Hart

	if size > logLimit {
		size = logLimit
	}

	name, ok := levelNames[level]

	if !ok {
		name = fmt.Sprintf("L%d", level)
	}

	msg := []byte(fmt.Sprintf("[%-5s %s] ", name, world(h.InFirmware())))

	for i := uint64(0); i < size; i++ {
		c, err := mon.Machine.Arch.ReadByteAs(h.HardwareMode(), addr+i)

		if err != nil {
			log.Printf("hart %d: invalid log buffer, %v", h.HartID, err)
			break
		}

		msg = append(msg, c)
	}

	if msg[len(msg)-1] != '\n' {
		msg = append(msg, '\n')
	}

	if mon.Output == nil {
		log.Print(string(msg))
		return
	}

	for _, c := range msg {
		mon.Output(c, h.InFirmware())
	}
}

func world(firmware bool) string {
	if firmware {
		return "firmware"
	}

	return "payload"
}
