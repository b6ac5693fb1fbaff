// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/usbarmory/GoVFM/arch"
	"github.com/usbarmory/GoVFM/config"
	"github.com/usbarmory/GoVFM/monitor"
	"github.com/usbarmory/GoVFM/pmp"
	"github.com/usbarmory/GoVFM/util"
)

var (
	// Monitor is the dispatcher controlled by the console.
	Monitor *monitor.Monitor
	// Config is the boot configuration of Monitor.
	Config *config.Config
	// Entry is the firmware entry point, the start of the firmware region
	// when zero.
	Entry uint64
	// Payload is the payload executable, used to resolve program
	// counters.
	Payload []byte

	booted bool
)

var abiNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

func init() {
	Add(Cmd{
		Name: "run",
		Help: "run firmware and payload until exit",
		Fn:   runCmd,
	})

	Add(Cmd{
		Name: "step",
		Help: "run until the next trap",
		Fn:   stepCmd,
	})

	Add(Cmd{
		Name: "regs",
		Help: "show virtual hart registers",
		Fn:   regsCmd,
	})

	Add(Cmd{
		Name:    "csr",
		Args:    1,
		Pattern: regexp.MustCompile(`^csr (\S+)$`),
		Syntax:  "<name|number>",
		Help:    "read virtual CSR",
		Fn:      csrCmd,
	})

	Add(Cmd{
		Name: "pmp",
		Help: "show hardware and virtual PMP entries",
		Fn:   pmpCmd,
	})

	Add(Cmd{
		Name: "stats",
		Help: "policy module statistics",
		Fn:   statsCmd,
	})

	Add(Cmd{
		Name:    "sym",
		Args:    1,
		Pattern: regexp.MustCompile(`^sym (\S+)$`),
		Syntax:  "<0xpc|name>",
		Help:    "resolve payload program counter or symbol",
		Fn:      symCmd,
	})

	Add(Cmd{
		Name: "config",
		Help: "show boot configuration",
		Fn:   configCmd,
	})
}

func boot() (err error) {
	if Monitor == nil || Config == nil {
		return errors.New("no monitor")
	}

	if booted {
		return
	}

	entry := Entry

	if entry == 0 {
		entry = Config.Memory.Firmware.Start
	}

	if err = Monitor.Boot(entry, Config.Memory.DTB); err != nil {
		return
	}

	booted = true

	return
}

// Run executes firmware and payload until an exit is requested
// (*monitor.ExitError) or a fatal error occurs.
func Run() (err error) {
	if err = boot(); err != nil {
		return
	}

	log.Printf("VFM starting %s", Monitor.Hart)

	err = Monitor.Run()

	var fatal *monitor.FatalError

	if errors.As(err, &fatal) {
		log.Printf("VFM fatal error, %v", err)

		if line, err := util.PCToLine(Payload, fatal.PC); err == nil {
			log.Printf("VFM stopped at %s", line)
		}

		return
	}

	log.Printf("VFM stopped %s, %v", Monitor.Hart, err)

	return
}

// termOutput sends guest logs to the console terminal until the returned
// function is called.
func termOutput(t *term.Terminal) (restore func()) {
	if Monitor == nil || t == nil {
		return func() {}
	}

	prev := Monitor.Output

	Monitor.Output = func(c byte, firmware bool) {
		util.BufferedTermLog(c, firmware, t)
	}

	return func() {
		Monitor.Output = prev
	}
}

func runCmd(t *term.Terminal, _ []string) (res string, err error) {
	defer termOutput(t)()

	err = Run()

	var exit *monitor.ExitError

	if errors.As(err, &exit) {
		return exit.Error(), nil
	}

	return
}

func stepCmd(t *term.Terminal, _ []string) (res string, err error) {
	if err = boot(); err != nil {
		return
	}

	defer termOutput(t)()

	err = Monitor.Step()

	return fmt.Sprintf("%s %s", Monitor.Hart, &Monitor.Hart.Trap), err
}

func regsCmd(_ *term.Terminal, _ []string) (res string, err error) {
	var buf bytes.Buffer

	if Monitor == nil {
		return "", errors.New("no monitor")
	}

	h := Monitor.Hart

	for i := range h.Regs {
		fmt.Fprintf(&buf, "%-4s %#016x", abiNames[i], h.Reg(i))

		if i%4 == 3 {
			buf.WriteByte('\n')
		} else {
			buf.WriteString("  ")
		}
	}

	fmt.Fprintf(&buf, "pc   %#016x  mode %s", h.PC, h.Mode)

	return buf.String(), nil
}

func csrCmd(_ *term.Terminal, arg []string) (res string, err error) {
	if Monitor == nil {
		return "", errors.New("no monitor")
	}

	r, err := arch.ParseRegister(arg[0])

	if err != nil {
		return
	}

	val, err := Monitor.Hart.Get(r)

	if err != nil {
		return
	}

	return fmt.Sprintf("%s: %#016x", r, val), nil
}

func pmpCmd(_ *term.Terminal, _ []string) (res string, err error) {
	var buf bytes.Buffer

	if Monitor == nil {
		return "", errors.New("no monitor")
	}

	l := Monitor.Machine.PMP

	for i := 0; i < l.Len(); i++ {
		addr, cfg := l.Entry(i)
		fmt.Fprintf(&buf, "PMP:%.2d addr:%#016x %s\n", i, addr, pmp.CfgString(cfg))
	}

	for _, seg := range l.Segments() {
		fmt.Fprintf(&buf, "  %s\n", seg)
	}

	addrs, cfgs := Monitor.Hart.VirtualPMP()

	for i := range addrs {
		fmt.Fprintf(&buf, "vPMP:%.2d addr:%#016x %s\n", i, addrs[i], pmp.CfgString(cfgs[i]))
	}

	for _, seg := range pmp.Segments(addrs, cfgs) {
		fmt.Fprintf(&buf, "  %s\n", seg)
	}

	return buf.String(), nil
}

func statsCmd(_ *term.Terminal, _ []string) (res string, err error) {
	var buf bytes.Buffer

	if Monitor == nil {
		return "", errors.New("no monitor")
	}

	Monitor.Modules.Report(&buf)

	return buf.String(), nil
}

func symCmd(_ *term.Terminal, arg []string) (res string, err error) {
	if !strings.HasPrefix(arg[0], "0x") {
		sym, err := util.LookupSym(Payload, arg[0])

		if err != nil {
			return "", err
		}

		return fmt.Sprintf("%s %#x size:%d", sym.Name, sym.Value, sym.Size), nil
	}

	pc, err := strconv.ParseUint(arg[0][2:], 16, 64)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	return util.PCToLine(Payload, pc)
}

func configCmd(_ *term.Terminal, _ []string) (res string, err error) {
	if Config == nil {
		return "", errors.New("no configuration")
	}

	return Config.String(), nil
}
