// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package config implements the boot configuration of the monitor, a YAML
// document embedded in the board executable.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"

	"gopkg.in/yaml.v3"

	"github.com/usbarmory/GoVFM/mem"
	"github.com/usbarmory/GoVFM/modules"
	"github.com/usbarmory/GoVFM/pmp"
)

// Region is a physical memory range.
type Region struct {
	Name  string `yaml:"name,omitempty"`
	Start uint64 `yaml:"start"`
	Size  uint64 `yaml:"size"`
}

// End returns the first address following the region.
func (r Region) End() uint64 {
	return r.Start + r.Size
}

func (r Region) overlaps(o Region) bool {
	return r.Start < o.End() && o.Start < r.End()
}

// PMP returns the region in the form used by the PMP layout.
func (r Region) PMP() pmp.Region {
	return pmp.Region{Name: r.Name, Start: r.Start, Size: r.Size}
}

// Memory is the physical memory map of the machine.
type Memory struct {
	Monitor  Region `yaml:"monitor"`
	Firmware Region `yaml:"firmware"`
	Payload  Region `yaml:"payload"`
	// DTB is the device tree address handed to the firmware in a1.
	DTB uint64 `yaml:"dtb"`
	// Clint is the base address of the core local interruptor, 0
	// disables its emulation.
	Clint uint64 `yaml:"clint"`
}

// Config is the boot configuration of the monitor.
type Config struct {
	// Harts is the number of harts sharing the virtual CLINT.
	Harts int `yaml:"harts"`
	// MaxExits stops the monitor after the given number of exits, 0
	// disables the limit.
	MaxExits uint64 `yaml:"max_exits"`
	// VirtualPMPs caps the number of PMP entries exposed to the firmware.
	VirtualPMPs int `yaml:"virtual_pmps"`
	// DelegatePerfCounters exposes the hardware performance counters to
	// the payload.
	DelegatePerfCounters bool `yaml:"delegate_perf_counters"`
	// Debug logs every trap.
	Debug bool `yaml:"debug"`
	// Console starts the debug console instead of running the guests.
	Console bool `yaml:"console"`
	// SSH is the listening address of the SSH debug console, empty
	// disables it.
	SSH string `yaml:"ssh,omitempty"`
	// Modules lists the policy modules in dispatch order.
	Modules []string `yaml:"modules"`
	// Protected lists the regions reserved to the payload.
	Protected []Region `yaml:"protected,omitempty"`

	Memory Memory `yaml:"memory"`
}

// Default returns the configuration for a QEMU sifive_u machine.
func Default() *Config {
	return &Config{
		Harts:       1,
		VirtualPMPs: pmp.MaxEntries,
		Modules:     []string{"exits", "offload"},
		Memory: Memory{
			Monitor:  Region{Name: "monitor", Start: mem.MonitorStart, Size: mem.MonitorSize + mem.MonitorDMASize},
			Firmware: Region{Name: "firmware", Start: mem.FirmwareStart, Size: mem.FirmwareSize},
			Payload:  Region{Name: "payload", Start: mem.PayloadStart, Size: mem.PayloadSize},
			DTB:      mem.DTBStart,
			Clint:    mem.ClintStart,
		},
	}
}

// Parse decodes a YAML configuration over the defaults and validates it.
func Parse(buf []byte) (c *Config, err error) {
	c = Default()

	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	if err = dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid configuration, %v", err)
	}

	if err = c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks the consistency of the configuration.
func (c *Config) Validate() error {
	if c.Harts < 1 {
		return fmt.Errorf("invalid hart count %d", c.Harts)
	}

	if c.VirtualPMPs < 0 || c.VirtualPMPs > pmp.MaxEntries {
		return fmt.Errorf("invalid virtual PMP count %d", c.VirtualPMPs)
	}

	m := c.Memory
	regions := []Region{m.Monitor, m.Firmware, m.Payload}

	for i, r := range regions {
		if r.Size == 0 || r.End() < r.Start {
			return fmt.Errorf("invalid %s region %#x-%#x", r.Name, r.Start, r.End())
		}

		for _, o := range regions[i+1:] {
			if r.overlaps(o) {
				return fmt.Errorf("%s region overlaps %s region", r.Name, o.Name)
			}
		}
	}

	if m.Firmware.Start&3 != 0 || m.Payload.Start&3 != 0 {
		return errors.New("misaligned entry point")
	}

	for _, r := range c.Protected {
		if r.overlaps(m.Monitor) {
			return fmt.Errorf("protected region %s overlaps monitor", r.Name)
		}
	}

	if c.SSH != "" {
		if _, _, err := net.SplitHostPort(c.SSH); err != nil {
			return fmt.Errorf("invalid ssh address, %v", err)
		}
	}

	available := make(map[string]bool)

	for _, name := range modules.Available() {
		available[name] = true
	}

	for _, name := range c.Modules {
		if !available[name] {
			return fmt.Errorf("module %q not available", name)
		}
	}

	return nil
}

// LoadModules instantiates the configured policy modules.
func (c *Config) LoadModules() (modules.Set, error) {
	var protected []pmp.Region

	for _, r := range c.Protected {
		protected = append(protected, r.PMP())
	}

	return modules.Load(c.Modules, modules.Options{
		Harts:     c.Harts,
		Protected: protected,
	})
}

// String returns the configuration as a YAML document.
func (c *Config) String() string {
	buf, err := yaml.Marshal(c)

	if err != nil {
		return err.Error()
	}

	return string(buf)
}
