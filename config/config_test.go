// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbarmory/GoVFM/modules"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, Default(), c)
	assert.Equal(t, uint64(0x82000000), c.Memory.Firmware.Start)
	assert.Equal(t, []string{"exits", "offload"}, c.Modules)
}

func TestParse(t *testing.T) {
	doc := `
harts: 2
max_exits: 1000
virtual_pmps: 4
delegate_perf_counters: true
modules: [protect, exits]
ssh: 10.0.0.1:22
protected:
  - name: secrets
    start: 0x90000000
    size: 0x1000
memory:
  payload:
    name: payload
    start: 0x84000000
    size: 0x04000000
`

	c, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, 2, c.Harts)
	assert.Equal(t, uint64(1000), c.MaxExits)
	assert.Equal(t, 4, c.VirtualPMPs)
	assert.True(t, c.DelegatePerfCounters)
	assert.Equal(t, []string{"protect", "exits"}, c.Modules)
	assert.Equal(t, "10.0.0.1:22", c.SSH)
	assert.Equal(t, []Region{{Name: "secrets", Start: 0x90000000, Size: 0x1000}}, c.Protected)
	assert.Equal(t, uint64(0x04000000), c.Memory.Payload.Size)

	// untouched fields keep their default
	assert.Equal(t, Default().Memory.Monitor, c.Memory.Monitor)
	assert.Equal(t, uint64(0x02000000), c.Memory.Clint)

	mods, err := c.LoadModules()
	require.NoError(t, err)
	require.Len(t, mods, 2)

	assert.Equal(t, "protect", mods[0].Name())
	assert.Equal(t, 1, mods.NumPMPs())

	_, ok := mods[1].(*modules.Exits)
	assert.True(t, ok)
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		doc  string
		err  string
	}{
		{"unknown field", "foo: 1", "field foo not found"},
		{"syntax", "harts: [", "invalid configuration"},
		{"harts", "harts: 0", "invalid hart count"},
		{"virtual pmps", "virtual_pmps: 65", "invalid virtual PMP count"},
		{"module", "modules: [nope]", `module "nope" not available`},
		{"empty region", "memory: {payload: {name: payload, start: 0x84000000, size: 0}}", "invalid payload region"},
		{"overlap", "memory: {firmware: {name: firmware, start: 0x81000000, size: 0x2000000}}", "monitor region overlaps firmware region"},
		{"entry", "memory: {payload: {name: payload, start: 0x84000002, size: 0x1000}}", "misaligned entry point"},
		{"protected", "protected: [{name: p, start: 0x80000000, size: 0x1000}]", "protected region p overlaps monitor"},
		{"ssh", "ssh: localhost", "invalid ssh address"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestString(t *testing.T) {
	c := Default()

	again, err := Parse([]byte(c.String()))
	require.NoError(t, err)
	assert.Equal(t, c, again)
}

func TestBoardConfig(t *testing.T) {
	buf, err := os.ReadFile("../monitor_sifive_u/config.yaml")
	require.NoError(t, err)

	c, err := Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, Default().Memory, c.Memory)
	assert.Equal(t, 8, c.VirtualPMPs)
	assert.Equal(t, []string{"exits", "offload"}, c.Modules)
}
