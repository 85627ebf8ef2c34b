package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/internal/scenario"
	"github.com/ardnew/softi3c/pkg"
)

const busYAML = `
targets:
  - name: sensor
    mid: 0x0104
    part_id: 1
    bcr: 0x06
    dcr: 0x63
    memory: "a0a1a2a3"
    ack_ibi: true
    ibi: "112233"
  - name: eeprom
    static_address: 0x50
    mid: 0x0104
    part_id: 2
`

const hotJoinYAML = `
controller:
  hot_join_ack: true
targets:
  - name: sensor
    mid: 0x0104
    part_id: 1
    bcr: 0x06
    ack_ibi: true
    ibi: "112233"
  - name: late
    mid: 0x0104
    part_id: 2
    hot_join: true
`

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func globals(t *testing.T, data string) *Globals {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return &Globals{Scenario: path, Timeout: 100 * time.Millisecond}
}

func TestFindUserConfig(t *testing.T) {
	env := func(v string) func(string) string {
		return func(string) string { return v }
	}
	assert.Equal(t, "a.yaml", findUserConfig([]string{"daa", "--config=a.yaml"}, env("")))
	assert.Equal(t, "b.toml", findUserConfig([]string{"--config", "b.toml", "daa"}, env("c.json")))
	assert.Equal(t, "c.json", findUserConfig([]string{"daa"}, env("c.json")))
	assert.Empty(t, findUserConfig([]string{"--config"}, env("")))
}

func TestConfigCandidatePaths(t *testing.T) {
	jsonPaths, yamlPaths, tomlPaths := configCandidatePaths("mine.yml")
	require.NotEmpty(t, yamlPaths)
	assert.Equal(t, "mine.yml", yamlPaths[0])
	assert.NotContains(t, jsonPaths, "mine.yml")
	assert.NotEmpty(t, tomlPaths)

	jsonPaths, _, _ = configCandidatePaths("settings.conf")
	assert.Equal(t, "settings.conf", jsonPaths[0])
}

func TestLookupCCC(t *testing.T) {
	tests := []struct {
		name   string
		direct bool
		want   ccc.Code
		ok     bool
	}{
		{"getpid", true, ccc.GETPID, true},
		{"ENEC", false, ccc.ENEC, true},
		{"ENEC", true, ccc.DirectENEC, true},
		{"RSTACT", true, ccc.DirectRSTACT, true},
		{"GETPID", false, 0, false},
		{"SETMWL", false, ccc.SETMWL, true},
		{"DEFTGTS", true, 0, false},
		{"BOGUS", false, 0, false},
	}
	for _, tt := range tests {
		got, err := lookupCCC(tt.name, tt.direct)
		if !tt.ok {
			assert.ErrorIs(t, err, pkg.ErrInvalidParameter, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestDAACmd(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, (&DAACmd{Reset: true}).Run(globals(t, busYAML), discard, &out))
	assert.Contains(t, out.String(), "0x08  pid=")
	assert.Contains(t, out.String(), "0x09  pid=")

	g := globals(t, busYAML)
	g.IDTable = filepath.Join(t.TempDir(), "mipi.ids")
	require.NoError(t, os.WriteFile(g.IDTable, []byte("0104  Acme\n\t0001  Thermometer\n"), 0o600))
	out.Reset()
	require.NoError(t, (&DAACmd{}).Run(g, discard, &out))
	assert.Contains(t, out.String(), "Acme Thermometer\n")
	assert.Contains(t, out.String(), "  Acme\n", "unknown part falls back to the manufacturer")

	out.Reset()
	require.NoError(t, (&DAACmd{}).Run(globals(t, "targets: []\n"), discard, &out))
	assert.Equal(t, "no devices\n", out.String())
}

func TestWriteReadCmd(t *testing.T) {
	g := globals(t, busYAML)

	var out bytes.Buffer
	require.NoError(t, (&WriteCmd{Addr: 0x08, Data: "0x5a5b"}).Run(g, discard, &out))
	assert.Equal(t, "wrote 2 bytes to 0x08\n", out.String())

	// Each command builds the bus afresh from the scenario.
	out.Reset()
	require.NoError(t, (&ReadCmd{Addr: 0x08, N: 3}).Run(g, discard, &out))
	assert.Equal(t, "a0a1a2\n", out.String())

	out.Reset()
	require.NoError(t, (&ReadCmd{Addr: 0x50, N: 2, I2C: true}).Run(g, discard, &out))
	assert.Equal(t, "0000\n", out.String())

	err := (&ReadCmd{Addr: 0x30, N: 1}).Run(g, discard, &out)
	assert.ErrorIs(t, err, pkg.ErrProtocol)
	assert.ErrorIs(t, (&ReadCmd{Addr: 0x08}).Run(g, discard, &out), pkg.ErrInvalidParameter)
	assert.Error(t, (&WriteCmd{Addr: 0x08, Data: "xyz"}).Run(g, discard, &out))
}

func TestCCCCmd(t *testing.T) {
	g := globals(t, busYAML)

	var out bytes.Buffer
	addr := uint8(0x08)
	require.NoError(t, (&CCCCmd{Name: "GETBCR", Addr: &addr, Len: 1}).Run(g, discard, &out))
	assert.Equal(t, "06\n", out.String())

	out.Reset()
	require.NoError(t, (&CCCCmd{Name: "DISEC", Data: "08"}).Run(g, discard, &out))
	assert.Equal(t, "DISEC sent\n", out.String())

	assert.Error(t, (&CCCCmd{Name: "ENTDAA"}).Run(g, discard, &out))
	assert.ErrorIs(t, (&CCCCmd{Name: "GETPID"}).Run(g, discard, &out), pkg.ErrInvalidParameter)
}

func TestIBICmd(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, (&IBICmd{}).Run(globals(t, hotJoinYAML), discard, &out))
	assert.Equal(t, "hot-join\nibi 0x08 112233\n", out.String())
}

func TestProbeCmd(t *testing.T) {
	g := globals(t, busYAML)
	var out bytes.Buffer
	require.NoError(t, (&ProbeCmd{Addr: 0x08, Trials: 2}).Run(g, discard, &out))
	assert.Equal(t, "0x08 ready\n", out.String())

	err := (&ProbeCmd{Addr: 0x33, Trials: 2}).Run(g, discard, &out)
	assert.ErrorIs(t, err, pkg.ErrNotReady)
}

func TestMissingScenario(t *testing.T) {
	err := (&DAACmd{}).Run(&Globals{Timeout: time.Millisecond}, discard, io.Discard)
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()

	for _, format := range []string{"yaml", "toml"} {
		dest := filepath.Join(dir, "bus."+format)
		var out bytes.Buffer
		require.NoError(t, (&ConfigInit{Kind: "scenario", Format: format, Output: dest}).Run(&out))
		s, err := scenario.Load(dest)
		require.NoError(t, err)
		assert.Equal(t, scenario.Template(), s)
		assert.Error(t, (&ConfigInit{Kind: "scenario", Format: format, Output: dest}).Run(&out), "refuses to overwrite")
		assert.NoError(t, (&ConfigInit{Kind: "scenario", Format: format, Output: dest, Force: true}).Run(&out))
	}

	assert.Error(t, (&ConfigInit{Kind: "scenario", Format: "json", Output: filepath.Join(dir, "x.json")}).Run(io.Discard))

	for _, format := range []string{"json", "yaml", "toml"} {
		dest := filepath.Join(dir, "sub", "i3csim."+format)
		require.NoError(t, (&ConfigInit{Kind: "cli", Format: format, Output: dest}).Run(io.Discard))
		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Contains(t, string(data), "log-level")
		assert.Contains(t, string(data), "100ms")
	}
}
