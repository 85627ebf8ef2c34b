package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal/sim"
	"github.com/ardnew/softi3c/i3c"
)

const yamlScenario = `
controller:
  hot_join_ack: true
  dynamic_address: 0x70
targets:
  - name: sensor
    mid: 0x0104
    part_id: 7
    bcr: 0x06
    dcr: 0x63
    dynamic_address: 0x08
    ack_ibi: true
    memory: "a0a1a2"
    ibi: "112233"
  - name: eeprom
    static_address: 0x50
    mid: 0x0104
    part_id: 8
    memory_size: 16
`

const tomlScenario = `
[controller]
hot_join_ack = true
dynamic_address = 0x70

[[targets]]
name = "sensor"
mid = 0x0104
part_id = 7
bcr = 0x06
dcr = 0x63
dynamic_address = 0x08
ack_ibi = true
memory = "a0a1a2"
ibi = "112233"

[[targets]]
name = "eeprom"
static_address = 0x50
mid = 0x0104
part_id = 8
memory_size = 16
`

func TestParse(t *testing.T) {
	tests := []struct {
		format Format
		data   string
	}{
		{FormatYAML, yamlScenario},
		{FormatTOML, tomlScenario},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			s, err := Parse([]byte(tt.data), tt.format)
			require.NoError(t, err)
			assert.True(t, s.Controller.HotJoinAck)
			assert.Equal(t, uint8(0x70), s.Controller.DynamicAddress)
			require.Len(t, s.Targets, 2)

			sensor := s.Targets[0]
			assert.Equal(t, "sensor", sensor.Name)
			assert.Equal(t, uint16(7), sensor.Payload().PID.PartID())
			assert.Equal(t, uint16(0x0104), sensor.Payload().PID.MIPIManufacturerID())
			assert.True(t, sensor.Payload().BCR.IBIPayload())
			assert.Equal(t, uint8(0x50), s.Targets[1].StaticAddress)
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown field", "targets:\n  - name: a\n    colour: red\n"},
		{"missing name", "targets:\n  - mid: 1\n"},
		{"duplicate name", "targets:\n  - name: a\n  - name: a\n"},
		{"reserved address", "targets:\n  - name: a\n    dynamic_address: 0x7E\n"},
		{"shared address", "targets:\n  - name: a\n    dynamic_address: 0x08\n  - name: b\n    static_address: 0x08\n"},
		{"bad memory", "targets:\n  - name: a\n    memory: xyz\n"},
		{"bad ibi", "targets:\n  - name: a\n    ibi: \"1\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), FormatYAML)
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("[[targets]]\nname = \"a\"\ncolour = \"red\"\n"), FormatTOML)
	assert.Error(t, err, "strict toml")
	_, err = Parse(nil, Format("ini"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bus.yml")
	require.NoError(t, os.WriteFile(path, []byte(yamlScenario), 0o600))
	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Targets, 2)

	_, err = Load(filepath.Join(dir, "bus.json"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestTemplateRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatYAML, FormatTOML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Template().Marshal(format)
			require.NoError(t, err)
			s, err := Parse(data, format)
			require.NoError(t, err)
			assert.Equal(t, Template(), s)
		})
	}
}

func TestBuild(t *testing.T) {
	s, err := Parse([]byte(yamlScenario), FormatYAML)
	require.NoError(t, err)

	p, targets, err := s.Build(sim.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, targets, p.Targets())

	sensor := targets[0]
	da, ok := sensor.DynamicAddress()
	require.True(t, ok)
	assert.Equal(t, uint8(0x08), da)
	assert.Equal(t, []byte{0xA0, 0xA1, 0xA2}, sensor.Memory[:3])
	assert.Len(t, sensor.Memory, 256)
	assert.Len(t, targets[1].Memory, 16)
	assert.Equal(t, uint8(0x50), targets[1].StaticAddress)

	assert.Equal(t, []i3c.BusDevice{{Index: 1, Address: 0x08, AckIBI: true, IBIPayload: true}}, s.BusDevices())
	assert.True(t, s.Unaddressed())
}

func TestBuildRaisesIBI(t *testing.T) {
	s, err := Parse([]byte(yamlScenario), FormatYAML)
	require.NoError(t, err)
	p, targets, err := s.Build(sim.DefaultOptions())
	require.NoError(t, err)

	h := i3c.New(p, p)
	require.NoError(t, h.Init(s.Config()))
	require.NoError(t, s.Apply(h))
	assert.True(t, h.Allocator().InUse(0x50), "static addresses are reserved")
	require.NoError(t, h.ActivateNotifications(i3c.NewNotifySet(i3c.NotifyIBI), nil))
	p.Pump()

	info, err := h.CCCInfo(i3c.NotifyIBI)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x08), info.Address)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, info.Data)
	assert.Equal(t, 1, targets[0].Stats().IBIAcked)
}

func TestSync(t *testing.T) {
	s := &Scenario{Targets: []Target{
		{Name: "a", MID: 0x0104, PartID: 1},
		{Name: "b", MID: 0x0104, PartID: 2, Offline: true},
	}}
	p, targets, err := s.Build(sim.DefaultOptions())
	require.NoError(t, err)

	h := i3c.New(p, p)
	require.NoError(t, h.Init(s.Config()))
	results, err := h.AssignAddresses(i3c.DAAAssignOnly, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, results, 1)

	s.Sync(targets)
	assert.Equal(t, results[0].Address, s.Targets[0].DynamicAddress)
	assert.Zero(t, s.Targets[1].DynamicAddress)
	assert.False(t, s.Unaddressed(), "offline targets are ignored")
}

func TestApplyRange(t *testing.T) {
	s := &Scenario{
		Controller: Controller{FirstAddress: 0x40, LastAddress: 0x4F},
		Targets:    []Target{{Name: "a", MID: 0x0104, PartID: 1}},
	}
	p, _, err := s.Build(sim.DefaultOptions())
	require.NoError(t, err)
	h := i3c.New(p, p)
	require.NoError(t, h.Init(s.Config()))
	assert.Equal(t, uint8(0x70), h.Config().Controller.DynamicAddress)
	require.NoError(t, s.Apply(h))

	results, err := h.AssignAddresses(i3c.DAAResetAndAssign, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint8(0x40), results[0].Address)

	bad := &Scenario{Controller: Controller{FirstAddress: 0x60, LastAddress: 0x50}}
	assert.Error(t, bad.Apply(h))
}

func TestTargetPayload(t *testing.T) {
	tgt := Target{MID: 0x0104, PartID: 0x1234, InstanceID: 3, BCR: 0x06, DCR: 0x44}
	want := ccc.Payload{PID: ccc.NewPID(0x0104, false, 0x1234, 3, 0), BCR: 0x06, DCR: 0x44}
	assert.Equal(t, want, tgt.Payload())
}
