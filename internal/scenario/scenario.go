// Package scenario describes a simulated I3C bus in a YAML or TOML file and
// builds the matching hal/sim peripheral.
package scenario

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/hal/sim"
	"github.com/ardnew/softi3c/i3c"
)

// Format is a scenario file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("scenario %s: unknown extension", path)
}

// Scenario is one controller and the targets attached to its bus.
type Scenario struct {
	Controller Controller `yaml:"controller" toml:"controller"`
	Targets    []Target   `yaml:"targets" toml:"targets"`
}

// Controller holds the engine-side settings of a scenario.
type Controller struct {
	DynamicAddress uint8  `yaml:"dynamic_address,omitempty" toml:"dynamic_address,omitempty"`
	HotJoinAck     bool   `yaml:"hot_join_ack" toml:"hot_join_ack"`
	PushPullHz     uint32 `yaml:"push_pull_hz,omitempty" toml:"push_pull_hz,omitempty"`
	OpenDrainHz    uint32 `yaml:"open_drain_hz,omitempty" toml:"open_drain_hz,omitempty"`
	FirstAddress   uint8  `yaml:"first_address,omitempty" toml:"first_address,omitempty"`
	LastAddress    uint8  `yaml:"last_address,omitempty" toml:"last_address,omitempty"`
}

// Target is a simulated device.
type Target struct {
	Name           string `yaml:"name" toml:"name"`
	StaticAddress  uint8  `yaml:"static_address,omitempty" toml:"static_address,omitempty"`
	DynamicAddress uint8  `yaml:"dynamic_address,omitempty" toml:"dynamic_address,omitempty"`

	MID        uint16 `yaml:"mid" toml:"mid"`
	RandomPID  bool   `yaml:"random_pid,omitempty" toml:"random_pid,omitempty"`
	PartID     uint16 `yaml:"part_id" toml:"part_id"`
	InstanceID uint8  `yaml:"instance_id,omitempty" toml:"instance_id,omitempty"`
	Extra      uint16 `yaml:"extra,omitempty" toml:"extra,omitempty"`
	BCR        uint8  `yaml:"bcr" toml:"bcr"`
	DCR        uint8  `yaml:"dcr" toml:"dcr"`

	MemorySize int    `yaml:"memory_size,omitempty" toml:"memory_size,omitempty"`
	Memory     string `yaml:"memory,omitempty" toml:"memory,omitempty"` // hex, loaded at offset 0
	MaxRead    int    `yaml:"max_read,omitempty" toml:"max_read,omitempty"`
	Offline    bool   `yaml:"offline,omitempty" toml:"offline,omitempty"`

	// Bus device table entry used once the target holds a dynamic address.
	AckIBI            bool `yaml:"ack_ibi,omitempty" toml:"ack_ibi,omitempty"`
	AckControllerRole bool `yaml:"ack_controller_role,omitempty" toml:"ack_controller_role,omitempty"`

	// Requests raised as soon as the bus is built.
	IBI            string `yaml:"ibi,omitempty" toml:"ibi,omitempty"` // hex payload; "-" for an IBI without payload
	HotJoin        bool   `yaml:"hot_join,omitempty" toml:"hot_join,omitempty"`
	ControllerRole bool   `yaml:"controller_role,omitempty" toml:"controller_role,omitempty"`
}

// Payload returns the ENTDAA response of t.
func (t Target) Payload() ccc.Payload {
	return ccc.Payload{
		PID: ccc.NewPID(t.MID, t.RandomPID, t.PartID, t.InstanceID, t.Extra),
		BCR: ccc.BCR(t.BCR),
		DCR: t.DCR,
	}
}

func (t Target) ibiPayload() ([]byte, bool, error) {
	switch t.IBI {
	case "":
		return nil, false, nil
	case "-":
		return nil, true, nil
	}
	b, err := hex.DecodeString(t.IBI)
	if err != nil {
		return nil, false, fmt.Errorf("target %s: ibi: %w", t.Name, err)
	}
	return b, true, nil
}

// Load reads and validates the scenario file at path.
func Load(path string) (*Scenario, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a scenario.
func Parse(data []byte, format Format) (*Scenario, error) {
	var s Scenario
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		if err := toml.NewDecoder(bytes.NewReader(data)).Strict(true).Decode(&s); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Marshal encodes s in the given format.
func (s *Scenario) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatTOML:
		return toml.Marshal(*s)
	}
	return nil, fmt.Errorf("unknown format %q", format)
}

// Validate checks names and addresses.
func (s *Scenario) Validate() error {
	var errs []error
	if a := s.Controller.DynamicAddress; a != 0 && !ccc.ValidDynamicAddress(a) {
		errs = append(errs, fmt.Errorf("controller: invalid dynamic address 0x%02X", a))
	}
	names := make(map[string]bool)
	addrs := make(map[uint8]string)
	if a := s.Controller.DynamicAddress; a != 0 {
		addrs[a] = "controller"
	}
	for i, t := range s.Targets {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("target %d: missing name", i))
		} else if names[t.Name] {
			errs = append(errs, fmt.Errorf("target %s: duplicate name", t.Name))
		}
		names[t.Name] = true
		for _, a := range []uint8{t.StaticAddress, t.DynamicAddress} {
			if a == 0 {
				continue
			}
			if !ccc.ValidDynamicAddress(a) {
				errs = append(errs, fmt.Errorf("target %s: invalid address 0x%02X", t.Name, a))
			} else if other, ok := addrs[a]; ok && other != t.Name {
				errs = append(errs, fmt.Errorf("target %s: address 0x%02X already used by %s", t.Name, a, other))
			}
			addrs[a] = t.Name
		}
		if t.MemorySize < 0 || t.MaxRead < 0 {
			errs = append(errs, fmt.Errorf("target %s: negative size", t.Name))
		}
		if t.Memory != "" {
			if _, err := hex.DecodeString(t.Memory); err != nil {
				errs = append(errs, fmt.Errorf("target %s: memory: %w", t.Name, err))
			}
		}
		if _, _, err := t.ibiPayload(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the controller-role engine configuration of s.
func (s *Scenario) Config() i3c.Config {
	cfg := i3c.DefaultConfig(i3c.ModeController)
	cfg.LastErrorTracking = true
	if s.Controller.DynamicAddress != 0 {
		cfg.Controller.DynamicAddress = s.Controller.DynamicAddress
	}
	cfg.Controller.HotJoinAck = s.Controller.HotJoinAck
	if s.Controller.PushPullHz != 0 {
		cfg.Timing.PushPullHz = s.Controller.PushPullHz
	}
	if s.Controller.OpenDrainHz != 0 {
		cfg.Timing.OpenDrainHz = s.Controller.OpenDrainHz
	}
	return cfg
}

// BusDevices returns the device table entries for the targets that already
// hold a dynamic address, in file order.
func (s *Scenario) BusDevices() []i3c.BusDevice {
	var devs []i3c.BusDevice
	for _, t := range s.Targets {
		if t.DynamicAddress == 0 || len(devs) == hal.MaxBusDevices {
			continue
		}
		devs = append(devs, i3c.BusDevice{
			Index:             len(devs) + 1,
			Address:           t.DynamicAddress,
			AckIBI:            t.AckIBI,
			IBIPayload:        t.AckIBI && ccc.BCR(t.BCR).IBIPayload(),
			AckControllerRole: t.AckControllerRole,
		})
	}
	return devs
}

// Apply loads the address range and bus device table of s into an
// initialized controller-role handle.
func (s *Scenario) Apply(h *i3c.Handle) error {
	if s.Controller.FirstAddress != 0 || s.Controller.LastAddress != 0 {
		first, last := s.Controller.FirstAddress, s.Controller.LastAddress
		if first == 0 {
			first = i3c.DefaultFirstAddress
		}
		if last == 0 {
			last = i3c.DefaultLastAddress
		}
		if err := h.Allocator().SetRange(first, last); err != nil {
			return fmt.Errorf("address range: %w", err)
		}
	}
	for _, t := range s.Targets {
		if t.StaticAddress != 0 {
			h.Allocator().Reserve(t.StaticAddress)
		}
	}
	if devs := s.BusDevices(); len(devs) > 0 {
		return h.ConfigureBusDevices(devs...)
	}
	return nil
}

// Sync copies the dynamic addresses held by the simulated targets back
// into s. targets must come from Build.
func (s *Scenario) Sync(targets []*sim.Target) {
	for i, st := range targets {
		if i >= len(s.Targets) {
			return
		}
		if da, ok := st.DynamicAddress(); ok {
			s.Targets[i].DynamicAddress = da
		} else {
			s.Targets[i].DynamicAddress = 0
		}
	}
}

// Unaddressed reports whether an online target still lacks a dynamic
// address.
func (s *Scenario) Unaddressed() bool {
	for _, t := range s.Targets {
		if t.DynamicAddress == 0 && !t.Offline {
			return true
		}
	}
	return false
}

// Build creates a simulated peripheral with every target of s attached and
// its pending requests raised.
func (s *Scenario) Build(opts sim.Options) (*sim.Peripheral, []*sim.Target, error) {
	p := sim.New(opts)
	targets := make([]*sim.Target, 0, len(s.Targets))
	for _, t := range s.Targets {
		st := sim.NewTarget(t.Name, t.Payload())
		st.StaticAddress = t.StaticAddress
		st.MaxRead = t.MaxRead
		st.Offline = t.Offline
		if t.MemorySize > 0 {
			st.Memory = make([]byte, t.MemorySize)
		}
		if t.Memory != "" {
			mem, err := hex.DecodeString(t.Memory)
			if err != nil {
				return nil, nil, fmt.Errorf("target %s: memory: %w", t.Name, err)
			}
			if len(mem) > len(st.Memory) {
				return nil, nil, fmt.Errorf("target %s: memory exceeds %d bytes", t.Name, len(st.Memory))
			}
			copy(st.Memory, mem)
		}
		if t.DynamicAddress != 0 {
			st.SetDynamicAddress(t.DynamicAddress)
		}
		payload, ibi, err := t.ibiPayload()
		if err != nil {
			return nil, nil, err
		}
		if ibi {
			st.RequestIBI(payload...)
		}
		if t.HotJoin {
			st.RequestHotJoin()
		}
		if t.ControllerRole {
			st.RequestControllerRole()
		}
		targets = append(targets, st)
	}
	p.Attach(targets...)
	return p, targets, nil
}

// Template returns a small example scenario.
func Template() *Scenario {
	return &Scenario{
		Controller: Controller{HotJoinAck: true},
		Targets: []Target{
			{
				Name:   "temp-sensor",
				MID:    0x0104,
				PartID: 0x0001,
				BCR:    uint8(ccc.BCRIBIRequest | ccc.BCRIBIPayload),
				DCR:    0x63,
				Memory: "0a1b2c3d",
				AckIBI: true,
				IBI:    "112233",
			},
			{
				Name:          "eeprom",
				StaticAddress: 0x50,
				MID:           0x0104,
				PartID:        0x0002,
				DCR:           0x00,
				MemorySize:    1024,
			},
			{
				Name:    "late-joiner",
				MID:     0x0104,
				PartID:  0x0003,
				DCR:     0x44,
				HotJoin: true,
			},
		},
	}
}
