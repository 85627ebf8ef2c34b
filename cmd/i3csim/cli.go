package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ardnew/softi3c/hal/sim"
	"github.com/ardnew/softi3c/i3c"
	"github.com/ardnew/softi3c/internal/scenario"
	"github.com/ardnew/softi3c/pkg/mipiid"
	"github.com/ardnew/softi3c/pkg/prof"
)

// CLI is the i3csim command tree.
type CLI struct {
	Globals

	DAA    DAACmd    `cmd:"" name:"daa" help:"Run dynamic address assignment and print the devices found"`
	Write  WriteCmd  `cmd:"" help:"Write bytes to a target"`
	Read   ReadCmd   `cmd:"" help:"Read bytes from a target"`
	CCC    CCCCmd    `cmd:"" name:"ccc" help:"Send a common command code"`
	IBI    IBICmd    `cmd:"" name:"ibi" help:"Service pending in-band interrupts and hot-join requests"`
	Probe  ProbeCmd  `cmd:"" help:"Check whether a device acknowledges its address"`
	Config ConfigCmd `cmd:"" help:"Configuration helpers"`
}

// Globals are the flags shared by every command.
type Globals struct {
	ConfigFile string        `name:"config" help:"Configuration file (JSON, YAML or TOML)" env:"I3CSIM_CONFIG"`
	Scenario   string        `short:"s" help:"Bus scenario file (YAML or TOML)" type:"path" env:"I3CSIM_SCENARIO"`
	Timeout    time.Duration `help:"Timeout of each bus operation" default:"100ms" env:"I3CSIM_TIMEOUT"`
	IDTable    string        `name:"id-table" help:"MIPI manufacturer and part name table" type:"path" env:"I3CSIM_ID_TABLE"`
	Log        LogFlags      `embed:"" prefix:"log-"`
	Profile    ProfileFlags  `embed:"" prefix:""`
}

// ProfileFlags select pprof output. They take effect only in binaries
// built with the profile tag.
type ProfileFlags struct {
	CPU  string `name:"cpu-profile" help:"Write a CPU profile" type:"path"`
	Heap string `name:"heap-profile" help:"Write a heap profile on exit" type:"path"`
}

// LogFlags configure logging.
type LogFlags struct {
	Level  string `help:"Log level" default:"info" enum:"trace,debug,info,warn,error" env:"I3CSIM_LOG_LEVEL"`
	File   string `help:"Log file; stderr mirrors it" type:"path" env:"I3CSIM_LOG_FILE"`
	Format string `help:"Log format" default:"text" enum:"text,json" env:"I3CSIM_LOG_FORMAT"`
}

// bus is an initialized controller-role handle on a simulated bus.
type bus struct {
	scn     *scenario.Scenario
	p       *sim.Peripheral
	targets []*sim.Target
	h       *i3c.Handle
	events  []i3c.Event
	timeout time.Duration
	log     *slog.Logger
	out     io.Writer
}

func (g *Globals) open(logger *slog.Logger, out io.Writer) (*bus, error) {
	if g.Scenario == "" {
		return nil, fmt.Errorf("no scenario file; use --scenario or I3CSIM_SCENARIO")
	}
	scn, err := scenario.Load(g.Scenario)
	if err != nil {
		return nil, err
	}
	p, targets, err := scn.Build(sim.DefaultOptions())
	if err != nil {
		return nil, err
	}
	b := &bus{scn: scn, p: p, targets: targets, timeout: g.Timeout, log: logger, out: out}
	b.h = i3c.New(p, p)
	b.h.SetObserver(i3c.ObserverFunc(func(ev i3c.Event) { b.events = append(b.events, ev) }))
	if err := b.h.Init(scn.Config()); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if err := scn.Apply(b.h); err != nil {
		return nil, err
	}
	logger.Debug("bus ready", "scenario", g.Scenario, "targets", len(targets))
	return b, nil
}

// address runs ENTDAA when a target still lacks a dynamic address and
// refreshes the bus device table with the result.
func (b *bus) address() error {
	if !b.scn.Unaddressed() {
		return nil
	}
	return b.assign(i3c.DAAAssignOnly)
}

func (b *bus) assign(v i3c.DAAVariant) error {
	results, err := b.h.AssignAddresses(v, b.timeout)
	b.scn.Sync(b.targets)
	for _, r := range results {
		b.log.Info("device addressed", "address", fmt.Sprintf("0x%02X", r.Address), "pid", r.Payload().PID)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", v, err)
	}
	if devs := b.scn.BusDevices(); len(devs) > 0 {
		return b.h.ConfigureBusDevices(devs...)
	}
	return nil
}

func (b *bus) close() {
	if err := b.h.DeInit(); err != nil {
		b.log.Warn("deinit", "err", err)
	}
}

// names loads the ID table, if one was given.
func (g *Globals) names() (*mipiid.Table, error) {
	if g.IDTable == "" {
		return mipiid.New(), nil
	}
	return mipiid.Load(g.IDTable)
}

// startProfiles starts the requested profiles and returns the function
// that finishes them.
func (g *Globals) startProfiles(logger *slog.Logger) func() {
	if (g.Profile.CPU != "" || g.Profile.Heap != "") && !prof.Enabled {
		logger.Warn("profiling not compiled in; rebuild with -tags profile")
		return func() {}
	}
	if g.Profile.CPU != "" {
		if err := prof.StartCPU(g.Profile.CPU); err != nil {
			logger.Warn("cpu profile", "err", err)
		}
	}
	return func() {
		if err := prof.StopCPU(); err != nil {
			logger.Warn("cpu profile", "err", err)
		}
		if g.Profile.Heap != "" {
			if err := prof.Write("heap", g.Profile.Heap); err != nil {
				logger.Warn("heap profile", "err", err)
			}
		}
	}
}
