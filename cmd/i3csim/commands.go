package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/i3c"
	"github.com/ardnew/softi3c/pkg"
)

// DAACmd assigns dynamic addresses.
type DAACmd struct {
	Reset bool `help:"Send RSTDAA first so every device is readdressed"`
}

func (c *DAACmd) Run(g *Globals, logger *slog.Logger, out io.Writer) error {
	names, err := g.names()
	if err != nil {
		return err
	}
	b, err := g.open(logger, out)
	if err != nil {
		return err
	}
	defer b.close()

	v := i3c.DAAAssignOnly
	if c.Reset {
		v = i3c.DAAResetAndAssign
	}
	results, err := b.h.AssignAddresses(v, b.timeout)
	for _, r := range results {
		p := r.Payload()
		fmt.Fprintf(out, "0x%02X  pid=%s bcr=0x%02X dcr=0x%02X", r.Address, p.PID, uint8(p.BCR), p.DCR)
		if name := names.Describe(p.PID); name != "" {
			fmt.Fprintf(out, "  %s", name)
		}
		fmt.Fprintln(out)
	}
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "no devices")
	}
	return nil
}

// WriteCmd writes a private message.
type WriteCmd struct {
	Addr uint8  `arg:"" help:"Target address"`
	Data string `arg:"" help:"Bytes to write, hex"`
	I2C  bool   `name:"i2c" help:"Send a legacy I2C message"`
}

func (c *WriteCmd) Run(g *Globals, logger *slog.Logger, out io.Writer) error {
	data, err := hex.DecodeString(strings.TrimPrefix(c.Data, "0x"))
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	b, err := g.open(logger, out)
	if err != nil {
		return err
	}
	defer b.close()
	if !c.I2C {
		if err := b.address(); err != nil {
			return err
		}
	}

	mode := i3c.PrivateStop
	if c.I2C {
		mode = i3c.I2CStop
	}
	x := i3c.NewTransfer(1, len(data), 0)
	if err := x.BuildPrivate([]i3c.Descriptor{{Addr: c.Addr, Data: data}}, mode); err != nil {
		return err
	}
	if err := b.h.Start(x, b.timeout); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d bytes to 0x%02X\n", b.h.DataCount(), c.Addr)
	return nil
}

// ReadCmd reads a private message.
type ReadCmd struct {
	Addr uint8 `arg:"" help:"Target address"`
	N    int   `arg:"" help:"Bytes to read"`
	I2C  bool  `name:"i2c" help:"Send a legacy I2C message"`
}

func (c *ReadCmd) Run(g *Globals, logger *slog.Logger, out io.Writer) error {
	if c.N <= 0 {
		return fmt.Errorf("%w: read length %d", pkg.ErrInvalidParameter, c.N)
	}
	b, err := g.open(logger, out)
	if err != nil {
		return err
	}
	defer b.close()
	if !c.I2C {
		if err := b.address(); err != nil {
			return err
		}
	}

	mode := i3c.PrivateStop
	if c.I2C {
		mode = i3c.I2CStop
	}
	x := i3c.NewTransfer(1, 0, c.N)
	if err := x.BuildPrivate([]i3c.Descriptor{{Addr: c.Addr, Dir: i3c.Read, Len: c.N}}, mode); err != nil {
		return err
	}
	if err := b.h.Start(x, b.timeout); err != nil {
		return err
	}
	fmt.Fprintln(out, hex.EncodeToString(x.Rx(0)))
	return nil
}

// CCCCmd sends one CCC, broadcast when no address is given.
type CCCCmd struct {
	Name     string `arg:"" help:"CCC mnemonic, such as GETPID or ENEC"`
	Addr     *uint8 `arg:"" optional:"" help:"Target address of a direct CCC"`
	Data     string `help:"Bytes to send, hex"`
	Len      int    `help:"Bytes to read for a GET CCC" default:"1"`
	Defining *uint8 `help:"Defining byte"`
}

// lookupCCC resolves a mnemonic. With direct set the direct form of a CCC
// that exists in both forms is preferred.
func lookupCCC(name string, direct bool) (ccc.Code, error) {
	name = strings.ToUpper(name)
	if direct {
		if code, ok := ccc.Lookup(name + "(D)"); ok {
			return code, nil
		}
	}
	code, ok := ccc.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: unknown CCC %q", pkg.ErrInvalidParameter, name)
	}
	if code.IsDirect() != direct {
		if direct {
			return 0, fmt.Errorf("%w: %s is a broadcast CCC", pkg.ErrInvalidParameter, code)
		}
		return 0, fmt.Errorf("%w: %s needs a target address", pkg.ErrInvalidParameter, code)
	}
	return code, nil
}

func (c *CCCCmd) Run(g *Globals, logger *slog.Logger, out io.Writer) error {
	code, err := lookupCCC(c.Name, c.Addr != nil)
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(c.Data)
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if code == ccc.ENTDAA {
		return errors.New("use the daa command for ENTDAA")
	}

	d := i3c.CCCDescriptor{Code: code, Data: data}
	words := 1
	mode := i3c.BroadcastStop
	if c.Defining != nil {
		d.Defining = *c.Defining
		mode = i3c.BroadcastDefStop
	}
	if code.IsDirect() {
		d.Addr = *c.Addr
		words = 2
		mode = i3c.DirectStop
		if c.Defining != nil {
			mode = i3c.DirectDefStop
		}
		if code.IsGet() {
			d.Dir, d.Data, d.Len = i3c.Read, nil, c.Len
		}
	}

	b, err := g.open(logger, out)
	if err != nil {
		return err
	}
	defer b.close()
	if code.IsDirect() {
		if err := b.address(); err != nil {
			return err
		}
	}

	x := i3c.NewTransfer(words, len(data)+1, d.Len)
	if err := x.BuildCCC([]i3c.CCCDescriptor{d}, mode); err != nil {
		return err
	}
	if err := b.h.Start(x, b.timeout); err != nil {
		return err
	}
	if d.Dir == i3c.Read {
		fmt.Fprintln(out, hex.EncodeToString(x.Rx(0)))
	} else {
		fmt.Fprintf(out, "%s sent\n", code)
	}
	return nil
}

// IBICmd services target requests. Devices without a dynamic address are
// addressed only after they hot-join.
type IBICmd struct{}

func (c *IBICmd) Run(g *Globals, logger *slog.Logger, out io.Writer) error {
	b, err := g.open(logger, out)
	if err != nil {
		return err
	}
	defer b.close()
	if err := b.h.ActivateNotifications(i3c.ControllerNotifications, nil); err != nil {
		return err
	}

	// A hot-join leaves a new device to address, which may in turn raise
	// requests of its own.
	for rounds := 0; ; rounds++ {
		b.events = b.events[:0]
		b.p.Pump()
		joined := false
		for _, ev := range b.events {
			n, ok := ev.(i3c.NotificationEvent)
			if !ok {
				continue
			}
			switch n.ID {
			case i3c.NotifyIBI:
				fmt.Fprintf(out, "ibi 0x%02X %s\n", n.Info.Address, hex.EncodeToString(n.Info.Data))
			case i3c.NotifyControllerRequest:
				fmt.Fprintf(out, "controller-role request 0x%02X\n", n.Info.Address)
			case i3c.NotifyHotJoin:
				fmt.Fprintln(out, "hot-join")
				joined = true
			}
		}
		if !joined || rounds == len(b.targets) {
			return nil
		}
		if err := b.assign(i3c.DAAAssignOnly); err != nil {
			return err
		}
	}
}

// ProbeCmd checks that a device acknowledges its address.
type ProbeCmd struct {
	Addr   uint8 `arg:"" help:"Target address"`
	I2C    bool  `name:"i2c" help:"Probe with a legacy I2C message"`
	Trials int   `help:"Attempts before giving up" default:"3"`
}

func (c *ProbeCmd) Run(g *Globals, logger *slog.Logger, out io.Writer) error {
	b, err := g.open(logger, out)
	if err != nil {
		return err
	}
	defer b.close()

	kind := i3c.DeviceI3C
	if c.I2C {
		kind = i3c.DeviceI2C
	} else if err := b.address(); err != nil {
		return err
	}
	if err := b.h.IsDeviceReady(c.Addr, kind, c.Trials, b.timeout); err != nil {
		return err
	}
	fmt.Fprintf(out, "0x%02X ready\n", c.Addr)
	return nil
}
