package i3c

import (
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// controllerReady fails unless a controller operation may start.
func (h *Handle) controllerReady() error {
	if err := h.idle(ModeController); err != nil {
		return err
	}
	if h.recovery {
		return pkg.ErrRecoveryRequired
	}
	return nil
}

// transferXfer validates t and returns the operation that runs it. It
// does not touch the handle.
func (h *Handle) transferXfer(t *Transfer, how strategy) (*xfer, error) {
	if err := h.controllerReady(); err != nil {
		return nil, err
	}
	if t == nil || t.nctrl == 0 {
		return nil, fmt.Errorf("%w: transfer not built", pkg.ErrInvalidParameter)
	}
	return &xfer{
		op:     OpTransfer,
		how:    how,
		t:      t,
		ctrl:   t.ctrl[:t.nctrl],
		tx:     t.tx[:t.ntx],
		rx:     t.rx[:t.nrx],
		frames: t.frames,
	}, nil
}

func (h *Handle) beginTransfer(x *xfer) {
	h.begin(x, stateFor(len(x.tx), len(x.rx)))
	h.prepareController(x.t.mode.arbitration)
	pkg.LogDebug(pkg.ComponentController, "transfer started",
		"mode", x.t.mode, "messages", x.t.Len(), "tx", len(x.tx), "rx", len(x.rx))
}

// Start runs t to completion, polling the peripheral until it finishes or
// timeout elapses. The handle is idle again on return.
func (h *Handle) Start(t *Transfer, timeout time.Duration) error {
	x, err := h.transferXfer(t, polled)
	if err != nil {
		return err
	}
	dl, err := newDeadline(timeout)
	if err != nil {
		return err
	}
	defer h.release(x)
	h.beginTransfer(x)
	return h.wait(x, dl)
}

// StartIT starts t and returns. ServeEvent and ServeError advance it and
// report a TransferCompleteEvent or an ErrorEvent.
func (h *Handle) StartIT(t *Transfer) error {
	x, err := h.transferXfer(t, interrupt)
	if err != nil {
		return err
	}
	h.beginTransfer(x)
	h.arm(x)
	return nil
}

// StartDMA starts t with the FIFOs serviced by the DMA collaborator.
// Completion is reported as for StartIT.
func (h *Handle) StartDMA(t *Transfer) error {
	if err := h.dmaReady(); err != nil {
		return err
	}
	x, err := h.transferXfer(t, bulk)
	if err != nil {
		return err
	}
	h.beginTransfer(x)
	if err := h.startDMA(x); err != nil {
		h.release(x)
		return err
	}
	h.arm(x)
	return nil
}

// directCCC runs a single direct CCC and returns what it read.
func (h *Handle) directCCC(addr uint8, code ccc.Code, data []byte, n int, timeout time.Duration) ([]byte, error) {
	d := CCCDescriptor{Addr: addr, Code: code, Data: data}
	if n > 0 {
		d.Dir, d.Len = Read, n
	}
	t := NewTransfer(2, len(data), n)
	if err := t.BuildCCC([]CCCDescriptor{d}, DirectStop); err != nil {
		return nil, err
	}
	if err := h.Start(t, timeout); err != nil {
		return nil, err
	}
	return t.Rx(0)[:min(h.dataCount, n)], nil
}

// AssignDynamicAddress assigns dynamic to the target at static with
// SETDASA.
func (h *Handle) AssignDynamicAddress(static, dynamic uint8, timeout time.Duration) error {
	if static == 0 || static > ccc.MaxAddress || !ccc.ValidDynamicAddress(dynamic) {
		return fmt.Errorf("%w: SETDASA %#02x -> %#02x", pkg.ErrInvalidParameter, static, dynamic)
	}
	if _, err := h.directCCC(static, ccc.SETDASA, []byte{dynamic << 1}, 0, timeout); err != nil {
		return err
	}
	h.alloc.Reserve(dynamic)
	pkg.LogInfo(pkg.ComponentController, "static address assigned", "static", static, "dynamic", dynamic)
	return nil
}

// ChangeDynamicAddress moves the target at from to address to with
// SETNEWDA and updates a matching device table entry.
func (h *Handle) ChangeDynamicAddress(from, to uint8, timeout time.Duration) error {
	if !ccc.ValidDynamicAddress(from) || !ccc.ValidDynamicAddress(to) {
		return fmt.Errorf("%w: SETNEWDA %#02x -> %#02x", pkg.ErrInvalidParameter, from, to)
	}
	if _, err := h.directCCC(from, ccc.SETNEWDA, []byte{to << 1}, 0, timeout); err != nil {
		return err
	}
	h.alloc.Release(from)
	h.alloc.Reserve(to)
	for i, d := range h.devices {
		if d.Index != 0 && d.Address == from {
			d.Address = to
			h.devices[i] = d
			r, _ := hal.DeviceReg(d.Index)
			h.p.Write(r, d.register())
		}
	}
	return nil
}

// DeviceKind selects the probe used by IsDeviceReady.
type DeviceKind uint8

// Device kinds.
const (
	DeviceI3C DeviceKind = iota // Private write to a dynamic address
	DeviceI2C                   // Legacy I2C write to a static address
)

// IsDeviceReady probes addr with empty writes until one is acknowledged,
// trials run out or timeout elapses. Trials are paced with exponential
// backoff.
func (h *Handle) IsDeviceReady(addr uint8, kind DeviceKind, trials int, timeout time.Duration) error {
	if trials <= 0 {
		return fmt.Errorf("%w: trials %d", pkg.ErrInvalidParameter, trials)
	}
	dl, err := newDeadline(timeout)
	if err != nil {
		return err
	}
	mode := PrivateStop
	if kind == DeviceI2C {
		mode = I2CStop
	}
	t := NewTransfer(1, 0, 0)
	if err := t.BuildPrivate([]Descriptor{{Addr: addr}}, mode); err != nil {
		return err
	}
	b := &backoff.Backoff{
		Min:    10 * time.Microsecond,
		Max:    time.Millisecond,
		Factor: 2,
		Jitter: false,
	}
	for i := 0; i < trials; i++ {
		left := dl.left()
		if left <= 0 {
			return pkg.ErrTimeout
		}
		err := h.Start(t, left)
		if err == nil {
			return nil
		}
		var pe *pkg.ProtocolError
		if !errors.As(err, &pe) || pe.Code&^pkg.ErrorAddressNACK != 0 {
			return err
		}
		pkg.LogDebug(pkg.ComponentController, "device not ready", "addr", addr, "trial", i+1)
		if i < trials-1 {
			h.spin(b.Duration(), dl)
		}
	}
	return fmt.Errorf("%#02x after %d trials: %w", addr, trials, pkg.ErrNotReady)
}

// HandOff passes the controller role to the target at addr with GETACCCR.
// On success the handle continues in the target role.
func (h *Handle) HandOff(addr uint8, timeout time.Duration) error {
	got, err := h.directCCC(addr, ccc.GETACCCR, nil, 1, timeout)
	if err != nil {
		return err
	}
	if len(got) != 1 || got[0] != ccc.OddParity(addr) {
		h.latch(pkg.ErrorHandoffData)
		return &pkg.ProtocolError{Code: h.lastErr}
	}
	h.mode = ModeTarget
	h.applyTarget()
	pkg.LogInfo(pkg.ComponentController, "controller role handed off", "to", addr)
	return nil
}

// RecoverBus forces SCL back to idle after a stall and clears the
// recovery requirement.
func (h *Handle) RecoverBus(timeout time.Duration) error {
	if err := h.idle(ModeNone); err != nil {
		return err
	}
	dl, err := newDeadline(timeout)
	if err != nil {
		return err
	}
	h.modifyCFGR(hal.CFGRRECOVER, 0)
	if err := h.pollFlag(hal.RegCFGR, hal.CFGRRECOVER, dl); err != nil {
		return fmt.Errorf("bus recovery: %w", err)
	}
	h.modifyCFGR(hal.CFGRRXFLUSH|hal.CFGRTXFLUSH|hal.CFGRSFLUSH|hal.CFGRCFLUSH, 0)
	h.p.Write(hal.RegCEVR, hal.EVRFC|hal.EVRERR)
	h.recovery = false
	pkg.LogInfo(pkg.ComponentController, "bus recovered")
	return nil
}
