package i3c

import (
	"fmt"
	"time"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

func (h *Handle) transmitXfer(data []byte, how strategy) (*xfer, error) {
	if err := h.idle(ModeTarget); err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data) > hal.SRXDCNTMask {
		return nil, fmt.Errorf("%w: transmit length %d", pkg.ErrInvalidParameter, len(data))
	}
	return &xfer{op: OpTransmit, how: how, tx: data, frames: 1}, nil
}

func (h *Handle) receiveXfer(buf []byte, how strategy) (*xfer, error) {
	if err := h.idle(ModeTarget); err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty receive buffer", pkg.ErrInvalidParameter)
	}
	return &xfer{op: OpReceive, how: how, rx: buf, frames: 1}, nil
}

// beginTransmit announces the byte count and preloads the first byte.
func (h *Handle) beginTransmit(x *xfer) {
	h.begin(x, StateTx)
	h.modifyCFGR(hal.CFGRTXFLUSH, 0)
	h.p.Write(hal.RegTGTTDR, uint32(len(x.tx)))
	if x.how != bulk {
		h.p.Write(hal.RegTDR, uint32(x.tx[0]))
		x.ti = 1
	}
	pkg.LogDebug(pkg.ComponentTarget, "transmit armed", "len", len(x.tx))
}

// Transmit queues data for the controller's next private read and polls
// until the read ends or timeout elapses. DataCount reports the bytes the
// controller actually took.
func (h *Handle) Transmit(data []byte, timeout time.Duration) error {
	x, err := h.transmitXfer(data, polled)
	if err != nil {
		return err
	}
	dl, err := newDeadline(timeout)
	if err != nil {
		return err
	}
	defer h.release(x)
	h.beginTransmit(x)
	return h.wait(x, dl)
}

// TransmitIT is Transmit completed from the interrupt path with a
// TargetCompleteEvent.
func (h *Handle) TransmitIT(data []byte) error {
	x, err := h.transmitXfer(data, interrupt)
	if err != nil {
		return err
	}
	h.beginTransmit(x)
	h.arm(x)
	return nil
}

// TransmitDMA is TransmitIT with the TX FIFO serviced by DMA.
func (h *Handle) TransmitDMA(data []byte) error {
	if err := h.dmaReady(); err != nil {
		return err
	}
	x, err := h.transmitXfer(data, bulk)
	if err != nil {
		return err
	}
	h.beginTransmit(x)
	if err := h.startDMA(x); err != nil {
		h.flushTarget()
		h.release(x)
		return err
	}
	h.arm(x)
	return nil
}

// Receive waits for a private write from the controller into buf. Bytes
// beyond len(buf) are dropped and latch a data overrun.
func (h *Handle) Receive(buf []byte, timeout time.Duration) error {
	x, err := h.receiveXfer(buf, polled)
	if err != nil {
		return err
	}
	dl, err := newDeadline(timeout)
	if err != nil {
		return err
	}
	defer h.release(x)
	h.begin(x, StateRx)
	return h.wait(x, dl)
}

// ReceiveIT is Receive completed from the interrupt path with a
// TargetCompleteEvent.
func (h *Handle) ReceiveIT(buf []byte) error {
	x, err := h.receiveXfer(buf, interrupt)
	if err != nil {
		return err
	}
	h.begin(x, StateRx)
	h.arm(x)
	return nil
}

// ReceiveDMA is ReceiveIT with the RX FIFO serviced by DMA.
func (h *Handle) ReceiveDMA(buf []byte) error {
	if err := h.dmaReady(); err != nil {
		return err
	}
	x, err := h.receiveXfer(buf, bulk)
	if err != nil {
		return err
	}
	h.begin(x, StateRx)
	if err := h.startDMA(x); err != nil {
		h.release(x)
		return err
	}
	h.arm(x)
	return nil
}

// requestXfer checks the grants for a target request and returns the
// operation that raises it. Requests the controller has disabled are
// refused without touching the bus.
func (h *Handle) requestXfer(op Op, payload []byte, how strategy) (*xfer, error) {
	if err := h.idle(ModeTarget); err != nil {
		return nil, err
	}
	devr0 := h.p.Read(hal.RegDEVR0)
	hasDA := devr0&hal.DEVR0DAVAL != 0
	var mt hal.MType
	switch op {
	case OpHotJoin:
		if hasDA {
			return nil, fmt.Errorf("%w: dynamic address already assigned", pkg.ErrInvalidState)
		}
		if devr0&hal.DEVR0HJEN == 0 {
			return nil, pkg.ErrHotJoinRefused
		}
		mt = hal.MTypeHotJoin
	case OpControllerRole:
		if !hasDA {
			return nil, fmt.Errorf("%w: no dynamic address", pkg.ErrInvalidState)
		}
		if h.cfg.Target.BCR.DeviceRole() != ccc.RoleController {
			return nil, fmt.Errorf("%w: BCR does not advertise controller capability", pkg.ErrNotSupported)
		}
		if devr0&hal.DEVR0CREN == 0 {
			return nil, pkg.ErrControllerRoleRefused
		}
		mt = hal.MTypeControllerRole
	case OpIBI:
		if !hasDA {
			return nil, fmt.Errorf("%w: no dynamic address", pkg.ErrInvalidState)
		}
		if len(payload) > hal.MaxIBIPayload {
			return nil, fmt.Errorf("%w: IBI payload of %d bytes", pkg.ErrInvalidParameter, len(payload))
		}
		if len(payload) > 0 && !h.cfg.Target.BCR.IBIPayload() {
			return nil, fmt.Errorf("%w: BCR does not advertise an IBI payload", pkg.ErrInvalidParameter)
		}
		if devr0&hal.DEVR0IBIEN == 0 {
			return nil, pkg.ErrIBINacked
		}
		mt = hal.MTypeIBI
	}
	return &xfer{op: op, how: how, ctrl: []uint32{uint32(hal.RequestWord(mt))}, frames: 1}, nil
}

// loadIBIPayload places payload in IBIDR and advertises its length.
func (h *Handle) loadIBIPayload(payload []byte) {
	var v uint32
	for i, b := range payload {
		v |= uint32(b) << (8 * i)
	}
	h.p.Write(hal.RegIBIDR, v)
	mrl := h.p.Read(hal.RegMAXRLR) &^ (0x7 << hal.MAXRLRIBIPShift)
	h.p.Write(hal.RegMAXRLR, mrl|uint32(len(payload))<<hal.MAXRLRIBIPShift)
}

func (h *Handle) beginRequest(x *xfer) {
	h.begin(x, StateTargetRequest)
	pkg.LogDebug(pkg.ComponentTarget, "request raised", "op", x.op)
}

// request runs a target request to completion.
func (h *Handle) request(op Op, payload []byte, timeout time.Duration) (*xfer, error) {
	x, err := h.requestXfer(op, payload, polled)
	if err != nil {
		return nil, err
	}
	dl, err := newDeadline(timeout)
	if err != nil {
		return nil, err
	}
	defer h.release(x)
	if op == OpIBI {
		h.loadIBIPayload(payload)
	}
	h.beginRequest(x)
	return x, h.wait(x, dl)
}

func (h *Handle) requestIT(op Op, payload []byte) error {
	x, err := h.requestXfer(op, payload, interrupt)
	if err != nil {
		return err
	}
	if op == OpIBI {
		h.loadIBIPayload(payload)
	}
	h.beginRequest(x)
	h.arm(x)
	return nil
}

// RequestHotJoin asks the controller to admit this target and returns the
// dynamic address it was given.
func (h *Handle) RequestHotJoin(timeout time.Duration) (uint8, error) {
	x, err := h.request(OpHotJoin, nil, timeout)
	if err != nil {
		return 0, err
	}
	return x.addr, nil
}

// RequestHotJoinIT raises a hot-join and reports the outcome with a
// TargetCompleteEvent carrying the assigned address.
func (h *Handle) RequestHotJoinIT() error {
	return h.requestIT(OpHotJoin, nil)
}

// RequestControllerRole asks the active controller for the controller
// role. On success the handle continues in the controller role.
func (h *Handle) RequestControllerRole(timeout time.Duration) error {
	_, err := h.request(OpControllerRole, nil, timeout)
	return err
}

// RequestControllerRoleIT is RequestControllerRole reported with a
// TargetCompleteEvent.
func (h *Handle) RequestControllerRoleIT() error {
	return h.requestIT(OpControllerRole, nil)
}

// RequestIBI raises an in-band interrupt carrying up to four payload
// bytes. The controller may take fewer; DataCount reports how many.
func (h *Handle) RequestIBI(payload []byte, timeout time.Duration) error {
	_, err := h.request(OpIBI, payload, timeout)
	return err
}

// RequestIBIIT is RequestIBI reported with a TargetCompleteEvent.
func (h *Handle) RequestIBIIT(payload []byte) error {
	return h.requestIT(OpIBI, payload)
}

// completeTarget ends a target operation once its status entry arrived.
func (h *Handle) completeTarget() {
	x := h.x
	var err error
	switch x.op {
	case OpHotJoin:
		if x.nack {
			err = pkg.ErrHotJoinRefused
			break
		}
		devr0 := h.p.Read(hal.RegDEVR0)
		if devr0&hal.DEVR0DAVAL != 0 {
			x.addr = hal.DAAddr(devr0)
		}
		pkg.LogInfo(pkg.ComponentTarget, "hot-join accepted", "address", x.addr)
	case OpControllerRole:
		if x.nack {
			err = pkg.ErrControllerRoleRefused
			break
		}
		h.gainController()
		pkg.LogInfo(pkg.ComponentTarget, "controller role acquired")
	case OpIBI:
		if x.nack {
			err = pkg.ErrIBINacked
		}
	case OpTransmit:
		h.flushTarget()
	}
	h.complete(err)
}

// gainController switches the handle to the controller role after a
// handoff. The dynamic address assigned as a target is kept; the
// configured controller address only applies when none was assigned.
func (h *Handle) gainController() {
	h.mode = ModeController
	c := h.cfg.Controller
	var hj uint32
	if c.HotJoinAck {
		hj = hal.CFGRHJACK
	}
	h.modifyCFGR(hj, hal.CFGRHJACK)
	if devr0 := h.p.Read(hal.RegDEVR0); devr0&hal.DEVR0DAVAL != 0 {
		h.alloc.Reserve(hal.DAAddr(devr0))
	} else if c.DynamicAddress != 0 {
		h.p.Write(hal.RegDEVR0, uint32(c.DynamicAddress)<<hal.DEVR0DAShift|hal.DEVR0DAVAL)
		h.alloc.Reserve(c.DynamicAddress)
	}
	if dropped := h.notify & TargetNotifications; dropped != 0 {
		h.notify &^= dropped
		h.listen = h.notify != 0
		h.disableIRQ(dropped.flags())
	}
}

// flushTarget drops transmit data the controller did not read.
func (h *Handle) flushTarget() {
	h.modifyCFGR(hal.CFGRTXFLUSH, 0)
	h.p.Write(hal.RegTGTTDR, 0)
}
