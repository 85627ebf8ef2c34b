package i3c

import (
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// ServeEvent is the event interrupt entry point. It dispatches active
// notifications and advances the IT or DMA operation in flight.
func (h *Handle) ServeEvent() {
	if h.ready() != nil {
		return
	}
	ev := h.p.Read(hal.RegEVR) & h.p.Read(hal.RegIER) &^ hal.EVRERR
	ev = h.serveNotifications(ev)
	if x := h.x; x != nil && x.how != polled {
		h.service(ev)
	}
}

// ServeError is the error interrupt entry point. It latches the SER
// contents into the error bitmask and ends the operation in flight unless
// the fault left the frame running.
func (h *Handle) ServeError() {
	if h.ready() != nil {
		return
	}
	ser := h.p.Read(hal.RegSER)
	h.p.Write(hal.RegSER, ser)
	h.p.Write(hal.RegCEVR, hal.EVRERR)
	code := classify(ser)
	h.latch(code)
	pkg.LogDebug(pkg.ComponentIRQ, "error", "code", code)

	x := h.x
	if x == nil || x.done {
		if code != pkg.ErrorNone {
			pkg.LogWarn(pkg.ComponentIRQ, "error outside an operation", "code", code)
			h.emit(ErrorEvent{Code: code, Err: &pkg.ProtocolError{Code: code}})
		}
		return
	}
	if ser&^(hal.SERDOVR|hal.SERCOVR|hal.SERCODERRMask) == 0 {
		// FIFO over/underrun: the frame continues
		return
	}
	if h.state == StateAbort || x.failed {
		// the abort completes on frame completion
		return
	}
	if x.how == polled {
		h.drainStatus()
	}
	if x.op == OpTransmit {
		h.flushTarget()
	}
	h.complete(nil)
}

// classify converts SER bits to the error bitmask.
func classify(ser uint32) pkg.ErrorCode {
	var code pkg.ErrorCode
	if ser&hal.SERPERR != 0 {
		switch c := ser & hal.SERCODERRMask; {
		case c <= hal.CodeCE3:
			code |= pkg.ErrorCE0 << c
		case c >= hal.CodeTE0 && c <= hal.CodeTE6:
			code |= pkg.ErrorTE0 << (c - hal.CodeTE0)
		}
	}
	bits := []struct {
		ser  uint32
		code pkg.ErrorCode
	}{
		{hal.SERSTALL, pkg.ErrorStall},
		{hal.SERDOVR, pkg.ErrorDataOverrun},
		{hal.SERCOVR, pkg.ErrorControlOverrun},
		{hal.SERANACK, pkg.ErrorAddressNACK},
		{hal.SERDNACK, pkg.ErrorDataNACK},
		{hal.SERDERR, pkg.ErrorHandoffData},
	}
	for _, b := range bits {
		if ser&b.ser != 0 {
			code |= b.code
		}
	}
	return code
}

// dmaError is installed as the DMA collaborator's error handler.
func (h *Handle) dmaError(ch hal.Channel, err error) {
	pkg.LogError(pkg.ComponentIRQ, "DMA error", "channel", ch, "err", err)
	if x := h.x; x == nil || x.how != bulk || x.done {
		h.latch(pkg.ErrorDMA)
		return
	}
	h.fail(pkg.ErrorDMA)
}
