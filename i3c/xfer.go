package i3c

import (
	"errors"
	"fmt"

	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// strategy is how an operation's FIFOs are serviced.
type strategy uint8

const (
	polled strategy = iota // by the blocking caller
	interrupt              // by ServeEvent
	bulk                   // by the DMA collaborator
)

// xfer is the operation in flight. Only the interrupt path (or the
// blocking poll loop standing in for it) advances its counters.
type xfer struct {
	op  Op
	how strategy
	t   *Transfer

	ctrl []uint32
	ci   int
	tx   []byte
	ti   int
	rx   []byte
	ri   int

	frames  int  // frame completions still expected
	count   int  // bytes (or devices) completed
	matched bool // target: a status entry of this operation arrived
	nack    bool // target: request not acknowledged
	failed  bool // engine-initiated abort in progress, complete on FC
	done    bool
	err     error

	addr uint8 // hot-join: assigned address
	daa  *daaState
}

// begin makes x the operation in flight.
func (h *Handle) begin(x *xfer, st State) {
	h.lastErr = pkg.ErrorNone
	h.dataCount = 0
	h.x = x
	h.state = st
	if x.t != nil {
		x.t.status = x.t.status[:0]
	}
}

// prepareController discards stale FIFO content and flags left by an
// earlier frame and selects the arbitration header.
func (h *Handle) prepareController(arbitration bool) {
	h.p.Write(hal.RegCEVR, hal.EVRFC|hal.EVRERR)
	h.p.Write(hal.RegSER, h.p.Read(hal.RegSER))
	var noarb uint32
	if !arbitration {
		noarb = hal.CFGRNOARBH
	}
	h.modifyCFGR(noarb|hal.CFGRRXFLUSH|hal.CFGRTXFLUSH|hal.CFGRSFLUSH|hal.CFGRCFLUSH, hal.CFGRNOARBH)
}

// arm enables the interrupts that drive x.
func (h *Handle) arm(x *xfer) {
	flags := uint32(hal.EVRSFNE | hal.EVRFC | hal.EVRERR)
	if x.how == interrupt {
		if len(x.ctrl) > 0 {
			flags |= hal.EVRCFNF
		}
		if len(x.tx) > 0 {
			flags |= hal.EVRTXFNF
		}
		if len(x.rx) > 0 || x.daa != nil {
			flags |= hal.EVRRXFNE
		}
	}
	h.p.Write(hal.RegIER, h.p.Read(hal.RegIER)|flags)
}

// restoreIRQ leaves only the interrupts the active notifications need.
func (h *Handle) restoreIRQ() {
	ier := h.notify.flags()
	if h.listen {
		ier |= hal.EVRERR
	}
	if h.def != 0 {
		ier |= hal.EVRRXFNE | hal.EVRFC
	}
	h.p.Write(hal.RegIER, ier)
}

func (h *Handle) disableIRQ(flags uint32) {
	h.p.Write(hal.RegIER, h.p.Read(hal.RegIER)&^flags)
}

// service moves data for the operation in flight according to the event
// flags in ev. It is shared by the blocking poll loop and ServeEvent.
func (h *Handle) service(ev uint32) {
	x := h.x
	if x == nil || x.done {
		return
	}
	if x.how != bulk && h.state != StateAbort {
		if ev&hal.EVRCFNF != 0 && x.ci < len(x.ctrl) {
			h.p.Write(hal.RegCR, x.ctrl[x.ci])
			x.ci++
			if x.ci == len(x.ctrl) && x.how == interrupt {
				h.disableIRQ(hal.EVRCFNF)
			}
		}
		if ev&hal.EVRTXFNF != 0 && x.ti < len(x.tx) {
			burst := 1
			if h.cfg.FIFO.TxThreshold == FIFOThreshold4 {
				burst = 4
			}
			for ; burst > 0 && x.ti < len(x.tx); burst-- {
				h.p.Write(hal.RegTDR, uint32(x.tx[x.ti]))
				x.ti++
			}
			if x.ti == len(x.tx) && x.how == interrupt {
				h.disableIRQ(hal.EVRTXFNF)
			}
		}
		if ev&hal.EVRRXFNE != 0 {
			h.receive(byte(h.p.Read(hal.RegRDR)))
		}
	}
	if ev&hal.EVRSFNE != 0 {
		h.status(h.p.Read(hal.RegSR))
	}
	if ev&hal.EVRFC != 0 && !x.done {
		h.p.Write(hal.RegCEVR, hal.EVRFC)
		h.frameComplete()
	}
}

// receive stores one byte read from RDR.
func (h *Handle) receive(b byte) {
	x := h.x
	switch {
	case x.daa != nil:
		h.daaByte(b)
	case x.ri < len(x.rx):
		x.rx[x.ri] = b
		x.ri++
	default:
		h.latch(pkg.ErrorDataOverrun)
	}
}

// status accounts for one status FIFO entry.
func (h *Handle) status(v uint32) {
	x := h.x
	ms := MessageStatus{
		Count: int(v & hal.SRXDCNTMask),
		Read:  v&hal.SRDIR != 0,
		Early: v&hal.SRABT != 0,
	}
	switch x.op {
	case OpTransfer:
		t := x.t
		i := len(t.status)
		if i >= len(t.spans) {
			return
		}
		t.status = append(t.status, ms)
		x.count += ms.Count
		if s := t.spans[i]; s.dir == Read && x.how != bulk {
			// bytes of this message precede those of the next in RX
			for x.ri < s.rxOff+min(ms.Count, s.rxLen) {
				x.rx[x.ri] = byte(h.p.Read(hal.RegRDR))
				x.ri++
			}
			x.ri = max(x.ri, s.rxOff+s.rxLen)
		}
	case OpDAA:
	case OpTransmit:
		if ms.Read {
			x.matched = true
			x.count = ms.Count
		}
	case OpReceive:
		if !ms.Read {
			x.matched = true
			x.count = ms.Count
			for i := x.ri; i < ms.Count && x.how != bulk; i++ {
				h.receive(byte(h.p.Read(hal.RegRDR)))
			}
		}
	default:
		x.matched = true
		x.nack = v&hal.SRNACK != 0
		x.count = ms.Count
	}
}

// frameComplete handles a frame completion flag.
func (h *Handle) frameComplete() {
	x := h.x
	if h.state == StateAbort {
		h.finishAbort()
		return
	}
	switch x.op {
	case OpTransmit, OpReceive, OpHotJoin, OpControllerRole, OpIBI:
		h.drainStatus()
		if x.matched || x.failed {
			h.completeTarget()
		}
		return
	}
	if !x.failed {
		if x.frames--; x.frames > 0 {
			return
		}
	}
	h.drainStatus()
	h.complete(nil)
}

// drainStatus consumes the status entries left at frame completion.
func (h *Handle) drainStatus() {
	for h.p.Read(hal.RegEVR)&hal.EVRSFNE != 0 {
		h.status(h.p.Read(hal.RegSR))
	}
}

func (h *Handle) latch(code pkg.ErrorCode) {
	h.lastErr |= code
	if code.NeedsRecovery() {
		h.recovery = true
	}
}

// complete ends the operation in flight with err, or with the latched
// error bitmask when err is nil and something was latched.
func (h *Handle) complete(err error) {
	x := h.x
	x.done = true
	if err == nil && h.lastErr != pkg.ErrorNone {
		err = &pkg.ProtocolError{Code: h.lastErr, Count: x.count}
	}
	x.err = err
	h.dataCount = x.count
	if x.how == bulk {
		h.stopDMA(x)
	}
	h.x = nil
	h.state = StateIdle
	if x.how != polled {
		h.restoreIRQ()
	}
	if err != nil {
		pkg.LogDebug(pkg.ComponentController, "operation failed",
			"op", x.op, "status", pkg.StatusOf(err), "count", x.count, "err", err)
	} else {
		pkg.LogDebug(pkg.ComponentController, "operation complete", "op", x.op, "count", x.count)
	}
	if x.how != polled {
		h.report(x)
	}
}

// report delivers the completion event of an asynchronous operation.
func (h *Handle) report(x *xfer) {
	var pe *pkg.ProtocolError
	switch {
	case errors.As(x.err, &pe):
		h.emit(ErrorEvent{Op: x.op, Code: pe.Code, Err: x.err})
	case x.op == OpTransfer:
		h.emit(TransferCompleteEvent{Transfer: x.t, Count: x.count})
	case x.op == OpDAA:
		h.emit(DAACompleteEvent{Results: x.daa.results})
	default:
		h.emit(TargetCompleteEvent{Op: x.op, Count: x.count, Address: x.addr, Err: x.err})
	}
}

// fail starts an engine-initiated abort; the operation completes with the
// latched error once the bus reports frame completion.
func (h *Handle) fail(code pkg.ErrorCode) {
	h.latch(code)
	x := h.x
	if x == nil || x.failed {
		return
	}
	x.failed = true
	if x.how == bulk {
		h.stopDMA(x)
	}
	h.modifyCFGR(hal.CFGRABORT, 0)
}

// Abort stops the IT or DMA operation in flight. The handle enters
// StateAbort and returns to StateIdle from the interrupt path, which
// delivers exactly one AbortCompleteEvent. DAA cannot be aborted.
func (h *Handle) Abort() error {
	if err := h.ready(); err != nil {
		return err
	}
	x := h.x
	switch {
	case h.state == StateDAA:
		return fmt.Errorf("%w: DAA cannot be aborted", pkg.ErrInvalidState)
	case h.state == StateAbort:
		return pkg.ErrBusy
	case x == nil || x.how == polled:
		return pkg.ErrInvalidState
	}
	h.state = StateAbort
	if x.how == bulk {
		h.stopDMA(x)
	}
	h.disableIRQ(hal.EVRCFNF | hal.EVRTXFNF | hal.EVRRXFNE)
	h.modifyCFGR(hal.CFGRABORT, 0)
	pkg.LogDebug(pkg.ComponentController, "abort requested", "op", x.op)
	return nil
}

// finishAbort completes a requested abort.
func (h *Handle) finishAbort() {
	x := h.x
	h.drainStatus()
	h.modifyCFGR(hal.CFGRRXFLUSH|hal.CFGRTXFLUSH|hal.CFGRCFLUSH, 0)
	if h.mode == ModeTarget {
		h.p.Write(hal.RegTGTTDR, 0)
	}
	x.done = true
	x.err = pkg.ErrAborted
	h.dataCount = x.count
	h.x = nil
	h.state = StateIdle
	h.restoreIRQ()
	pkg.LogDebug(pkg.ComponentController, "abort complete", "op", x.op)
	h.emit(AbortCompleteEvent{Op: x.op})
}

// abortPolls bounds the wait for the hardware to drop a frame after a
// blocking operation times out.
const abortPolls = 1024

// cancel drops a timed-out blocking operation and leaves the peripheral
// with empty FIFOs.
func (h *Handle) cancel(x *xfer) {
	h.modifyCFGR(hal.CFGRABORT, 0)
	for i := 0; i < abortPolls && h.p.Read(hal.RegCFGR)&hal.CFGRABORT != 0; i++ {
		h.p.Read(hal.RegEVR)
	}
	h.modifyCFGR(hal.CFGRRXFLUSH|hal.CFGRTXFLUSH|hal.CFGRSFLUSH|hal.CFGRCFLUSH, 0)
	h.p.Write(hal.RegCEVR, hal.EVRFC)
	if h.mode == ModeTarget {
		h.p.Write(hal.RegTGTTDR, 0)
	}
	x.done = true
	x.err = pkg.ErrTimeout
	h.dataCount = x.count
	pkg.LogWarn(pkg.ComponentController, "operation timed out", "op", x.op, "count", x.count)
}

// release returns the handle to StateIdle if x is still in flight. Every
// blocking operation defers it.
func (h *Handle) release(x *xfer) {
	if h.x == x {
		h.x = nil
		h.state = StateIdle
	}
}

// stateFor returns the busy state for a transfer's direction mix.
func stateFor(tx, rx int) State {
	switch {
	case tx > 0 && rx > 0:
		return StateTxRx
	case rx > 0:
		return StateRx
	default:
		return StateTx
	}
}
