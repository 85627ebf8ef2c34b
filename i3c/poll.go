package i3c

import (
	"fmt"
	"time"

	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// deadline bounds a blocking operation.
type deadline struct {
	at time.Time
}

func newDeadline(timeout time.Duration) (deadline, error) {
	if timeout <= 0 {
		return deadline{}, fmt.Errorf("%w: timeout %v", pkg.ErrInvalidParameter, timeout)
	}
	return deadline{at: time.Now().Add(timeout)}, nil
}

func (d deadline) passed() bool {
	return time.Now().After(d.at)
}

func (d deadline) left() time.Duration {
	return time.Until(d.at)
}

// wait polls EVR on behalf of the interrupt path until x completes or the
// deadline passes.
func (h *Handle) wait(x *xfer, dl deadline) error {
	for !x.done {
		ev := h.p.Read(hal.RegEVR)
		if ev&hal.EVRERR != 0 {
			h.ServeError()
		}
		h.service(ev)
		if x.done {
			break
		}
		if dl.passed() {
			h.cancel(x)
			return fmt.Errorf("%s: %w", x.op, pkg.ErrTimeout)
		}
	}
	return x.err
}

// pollFlag polls until reg&mask reads as zero.
func (h *Handle) pollFlag(reg hal.Reg, mask uint32, dl deadline) error {
	for h.p.Read(reg)&mask != 0 {
		h.p.Read(hal.RegEVR)
		if dl.passed() {
			return pkg.ErrTimeout
		}
	}
	return nil
}

// spin busy-polls EVR for d or until the deadline passes.
func (h *Handle) spin(d time.Duration, dl deadline) {
	until := time.Now().Add(d)
	for time.Now().Before(until) && !dl.passed() {
		h.p.Read(hal.RegEVR)
	}
}
