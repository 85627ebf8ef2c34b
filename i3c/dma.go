package i3c

import (
	"fmt"

	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// dmaReady fails unless DMA was enabled at Init.
func (h *Handle) dmaReady() error {
	if !h.cfg.DMA || h.dma == nil {
		return fmt.Errorf("%w: DMA not configured", pkg.ErrNotSupported)
	}
	return nil
}

// startDMA arms the channels x needs and hands the FIFOs to them.
func (h *Handle) startDMA(x *xfer) error {
	var en uint32
	if len(x.ctrl) > 0 {
		if err := h.dma.StartControl(x.ctrl); err != nil {
			return fmt.Errorf("start control DMA: %w", err)
		}
		en |= hal.CFGRCDMAEN
	}
	if len(x.tx) > 0 {
		if err := h.dma.Start(hal.ChannelTx, x.tx); err != nil {
			_ = h.dma.Abort(hal.ChannelControl)
			return fmt.Errorf("start tx DMA: %w", err)
		}
		en |= hal.CFGRTXDMAEN
	}
	if len(x.rx) > 0 {
		if err := h.dma.Start(hal.ChannelRx, x.rx); err != nil {
			_ = h.dma.Abort(hal.ChannelControl)
			_ = h.dma.Abort(hal.ChannelTx)
			return fmt.Errorf("start rx DMA: %w", err)
		}
		en |= hal.CFGRRXDMAEN
	}
	h.modifyCFGR(en, 0)
	return nil
}

// stopDMA aborts every channel and returns the FIFOs to the CPU. The RX
// channel's progress is folded into x.
func (h *Handle) stopDMA(x *xfer) {
	if len(x.rx) > 0 {
		x.ri = len(x.rx) - h.dma.Remaining(hal.ChannelRx)
	}
	for _, ch := range []hal.Channel{hal.ChannelControl, hal.ChannelTx, hal.ChannelRx} {
		if err := h.dma.Abort(ch); err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "DMA abort failed", "channel", ch, "err", err)
		}
	}
	h.modifyCFGR(0, hal.CFGRCDMAEN|hal.CFGRTXDMAEN|hal.CFGRRXDMAEN)
}
