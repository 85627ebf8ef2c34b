package sim

import (
	"errors"

	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// ErrDMAFault is reported through the DMA error handler by FailDMA.
var ErrDMAFault = errors.New("sim: DMA transfer error")

type dmaChannel struct {
	words []uint32
	buf   []byte
	pos   int
	armed bool
	fail  bool
}

func (c *dmaChannel) remaining() int {
	if c.words != nil {
		return len(c.words) - c.pos
	}
	return len(c.buf) - c.pos
}

type dmaEngine struct {
	ch      [3]dmaChannel
	onError func(hal.Channel, error)
}

// StartControl implements hal.DMA.
func (p *Peripheral) StartControl(words []uint32) error {
	p.dma.ch[hal.ChannelControl] = dmaChannel{words: words, armed: true}
	return nil
}

// Start implements hal.DMA.
func (p *Peripheral) Start(ch hal.Channel, buf []byte) error {
	if ch != hal.ChannelTx && ch != hal.ChannelRx {
		return pkg.ErrInvalidParameter
	}
	p.dma.ch[ch] = dmaChannel{buf: buf, armed: true}
	return nil
}

// Abort implements hal.DMA.
func (p *Peripheral) Abort(ch hal.Channel) error {
	if int(ch) >= len(p.dma.ch) {
		return pkg.ErrInvalidParameter
	}
	p.dma.ch[ch].armed = false
	return nil
}

// Remaining implements hal.DMA.
func (p *Peripheral) Remaining(ch hal.Channel) int {
	if int(ch) >= len(p.dma.ch) {
		return 0
	}
	return p.dma.ch[ch].remaining()
}

// OnError implements hal.DMA.
func (p *Peripheral) OnError(fn func(hal.Channel, error)) {
	p.dma.onError = fn
}

// Armed reports whether a DMA channel is still running.
func (p *Peripheral) Armed(ch hal.Channel) bool {
	return p.dma.ch[ch].armed
}

// FailDMA makes the next movement on ch fail.
func (p *Peripheral) FailDMA(ch hal.Channel) {
	p.dma.ch[ch].fail = true
}

// dmaMove services the FIFOs from every armed channel enabled in CFGR.
func (p *Peripheral) dmaMove() bool {
	cfgr := p.regs[hal.RegCFGR]
	moved := false

	if c := &p.dma.ch[hal.ChannelControl]; c.armed && cfgr&hal.CFGRCDMAEN != 0 {
		for c.pos < len(c.words) && len(p.ctrl) < p.opts.ControlDepth {
			if p.dmaFailed(hal.ChannelControl) {
				return true
			}
			p.ctrl = append(p.ctrl, c.words[c.pos])
			c.pos++
			moved = true
		}
	}
	if c := &p.dma.ch[hal.ChannelTx]; c.armed && cfgr&hal.CFGRTXDMAEN != 0 {
		for c.pos < len(c.buf) && len(p.tx) < p.opts.DataDepth && p.txDemand() > 0 {
			if p.dmaFailed(hal.ChannelTx) {
				return true
			}
			p.tx = append(p.tx, c.buf[c.pos])
			c.pos++
			moved = true
		}
	}
	if c := &p.dma.ch[hal.ChannelRx]; c.armed && cfgr&hal.CFGRRXDMAEN != 0 {
		for c.pos < len(c.buf) && len(p.rx) > 0 {
			if p.dmaFailed(hal.ChannelRx) {
				return true
			}
			c.buf[c.pos] = p.rx[0]
			p.rx = p.rx[1:]
			c.pos++
			moved = true
		}
	}
	return moved
}

// dmaFailed reports and disarms an injected channel failure.
func (p *Peripheral) dmaFailed(ch hal.Channel) bool {
	c := &p.dma.ch[ch]
	if !c.fail {
		return false
	}
	c.fail = false
	c.armed = false
	pkg.LogDebug(pkg.ComponentSim, "DMA channel failed", "channel", ch)
	if p.dma.onError != nil {
		p.irq(func() { p.dma.onError(ch, ErrDMAFault) })
	}
	return true
}
