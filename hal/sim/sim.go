package sim

import (
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// Default FIFO depths.
const (
	DefaultControlDepth = 8
	DefaultDataDepth    = 8
	DefaultStatusDepth  = 16
	DefaultClockHz      = 250_000_000
)

// maxPumpSteps bounds a single Pump call.
const maxPumpSteps = 1 << 16

// Options configures a simulated peripheral.
type Options struct {
	ClockHz      uint32 // Kernel clock reported by Frequency
	ControlDepth int    // Control FIFO depth in words
	DataDepth    int    // TX and RX FIFO depth in bytes
	StatusDepth  int    // Status FIFO depth in entries
}

// DefaultOptions returns the default simulator options.
func DefaultOptions() Options {
	return Options{
		ClockHz:      DefaultClockHz,
		ControlDepth: DefaultControlDepth,
		DataDepth:    DefaultDataDepth,
		StatusDepth:  DefaultStatusDepth,
	}
}

// Peripheral is a simulated I3C peripheral instance attached to an
// in-memory bus. It implements [hal.Peripheral], [hal.Clock], [hal.DMA] and
// [hal.IRQBinder].
//
// The bus only moves when software looks at it: every read of EVR outside
// an interrupt handler advances the bus by one step, and [Peripheral.Pump]
// steps the bus until it is quiescent, dispatching enabled interrupts
// between steps.
//
// Peripheral is not safe for concurrent use.
type Peripheral struct {
	opts Options

	regs   [hal.NumRegs]uint32
	evr    uint32 // sticky event flags
	ctrl   []uint32
	tx     []byte
	rx     []byte
	status []uint32
	mid    uint8

	clockOn bool
	stalled bool
	gen     uint64 // bumped by every software-visible mutation

	// Controller role
	targets []*Target
	frame   frame
	daa     *daaRound

	// Target role
	remote *Remote
	op     *remoteOp

	dma dmaEngine

	onEvent, onError func()
	inIRQ            bool
}

// New creates a simulated peripheral. Zero option fields take defaults.
func New(opts Options) *Peripheral {
	def := DefaultOptions()
	if opts.ClockHz == 0 {
		opts.ClockHz = def.ClockHz
	}
	if opts.ControlDepth <= 0 {
		opts.ControlDepth = def.ControlDepth
	}
	if opts.DataDepth <= 0 {
		opts.DataDepth = def.DataDepth
	}
	if opts.StatusDepth <= 0 {
		opts.StatusDepth = def.StatusDepth
	}
	p := &Peripheral{opts: opts}
	p.reset()
	return p
}

// reset returns every register to its power-on value.
func (p *Peripheral) reset() {
	p.regs = [hal.NumRegs]uint32{}
	p.regs[hal.RegDEVR0] = hal.DEVR0IBIEN | hal.DEVR0CREN | hal.DEVR0HJEN
	p.evr = 0
	p.ctrl, p.tx, p.rx, p.status = nil, nil, nil, nil
	p.frame = frame{}
	p.daa = nil
	p.op = nil
	p.stalled = false
	p.gen++
}

// Attach connects simulated targets to the bus.
func (p *Peripheral) Attach(targets ...*Target) {
	p.targets = append(p.targets, targets...)
	p.gen++
}

// Targets returns the attached targets.
func (p *Peripheral) Targets() []*Target {
	return p.targets
}

// SetRemote installs the controller that drives the bus while the
// peripheral is in the target role.
func (p *Peripheral) SetRemote(r *Remote) {
	p.remote = r
	p.gen++
}

// Remote returns the installed remote controller, or nil.
func (p *Peripheral) Remote() *Remote {
	return p.remote
}

// Stalled reports whether SCL is held low waiting for recovery.
func (p *Peripheral) Stalled() bool {
	return p.stalled
}

// Frequency implements hal.Clock.
func (p *Peripheral) Frequency() uint32 {
	return p.opts.ClockHz
}

// Enable implements hal.Clock.
func (p *Peripheral) Enable() error {
	p.clockOn = true
	return nil
}

// Disable implements hal.Clock. Register contents are lost.
func (p *Peripheral) Disable() error {
	p.clockOn = false
	p.reset()
	return nil
}

// BindIRQ implements hal.IRQBinder.
func (p *Peripheral) BindIRQ(event, err func()) {
	p.onEvent = event
	p.onError = err
}

func (p *Peripheral) controller() bool {
	return p.regs[hal.RegCFGR]&hal.CFGRCRINIT != 0
}

func (p *Peripheral) enabled() bool {
	return p.clockOn && p.regs[hal.RegCFGR]&hal.CFGREN != 0
}

// Read implements hal.Peripheral.
func (p *Peripheral) Read(r hal.Reg) uint32 {
	if !p.clockOn {
		return 0
	}
	switch r {
	case hal.RegRDR:
		if len(p.rx) == 0 {
			return 0
		}
		b := p.rx[0]
		p.rx = p.rx[1:]
		p.gen++
		return uint32(b)
	case hal.RegSR:
		if len(p.status) == 0 {
			return 0
		}
		v := p.status[0]
		p.status = p.status[1:]
		p.gen++
		return v
	case hal.RegEVR:
		if !p.inIRQ {
			p.step()
		}
		return p.flags()
	case hal.RegCR, hal.RegTDR, hal.RegCEVR:
		return 0
	}
	if r < hal.NumRegs {
		return p.regs[r]
	}
	return 0
}

// Write implements hal.Peripheral.
func (p *Peripheral) Write(r hal.Reg, v uint32) {
	if !p.clockOn || r >= hal.NumRegs {
		return
	}
	p.gen++
	switch r {
	case hal.RegCR:
		if len(p.ctrl) >= p.opts.ControlDepth {
			p.raise(hal.SERCOVR, 0)
			return
		}
		p.ctrl = append(p.ctrl, v)
	case hal.RegTDR:
		if len(p.tx) >= p.opts.DataDepth {
			p.raise(hal.SERDOVR, 0)
			return
		}
		p.tx = append(p.tx, byte(v))
	case hal.RegCEVR:
		p.evr &^= v &^ hal.EVRLevel
	case hal.RegSER:
		p.regs[hal.RegSER] &^= v
	case hal.RegCFGR:
		if v&hal.CFGRRXFLUSH != 0 {
			p.rx = nil
		}
		if v&hal.CFGRTXFLUSH != 0 {
			p.tx = nil
		}
		if v&hal.CFGRSFLUSH != 0 {
			p.status = nil
			p.mid = 0
		}
		if v&hal.CFGRCFLUSH != 0 {
			p.ctrl = nil
		}
		p.regs[r] = v &^ (hal.CFGRRXFLUSH | hal.CFGRTXFLUSH | hal.CFGRSFLUSH | hal.CFGRCFLUSH)
	case hal.RegRDR, hal.RegSR, hal.RegEVR:
		// read-only
	default:
		p.regs[r] = v
	}
}

// flags returns EVR: the sticky events plus the live FIFO levels.
func (p *Peripheral) flags() uint32 {
	f := p.evr
	if len(p.ctrl) < p.opts.ControlDepth {
		f |= hal.EVRCFNF
	}
	if len(p.status) > 0 {
		f |= hal.EVRSFNE
	}
	thr := 1
	if p.regs[hal.RegCFGR]&hal.CFGRTXTHRES != 0 {
		thr = 4
	}
	if p.opts.DataDepth-len(p.tx) >= min(thr, p.opts.DataDepth) && p.txDemand() > 0 {
		f |= hal.EVRTXFNF
	}
	thr = 1
	if p.regs[hal.RegCFGR]&hal.CFGRRXTHRES != 0 {
		thr = 4
	}
	if len(p.rx) >= thr || (len(p.rx) > 0 && !p.receiving()) {
		f |= hal.EVRRXFNE
	}
	return f
}

// txDemand returns the number of bytes the bus will still take from TDR
// beyond what is already queued.
func (p *Peripheral) txDemand() int {
	if p.controller() {
		return p.controllerTxDemand() - len(p.tx)
	}
	return int(p.regs[hal.RegTGTTDR]&0xFFFF) - len(p.tx)
}

// receiving reports whether more bytes may arrive in the RX FIFO for the
// message in progress.
func (p *Peripheral) receiving() bool {
	if p.controller() {
		return p.daa != nil || (p.frame.msg != nil && p.frame.msg.read)
	}
	return p.op != nil && (p.op.kind == opWrite || p.op.kind == opCCC)
}

// set raises sticky event flags.
func (p *Peripheral) set(flags uint32) {
	p.evr |= flags
}

// pushStatus appends a status entry when the status FIFO is enabled.
func (p *Peripheral) pushStatus(count int, read, abt, nack bool) {
	if p.regs[hal.RegCFGR]&hal.CFGRSMODE == 0 {
		return
	}
	if len(p.status) >= p.opts.StatusDepth {
		p.raise(hal.SERCOVR, 0)
		return
	}
	v := uint32(count)&hal.SRXDCNTMask | uint32(p.mid)<<hal.SRMIDShift
	if read {
		v |= hal.SRDIR
	}
	if abt {
		v |= hal.SRABT
	}
	if nack {
		v |= hal.SRNACK
	}
	p.status = append(p.status, v)
	p.mid++
}

// raise latches an error into SER and EVR. Faults other than FIFO
// over/under-runs halt the frame in progress.
func (p *Peripheral) raise(ser uint32, code uint8) {
	if ser&hal.SERPERR != 0 {
		ser |= uint32(code) & hal.SERCODERRMask
	}
	p.regs[hal.RegSER] |= ser
	p.set(hal.EVRERR)
	if ser&hal.SERSTALL != 0 || (ser&hal.SERPERR != 0 && code == hal.CodeCE1) {
		p.stalled = true
	}
	pkg.LogDebug(pkg.ComponentSim, "bus error", "ser", ser)
	if halting(ser) {
		p.halt()
	}
}

func halting(ser uint32) bool {
	return ser&^(hal.SERDOVR|hal.SERCOVR) != 0
}

// halt drops the frame in progress without signalling frame completion.
func (p *Peripheral) halt() {
	p.frame = frame{}
	p.daa = nil
	p.ctrl = nil
	p.tx = nil
	if p.op != nil {
		p.remote.finish(p.op, true)
		p.op = nil
	}
}

// step advances the bus by one unit of work and reports whether anything
// changed.
func (p *Peripheral) step() bool {
	if !p.enabled() {
		return false
	}
	progressed := p.dmaMove()
	cfgr := p.regs[hal.RegCFGR]
	switch {
	case cfgr&hal.CFGRRECOVER != 0:
		p.stalled = false
		p.regs[hal.RegCFGR] &^= hal.CFGRRECOVER
		pkg.LogDebug(pkg.ComponentSim, "bus recovered")
		progressed = true
	case cfgr&hal.CFGRABORT != 0:
		p.abort()
		progressed = true
	case p.stalled:
	case p.controller():
		if p.stepController() {
			progressed = true
		}
	default:
		if p.stepTarget() {
			progressed = true
		}
	}
	if p.dmaMove() {
		progressed = true
	}
	if progressed {
		p.gen++
	}
	return progressed
}

// abort ends whatever is on the bus and signals frame completion.
func (p *Peripheral) abort() {
	if p.frame.msg != nil {
		m := p.frame.msg
		p.pushStatus(m.moved, m.read, true, false)
	}
	if p.op != nil {
		p.pushStatus(p.op.moved, p.op.kind == opRead, true, false)
	}
	p.halt()
	p.regs[hal.RegTGTTDR] = 0
	p.regs[hal.RegCFGR] &^= hal.CFGRABORT
	p.set(hal.EVRFC)
	pkg.LogDebug(pkg.ComponentSim, "frame aborted")
}

// Pump steps the bus until nothing moves, dispatching enabled interrupts to
// the bound handlers after every step. It returns the number of steps taken.
func (p *Peripheral) Pump() int {
	n := 0
	for ; n < maxPumpSteps; n++ {
		before := p.gen
		progressed := p.step()
		fired := p.dispatch()
		if !progressed && (!fired || p.gen == before) {
			break
		}
	}
	return n
}

// dispatch calls the bound handlers for pending, enabled interrupts.
func (p *Peripheral) dispatch() bool {
	if !p.enabled() {
		return false
	}
	pending := p.flags() & p.regs[hal.RegIER]
	fired := false
	if pending&hal.EVRERR != 0 && p.onError != nil {
		p.irq(p.onError)
		fired = true
	}
	if pending&^hal.EVRERR != 0 && p.onEvent != nil {
		p.irq(p.onEvent)
		fired = true
	}
	return fired
}

func (p *Peripheral) irq(fn func()) {
	p.inIRQ = true
	defer func() { p.inIRQ = false }()
	fn()
}
