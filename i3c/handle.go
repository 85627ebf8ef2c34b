package i3c

import (
	"fmt"
	"sync"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// Handle drives one I3C peripheral instance in the controller or target
// role.
//
// A Handle is not safe for concurrent use. Blocking operations poll the
// peripheral from the calling goroutine; IT and DMA operations return at
// once and are advanced by ServeEvent and ServeError, which must run in the
// same execution context as the other methods.
type Handle struct {
	p   hal.Peripheral
	clk hal.Clock
	dma hal.DMA
	obs Observer
	cfg Config

	mode   Mode
	state  State
	listen bool

	lastErr  pkg.ErrorCode // latched since the current operation started
	recovery bool          // SCL stalled until RecoverBus

	x         *xfer // operation in flight
	dataCount int
	userData  any

	notify    NotifySet
	pending   NotifySet
	info      [numNotify]CCCInfo
	notifyBuf []byte
	def       NotifyID // DEFTGTS/DEFGRPA being drained, 0 if none
	defN      int

	devices [hal.MaxBusDevices]BusDevice
	alloc   *AddressAllocator
	assign  func(ccc.Payload) (uint8, bool)

	bus sync.Mutex
}

// New returns a Handle for peripheral p clocked by clk. The handle starts
// in StateReset; call Init before use.
func New(p hal.Peripheral, clk hal.Clock) *Handle {
	return &Handle{
		p:     p,
		clk:   clk,
		alloc: NewAddressAllocator(),
	}
}

// SetDMA installs the DMA collaborator used by the DMA variants. It must
// be called before Init.
func (h *Handle) SetDMA(d hal.DMA) error {
	if h.state != StateReset {
		return pkg.ErrAlreadyInitialized
	}
	h.dma = d
	return nil
}

// SetObserver installs the receiver of asynchronous events. A nil observer
// discards them.
func (h *Handle) SetObserver(o Observer) {
	h.obs = o
}

// Init applies cfg, enables the peripheral clock and leaves the handle
// idle in cfg.Mode.
func (h *Handle) Init(cfg Config) error {
	if h.state != StateReset {
		return pkg.ErrAlreadyInitialized
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	if cfg.DMA && h.dma == nil {
		return fmt.Errorf("%w: DMA enabled without a DMA collaborator", pkg.ErrNotSupported)
	}
	if h.clk == nil {
		return fmt.Errorf("%w: no clock", pkg.ErrInvalidParameter)
	}

	h.state = StateInit
	if err := h.clk.Enable(); err != nil {
		h.state = StateReset
		return fmt.Errorf("enable clock: %w", err)
	}
	timing, err := cfg.Timing.Registers(h.clk.Frequency())
	if err != nil {
		_ = h.clk.Disable()
		h.state = StateReset
		return err
	}

	h.cfg = cfg
	h.mode = cfg.Mode
	h.p.Write(hal.RegIER, 0)
	h.p.Write(hal.RegTIMINGR0, timing[0])
	h.p.Write(hal.RegTIMINGR1, timing[1])
	h.p.Write(hal.RegTIMINGR2, timing[2])

	cfgr := uint32(hal.CFGREN|hal.CFGRSMODE) | cfg.FIFO.bits()
	if cfg.Mode == ModeController {
		cfgr |= hal.CFGRCRINIT
	}
	h.p.Write(hal.RegCFGR, cfgr|hal.CFGRRXFLUSH|hal.CFGRTXFLUSH|hal.CFGRSFLUSH|hal.CFGRCFLUSH)
	if cfg.Mode == ModeController {
		h.applyController()
	} else {
		h.applyTarget()
	}

	if b, ok := h.p.(hal.IRQBinder); ok {
		b.BindIRQ(h.ServeEvent, h.ServeError)
	}
	if h.dma != nil {
		h.dma.OnError(h.dmaError)
	}

	h.state = StateIdle
	pkg.LogInfo(pkg.ComponentController, "initialized",
		"mode", h.mode, "clock", h.clk.Frequency())
	return nil
}

// DeInit disables the peripheral and returns the handle to StateReset.
func (h *Handle) DeInit() error {
	if h.state == StateReset {
		return pkg.ErrNotInitialized
	}
	h.p.Write(hal.RegIER, 0)
	h.p.Write(hal.RegCFGR, 0)
	if b, ok := h.p.(hal.IRQBinder); ok {
		b.BindIRQ(nil, nil)
	}
	err := h.clk.Disable()
	h.state = StateReset
	h.mode = ModeNone
	h.listen = false
	h.notify, h.pending = 0, 0
	h.x = nil
	h.devices = [hal.MaxBusDevices]BusDevice{}
	h.alloc.Reset()
	pkg.LogInfo(pkg.ComponentController, "deinitialized")
	if err != nil {
		return fmt.Errorf("disable clock: %w", err)
	}
	return nil
}

// State returns the lifecycle state.
func (h *Handle) State() State { return h.state }

// Mode returns the bus role.
func (h *Handle) Mode() Mode { return h.mode }

// Listening reports whether any notification is active.
func (h *Handle) Listening() bool { return h.listen }

// LastError returns the error bitmask latched by the most recent
// operation, or ErrorNone when error tracking is disabled.
func (h *Handle) LastError() pkg.ErrorCode {
	if !h.cfg.LastErrorTracking {
		return pkg.ErrorNone
	}
	return h.lastErr
}

// RecoveryRequired reports whether a stalled bus must be recovered.
func (h *Handle) RecoveryRequired() bool { return h.recovery }

// DataCount returns the bytes (or devices, after DAA) completed by the
// most recent operation.
func (h *Handle) DataCount() int { return h.dataCount }

// ClockFrequency returns the peripheral kernel clock in Hz.
func (h *Handle) ClockFrequency() uint32 {
	if h.clk == nil {
		return 0
	}
	return h.clk.Frequency()
}

// SetUserData stores an arbitrary value with the handle.
func (h *Handle) SetUserData(v any) error {
	if !h.cfg.UserData {
		return pkg.ErrNotSupported
	}
	h.userData = v
	return nil
}

// UserData returns the value stored by SetUserData.
func (h *Handle) UserData() (any, error) {
	if !h.cfg.UserData {
		return nil, pkg.ErrNotSupported
	}
	return h.userData, nil
}

// Acquire blocks until the bus is free for the caller. It serializes call
// sites that share the handle; it does not protect handle state.
func (h *Handle) Acquire() error {
	if !h.cfg.BusAcquire {
		return pkg.ErrNotSupported
	}
	h.bus.Lock()
	return nil
}

// TryAcquire is Acquire without blocking.
func (h *Handle) TryAcquire() (bool, error) {
	if !h.cfg.BusAcquire {
		return false, pkg.ErrNotSupported
	}
	return h.bus.TryLock(), nil
}

// Release frees the bus taken by Acquire.
func (h *Handle) Release() error {
	if !h.cfg.BusAcquire {
		return pkg.ErrNotSupported
	}
	h.bus.Unlock()
	return nil
}

// SetAddressAssigner installs the function choosing dynamic addresses
// during DAA. A nil function restores the built-in allocator.
func (h *Handle) SetAddressAssigner(fn func(ccc.Payload) (uint8, bool)) {
	h.assign = fn
}

// Allocator returns the built-in dynamic address allocator.
func (h *Handle) Allocator() *AddressAllocator {
	return h.alloc
}

// ready fails unless the handle has been initialized.
func (h *Handle) ready() error {
	if h.state == StateReset || h.state == StateInit {
		return pkg.ErrNotInitialized
	}
	return nil
}

// idle fails unless the handle is idle and, when mode is not ModeNone, in
// that role.
func (h *Handle) idle(mode Mode) error {
	if err := h.ready(); err != nil {
		return err
	}
	if h.state != StateIdle {
		return fmt.Errorf("%w: %s", pkg.ErrBusy, h.state)
	}
	if mode != ModeNone && h.mode != mode {
		return fmt.Errorf("%w: need %s, is %s", pkg.ErrInvalidMode, mode, h.mode)
	}
	return nil
}

func (h *Handle) modifyCFGR(set, clear uint32) {
	h.p.Write(hal.RegCFGR, h.p.Read(hal.RegCFGR)&^clear|set)
}

func (h *Handle) emit(ev Event) {
	if h.obs != nil {
		h.obs.HandleEvent(ev)
	}
}
