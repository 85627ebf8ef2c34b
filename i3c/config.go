package i3c

import (
	"fmt"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// Config is resolved once by Init.
type Config struct {
	Mode Mode

	// LastErrorTracking keeps the error bitmask of the last operation
	// readable through LastError.
	LastErrorTracking bool

	// DMA enables StartDMA, TransmitDMA and ReceiveDMA. A DMA collaborator
	// must be installed with SetDMA before Init.
	DMA bool

	// UserData enables SetUserData and UserData.
	UserData bool

	// BusAcquire enables Acquire and Release.
	BusAcquire bool

	Controller ControllerConfig
	Target     TargetConfig
	FIFO       FIFOConfig
	Timing     Timing
}

// ControllerConfig configures the controller role.
type ControllerConfig struct {
	// DynamicAddress is the controller's own address, 0 for none.
	DynamicAddress uint8

	// HotJoinAck acknowledges hot-join requests.
	HotJoinAck bool
}

// TargetConfig configures the target role: the identity reported during
// DAA and the answers to GET CCCs.
type TargetConfig struct {
	PID            ccc.PID
	BCR            ccc.BCR
	DCR            uint8
	MaxWriteLength uint16
	MaxReadLength  uint16
	IBIPayloadSize uint8  // Bytes read by the controller after an IBI (0..4)
	Capabilities   uint16 // GETCAPS answer
	MaxDataSpeed   uint16 // GETMXDS answer
	HandoffCaps    uint32 // CRCAPR
}

// FIFOThreshold selects the FIFO level that raises a data request.
type FIFOThreshold uint8

// FIFO thresholds.
const (
	FIFOThreshold1 FIFOThreshold = iota // One byte
	FIFOThreshold4                      // Four bytes
)

// FIFOConfig configures the data FIFO thresholds.
type FIFOConfig struct {
	RxThreshold FIFOThreshold
	TxThreshold FIFOThreshold
}

// DefaultConfig returns a configuration for mode with error tracking and
// default timing.
func DefaultConfig(mode Mode) Config {
	cfg := Config{
		Mode:              mode,
		LastErrorTracking: true,
		Timing:            DefaultTiming(),
	}
	switch mode {
	case ModeController:
		cfg.Controller = ControllerConfig{DynamicAddress: 0x70, HotJoinAck: true}
	case ModeTarget:
		cfg.Target = TargetConfig{
			PID:            ccc.NewPID(0x0104, false, 0x0001, 0, 0),
			BCR:            ccc.BCRIBIRequest | ccc.BCRIBIPayload,
			MaxWriteLength: 256,
			MaxReadLength:  256,
			IBIPayloadSize: 1,
		}
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeController:
		if a := c.Controller.DynamicAddress; a != 0 && !ccc.ValidDynamicAddress(a) {
			return fmt.Errorf("%w: controller address %#02x", pkg.ErrInvalidParameter, a)
		}
	case ModeTarget:
		if c.Target.IBIPayloadSize > hal.MaxIBIPayload {
			return fmt.Errorf("%w: IBI payload size %d", pkg.ErrInvalidParameter, c.Target.IBIPayloadSize)
		}
	default:
		return fmt.Errorf("%w: mode %s", pkg.ErrInvalidParameter, c.Mode)
	}
	if c.FIFO.RxThreshold > FIFOThreshold4 || c.FIFO.TxThreshold > FIFOThreshold4 {
		return fmt.Errorf("%w: FIFO threshold", pkg.ErrInvalidParameter)
	}
	return nil
}

func (f FIFOConfig) bits() uint32 {
	var v uint32
	if f.RxThreshold == FIFOThreshold4 {
		v |= hal.CFGRRXTHRES
	}
	if f.TxThreshold == FIFOThreshold4 {
		v |= hal.CFGRTXTHRES
	}
	return v
}

// BusDevice is an entry of the controller's device table, which decides how
// requests from known targets are answered.
type BusDevice struct {
	Index             int   // Table slot, 1..4
	Address           uint8 // Dynamic address
	AckIBI            bool
	IBIPayload        bool // Read the IBI payload
	AckControllerRole bool
	StopOnIBI         bool // Suspend the frame in progress after an IBI
}

func (d BusDevice) register() uint32 {
	v := uint32(d.Address) << hal.DEVRDAShift
	if d.AckIBI {
		v |= hal.DEVRIBIACK
	}
	if d.AckControllerRole {
		v |= hal.DEVRCRACK
	}
	if d.IBIPayload {
		v |= hal.DEVRIBIDEN
	}
	if d.StopOnIBI {
		v |= hal.DEVRSUSP
	}
	return v
}

// ConfigureBusDevices writes device table entries.
func (h *Handle) ConfigureBusDevices(devs ...BusDevice) error {
	if err := h.idle(ModeController); err != nil {
		return err
	}
	for _, d := range devs {
		if _, ok := hal.DeviceReg(d.Index); !ok {
			return fmt.Errorf("%w: device index %d", pkg.ErrInvalidParameter, d.Index)
		}
		if !ccc.ValidDynamicAddress(d.Address) {
			return fmt.Errorf("%w: device address %#02x", pkg.ErrInvalidParameter, d.Address)
		}
	}
	for _, d := range devs {
		r, _ := hal.DeviceReg(d.Index)
		h.p.Write(r, d.register())
		h.devices[d.Index-1] = d
		h.alloc.Reserve(d.Address)
	}
	return nil
}

// BusDevices returns the configured device table entries.
func (h *Handle) BusDevices() []BusDevice {
	var out []BusDevice
	for _, d := range h.devices {
		if d.Index != 0 {
			out = append(out, d)
		}
	}
	return out
}

// ConfigureFIFO changes the FIFO thresholds.
func (h *Handle) ConfigureFIFO(f FIFOConfig) error {
	if err := h.idle(ModeNone); err != nil {
		return err
	}
	if f.RxThreshold > FIFOThreshold4 || f.TxThreshold > FIFOThreshold4 {
		return fmt.Errorf("%w: FIFO threshold", pkg.ErrInvalidParameter)
	}
	h.cfg.FIFO = f
	h.modifyCFGR(f.bits(), hal.CFGRRXTHRES|hal.CFGRTXTHRES)
	return nil
}

// FIFOConfig returns the FIFO thresholds in use.
func (h *Handle) FIFOConfig() FIFOConfig {
	return h.cfg.FIFO
}

// ConfigureController changes the controller settings.
func (h *Handle) ConfigureController(c ControllerConfig) error {
	if err := h.idle(ModeController); err != nil {
		return err
	}
	if c.DynamicAddress != 0 && !ccc.ValidDynamicAddress(c.DynamicAddress) {
		return fmt.Errorf("%w: controller address %#02x", pkg.ErrInvalidParameter, c.DynamicAddress)
	}
	h.cfg.Controller = c
	h.applyController()
	return nil
}

// ConfigureTarget changes the target identity and limits.
func (h *Handle) ConfigureTarget(c TargetConfig) error {
	if err := h.idle(ModeTarget); err != nil {
		return err
	}
	if c.IBIPayloadSize > hal.MaxIBIPayload {
		return fmt.Errorf("%w: IBI payload size %d", pkg.ErrInvalidParameter, c.IBIPayloadSize)
	}
	h.cfg.Target = c
	h.applyTarget()
	return nil
}

// Config returns the configuration in use.
func (h *Handle) Config() Config {
	return h.cfg
}

func (h *Handle) applyController() {
	c := h.cfg.Controller
	var hj uint32
	if c.HotJoinAck {
		hj = hal.CFGRHJACK
	}
	h.modifyCFGR(hj, hal.CFGRHJACK)
	if c.DynamicAddress != 0 {
		h.p.Write(hal.RegDEVR0, uint32(c.DynamicAddress)<<hal.DEVR0DAShift|hal.DEVR0DAVAL)
		h.alloc.Reserve(c.DynamicAddress)
	}
}

func (h *Handle) applyTarget() {
	c := h.cfg.Target
	h.p.Write(hal.RegBCR, uint32(c.BCR))
	h.p.Write(hal.RegDCR, uint32(c.DCR))
	h.p.Write(hal.RegEPIDR, uint32(c.PID))
	h.p.Write(hal.RegEPIDR1, uint32(c.PID>>32)&0xFFFF)
	h.p.Write(hal.RegMAXWLR, uint32(c.MaxWriteLength))
	h.p.Write(hal.RegMAXRLR, uint32(c.MaxReadLength)|uint32(c.IBIPayloadSize)<<hal.MAXRLRIBIPShift)
	h.p.Write(hal.RegGETCAPR, uint32(c.Capabilities))
	h.p.Write(hal.RegGETMXDSR, uint32(c.MaxDataSpeed))
	h.p.Write(hal.RegCRCAPR, c.HandoffCaps)
}
