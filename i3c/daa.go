package i3c

import (
	"fmt"
	"time"

	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
	"github.com/ardnew/softi3c/pkg"
)

// DAAVariant selects the CCCs that open a DAA round.
type DAAVariant uint8

// DAA variants.
const (
	// DAAResetAndAssign sends RSTDAA before ENTDAA, so every target
	// participates.
	DAAResetAndAssign DAAVariant = iota

	// DAAAssignOnly sends ENTDAA alone; only targets without a dynamic
	// address participate.
	DAAAssignOnly
)

// String returns the variant name.
func (v DAAVariant) String() string {
	if v == DAAAssignOnly {
		return "entdaa"
	}
	return "rstdaa+entdaa"
}

// DAAResult is one device addressed during a DAA round.
type DAAResult struct {
	Raw     uint64 // ENTDAA payload as received
	Address uint8  // Dynamic address assigned
}

// Payload decodes the raw ENTDAA payload.
func (r DAAResult) Payload() ccc.Payload {
	return ccc.DecodePayload(r.Raw)
}

// daaState collects one DAA round.
type daaState struct {
	buf     [ccc.PayloadSize]byte
	n       int
	results []DAAResult
}

func (h *Handle) daaXfer(v DAAVariant, how strategy) (*xfer, error) {
	if err := h.controllerReady(); err != nil {
		return nil, err
	}
	var ctrl []uint32
	switch v {
	case DAAResetAndAssign:
		ctrl = []uint32{
			uint32(hal.CCCWord(uint8(ccc.RSTDAA), 0, false)),
			uint32(hal.CCCWord(uint8(ccc.ENTDAA), 0, true)),
		}
	case DAAAssignOnly:
		ctrl = []uint32{uint32(hal.CCCWord(uint8(ccc.ENTDAA), 0, true))}
	default:
		return nil, fmt.Errorf("%w: DAA variant %d", pkg.ErrInvalidParameter, v)
	}
	return &xfer{op: OpDAA, how: how, ctrl: ctrl, frames: 1, daa: &daaState{}}, nil
}

func (h *Handle) beginDAA(x *xfer, v DAAVariant) {
	if v == DAAResetAndAssign {
		h.alloc.Reset()
		if a := h.cfg.Controller.DynamicAddress; a != 0 {
			h.alloc.Reserve(a)
		}
		// Device table slots keep their addresses.
		for _, d := range h.devices {
			if d.Index != 0 {
				h.alloc.Reserve(d.Address)
			}
		}
	}
	h.begin(x, StateDAA)
	h.prepareController(false)
	pkg.LogDebug(pkg.ComponentDAA, "DAA started", "variant", v)
}

// AssignAddresses runs a DAA round, polling until it ends or timeout
// elapses. It returns the devices addressed, in arbitration order. A round
// that finds no device succeeds with no results. After a bus error the
// results gathered so far are returned with a *pkg.ProtocolError whose
// Count is their number.
func (h *Handle) AssignAddresses(v DAAVariant, timeout time.Duration) ([]DAAResult, error) {
	x, err := h.daaXfer(v, polled)
	if err != nil {
		return nil, err
	}
	dl, err := newDeadline(timeout)
	if err != nil {
		return nil, err
	}
	defer h.release(x)
	h.beginDAA(x, v)
	err = h.wait(x, dl)
	return x.daa.results, err
}

// AssignAddressesIT starts a DAA round and returns. Each device is
// reported with a DAAPayloadEvent before its address is driven; the round
// ends with a DAACompleteEvent or an ErrorEvent.
func (h *Handle) AssignAddressesIT(v DAAVariant) error {
	x, err := h.daaXfer(v, interrupt)
	if err != nil {
		return err
	}
	h.beginDAA(x, v)
	h.arm(x)
	return nil
}

// daaByte collects one payload byte and answers a complete payload with
// the chosen address.
func (h *Handle) daaByte(b byte) {
	x := h.x
	d := x.daa
	if x.failed {
		return
	}
	d.buf[d.n] = b
	if d.n++; d.n < ccc.PayloadSize {
		return
	}
	d.n = 0
	raw, _ := ccc.PayloadFromBytes(d.buf[:])
	p := ccc.DecodePayload(raw)
	addr, ok := h.chooseAddress(p)
	if !ok {
		pkg.LogError(pkg.ComponentDAA, "no dynamic address for device", "pid", p.PID)
		h.fail(pkg.ErrorDynamicAddress)
		return
	}
	if x.how != polled {
		h.emit(DAAPayloadEvent{Raw: raw, Payload: p, Address: addr})
	}
	h.p.Write(hal.RegTDR, uint32(ccc.OddParity(addr)))
	d.results = append(d.results, DAAResult{Raw: raw, Address: addr})
	x.count = len(d.results)
	pkg.LogDebug(pkg.ComponentDAA, "device addressed",
		"pid", p.PID, "bcr", uint8(p.BCR), "dcr", p.DCR, "address", addr)
}

func (h *Handle) chooseAddress(p ccc.Payload) (uint8, bool) {
	if h.assign == nil {
		return h.alloc.Allocate()
	}
	addr, ok := h.assign(p)
	if !ok || !ccc.ValidDynamicAddress(addr) {
		return 0, false
	}
	h.alloc.Reserve(addr)
	return addr, true
}

// Default allocation range.
const (
	DefaultFirstAddress uint8 = 0x08
	DefaultLastAddress  uint8 = 0x3D
)

// AddressAllocator hands out dynamic addresses, lowest free first.
type AddressAllocator struct {
	first, last uint8
	used        [ccc.MaxAddress + 1]bool
}

// NewAddressAllocator returns an allocator over the default range.
func NewAddressAllocator() *AddressAllocator {
	return &AddressAllocator{first: DefaultFirstAddress, last: DefaultLastAddress}
}

// SetRange restricts allocation to first..last inclusive.
func (a *AddressAllocator) SetRange(first, last uint8) error {
	if first > last || !ccc.ValidDynamicAddress(first) || last > ccc.MaxAddress {
		return fmt.Errorf("%w: address range %#02x..%#02x", pkg.ErrInvalidParameter, first, last)
	}
	a.first, a.last = first, last
	return nil
}

// Allocate returns the lowest free address and marks it used.
func (a *AddressAllocator) Allocate() (uint8, bool) {
	for addr := a.first; addr <= a.last && addr <= ccc.MaxAddress; addr++ {
		if !a.used[addr] && ccc.ValidDynamicAddress(addr) {
			a.used[addr] = true
			return addr, true
		}
	}
	return 0, false
}

// Reserve marks addr used.
func (a *AddressAllocator) Reserve(addr uint8) {
	if addr <= ccc.MaxAddress {
		a.used[addr] = true
	}
}

// Release marks addr free.
func (a *AddressAllocator) Release(addr uint8) {
	if addr <= ccc.MaxAddress {
		a.used[addr] = false
	}
}

// InUse reports whether addr is marked used.
func (a *AddressAllocator) InUse(addr uint8) bool {
	return addr <= ccc.MaxAddress && a.used[addr]
}

// Reset marks every address free.
func (a *AddressAllocator) Reset() {
	a.used = [ccc.MaxAddress + 1]bool{}
}
