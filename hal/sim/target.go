package sim

import (
	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/hal"
)

// Fault is an error injected into a message addressed to a target.
type Fault struct {
	At   int    // Byte index within the message at which the fault fires
	SER  uint32 // SER bits to raise
	Code uint8  // CODERR value, used when SER has hal.SERPERR
}

// TargetStats counts the outcomes of target-initiated requests.
type TargetStats struct {
	IBIAcked             int
	IBINacked            int
	HotJoinAcked         int
	HotJoinNacked        int
	ControllerRoleAcked  int
	ControllerRoleNacked int
}

// Target is a simulated device on the bus seen by a controller-role
// peripheral. It behaves as a small register file: each private or legacy
// message starts at offset 0, writes store bytes and reads return them.
type Target struct {
	Name          string
	StaticAddress uint8       // 0 if the target has none
	Payload       ccc.Payload // ENTDAA response
	Memory        []byte
	MaxRead       int  // Bytes returned before ending a read early (0 = no limit)
	Offline       bool // Target does not respond at all

	da      uint8
	daValid bool
	events  uint8 // ENEC/DISEC state
	mwl     uint16
	mrl     uint16
	ibiSize uint8
	status  uint16
	as      uint8
	rstact  uint8

	wptr, rptr, nread int
	written           []byte

	ibi            []byte
	ibiPending     bool
	crPending      bool
	hotJoinPending bool
	hotJoin        bool // hot-join acknowledged, waiting for ENTDAA

	faults []Fault
	stats  TargetStats
}

// NewTarget creates a target with the given ENTDAA payload and a 256-byte
// register file.
func NewTarget(name string, payload ccc.Payload) *Target {
	return &Target{
		Name:    name,
		Payload: payload,
		Memory:  make([]byte, 256),
		events:  ccc.EventIBI | ccc.EventControllerRole | ccc.EventHotJoin,
		mwl:     256,
		mrl:     256,
	}
}

// DynamicAddress returns the assigned dynamic address.
func (t *Target) DynamicAddress() (uint8, bool) {
	return t.da, t.daValid
}

// SetDynamicAddress preassigns a dynamic address.
func (t *Target) SetDynamicAddress(addr uint8) {
	t.setDA(addr)
}

// Events returns the event enables last set by ENEC/DISEC.
func (t *Target) Events() uint8 {
	return t.events
}

// MaxWriteLength returns the length last set by SETMWL.
func (t *Target) MaxWriteLength() uint16 {
	return t.mwl
}

// MaxReadLength returns the length last set by SETMRL.
func (t *Target) MaxReadLength() uint16 {
	return t.mrl
}

// ActivityState returns the state last set by ENTASx.
func (t *Target) ActivityState() uint8 {
	return t.as
}

// ResetAction returns the action last set by RSTACT.
func (t *Target) ResetAction() uint8 {
	return t.rstact
}

// SetStatus sets the value answered to GETSTATUS.
func (t *Target) SetStatus(v uint16) {
	t.status = v
}

// Written returns every byte written to the target by private or legacy
// messages, in bus order.
func (t *Target) Written() []byte {
	return t.written
}

// Stats returns request outcome counters.
func (t *Target) Stats() TargetStats {
	return t.stats
}

// RequestIBI queues an in-band interrupt carrying payload.
func (t *Target) RequestIBI(payload ...byte) {
	t.ibi = append([]byte(nil), payload...)
	t.ibiPending = true
}

// RequestControllerRole queues a controller-role request.
func (t *Target) RequestControllerRole() {
	t.crPending = true
}

// RequestHotJoin queues a hot-join request. It is only raised while the
// target has no dynamic address.
func (t *Target) RequestHotJoin() {
	t.hotJoinPending = true
}

// InjectFault arms a fault for the next message reaching byte f.At.
func (t *Target) InjectFault(f Fault) {
	t.faults = append(t.faults, f)
}

func (t *Target) takeFault(at int) (Fault, bool) {
	for i, f := range t.faults {
		if f.At == at {
			t.faults = append(t.faults[:i], t.faults[i+1:]...)
			return f, true
		}
	}
	return Fault{}, false
}

func (t *Target) setDA(addr uint8) {
	t.da = addr
	t.daValid = true
}

// requestAddress returns the address the target arbitrates with, if it has
// a request pending and the controller has not disabled it.
func (t *Target) requestAddress() (uint8, bool) {
	if t.Offline {
		return 0, false
	}
	if !t.daValid {
		if t.hotJoinPending && t.events&ccc.EventHotJoin != 0 {
			return hal.HotJoinAddress, true
		}
		return 0, false
	}
	if t.ibiPending && t.events&ccc.EventIBI != 0 && t.Payload.BCR.IBIRequestCapable() {
		return t.da, true
	}
	if t.crPending && t.events&ccc.EventControllerRole != 0 {
		return t.da, true
	}
	return 0, false
}

func (t *Target) startMessage() {
	t.wptr, t.rptr, t.nread = 0, 0, 0
}

func (t *Target) write(b byte) {
	t.written = append(t.written, b)
	if len(t.Memory) > 0 {
		t.Memory[t.wptr%len(t.Memory)] = b
		t.wptr++
	}
}

func (t *Target) read() (byte, bool) {
	if t.MaxRead > 0 && t.nread >= t.MaxRead {
		return 0, false
	}
	t.nread++
	if len(t.Memory) == 0 {
		return 0xFF, true
	}
	b := t.Memory[t.rptr%len(t.Memory)]
	t.rptr++
	return b, true
}

// respond returns the answer to a direct GET CCC, or false if the target
// NACKs it.
func (t *Target) respond(code ccc.Code) ([]byte, bool) {
	switch code {
	case ccc.GETPID:
		pid := uint64(t.Payload.PID)
		return []byte{byte(pid >> 40), byte(pid >> 32), byte(pid >> 24),
			byte(pid >> 16), byte(pid >> 8), byte(pid)}, true
	case ccc.GETBCR:
		return []byte{byte(t.Payload.BCR)}, true
	case ccc.GETDCR:
		return []byte{t.Payload.DCR}, true
	case ccc.GETMWL:
		return []byte{byte(t.mwl >> 8), byte(t.mwl)}, true
	case ccc.GETMRL:
		if t.Payload.BCR.IBIPayload() {
			return []byte{byte(t.mrl >> 8), byte(t.mrl), t.ibiSize}, true
		}
		return []byte{byte(t.mrl >> 8), byte(t.mrl)}, true
	case ccc.GETSTATUS:
		return []byte{byte(t.status >> 8), byte(t.status)}, true
	case ccc.GETACCCR:
		if t.Payload.BCR.DeviceRole() != ccc.RoleController {
			return nil, false
		}
		return []byte{ccc.OddParity(t.da)}, true
	case ccc.GETMXDS:
		return []byte{0x00, 0x00}, true
	case ccc.GETCAPS:
		return []byte{0x01, 0x00}, true
	case ccc.GETXTIME:
		return []byte{0x00, 0x00, 0x00, 0x00}, true
	}
	return nil, false
}

// direct applies a broadcast or direct write CCC to the target.
func (t *Target) direct(code ccc.Code, data []byte) {
	arg := func(i int) (byte, bool) {
		if i < len(data) {
			return data[i], true
		}
		return 0, false
	}
	switch code {
	case ccc.RSTDAA, ccc.DirectRSTDAA:
		t.daValid = false
		t.da = 0
	case ccc.ENEC, ccc.DirectENEC:
		if b, ok := arg(0); ok {
			t.events |= b
		}
	case ccc.DISEC, ccc.DirectDISEC:
		if b, ok := arg(0); ok {
			t.events &^= b
		}
	case ccc.SETNEWDA, ccc.SETDASA:
		if b, ok := arg(0); ok && ccc.ValidDynamicAddress(b>>1) {
			t.setDA(b >> 1)
		}
	case ccc.SETMWL, ccc.DirectSETMWL:
		if len(data) >= 2 {
			t.mwl = uint16(data[0])<<8 | uint16(data[1])
		}
	case ccc.SETMRL, ccc.DirectSETMRL:
		if len(data) >= 2 {
			t.mrl = uint16(data[0])<<8 | uint16(data[1])
		}
		if b, ok := arg(2); ok {
			t.ibiSize = b
		}
	case ccc.ENTAS0, ccc.ENTAS1, ccc.ENTAS2, ccc.ENTAS3:
		t.as = uint8(code - ccc.ENTAS0)
	case ccc.DirectENTAS0, ccc.DirectENTAS1, ccc.DirectENTAS2, ccc.DirectENTAS3:
		t.as = uint8(code - ccc.DirectENTAS0)
	case ccc.RSTACT, ccc.DirectRSTACT:
		if b, ok := arg(0); ok {
			t.rstact = b
		}
	}
}
