package i3c

import (
	"github.com/ardnew/softi3c/ccc"
	"github.com/ardnew/softi3c/pkg"
)

// Event is delivered to the Observer from the interrupt path. The concrete
// types are listed below; switch on them to handle the ones of interest.
type Event interface {
	event()
}

// Observer receives events from a Handle.
type Observer interface {
	HandleEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// HandleEvent calls f(ev).
func (f ObserverFunc) HandleEvent(ev Event) {
	f(ev)
}

// Op identifies the operation an event completes.
type Op uint8

// Operations reported in events.
const (
	OpTransfer Op = iota
	OpDAA
	OpTransmit
	OpReceive
	OpHotJoin
	OpControllerRole
	OpIBI
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpTransfer:
		return "transfer"
	case OpDAA:
		return "daa"
	case OpTransmit:
		return "transmit"
	case OpReceive:
		return "receive"
	case OpHotJoin:
		return "hot-join"
	case OpControllerRole:
		return "controller-role"
	case OpIBI:
		return "ibi"
	default:
		return "unknown"
	}
}

// TransferCompleteEvent reports a controller transfer started with StartIT
// or StartDMA that finished without error.
type TransferCompleteEvent struct {
	Transfer *Transfer
	Count    int // Bytes moved
}

// DAAPayloadEvent reports one device discovered by AssignAddressesIT,
// before its address is driven on the bus.
type DAAPayloadEvent struct {
	Raw     uint64
	Payload ccc.Payload
	Address uint8
}

// DAACompleteEvent reports the end of a successful DAA round.
type DAACompleteEvent struct {
	Results []DAAResult
}

// TargetCompleteEvent reports a target operation started with one of the
// IT or DMA variants. Err carries refusals such as pkg.ErrIBINacked; bus
// errors are reported with ErrorEvent instead.
type TargetCompleteEvent struct {
	Op      Op
	Count   int   // Bytes moved
	Address uint8 // Address assigned by an accepted hot-join
	Err     error
}

// ErrorEvent reports an asynchronous operation that ended with a latched
// error. Err is a *pkg.ProtocolError.
type ErrorEvent struct {
	Op   Op
	Code pkg.ErrorCode
	Err  error
}

// AbortCompleteEvent reports that an Abort finished and the handle is idle.
type AbortCompleteEvent struct {
	Op Op
}

// NotificationEvent reports an activated notification. For the CCC-driven
// target notifications the same snapshot is available from CCCInfo until
// it is retrieved.
type NotificationEvent struct {
	ID   NotifyID
	Info CCCInfo
}

func (TransferCompleteEvent) event() {}
func (DAAPayloadEvent) event()       {}
func (DAACompleteEvent) event()      {}
func (TargetCompleteEvent) event()   {}
func (ErrorEvent) event()            {}
func (AbortCompleteEvent) event()    {}
func (NotificationEvent) event()     {}
