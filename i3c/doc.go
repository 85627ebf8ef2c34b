// Package i3c implements a transaction engine for an I3C bus peripheral.
//
// A [Handle] drives one peripheral instance through the [hal.Peripheral]
// register interface, in either the controller or the target role. It is
// platform-agnostic: the clock, DMA and interrupt delivery are supplied as
// collaborators from the [github.com/ardnew/softi3c/hal] package.
//
// # Architecture
//
//   - [Handle] owns the role, the state machine and the operation in flight
//   - [Transfer] holds caller-owned control, transmit and receive buffers
//   - [TransferMode] selects the message class and its framing
//   - [AddressAllocator] hands out dynamic addresses during DAA
//   - [Observer] receives completion, error and notification events
//
// # Execution strategies
//
// Every data-moving operation exists in up to three forms. The blocking
// form polls the peripheral until completion or timeout:
//
//	t := i3c.NewTransfer(1, 4, 0)
//	_ = t.BuildPrivate([]i3c.Descriptor{{Addr: 0x08, Data: buf}}, i3c.PrivateStop)
//	err := h.Start(t, 10*time.Millisecond)
//
// The IT form returns at once and is advanced by [Handle.ServeEvent] and
// [Handle.ServeError], which the platform calls from its interrupt
// handlers. The DMA form hands the FIFOs to the [hal.DMA] collaborator.
// Both report completion through the observer.
//
// # Handle States
//
//	Reset → Init → Idle ⇄ {Tx, Rx, TxRx, DAA, TargetRequest, Abort}
//
// An operation may start only from Idle. A refused start leaves the handle
// untouched.
//
// # Errors
//
// Parameter and state violations return sentinel errors from
// [github.com/ardnew/softi3c/pkg]. Bus and hardware faults are latched into
// a [pkg.ErrorCode] bitmask and returned as *[pkg.ProtocolError].
package i3c
