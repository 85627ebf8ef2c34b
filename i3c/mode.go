package i3c

import (
	"fmt"

	"github.com/ardnew/softi3c/pkg"
)

// Class is the message class of a transfer.
type Class uint8

// Message classes.
const (
	ClassPrivate      Class = iota // I3C SDR private messages
	ClassLegacyI2C                 // Legacy I2C messages
	ClassCCCDirect                 // Direct CCCs
	ClassCCCBroadcast              // Broadcast CCCs
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassPrivate:
		return "private"
	case ClassLegacyI2C:
		return "i2c"
	case ClassCCCDirect:
		return "direct"
	case ClassCCCBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// IsCCC reports whether the class carries CCCs.
func (c Class) IsCCC() bool {
	return c == ClassCCCDirect || c == ClassCCCBroadcast
}

// Termination selects how consecutive messages are framed.
type Termination uint8

// Frame terminations.
const (
	// TerminationRestart chains messages with repeated STARTs and stops
	// after the last one.
	TerminationRestart Termination = iota

	// TerminationStop stops after every message.
	TerminationStop
)

// String returns the termination name.
func (t Termination) String() string {
	if t == TerminationStop {
		return "stop"
	}
	return "restart"
}

// TransferMode describes how hardware frames a multi-message transfer.
// Values are built with NewTransferMode or taken from the predefined modes,
// so every TransferMode in circulation is one hardware can frame.
type TransferMode struct {
	class       Class
	arbitration bool
	defining    bool
	term        Termination
}

// NewTransferMode validates and builds a transfer mode.
//
// A defining byte is only legal on CCC classes. CCC frames always open with
// the broadcast address, so an arbitration header is only legal on private
// and legacy classes.
func NewTransferMode(c Class, arbitration, defining bool, t Termination) (TransferMode, error) {
	if c > ClassCCCBroadcast || t > TerminationStop {
		return TransferMode{}, fmt.Errorf("%w: class %d termination %d", pkg.ErrInvalidParameter, c, t)
	}
	if defining && !c.IsCCC() {
		return TransferMode{}, fmt.Errorf("%w: defining byte on %s transfer", pkg.ErrInvalidParameter, c)
	}
	if arbitration && c.IsCCC() {
		return TransferMode{}, fmt.Errorf("%w: arbitration header on %s transfer", pkg.ErrInvalidParameter, c)
	}
	return TransferMode{class: c, arbitration: arbitration, defining: defining, term: t}, nil
}

func mustMode(c Class, arbitration, defining bool, t Termination) TransferMode {
	m, err := NewTransferMode(c, arbitration, defining, t)
	if err != nil {
		panic(err)
	}
	return m
}

// Predefined transfer modes.
var (
	PrivateArbRestart = mustMode(ClassPrivate, true, false, TerminationRestart)
	PrivateArbStop    = mustMode(ClassPrivate, true, false, TerminationStop)
	PrivateRestart    = mustMode(ClassPrivate, false, false, TerminationRestart)
	PrivateStop       = mustMode(ClassPrivate, false, false, TerminationStop)

	I2CRestart = mustMode(ClassLegacyI2C, false, false, TerminationRestart)
	I2CStop    = mustMode(ClassLegacyI2C, false, false, TerminationStop)

	DirectRestart    = mustMode(ClassCCCDirect, false, false, TerminationRestart)
	DirectStop       = mustMode(ClassCCCDirect, false, false, TerminationStop)
	DirectDefRestart = mustMode(ClassCCCDirect, false, true, TerminationRestart)
	DirectDefStop    = mustMode(ClassCCCDirect, false, true, TerminationStop)

	BroadcastRestart    = mustMode(ClassCCCBroadcast, false, false, TerminationRestart)
	BroadcastStop       = mustMode(ClassCCCBroadcast, false, false, TerminationStop)
	BroadcastDefRestart = mustMode(ClassCCCBroadcast, false, true, TerminationRestart)
	BroadcastDefStop    = mustMode(ClassCCCBroadcast, false, true, TerminationStop)
)

// Class returns the message class.
func (m TransferMode) Class() Class { return m.class }

// ArbitrationHeader reports whether frames open with the broadcast address.
func (m TransferMode) ArbitrationHeader() bool { return m.arbitration }

// DefiningByte reports whether each CCC carries a defining byte.
func (m TransferMode) DefiningByte() bool { return m.defining }

// Termination returns the frame termination.
func (m TransferMode) Termination() Termination { return m.term }

// String returns a compact description such as "private+arb/stop".
func (m TransferMode) String() string {
	s := m.class.String()
	if m.arbitration {
		s += "+arb"
	}
	if m.defining {
		s += "+def"
	}
	return s + "/" + m.term.String()
}
