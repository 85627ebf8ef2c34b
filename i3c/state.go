package i3c

// Mode is the bus role of the peripheral instance.
type Mode uint8

// Bus roles.
const (
	ModeNone Mode = iota
	ModeController
	ModeTarget
)

// String returns the role name.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeController:
		return "controller"
	case ModeTarget:
		return "target"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a Handle.
type State uint8

// Lifecycle states. Only StateIdle admits a new operation.
const (
	StateReset         State = iota // Not configured
	StateInit                       // Configuration in progress
	StateIdle                       // Ready
	StateTx                         // Transmitting
	StateRx                         // Receiving
	StateTxRx                       // Transfer with both directions
	StateDAA                        // Dynamic address assignment
	StateTargetRequest              // Hot-join, IBI or controller-role request
	StateAbort                      // Abort requested, waiting for the bus
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReset:
		return "reset"
	case StateInit:
		return "init"
	case StateIdle:
		return "idle"
	case StateTx:
		return "tx"
	case StateRx:
		return "rx"
	case StateTxRx:
		return "txrx"
	case StateDAA:
		return "daa"
	case StateTargetRequest:
		return "target-request"
	case StateAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Busy reports whether an operation is in flight.
func (s State) Busy() bool {
	switch s {
	case StateTx, StateRx, StateTxRx, StateDAA, StateTargetRequest, StateAbort:
		return true
	}
	return false
}
