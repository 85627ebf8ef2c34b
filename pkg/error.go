package pkg

import "errors"

// I3C engine errors.
var (
	// ErrTimeout indicates a blocking operation exceeded its time budget.
	ErrTimeout = errors.New("transfer timeout")

	// ErrBusy indicates the handle is not idle.
	ErrBusy = errors.New("resource busy")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidState indicates an invalid handle state for the operation.
	ErrInvalidState = errors.New("invalid handle state")

	// ErrInvalidMode indicates the operation requires the other bus role.
	ErrInvalidMode = errors.New("invalid bus role")

	// ErrNotSupported indicates an unsupported or disabled feature.
	ErrNotSupported = errors.New("not supported")

	// ErrBufferTooSmall indicates a bound buffer cannot hold the transfer.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrProtocol indicates a latched bus or hardware error.
	// Returned errors of this kind are *ProtocolError values.
	ErrProtocol = errors.New("protocol error")

	// ErrRecoveryRequired indicates a stalled bus must be recovered first.
	ErrRecoveryRequired = errors.New("bus recovery required")

	// ErrNotReady indicates a probed device never acknowledged.
	ErrNotReady = errors.New("device not ready")

	// ErrNoPendingInfo indicates no CCC snapshot is pending for a notification.
	ErrNoPendingInfo = errors.New("no pending CCC info")

	// ErrAlreadyInitialized indicates Init was called twice.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrNotInitialized indicates the handle has not been initialized.
	ErrNotInitialized = errors.New("not initialized")

	// ErrAborted indicates the operation was ended by Abort.
	ErrAborted = errors.New("operation aborted")
)

// Expected protocol outcomes. These are retryable and are never folded into
// the ErrorCode bitmask.
var (
	// ErrHotJoinRefused indicates the controller refused or disabled hot-join.
	ErrHotJoinRefused = errors.New("hot-join refused")

	// ErrIBINacked indicates the controller NACKed or disabled the IBI.
	ErrIBINacked = errors.New("IBI not acknowledged")

	// ErrControllerRoleRefused indicates the controller refused the role request.
	ErrControllerRoleRefused = errors.New("controller role refused")
)

// IsRetryable reports whether err is an expected outcome that may succeed
// when the request is repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrHotJoinRefused) ||
		errors.Is(err, ErrIBINacked) ||
		errors.Is(err, ErrControllerRoleRefused) ||
		errors.Is(err, ErrNotReady)
}

// TransferStatus represents the completion status of a transfer.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess TransferStatus = iota // Transfer completed successfully
	TransferStatusError                         // Transfer failed with a latched error
	TransferStatusTimeout                       // Transfer timed out
	TransferStatusAborted                       // Transfer was aborted
	TransferStatusRefused                       // Request refused by the controller
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusTimeout:
		return "timeout"
	case TransferStatusAborted:
		return "aborted"
	case TransferStatusRefused:
		return "refused"
	default:
		return "unknown"
	}
}

// StatusOf converts an error to a transfer status.
func StatusOf(err error) TransferStatus {
	switch {
	case err == nil:
		return TransferStatusSuccess
	case errors.Is(err, ErrTimeout):
		return TransferStatusTimeout
	case errors.Is(err, ErrAborted):
		return TransferStatusAborted
	case IsRetryable(err):
		return TransferStatusRefused
	default:
		return TransferStatusError
	}
}
