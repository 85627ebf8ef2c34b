package pkg

import (
	"fmt"
	"strings"
)

// ErrorCode is a bitmask of latched hardware error conditions.
// Multiple faults within one transfer accumulate.
type ErrorCode uint32

// Controller-role protocol errors.
const (
	ErrorCE0 ErrorCode = 1 << iota // Illegally formatted CCC from a target
	ErrorCE1                       // Monitored bus data differs from transmitted data
	ErrorCE2                       // Broadcast address not acknowledged
	ErrorCE3                       // New controller did not drive the bus after handoff
)

// Target-role protocol errors.
const (
	ErrorTE0 ErrorCode = 1 << (iota + 4) // Invalid broadcast address
	ErrorTE1                             // Invalid CCC code
	ErrorTE2                             // Parity error during write data
	ErrorTE3                             // Parity error during dynamic address assignment
	ErrorTE4                             // Missing 0x7E/R after restart during DAA
	ErrorTE5                             // Illegally formatted CCC
	ErrorTE6                             // Monitored bus data differs from transmitted data
)

// Flow-control and infrastructure errors.
const (
	ErrorStall          ErrorCode = 1 << (iota + 11) // SCL stall timeout
	ErrorDataOverrun                                 // RX FIFO overrun or TX FIFO underrun
	ErrorControlOverrun                              // Control FIFO underrun or status FIFO overrun
	ErrorAddressNACK                                 // Address not acknowledged
	ErrorDataNACK                                    // Data not acknowledged (legacy I2C)
	ErrorHandoffData                                 // Data error during controller-role handoff
	ErrorDMA                                         // Bulk-transfer engine failure
	ErrorDynamicAddress                              // Dynamic address configuration error
)

// ErrorNone means no error latched.
const ErrorNone ErrorCode = 0

var errorCodeNames = [...]string{
	"CE0", "CE1", "CE2", "CE3",
	"TE0", "TE1", "TE2", "TE3", "TE4", "TE5", "TE6",
	"STALL", "DOVR", "COVR", "ANACK", "DNACK", "DERR", "DMA", "DYNADDR",
}

// Has reports whether every bit of v is set in e.
func (e ErrorCode) Has(v ErrorCode) bool {
	return v != 0 && e&v == v
}

// NeedsRecovery reports whether the latched condition leaves SCL stalled.
func (e ErrorCode) NeedsRecovery() bool {
	return e&(ErrorCE1|ErrorStall) != 0
}

// String lists the set bits separated by '|'.
func (e ErrorCode) String() string {
	if e == ErrorNone {
		return "none"
	}
	var parts []string
	for i, name := range errorCodeNames {
		if e&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if rest := e &^ (1<<len(errorCodeNames) - 1); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ProtocolError carries the error bitmask latched during an operation and
// the number of bytes (or devices, for DAA) completed before the fault.
type ProtocolError struct {
	Code  ErrorCode
	Count int
}

// Error implements error.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (completed %d)", e.Code, e.Count)
}

// Is matches ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}
