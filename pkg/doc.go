// Package pkg provides shared utilities for the softi3c engine.
//
// This package contains common functionality used across the engine, the
// simulated peripheral and the command-line tool, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for parameter, state and protocol failures
//   - The [ErrorCode] bitmask latched from bus and hardware faults
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentDAA, "device addressed", "address", 0x08)
//
// # Errors
//
// Expected refusals are sentinel values and may be retried:
//
//	if errors.Is(err, pkg.ErrIBINacked) {
//	    // Try again later
//	}
//
// Bus faults arrive as *[ProtocolError]:
//
//	var pe *pkg.ProtocolError
//	if errors.As(err, &pe) && pe.Code.Has(pkg.ErrorAddressNACK) {
//	    // Nobody answered
//	}
package pkg
