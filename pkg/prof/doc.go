// Package prof writes pprof profiles of a simulation run.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./cmd/i3csim
//	i3csim --cpu-profile cpu.prof --heap-profile heap.prof daa
//
// Without the tag every function is a no-op and Enabled is false, so call
// sites need no build constraints of their own.
package prof

import "errors"

var (
	// ErrCPUActive is returned by StartCPU while a CPU profile is running.
	ErrCPUActive = errors.New("cpu profile already active")

	// ErrUnknownProfile is returned by Write for a name pprof does not know.
	ErrUnknownProfile = errors.New("unknown profile")
)
