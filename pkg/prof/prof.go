//go:build profile

package prof

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
)

// Enabled reports whether profiling is compiled in.
const Enabled = true

var (
	mu  sync.Mutex
	cpu *os.File
)

// StartCPU starts a CPU profile written to path.
func StartCPU(path string) error {
	mu.Lock()
	defer mu.Unlock()
	if cpu != nil {
		return ErrCPUActive
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return err
	}
	cpu = f
	return nil
}

// StopCPU ends the CPU profile, if one is running, and closes its file.
func StopCPU() error {
	mu.Lock()
	defer mu.Unlock()
	if cpu == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := cpu.Close()
	cpu = nil
	return err
}

// Write writes the named pprof profile, such as "heap" or "goroutine", to
// path. A heap profile is preceded by a garbage collection so it reflects
// live objects.
func Write(name, path string) error {
	p := pprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	if name == "heap" {
		runtime.GC()
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.WriteTo(f, 0); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
