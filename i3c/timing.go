package i3c

import (
	"fmt"
	"time"

	"github.com/ardnew/softi3c/pkg"
)

// Timing is the bus timing expressed in frequencies and durations. It is
// converted to TIMINGR0..2 against the peripheral kernel clock.
type Timing struct {
	PushPullHz  uint32        // SCL frequency of SDR push-pull phases
	OpenDrainHz uint32        // SCL frequency of open-drain phases
	I2CHz       uint32        // SCL frequency of legacy I2C messages
	DutyCycle   uint8         // Push-pull SCL high time in percent
	BusFree     time.Duration // Bus free condition
	BusIdle     time.Duration // Bus available/idle condition
	Stall       uint8         // SCL cycles stalled on the parity/ACK bits
}

// DefaultTiming returns 12.5 MHz push-pull, 2.5 MHz open-drain and 1 MHz
// legacy I2C.
func DefaultTiming() Timing {
	return Timing{
		PushPullHz:  12_500_000,
		OpenDrainHz: 2_500_000,
		I2CHz:       1_000_000,
		DutyCycle:   50,
		BusFree:     1300 * time.Nanosecond,
		BusIdle:     time.Microsecond,
	}
}

// TIMINGR0..2 fields.
const (
	timingSCLLPPShift  = 0  // TIMINGR0: push-pull low
	timingSCLHI3CShift = 8  // TIMINGR0: I3C high
	timingSCLLODShift  = 16 // TIMINGR0: open-drain low
	timingSCLHI2CShift = 24 // TIMINGR0: I2C high
	timingAVALShift    = 0  // TIMINGR1: bus available
	timingFREEShift    = 16 // TIMINGR1: bus free
	timingSTALLShift   = 8  // TIMINGR2: stall cycles
	timingSTALLEN      = 0x7
)

// Registers computes TIMINGR0..2 for a kernel clock of clockHz.
func (t Timing) Registers(clockHz uint32) ([3]uint32, error) {
	var r [3]uint32
	if clockHz == 0 {
		return r, fmt.Errorf("%w: kernel clock is 0", pkg.ErrInvalidParameter)
	}
	if t.DutyCycle == 0 || t.DutyCycle >= 100 {
		return r, fmt.Errorf("%w: duty cycle %d%%", pkg.ErrInvalidParameter, t.DutyCycle)
	}
	period := func(name string, hz uint32) (uint32, error) {
		if hz == 0 || hz > clockHz/2 {
			return 0, fmt.Errorf("%w: %s %d Hz with %d Hz clock", pkg.ErrInvalidParameter, name, hz, clockHz)
		}
		return clockHz / hz, nil
	}
	pp, err := period("push-pull", t.PushPullHz)
	if err != nil {
		return r, err
	}
	od, err := period("open-drain", t.OpenDrainHz)
	if err != nil {
		return r, err
	}
	i2c, err := period("i2c", t.I2CHz)
	if err != nil {
		return r, err
	}
	high := pp * uint32(t.DutyCycle) / 100
	fields := []struct {
		name  string
		v     uint32
		shift uint
	}{
		{"push-pull low", pp - high, timingSCLLPPShift},
		{"i3c high", high, timingSCLHI3CShift},
		{"open-drain low", od - high, timingSCLLODShift},
		{"i2c high", i2c / 2, timingSCLHI2CShift},
	}
	for _, f := range fields {
		if f.v == 0 || f.v > 0xFF {
			return r, fmt.Errorf("%w: %s of %d cycles out of range", pkg.ErrInvalidParameter, f.name, f.v)
		}
		r[0] |= f.v << f.shift
	}

	cycles := func(d time.Duration) uint32 {
		return uint32(uint64(d) * uint64(clockHz) / uint64(time.Second))
	}
	r[1] = min(cycles(t.BusIdle), 0xFF)<<timingAVALShift | min(cycles(t.BusFree), 0x7F)<<timingFREEShift
	if t.Stall > 0 {
		r[2] = uint32(t.Stall)<<timingSTALLShift | timingSTALLEN
	}
	return r, nil
}
