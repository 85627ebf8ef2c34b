package i3c

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softi3c/pkg"
)

func TestTimingRegisters(t *testing.T) {
	r, err := DefaultTiming().Registers(250_000_000)
	require.NoError(t, err)

	// 20 cycles per push-pull period at 50% duty, 100 per open-drain
	// period, 250 per I2C period.
	assert.Equal(t, uint32(10|10<<8|90<<16|125<<24), r[0])
	assert.Equal(t, uint32(250|127<<16), r[1], "bus free saturates")
	assert.Zero(t, r[2])

	tm := DefaultTiming()
	tm.Stall = 3
	r, err = tm.Registers(250_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint32(3<<8|0x7), r[2])
}

func TestTimingRejects(t *testing.T) {
	tests := []struct {
		name   string
		clock  uint32
		modify func(*Timing)
	}{
		{"no clock", 0, func(*Timing) {}},
		{"zero duty cycle", 250_000_000, func(t *Timing) { t.DutyCycle = 0 }},
		{"full duty cycle", 250_000_000, func(t *Timing) { t.DutyCycle = 100 }},
		{"push-pull above half the clock", 20_000_000, func(t *Timing) { t.PushPullHz = 12_500_000 }},
		{"open-drain disabled", 250_000_000, func(t *Timing) { t.OpenDrainHz = 0 }},
		{"i2c period too long", 250_000_000, func(t *Timing) { t.I2CHz = 400_000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := DefaultTiming()
			tt.modify(&tm)
			_, err := tm.Registers(tt.clock)
			assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
		})
	}
}
