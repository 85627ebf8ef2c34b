package ccc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeClass(t *testing.T) {
	assert.True(t, ENTDAA.IsBroadcast())
	assert.False(t, ENTDAA.IsDirect())
	assert.True(t, GETPID.IsDirect())
	assert.True(t, GETPID.IsGet())
	assert.False(t, SETDASA.IsGet())
	assert.False(t, RSTDAA.IsGet())
}

func TestCodeString(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{ENTDAA, "ENTDAA"},
		{RSTDAA, "RSTDAA"},
		{DirectENEC, "ENEC(D)"},
		{GETACCCR, "GETACCCR"},
		{Code(0x7F), "CCC(0x7F)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.String())
		})
	}
}

func TestLookup(t *testing.T) {
	c, ok := Lookup("SETNEWDA")
	assert.True(t, ok)
	assert.Equal(t, SETNEWDA, c)

	c, ok = Lookup("ENEC(D)")
	assert.True(t, ok)
	assert.Equal(t, DirectENEC, c)

	_, ok = Lookup("NOPE")
	assert.False(t, ok)
}

func TestValidDynamicAddress(t *testing.T) {
	tests := []struct {
		addr uint8
		want bool
	}{
		{0x00, false},
		{0x07, false},
		{0x08, true},
		{0x30, true},
		{0x3E, false},
		{0x5E, false},
		{0x6E, false},
		{0x76, false},
		{0x77, true},
		{0x7E, false},
		{0x7F, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidDynamicAddress(tt.addr), "addr=0x%02X", tt.addr)
	}
}

func TestOddParity(t *testing.T) {
	tests := []struct {
		addr uint8
		want uint8
	}{
		{0x00, 0x01},
		{0x01, 0x02},
		{0x08, 0x10},
		{0x09, 0x13},
		{0x7F, 0xFE},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, OddParity(tt.addr), "addr=0x%02X", tt.addr)
	}
}
