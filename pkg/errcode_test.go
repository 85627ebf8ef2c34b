package pkg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_String(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrorNone, "none"},
		{ErrorCE0, "CE0"},
		{ErrorTE6, "TE6"},
		{ErrorDataNACK | ErrorDataOverrun, "DOVR|DNACK"},
		{ErrorDynamicAddress, "DYNADDR"},
		{ErrorCE2 | ErrorTE0 | ErrorDMA, "CE2|TE0|DMA"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.String())
		})
	}
}

func TestErrorCode_Bits(t *testing.T) {
	all := []ErrorCode{
		ErrorCE0, ErrorCE1, ErrorCE2, ErrorCE3,
		ErrorTE0, ErrorTE1, ErrorTE2, ErrorTE3, ErrorTE4, ErrorTE5, ErrorTE6,
		ErrorStall, ErrorDataOverrun, ErrorControlOverrun, ErrorAddressNACK,
		ErrorDataNACK, ErrorHandoffData, ErrorDMA, ErrorDynamicAddress,
	}
	var seen ErrorCode
	for _, c := range all {
		assert.Zero(t, seen&c, "bit %s reused", c)
		seen |= c
	}
	assert.Len(t, all, len(errorCodeNames))
}

func TestErrorCode_Has(t *testing.T) {
	c := ErrorDataNACK | ErrorDataOverrun
	assert.True(t, c.Has(ErrorDataNACK))
	assert.True(t, c.Has(ErrorDataNACK|ErrorDataOverrun))
	assert.False(t, c.Has(ErrorStall))
	assert.False(t, c.Has(ErrorNone))
}

func TestErrorCode_NeedsRecovery(t *testing.T) {
	assert.True(t, ErrorCE1.NeedsRecovery())
	assert.True(t, (ErrorStall | ErrorDataNACK).NeedsRecovery())
	assert.False(t, ErrorAddressNACK.NeedsRecovery())
}

func TestProtocolError(t *testing.T) {
	err := error(&ProtocolError{Code: ErrorAddressNACK, Count: 3})
	assert.True(t, errors.Is(err, ErrProtocol))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, "protocol error: ANACK (completed 3)", err.Error())

	var pe *ProtocolError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Count)
}
