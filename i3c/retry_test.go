package i3c

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/softi3c/hal/sim"
	"github.com/ardnew/softi3c/pkg"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Min: time.Microsecond, Max: 10 * time.Microsecond, Factor: 2}
}

func TestRetry(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		attempts  int
		results   []error
		wantCalls int
		wantErr   error
	}{
		{"first try", 3, []error{nil}, 1, nil},
		{"after refusals", 5, []error{pkg.ErrIBINacked, pkg.ErrHotJoinRefused, nil}, 3, nil},
		{"attempts run out", 3, []error{pkg.ErrNotReady, pkg.ErrNotReady, pkg.ErrIBINacked}, 3, pkg.ErrIBINacked},
		{"not retryable", 5, []error{pkg.ErrControllerRoleRefused, boom}, 2, boom},
		{"zero attempts still tries once", 0, []error{pkg.ErrIBINacked}, 1, pkg.ErrIBINacked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastRetry(tt.attempts), func() error {
				err := tt.results[min(calls, len(tt.results)-1)]
				calls++
				return err
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Attempts: 10, Min: time.Hour, Max: time.Hour, Factor: 2}

	calls := 0
	err := Retry(ctx, p, func() error {
		calls++
		cancel()
		return pkg.ErrHotJoinRefused
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryIBI(t *testing.T) {
	r := sim.NewRemote()
	r.AckIBI = false
	h, _, _ := addressedTarget(t, r, setup{})

	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		err := h.RequestIBI([]byte{0x5A}, testTimeout)
		r.AckIBI = true
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, r.IBIs(), 1)
	assert.Equal(t, []byte{0x5A}, r.IBIs()[0].Payload)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 5, p.Attempts)
	assert.Less(t, p.Min, p.Max)
}
