package i3c

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"github.com/ardnew/softi3c/pkg"
)

// RetryPolicy paces repeated attempts of a request the other side may
// refuse, such as a hot-join or an IBI.
type RetryPolicy struct {
	Attempts int           // Total attempts, at least 1
	Min      time.Duration // First delay
	Max      time.Duration // Delay cap
	Factor   float64       // Growth per attempt
	Jitter   bool
}

// DefaultRetryPolicy returns five attempts from 100µs doubling to 10ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 5,
		Min:      100 * time.Microsecond,
		Max:      10 * time.Millisecond,
		Factor:   2,
	}
}

// Retry calls fn until it succeeds, returns an error that is not
// retryable, the attempts run out or ctx is done. It returns the last
// error from fn, or ctx's error if the wait was cut short.
func Retry(ctx context.Context, p RetryPolicy, fn func() error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	b := &backoff.Backoff{
		Min:    p.Min,
		Max:    p.Max,
		Factor: p.Factor,
		Jitter: p.Jitter,
	}
	var err error
	for i := 0; i < p.Attempts; i++ {
		if err = fn(); err == nil || !pkg.IsRetryable(err) {
			return err
		}
		if i == p.Attempts-1 {
			break
		}
		d := b.Duration()
		pkg.LogDebug(pkg.ComponentTarget, "retrying", "attempt", i+1, "delay", d, "err", err)
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
