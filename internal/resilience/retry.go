package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff is an exponential retry schedule with jitter.
type Backoff struct {
	Attempts   int           // total attempts including the first
	Initial    time.Duration // delay before the first retry
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // fraction of the delay, 0.25 gives ±25%
}

// DefaultBackoff suits the PDOK download API.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts:   3,
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.25,
	}
}

func (b Backoff) normalized() Backoff {
	d := DefaultBackoff()
	if b.Attempts <= 0 {
		b.Attempts = d.Attempts
	}
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Multiplier <= 0 {
		b.Multiplier = d.Multiplier
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	return b
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.normalized()
	delay := math.Min(float64(b.Initial)*math.Pow(b.Multiplier, float64(attempt)), float64(b.Max))
	if b.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * delay * b.Jitter
	}
	return time.Duration(math.Max(delay, 0))
}

// Retry calls fn until it succeeds, fails with a non-transient error, the
// attempts run out, or ctx ends. The last error is returned.
func Retry[T any](ctx context.Context, b Backoff, op string, fn func(context.Context) (T, error)) (T, error) {
	b = b.normalized()
	var zero T
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || !IsTransient(err) || attempt >= b.Attempts-1 {
			return zero, err
		}

		zap.L().Warn("retrying operation",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}
