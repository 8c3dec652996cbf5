package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff describes a bounded exponential retry schedule without jitter.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Factor   float64
	Max      time.Duration
	// Timer paces the pauses between attempts; nil uses a real timer.
	Timer backoff.Timer
}

// DefaultBackoff waits 500ms, 1s, 2s and 4s between five attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 5,
		Base:     500 * time.Millisecond,
		Factor:   2,
		Max:      8 * time.Second,
	}
}

func (b Backoff) exponential() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.Base
	policy.Multiplier = b.Factor
	policy.MaxInterval = b.Max
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

// Delay returns the pause after the given failed attempt, counted from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	policy := b.exponential()
	delay := policy.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = policy.NextBackOff()
	}
	return delay
}

// Retry calls fn until it succeeds, the attempts run out, or ctx ends.
// onFailure observes every failed attempt.
func (b Backoff) Retry(ctx context.Context, fn func(ctx context.Context) error, onFailure func(attempt int, err error)) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b.exponential(), uint64(attempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotifyWithTimer(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		attempt++
		err := fn(ctx)
		if err != nil && onFailure != nil {
			onFailure(attempt, err)
		}
		return err
	}, policy, nil, b.Timer)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
}
