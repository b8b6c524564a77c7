package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig controls retry of storage calls around transient failures such
// as a locked sqlite file or a dropped database connection.
type RetryConfig struct {
	// MaxAttempts counts the initial call as the first attempt.
	MaxAttempts int
	// InitialBackoff is the delay after the first failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the grown delay.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the delay after each failure.
	BackoffMultiplier float64
	// JitterFraction randomizes each delay by up to this fraction either way.
	JitterFraction float64
}

// DefaultRetryConfig returns the policy used when none is configured: five
// attempts, 100ms initial delay doubling up to 5s, 10% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// retryWithBackoff runs operation until it succeeds, the attempts are
// exhausted, or the context ends. Context cancellation is never retried.
func retryWithBackoff(ctx context.Context, config RetryConfig, operation func() error) error {
	delay := config.InitialBackoff

	var err error
	for attempt := 1; ; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt >= config.MaxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(delay, config.JitterFraction)):
		}

		delay = time.Duration(float64(delay) * config.BackoffMultiplier)
		if delay > config.MaxBackoff {
			delay = config.MaxBackoff
		}
	}
}

func jittered(d time.Duration, fraction float64) time.Duration {
	offset := time.Duration(float64(d) * fraction * (rand.Float64()*2 - 1))
	if d+offset < 0 {
		return d
	}
	return d + offset
}
