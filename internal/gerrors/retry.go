package gerrors

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first
	MaxAttempts int
	// InitialDelay is the initial delay between retries
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// Multiplier is the factor by which the delay increases
	Multiplier float64
	// Jitter adds randomization to delays to prevent thundering herd
	Jitter float64
	// RetryableFunc determines if an error is retryable
	RetryableFunc func(error) bool
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.1,
		RetryableFunc: IsRetryable,
	}
}

// Retry executes a function with retry logic
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if attempt > 0 {
			jitteredDelay := ApplyJitter(delay, config.Jitter)

			if config.OnRetry != nil {
				config.OnRetry(attempt, lastErr, jitteredDelay)
			}

			timer := time.NewTimer(jitteredDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Wrap(ctx.Err(), ErrCodeTimeout, "retry cancelled during backoff")
			case <-timer.C:
			}

			delay = time.Duration(float64(delay) * config.Multiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if config.RetryableFunc != nil && !config.RetryableFunc(err) {
			return err
		}

		// If the error carries a RetryAfter hint, respect it
		var ge *GridError
		if As(lastErr, &ge) && ge.RetryAfter != nil {
			delay = *ge.RetryAfter
		}
	}

	return Wrapf(lastErr, CodeOf(lastErr),
		"operation failed after %d attempts", config.MaxAttempts)
}

// RetryWithBackoff is a convenience function for common retry patterns
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	return Retry(ctx, DefaultRetryConfig(), fn)
}

// ApplyJitter adds randomization to delay
func ApplyJitter(delay time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return delay
	}

	jitterRange := float64(delay) * jitter
	jitterValue := (rand.Float64()*2 - 1) * jitterRange

	newDelay := float64(delay) + jitterValue
	if newDelay < 0 {
		newDelay = 0
	}

	return time.Duration(newDelay)
}

// ExponentialBackoff calculates exponential backoff delay
func ExponentialBackoff(attempt int, initial time.Duration, max time.Duration, multiplier float64) time.Duration {
	if attempt <= 0 {
		return initial
	}

	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(max) {
		return max
	}

	return time.Duration(delay)
}
