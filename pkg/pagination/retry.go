package pagination

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrRetryExhausted is returned when all attempts for a page failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// RetryableError is implemented by errors that know whether another attempt
// could succeed. Errors that do not implement it are retried.
type RetryableError interface {
	error
	Retryable() bool
}

// RetryConfig holds the configuration for per-page retries.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per page, including the first.
	// 1 disables retries.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// isRetryable reports whether err may go away on another attempt.
func isRetryable(err error) bool {
	var r RetryableError
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// nextBackoff grows backoff by the multiplier, capped at MaxBackoff.
func nextBackoff(backoff time.Duration, config RetryConfig) time.Duration {
	backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
	if config.MaxBackoff > 0 && backoff > config.MaxBackoff {
		backoff = config.MaxBackoff
	}
	return backoff
}

// jitter spreads d by ±20% so parallel clients do not retry in lockstep.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable error,
// the context ends, or config.MaxAttempts is reached.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, fn func() error) error {
	attempts := config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Page fetch succeeded after retry")
			}
			return nil
		}

		lastErr = err

		// The caller gave up; whatever failed is not worth retrying
		if ctx.Err() != nil {
			return lastErr
		}

		if !isRetryable(err) || attempts == 1 {
			return lastErr
		}

		if attempt >= attempts {
			break
		}

		PageRetries.Inc()

		wait := jitter(backoff)
		logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying page after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-timer.C:
		}

		backoff = nextBackoff(backoff, config)
	}

	RetryExhausted.Inc()
	logger.Warn().
		Err(lastErr).
		Int("max_attempts", attempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
