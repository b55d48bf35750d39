package pagination

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type permanentError struct{}

func (permanentError) Error() string   { return "permanent" }
func (permanentError) Retryable() bool { return false }

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.InitialBackoff != 500*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 500ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 5*time.Second {
		t.Errorf("MaxBackoff = %v, want 5s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(3), zerolog.Nop(), func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(3), zerolog.Nop(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	testErr := errors.New("persistent error")
	err := retryWithBackoff(context.Background(), fastRetryConfig(3), zerolog.Nop(), func() error {
		callCount++
		return testErr
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected wrapped original error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_SingleAttempt(t *testing.T) {
	callCount := 0
	testErr := errors.New("boom")
	err := retryWithBackoff(context.Background(), fastRetryConfig(1), zerolog.Nop(), func() error {
		callCount++
		return testErr
	})

	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("A single attempt should not report exhausted retries")
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_NonRetryable(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(5), zerolog.Nop(), func() error {
		callCount++
		return permanentError{}
	})

	var pe permanentError
	if !errors.As(err, &pe) {
		t.Errorf("Expected permanentError, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got %d", callCount)
	}
}

func TestRetryWithBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Hour,
		MaxBackoff:        time.Hour,
		BackoffMultiplier: 2.0,
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	callCount := 0
	err := retryWithBackoff(ctx, config, zerolog.Nop(), func() error {
		callCount++
		return errors.New("temporary error")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Cancellation did not interrupt the backoff")
	}
}

func TestRetryWithBackoff_ContextAlreadyDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	callCount := 0
	err := retryWithBackoff(ctx, fastRetryConfig(3), zerolog.Nop(), func() error {
		callCount++
		return ctx.Err()
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "plain error", err: errors.New("x"), want: true},
		{name: "permanent", err: permanentError{}, want: false},
		{name: "wrapped permanent", err: errors.Join(errors.New("ctx"), permanentError{}), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextBackoff(t *testing.T) {
	config := RetryConfig{MaxBackoff: 5 * time.Second, BackoffMultiplier: 2.0}

	tests := []struct {
		name    string
		backoff time.Duration
		want    time.Duration
	}{
		{name: "doubles", backoff: 500 * time.Millisecond, want: time.Second},
		{name: "doubles again", backoff: 2 * time.Second, want: 4 * time.Second},
		{name: "capped", backoff: 4 * time.Second, want: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextBackoff(tt.backoff, config); got != tt.want {
				t.Errorf("nextBackoff(%v) = %v, want %v", tt.backoff, got, tt.want)
			}
		})
	}
}

func TestJitter(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		got := jitter(base)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("jitter(%v) = %v, want within ±20%%", base, got)
		}
	}
}
