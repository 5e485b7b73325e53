package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:     maxRetries,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastConfig(3), nil, func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_PermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"channel not found", fmt.Errorf("list @gone: %w", ErrChannelNotFound)},
		{"video unavailable", ErrVideoUnavailable},
		{"wrapped with Permanent", Permanent(errors.New("bad api key"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fastConfig(3), nil, func(ctx context.Context) error {
				attempts++
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Errorf("Do() returned error = %v, want %v", err, tt.err)
			}
			if attempts != 1 {
				t.Errorf("Do() made %d attempts, want 1", attempts)
			}
		})
	}
}

func TestDo_RetryableErrorThenSuccess(t *testing.T) {
	attempts := 0
	var retried []int
	cfg := fastConfig(5)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := Do(context.Background(), cfg, IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("Do() made %d attempts, want 3", attempts)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	tempErr := errors.New("temporary")

	err := Do(context.Background(), fastConfig(3), IsRetryable, func(ctx context.Context) error {
		attempts++
		return tempErr
	})

	var retryErr *RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatalf("Do() returned %T, want *RetryableError", err)
	}
	if retryErr.Retries != 3 {
		t.Errorf("RetryableError.Retries = %d, want 3", retryErr.Retries)
	}
	if !errors.Is(err, tempErr) {
		t.Errorf("Do() error does not wrap the last error")
	}
	if attempts != 4 {
		t.Errorf("Do() made %d attempts, want 4", attempts)
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	attempts := 0
	cfg := Config{
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
	}
	ctx, cancel := context.WithCancel(context.Background())

	err := Do(ctx, cfg, IsRetryable, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("temporary")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() returned error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, false},
		{"channel not found", ErrChannelNotFound, false},
		{"invalid URL", ErrInvalidURL, false},
		{"permanent", Permanent(errors.New("x")), false},
		{"generic error", errors.New("generic"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestJitterBounds(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		j := jitter(d, 0.2)
		if j < -20*time.Millisecond || j > 20*time.Millisecond {
			t.Fatalf("jitter() = %v, outside +/-20ms", j)
		}
	}
	if jitter(d, 0) != 0 {
		t.Error("jitter() with zero fraction should be 0")
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
