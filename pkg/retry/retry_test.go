package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	likeerrors "likesync/pkg/errors"
)

// recordSleep replaces real waiting and records the requested delays
func recordSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt     int
		expected    time.Duration
		description string
	}{
		{0, 0, "No attempt"},
		{1, 100 * time.Millisecond, "First attempt"},
		{2, 200 * time.Millisecond, "Second attempt"},
		{3, 400 * time.Millisecond, "Third attempt"},
		{4, 800 * time.Millisecond, "Fourth attempt"},
		{5, 1 * time.Second, "Fifth attempt (capped at max)"},
		{9, 1 * time.Second, "Ninth attempt (still capped)"},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			if delay := backoff.NextDelay(test.attempt); delay != test.expected {
				t.Errorf("Expected delay %v, got %v", test.expected, delay)
			}
		})
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 50; i++ {
		delay := backoff.NextDelay(2)
		if delay < 140*time.Millisecond || delay > 260*time.Millisecond {
			t.Fatalf("Delay %v outside jitter bounds", delay)
		}
	}
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"fetch error", &likeerrors.RetryableFetchError{Wait: time.Second, Cause: errors.New("429")}, true},
		{"wrapped fetch error", errors.Join(errors.New("page 3"), &likeerrors.RetryableFetchError{}), true},
		{"rate limit", &likeerrors.Error{Type: likeerrors.ErrorTypeRateLimit}, true},
		{"network", &likeerrors.Error{Type: likeerrors.ErrorTypeNetwork}, true},
		{"auth", &likeerrors.Error{Type: likeerrors.ErrorTypeAuth}, false},
		{"persist", &likeerrors.PersistWriteError{Path: "x", Op: "write", Err: errors.New("disk full")}, false},
		{"corrupt", &likeerrors.CorruptShardError{Path: "1.txt"}, false},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryIf(tt.err); got != tt.want {
				t.Errorf("DefaultRetryIf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoSucceedsAfterRetry(t *testing.T) {
	var delays []time.Duration
	calls := 0

	err := Do(context.Background(), func(attempt int) error {
		calls++
		if attempt != calls {
			t.Errorf("Expected attempt %d, got %d", calls, attempt)
		}
		if attempt < 3 {
			return &likeerrors.RetryableFetchError{Wait: 5 * time.Second, Cause: errors.New("throttled")}
		}
		return nil
	}, &Config{MaxAttempts: 3, Sleep: recordSleep(&delays)})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != 5*time.Second || delays[1] != 5*time.Second {
		t.Errorf("Expected the hinted wait twice, got %v", delays)
	}
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	var delays []time.Duration
	calls := 0
	cause := &likeerrors.RetryableFetchError{Cause: errors.New("503")}

	err := Do(context.Background(), func(int) error {
		calls++
		return cause
	}, &Config{
		MaxAttempts: 4,
		Backoff:     &ConstantBackoff{Delay: time.Second},
		Sleep:       recordSleep(&delays),
	})

	if calls != 4 {
		t.Errorf("Expected 4 calls, got %d", calls)
	}
	if len(delays) != 3 {
		t.Errorf("Expected 3 waits, got %d", len(delays))
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 4 {
		t.Fatalf("Expected ExhaustedError after 4 attempts, got %v", err)
	}
	var fetchErr *likeerrors.RetryableFetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("Expected the last error to be wrapped, got %v", err)
	}
}

func TestDoNonRetryableError(t *testing.T) {
	calls := 0
	persistErr := &likeerrors.PersistWriteError{Path: "cursor", Op: "rename", Err: errors.New("read-only")}

	err := Do(context.Background(), func(int) error {
		calls++
		return persistErr
	}, &Config{MaxAttempts: 5, Sleep: recordSleep(new([]time.Duration))})

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if !errors.Is(err, persistErr) {
		t.Errorf("Expected the persist error unchanged, got %v", err)
	}
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, func(int) error {
		calls++
		cancel()
		return &likeerrors.RetryableFetchError{Wait: time.Hour}
	}, &Config{MaxAttempts: 0})

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDelayCapsHint(t *testing.T) {
	cfg := &Config{MaxDelay: time.Minute, Backoff: &ConstantBackoff{Delay: 3 * time.Second}}

	if d := cfg.Delay(1, &likeerrors.RetryableFetchError{Wait: time.Hour}); d != time.Minute {
		t.Errorf("Expected hint capped at 1m, got %v", d)
	}
	if d := cfg.Delay(1, &likeerrors.Error{Type: likeerrors.ErrorTypeRateLimit, RetryAfter: 10 * time.Second}); d != 10*time.Second {
		t.Errorf("Expected API hint 10s, got %v", d)
	}
	if d := cfg.Delay(1, &likeerrors.RetryableFetchError{}); d != 3*time.Second {
		t.Errorf("Expected backoff without hint, got %v", d)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), func(int) (string, error) {
		calls++
		if calls < 2 {
			return "", &likeerrors.Error{Type: likeerrors.ErrorTypeNetwork}
		}
		return "page", nil
	}, &Config{MaxAttempts: 3, Backoff: &ConstantBackoff{}, Sleep: recordSleep(new([]time.Duration))})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if result != "page" {
		t.Errorf("Expected 'page', got %q", result)
	}
}

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Expected no error for zero delay, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
