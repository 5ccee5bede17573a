package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	likeerrors "likesync/pkg/errors"
	"likesync/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying.
// attempt starts at 1.
type Operation func(attempt int) error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func(attempt int) (T, error)

// Hinted is implemented by errors that carry a server suggested wait
type Hinted interface {
	RetryAfter() time.Duration
}

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts, first try included
	// (0 means unlimited)
	MaxAttempts int
	// Backoff is used when the error carries no wait hint
	Backoff BackoffStrategy
	// MaxDelay caps any single wait, hinted or computed (0 means no cap)
	MaxDelay time.Duration
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
	Logger  logger.Logger
	// Sleep waits between attempts; tests replace it
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		MaxDelay:    15 * time.Minute,
		RetryIf:     DefaultRetryIf,
		Logger:      logger.GetLogger(),
		Sleep:       Wait,
	}
}

// DefaultRetryIf retries transient fetch failures and retryable API errors.
// Everything else, persistence failures included, is final.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var fetchErr *likeerrors.RetryableFetchError
	if errors.As(err, &fetchErr) {
		return true
	}

	var apiErr *likeerrors.Error
	if errors.As(err, &apiErr) {
		return likeerrors.IsRetryable(apiErr.Type)
	}

	return false
}

// Delay returns the wait before the next attempt: the error's hint when it
// has one, the backoff otherwise, capped at MaxDelay.
func (cfg *Config) Delay(attempt int, err error) time.Duration {
	var delay time.Duration

	var hinted Hinted
	var apiErr *likeerrors.Error
	switch {
	case errors.As(err, &hinted) && hinted.RetryAfter() > 0:
		delay = hinted.RetryAfter()
	case errors.As(err, &apiErr) && apiErr.RetryAfter > 0:
		delay = apiErr.RetryAfter
	case cfg.Backoff != nil:
		delay = cfg.Backoff.NextDelay(attempt)
	}

	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// Do executes an operation with retry logic
func Do(ctx context.Context, op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Wait
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("retry cancelled: %w", err)
			}
			return err
		}

		err := op(attempt)
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			log.DebugWithFields("error is not retryable", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": err.Error(),
			})
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := cfg.Delay(attempt, err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": cfg.MaxAttempts,
		})

		if err := sleep(ctx, delay); err != nil {
			log.WarnWithFields("retry cancelled", map[string]interface{}{
				"attempt": attempt,
				"reason":  err.Error(),
			})
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](ctx context.Context, op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(ctx, func(attempt int) error {
		var opErr error
		result, opErr = op(attempt)
		return opErr
	}, cfg)

	return result, err
}

// ExhaustedError is returned when every allowed attempt failed with a
// retryable error
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }
