// Package retry runs an operation until it succeeds, fails with a final
// error, or exhausts its attempts.
//
// The wait between attempts honors a server hint when the error carries one
// (anything implementing RetryAfter() time.Duration, or an API error with
// RetryAfter set) and falls back to the configured backoff otherwise:
//
//	err := retry.Do(ctx, func(attempt int) error {
//		page, err = paginator.FetchNextPage(ctx, token, 100)
//		return err
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     retry.DefaultExponentialBackoff(),
//		MaxDelay:    15 * time.Minute,
//	})
//
// MaxAttempts counts the first try. When every attempt fails the returned
// *ExhaustedError wraps the last error.
package retry
