package errors

import (
	"fmt"
	"time"
)

// ErrorType represents different types of errors returned by the API
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	// RetryAfter is the server suggested wait, zero when the server gave none
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// CorruptShardError reports a known-posts shard that cannot be trusted.
// It is fatal: the run stops before any state is mutated.
type CorruptShardError struct {
	Path   string
	Line   int
	Reason string
}

func (e *CorruptShardError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("corrupt shard %s (line %d): %s", e.Path, e.Line, e.Reason)
	}
	return fmt.Sprintf("corrupt shard %s: %s", e.Path, e.Reason)
}

// RetryableFetchError is a transient page fetch failure. Wait is the
// suggested delay before the next attempt.
type RetryableFetchError struct {
	Wait  time.Duration
	Cause error
}

func (e *RetryableFetchError) Error() string {
	return fmt.Sprintf("retryable fetch error (retry in %s): %v", e.Wait, e.Cause)
}

func (e *RetryableFetchError) Unwrap() error { return e.Cause }

// RetryAfter returns the suggested wait
func (e *RetryableFetchError) RetryAfter() time.Duration { return e.Wait }

// PersistWriteError is a failed durable write of cursor, shard or link file.
type PersistWriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistWriteError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistWriteError) Unwrap() error { return e.Err }

// DownloadFailure is a single media download that did not complete.
// Never fatal.
type DownloadFailure struct {
	URL  string
	Path string
	Err  error
}

func (e *DownloadFailure) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadFailure) Unwrap() error { return e.Err }
