package logger

import (
	"time"
)

// LogRequest logs an API request with a level chosen by status code
func LogRequest(l Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500 || statusCode == 0:
		l.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.DebugWithFields("HTTP request completed", fields)
	}
}

// LogDownload logs the outcome of a single media download
func LogDownload(l Logger, postID, url, path string, err error) {
	fields := map[string]interface{}{
		"post_id": postID,
		"url":     url,
		"path":    path,
	}
	if err != nil {
		l.WithFields(fields).WithError(err).Warn("Download failed")
		return
	}
	l.DebugWithFields("Download completed", fields)
}

// LogRateLimit logs a throttled request and the wait before the next attempt
func LogRateLimit(l Logger, endpoint string, wait time.Duration, attempt int) {
	l.WarnWithFields("Rate limit reached, backing off", map[string]interface{}{
		"endpoint": endpoint,
		"wait":     wait,
		"attempt":  attempt,
	})
}

// LogPage logs a committed page
func LogPage(l Logger, userID string, page int, posts, fresh int, nextToken string) {
	l.InfoWithFields("Page committed", map[string]interface{}{
		"user_id":    userID,
		"page":       page,
		"posts":      posts,
		"new_posts":  fresh,
		"next_token": nextToken,
	})
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
