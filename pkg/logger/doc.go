// Package logger provides the structured logging interface used by likesync.
//
// It wraps zerolog with colored console output on stderr, optional file
// output, and field helpers:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("user_id", userID)
//	log.InfoWithFields("Page committed", map[string]interface{}{
//	    "page":  3,
//	    "posts": 100,
//	})
//
// Components take a Logger in their constructors. Tests use NewNopLogger or
// NewTestLogger, which captures messages for assertions.
package logger
