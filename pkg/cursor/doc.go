// Package cursor persists a user's pagination position and cumulative
// counters between runs.
//
// The state lives in persistent_data.json inside the user directory and is
// replaced atomically on every Advance, so a crash leaves either the previous
// or the new state on disk. A nil token means the next run starts from the
// newest like; EndOfPages marks a finished pass.
package cursor
