package domain

import "errors"

// Domain errors returned by the dispatcher and checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Run is called on a running dispatcher.
	ErrAlreadyRunning = errors.New("tcarchive: already running")

	// ErrNotRunning is returned when Stop is called on a stopped dispatcher.
	ErrNotRunning = errors.New("tcarchive: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("tcarchive: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("tcarchive: invalid configuration")

	// ErrExecute wraps a failure reported by the executor.
	ErrExecute = errors.New("tcarchive: execute failed")
)
