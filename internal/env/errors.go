package env

import "errors"

var (
	// ErrInitTimeout is a reset attempt whose process never became ready.
	// Reset retries it internally.
	ErrInitTimeout = errors.New("process init timed out")

	// ErrStepStall means the process tick did not advance within the poll
	// budget. The environment is unavailable until the caller resets it.
	ErrStepStall = errors.New("environment step stalled")

	// ErrResetExhausted means every reset attempt failed.
	ErrResetExhausted = errors.New("reset attempts exhausted")

	// ErrNotRunning is returned by Step before a successful reset.
	ErrNotRunning = errors.New("environment not running")

	// ErrInvalidAction is an action that does not fit the input space.
	ErrInvalidAction = errors.New("invalid action")
)
