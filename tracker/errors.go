package tracker

import "errors"

var (
	// ErrAlreadyTracking is returned by Start when the session id is
	// already in the active set.
	ErrAlreadyTracking = errors.New("already tracking this session")

	// ErrNotTracking is returned by Stop for a session id that has no
	// active session.
	ErrNotTracking = errors.New("session not being tracked")

	// ErrTooManySessions is returned by Start when the configured
	// concurrent-session cap is reached.
	ErrTooManySessions = errors.New("maximum concurrent sessions reached")
)
