package collab

import "errors"

// Sentinel errors for common registry and session error conditions.
var (
	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("collab: session not found")

	// ErrMaxSessionsReached is returned when the registry session cap is hit.
	ErrMaxSessionsReached = errors.New("collab: max sessions reached")

	// ErrRegistryClosed is returned when an operation is attempted after Shutdown.
	ErrRegistryClosed = errors.New("collab: registry closed")
)
