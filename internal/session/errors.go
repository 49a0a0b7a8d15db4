package session

import "errors"

var (
	// ErrAlreadyActive is returned when a session id is already owned by a
	// live or draining session.
	ErrAlreadyActive = errors.New("session already active")

	// ErrNotFound is returned for stop calls on unknown session ids.
	ErrNotFound = errors.New("session not found")

	// ErrDeviceUnavailable is returned when the capture source cannot be
	// opened, even after the mono fallback. Fatal to that session only.
	ErrDeviceUnavailable = errors.New("capture source unavailable")
)
