// Package dispatch accepts batch send requests: it validates them,
// persists one message per recipient and hands the batch to the
// session's runtime without waiting for delivery.
package dispatch

import "errors"

var (
	// ErrInvalidBatchRequest means no usable recipients or empty content.
	ErrInvalidBatchRequest = errors.New("invalid batch request")
	// ErrSessionNotFound means the user has no messaging session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotReady means the session is not CONNECTED or has no live runtime.
	ErrSessionNotReady = errors.New("session not ready")
)
