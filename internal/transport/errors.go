package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error is a send failure reported by a transport backend.
type Error struct {
	Transport  string
	StatusCode int
	Message    string
	// Permanent means retrying cannot succeed.
	Permanent bool
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Transport, e.StatusCode, e.Message)
	}
	return e.Transport + ": " + e.Message
}

// IsPermanent reports whether err is a permanent transport failure.
func IsPermanent(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Permanent
	}
	return false
}

// IsTransient reports whether err may succeed on retry. Unclassified
// errors are transient, except context cancellation.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *Error
	if errors.As(err, &te) {
		return !te.Permanent
	}
	return !errors.Is(err, context.Canceled)
}

// ClassifyHTTPError converts a non-2xx gateway answer into an *Error.
// It returns nil for 2xx.
func ClassifyHTTPError(name string, statusCode int, body string) *Error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	te := &Error{Transport: name, StatusCode: statusCode, Message: strings.TrimSpace(body)}
	switch {
	case statusCode == 400:
		te.Permanent = containsAny(body, permanentRequestIndicators)
	case statusCode == 408, statusCode == 425, statusCode == 429:
		te.Permanent = false
	case statusCode >= 500:
		te.Permanent = containsAny(body, permanentServerIndicators)
	default:
		te.Permanent = statusCode >= 400 && statusCode < 500
	}
	return te
}

var permanentRequestIndicators = []string{
	"invalid number",
	"invalid recipient",
	"not on whatsapp",
	"not registered",
	"recipient rejected",
	"validation error",
	"bad request",
}

var permanentServerIndicators = []string{
	"session logged out",
	"invalid token",
	"unauthorized",
	"account banned",
}

func containsAny(body string, patterns []string) bool {
	lower := strings.ToLower(body)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
