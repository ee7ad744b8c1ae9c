// Package apperr defines the sentinel errors shared across handlers and
// stores, and their mapping to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrAuthRequired marks a request with no valid session.
	ErrAuthRequired = errors.New("authentication required")
	// ErrForbidden marks a request lacking a required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks an unknown resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyPlayed marks a duplicate completed puzzle attempt for a day.
	ErrAlreadyPlayed = errors.New("already played today")
)

// Validation wraps ErrValidation with a human-readable reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// NotFound wraps ErrNotFound naming the missing resource.
func NotFound(resource string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, resource)
}

// Status maps an error to the HTTP status code it should produce. Anything
// outside the taxonomy is a 500.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAlreadyPlayed):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthRequired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message for an error. Internal errors
// are masked; taxonomy errors pass their text through.
func Message(err error) string {
	if Status(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
