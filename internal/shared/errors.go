package shared

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidFilter indicates a list filter the data source cannot apply.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidUser indicates a user reference without a usable identifier.
	ErrInvalidUser = errors.New("invalid user")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage collapses an error into the single string shown to visitors.
// Validation errors are shown verbatim; infrastructure errors never are.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidFilter), errors.Is(err, ErrInvalidUser):
		return err.Error()
	case errors.Is(err, ErrNotFound):
		return "user not found"
	case errors.Is(err, context.DeadlineExceeded):
		return "the user service took too long to respond"
	default:
		return "unable to load users, please try again"
	}
}
