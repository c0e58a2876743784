package domain

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrSessionNotFound is returned for ids the store has never seen or has swept.
	ErrSessionNotFound = fmt.Errorf("session %w", errdefs.ErrNotFound)
	// ErrSessionClosed is returned when a turn targets a closed session.
	ErrSessionClosed = fmt.Errorf("session closed: %w", errdefs.ErrFailedPrecondition)
	// ErrProviderUnavailable marks a recoverable external provider failure.
	ErrProviderUnavailable = fmt.Errorf("provider %w", errdefs.ErrUnavailable)
	// ErrRateLimited is returned when a session sends messages too quickly.
	ErrRateLimited = fmt.Errorf("too many messages: %w", errdefs.ErrResourceExhausted)
)

// ValidationError is a rejected-input signal carrying a human-readable reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Unwrap classifies the error as an invalid argument.
func (e *ValidationError) Unwrap() error { return errdefs.ErrInvalidArgument }

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure as an internal error.
func Internal(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, errdefs.ErrInternal, err)
}

// Unavailable wraps a provider failure as ErrProviderUnavailable.
func Unavailable(provider string, err error) error {
	return fmt.Errorf("%s: %w: %w", provider, ErrProviderUnavailable, err)
}
