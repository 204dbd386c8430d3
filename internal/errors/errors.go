package errors

import (
	"errors"
	"fmt"
)

// Common error types for the task client session layer
var (
	// Credential errors
	ErrCredentialExpired  = errors.New("credential expired")
	ErrCredentialRejected = errors.New("credential rejected")
	ErrNoRefreshToken     = fmt.Errorf("no refresh token available: %w", ErrCredentialRejected)

	// Transport errors
	ErrNetworkFailure      = errors.New("network failure")
	ErrRealtimeUnavailable = errors.New("realtime unavailable")

	// Request errors
	ErrRequestFailed   = errors.New("request failed")
	ErrInvalidResponse = errors.New("invalid response")
	ErrNotReplayable   = errors.New("request body cannot be replayed")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
