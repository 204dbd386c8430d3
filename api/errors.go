package api

import (
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/go-task-client/internal/errors"
)

// Error is a non-2xx response or a 2xx envelope with success=false.
type Error struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status onto the session error taxonomy. A 401 that reaches
// a caller has already been through the refresh path, so it is terminal.
func (e *Error) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return apperrors.ErrCredentialRejected
	case http.StatusNotFound:
		return apperrors.ErrNotFound
	default:
		return apperrors.ErrRequestFailed
	}
}
