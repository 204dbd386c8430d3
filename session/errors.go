package session

import "errors"

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrMissingProfile   = errors.New("auth response carried no user profile")
)
