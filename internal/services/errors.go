package services

import (
	"errors"

	"purple-player/internal/database"
)

var (
	ErrAlreadyInGroup   = database.ErrAlreadyInGroup
	ErrNotInGroup       = errors.New("user is not in a group")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidGroupCode = errors.New("invalid group code")
	ErrWrongPassword    = errors.New("incorrect password")
)

// ValidationError reports a request field that failed validation. Handlers
// turn it into a 400 carrying Code and Message as-is.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(code, message string) error {
	return &ValidationError{Code: code, Message: message}
}
