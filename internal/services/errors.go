package services

import (
	"errors"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionOverlap  = errors.New("session overlaps another scheduled session")
)

// ValidationError is returned for input that breaks a write-time rule. The
// message is safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(err error) error {
	return &ValidationError{Message: err.Error()}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
