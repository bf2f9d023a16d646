package service

import (
	"errors"
	"fmt"
)

// ErrBlockNotFound is returned when a manual block does not exist.
var ErrBlockNotFound = errors.New("manual block not found")

// ValidationError represents a rejected manual block.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ProcessingError represents a failure of a backing store.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}
