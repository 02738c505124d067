package services

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when a task id matches neither the
	// in-memory cache nor the durable store
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a validation error for a specific field
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
