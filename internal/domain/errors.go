package domain

import (
	"errors"
	"fmt"
)

var (
	// Not found errors.
	ErrThreadNotFound = errors.New("jobtrail: thread not found")
	ErrJobNotFound    = errors.New("jobtrail: job not found")
	ErrEventNotFound  = errors.New("jobtrail: event not found")

	// ErrStageConflict is returned by a compare-and-set stage write when the
	// stored stage no longer matches the expected one.
	ErrStageConflict = errors.New("jobtrail: workflow stage changed concurrently")

	// ErrInvalidInput is the root of every bad-input error.
	ErrInvalidInput = errors.New("jobtrail: invalid input")
)

// FieldError names the request field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match any FieldError.
func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

// Missing returns a FieldError for an absent required field.
func Missing(field string) *FieldError {
	return &FieldError{Field: field, Reason: "is required"}
}

// Invalid returns a FieldError with a custom reason.
func Invalid(field, reason string) *FieldError {
	return &FieldError{Field: field, Reason: reason}
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrThreadNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrEventNotFound)
}
