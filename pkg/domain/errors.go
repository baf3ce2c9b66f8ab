package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports a request that can never succeed as given: a
// progress or weight outside [0,100], or an invalid status transition.
// Surfaced to the caller, never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that a subject or item id does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// ConflictError reports an optimistic-concurrency mismatch during save.
// Recoverable by the caller retrying with a fresh read; state is never
// silently merged.
type ConflictError struct {
	Entity EntityType
	ID     string
	Detail string
}

func (e ConflictError) Error() string {
	subject := "store"
	if e.Entity != "" {
		subject = fmt.Sprintf("%s %q", e.Entity, e.ID)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: conflict: %s", subject, e.Detail)
	}
	return fmt.Sprintf("%s: concurrent modification", subject)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var c ConflictError
	return errors.As(err, &c)
}
