package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")

	// ErrValidation marks bad input shape, format or a missing required field.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a duplicate key or a referential conflict raised by the store.
	ErrConflict = errors.New("conflict")
	// ErrAllocation marks an exhausted product code space.
	ErrAllocation = errors.New("allocation failed")
	// ErrEmptyData marks a report requested without data.
	ErrEmptyData = errors.New("no data")
	// ErrTransport marks a store, auth or storage call that failed or timed out.
	ErrTransport = errors.New("transport failure")
	// ErrPartialEdit marks a date edit whose delete succeeded but whose insert failed.
	ErrPartialEdit = errors.New("partial edit")
)

// Error carries a user facing message for one of the taxonomy sentinels.
type Error struct {
	Kind    error
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

// Is matches the sentinel kind so callers can use errors.Is(err, shared.ErrConflict).
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FieldError builds a validation error bound to a form field.
func FieldError(field, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind, keeping the original message.
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// FieldOf returns the form field attached to a validation error, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
