package domain

import (
	"errors"
	"fmt"
)

// Error is a typed calendar error. Two errors match with errors.Is when their codes are equal.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so wrapped copies compare equal to the predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error instance.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError attaches a code to an existing error.
func WrapError(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

var (
	ErrPermissionDenied = NewError("PERMISSION_DENIED", "calendar access denied")
	ErrNotFound         = NewError("NOT_FOUND", "not found")
	ErrConflict         = NewError("CONFLICT", "event with the same title already exists in the specified date range")
	ErrNoDefaultSource  = NewError("NO_DEFAULT_SOURCE", "no default calendar source found")
	ErrSerialization    = NewError("SERIALIZATION_FAILURE", "selection store encode/decode failed")
	ErrValidation       = NewError("VALIDATION_ERROR", "validation failed")
)

// NotFound returns ErrNotFound with a specific message ("calendar not found").
func NotFound(what string) *Error {
	return NewError(ErrNotFound.Code, what+" not found")
}

// CodeOf returns the code of a typed error, or "" for untyped errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// PartialRemovalError reports a bulk removal that stopped at the first failure.
type PartialRemovalError struct {
	Removed int
	Err     error
}

func (e *PartialRemovalError) Error() string {
	return fmt.Sprintf("removed %d event(s) before failure: %v", e.Removed, e.Err)
}

func (e *PartialRemovalError) Unwrap() error {
	return e.Err
}
