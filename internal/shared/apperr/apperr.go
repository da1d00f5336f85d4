// Package apperr defines the error kinds shared by every service.
// Callers wrap one of the sentinels and match with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrUpstream          = errors.New("upstream service error")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)

// kindError carries a human message while still matching its sentinel.
type kindError struct {
	kind error
	msg  string
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Message returns the text without the wrapped cause.
func (e *kindError) Message() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.err }

func newf(kind error, format string, args ...interface{}) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return newf(ErrNotFound, format, args...)
}

func InsufficientStock(format string, args ...interface{}) error {
	return newf(ErrInsufficientStock, format, args...)
}

func Validation(format string, args ...interface{}) error {
	return newf(ErrValidation, format, args...)
}

func Conflict(format string, args ...interface{}) error {
	return newf(ErrConflict, format, args...)
}

func Unauthorized(format string, args ...interface{}) error {
	return newf(ErrUnauthorized, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newf(ErrForbidden, format, args...)
}

// Upstream wraps a failed call to another service.
func Upstream(service string, err error) error {
	return &kindError{kind: ErrUpstream, msg: service + " call failed", err: err}
}

// Message extracts the display message of err, falling back to err.Error().
func Message(err error) string {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.Message()
	}
	return err.Error()
}
