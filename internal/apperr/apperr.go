package apperr

import (
	"errors"
	"fmt"
)

// Error kinds. Services wrap failures in one of these so handlers can map
// them to HTTP statuses with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrAuthorization = errors.New("not authorized")
	ErrConflict      = errors.New("conflict")
	ErrUpstream      = errors.New("upstream failure")
	ErrInvariant     = errors.New("invariant violation")
)

type Error struct {
	kind  error
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Is(target error) bool { return target == e.kind }

func (e *Error) Unwrap() error { return e.cause }

// Message is the user-visible part of the error, without the cause chain.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return "internal error"
}

func newf(kind error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error {
	return newf(ErrValidation, format, args...)
}

func NotFoundf(format string, args ...any) error {
	return newf(ErrNotFound, format, args...)
}

func Authorizationf(format string, args ...any) error {
	return newf(ErrAuthorization, format, args...)
}

func Conflictf(format string, args ...any) error {
	return newf(ErrConflict, format, args...)
}

func Upstreamf(format string, args ...any) error {
	return newf(ErrUpstream, format, args...)
}

func Invariantf(format string, args ...any) error {
	return newf(ErrInvariant, format, args...)
}

// Wrap attaches a cause to a kinded error.
func Wrap(kind error, cause error, format string, args ...any) error {
	e := newf(kind, format, args...)
	e.cause = cause
	return e
}
