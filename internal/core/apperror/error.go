package apperror

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/arklim/identity-verification/internal/repository"
)

// Error is the single failure value returned across the service boundary.
type Error struct {
	Code      Code
	Message   string
	Field     string
	Details   map[string]any
	Timestamp time.Time
	cause     error
}

// New builds an error for code. An empty message uses the catalogue default.
func New(code Code, message string) *Error {
	if !Known(code) {
		code = CodeInternal
	}
	if message == "" {
		message = Lookup(code).Message
	}
	return &Error{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Error implements error.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// WithField names the input field the failure relates to.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithDetail attaches a structured detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Wrap records cause for logging; it never changes the code.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

func (e *Error) Category() Category { return Lookup(e.Code).Category }

func (e *Error) Severity() Severity { return Lookup(e.Code).Severity }

func (e *Error) HTTPStatus() int { return Lookup(e.Code).HTTPStatus }

func (e *Error) Retryable() bool { return Lookup(e.Code).Retryable }

func (e *Error) Suggestion() string { return Lookup(e.Code).Suggestion }

// Classify translates any failure into exactly one taxonomy entry.
// Errors that already carry a code are returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return New(CodeResourceNotFound, "").Wrap(err)
	case errors.Is(err, repository.ErrConflict):
		return New(CodeUserAlreadyExists, "").Wrap(err)
	case errors.Is(err, repository.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return New(CodeStorageUnavailable, "").Wrap(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return New(CodeStorageUnavailable, "").Wrap(err)
	}

	return New(CodeInternal, "").Wrap(err)
}

// CodeOf returns the taxonomy code of err after classification.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return Classify(err).Code
}

// Is reports whether err classifies to code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
