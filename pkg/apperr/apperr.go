// Package apperr defines the typed error taxonomy shared across the service.
//
// Handlers and services return *Error values; the HTTP middleware is the only
// place that maps them to transport responses. Anything that is not an *Error
// is treated as an internal error by the translator.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the fixed failure categories.
type Kind string

const (
	KindBadRequest         Kind = "bad_request"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindValidation         Kind = "validation_failed"
	KindRateLimited        Kind = "rate_limited"
	KindInternal           Kind = "internal"
	KindServiceUnavailable Kind = "service_unavailable"
)

// HTTPStatus returns the HTTP status code for a kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified application error. Message is safe to return to
// clients; Err holds the underlying cause for server-side logging only.
type Error struct {
	Kind        Kind
	Message     string
	FieldErrors map[string][]string
	Err         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around an underlying cause. The
// cause is never exposed to clients.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// BadRequest creates a bad request error.
func BadRequest(message string) *Error {
	return New(KindBadRequest, message)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Validation creates a validation error carrying per-field messages.
func Validation(fieldErrors map[string][]string) *Error {
	return &Error{
		Kind:        KindValidation,
		Message:     "validation failed",
		FieldErrors: fieldErrors,
	}
}

// RateLimited creates a rate limited error.
func RateLimited(message string) *Error {
	return New(KindRateLimited, message)
}

// Internal wraps an unexpected error. Clients see a generic message.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: err}
}

// ServiceUnavailable creates a service unavailable error.
func ServiceUnavailable(message string) *Error {
	return New(KindServiceUnavailable, message)
}

// From classifies an arbitrary error. Typed errors pass through unchanged;
// everything else becomes an internal error.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Kind == kind
}
