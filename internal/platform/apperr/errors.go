// Package apperr defines the error taxonomy shared by every service and the
// translation of those errors into HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the request boundary.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindAuthentication Kind = "authentication_error"
	KindForbidden      Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindInternal       Kind = "internal_error"
)

// Error is the structured error returned by services.
type Error struct {
	Kind    Kind
	Message string
	// Fields carries per-field detail for validation errors.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error kind.
func (e *Error) Status() int {
	return StatusFor(e.Kind)
}

// StatusFor maps a Kind to its HTTP status code.
func StatusFor(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Validation builds a validation error with per-field detail.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: fields}
}

// ValidationField is shorthand for a single-field validation error.
func ValidationField(field, msg string) *Error {
	return Validation(map[string]string{field: msg})
}

func Authentication(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// NotFound reports a missing entity by resource name, e.g. NotFound("patient").
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Internal wraps an unexpected infrastructure failure. The cause is logged at
// the boundary and never shown to the caller.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: err}
}

// KindOf returns the Kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
