// Package apperr defines the error taxonomy shared by services and handlers.
// Every error that reaches the HTTP layer is either an *Error or is treated
// as an internal failure.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrInternal     = errors.New("internal error")
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_FAILED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeInternal     Code = "INTERNAL_ERROR"
)

type Error struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       Code              `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != nil && !isSentinel(e.Err) {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func isSentinel(err error) bool {
	switch err {
	case ErrNotFound, ErrUnauthorized, ErrForbidden, ErrConflict, ErrValidation, ErrInternal:
		return true
	}
	return false
}

// NotFound reports a missing resource, e.g. NotFound("report", 42).
func NotFound(resource string, id any) *Error {
	return &Error{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       CodeNotFound,
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": fmt.Sprint(id)},
	}
}

// Validation creates a validation error with per-field details.
func Validation(message string, details map[string]string) *Error {
	return &Error{
		Err:        ErrValidation,
		Message:    message,
		Code:       CodeValidation,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

func Conflict(message string) *Error {
	return &Error{
		Err:        ErrConflict,
		Message:    message,
		Code:       CodeConflict,
		HTTPStatus: http.StatusConflict,
	}
}

func Unauthorized(message string) *Error {
	return &Error{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       CodeUnauthorized,
		HTTPStatus: http.StatusUnauthorized,
	}
}

func Forbidden(message string) *Error {
	return &Error{
		Err:        ErrForbidden,
		Message:    message,
		Code:       CodeForbidden,
		HTTPStatus: http.StatusForbidden,
	}
}

// Internal hides err behind a generic message. The cause stays reachable
// through Unwrap for logging.
func Internal(err error) *Error {
	if err == nil {
		err = ErrInternal
	}
	return &Error{
		Err:        err,
		Message:    "internal server error",
		Code:       CodeInternal,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap prefixes the message of an *Error, or turns any other error into an
// internal one carrying message.
func Wrap(err error, message string) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return &Error{
			Err:        appErr.Err,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			Code:       appErr.Code,
			HTTPStatus: appErr.HTTPStatus,
			Details:    appErr.Details,
		}
	}
	return &Error{
		Err:        err,
		Message:    message,
		Code:       CodeInternal,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// From returns the *Error in err's chain, or an internal error wrapping err.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
