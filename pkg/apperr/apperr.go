// Package apperr defines the closed error taxonomy used across the core.
//
// Every error produced by a command, the event store, or the query layer is
// an *Error carrying a Code from the taxonomy, a stable symbolic ID (e.g.
// "USER-003") for traceability, a human readable message, and optional
// details. Errors wrap their cause and participate in errors.Is/errors.As.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error. The set is closed; callers switch on it to map
// to wire status codes.
type Code string

const (
	CodeInternal           Code = "INTERNAL"
	CodeUnknown            Code = "UNKNOWN"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	CodeUnavailable        Code = "UNAVAILABLE"
	CodeDeadlineExceeded   Code = "DEADLINE_EXCEEDED"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeQuotaExceeded      Code = "QUOTA_EXCEEDED"

	// CodeConcurrencyConflict is the eventstore-specific optimistic
	// concurrency failure; callers retry the whole command end-to-end.
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
)

// Error is the single error shape crossing package boundaries.
type Error struct {
	Code    Code
	ID      string
	Message string
	Details map[string]string
	parent  error
}

func (e *Error) Error() string {
	if e.parent != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.ID, e.Code, e.Message, e.parent)
	}
	return fmt.Sprintf("%s (%s): %s", e.ID, e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.parent
}

// Is matches on Code and, when the target carries one, on ID.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.ID != "" && t.ID != e.ID {
		return false
	}
	return t.Code == e.Code
}

// WithDetail attaches a key/value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an error with an explicit code.
func New(code Code, parent error, id, message string) *Error {
	return &Error{Code: code, ID: id, Message: message, parent: parent}
}

func ThrowInternal(parent error, id, message string) *Error {
	return New(CodeInternal, parent, id, message)
}

func ThrowUnknown(parent error, id, message string) *Error {
	return New(CodeUnknown, parent, id, message)
}

func ThrowInvalidArgument(parent error, id, message string) *Error {
	return New(CodeInvalidArgument, parent, id, message)
}

func ThrowInvalidArgumentf(parent error, id, format string, args ...any) *Error {
	return New(CodeInvalidArgument, parent, id, fmt.Sprintf(format, args...))
}

func ThrowNotFound(parent error, id, message string) *Error {
	return New(CodeNotFound, parent, id, message)
}

func ThrowAlreadyExists(parent error, id, message string) *Error {
	return New(CodeAlreadyExists, parent, id, message)
}

func ThrowPreconditionFailed(parent error, id, message string) *Error {
	return New(CodePreconditionFailed, parent, id, message)
}

func ThrowPreconditionFailedf(parent error, id, format string, args ...any) *Error {
	return New(CodePreconditionFailed, parent, id, fmt.Sprintf(format, args...))
}

func ThrowUnavailable(parent error, id, message string) *Error {
	return New(CodeUnavailable, parent, id, message)
}

func ThrowDeadlineExceeded(parent error, id, message string) *Error {
	return New(CodeDeadlineExceeded, parent, id, message)
}

func ThrowUnauthenticated(parent error, id, message string) *Error {
	return New(CodeUnauthenticated, parent, id, message)
}

func ThrowPermissionDenied(parent error, id, message string) *Error {
	return New(CodePermissionDenied, parent, id, message)
}

func ThrowQuotaExceeded(parent error, id, message string) *Error {
	return New(CodeQuotaExceeded, parent, id, message)
}

func ThrowConcurrencyConflict(parent error, id, message string) *Error {
	return New(CodeConcurrencyConflict, parent, id, message)
}

func is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

func IsInternal(err error) bool           { return is(err, CodeInternal) }
func IsInvalidArgument(err error) bool    { return is(err, CodeInvalidArgument) }
func IsNotFound(err error) bool           { return is(err, CodeNotFound) }
func IsAlreadyExists(err error) bool      { return is(err, CodeAlreadyExists) }
func IsPreconditionFailed(err error) bool { return is(err, CodePreconditionFailed) }
func IsUnavailable(err error) bool        { return is(err, CodeUnavailable) }
func IsDeadlineExceeded(err error) bool   { return is(err, CodeDeadlineExceeded) }
func IsUnauthenticated(err error) bool    { return is(err, CodeUnauthenticated) }
func IsPermissionDenied(err error) bool   { return is(err, CodePermissionDenied) }
func IsConcurrencyConflict(err error) bool {
	return is(err, CodeConcurrencyConflict)
}

// CodeOf returns the taxonomy code of err, or CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IDOf returns the stable symbolic ID of err, or "" for foreign errors.
func IDOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.ID
	}
	return ""
}

// HTTPStatus maps a taxonomy code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeConcurrencyConflict:
		return http.StatusConflict
	case CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
