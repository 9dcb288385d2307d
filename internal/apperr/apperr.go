// Package apperr defines the error taxonomy shared by the action-execution
// engine. Every error the engine hands to a caller carries one of these codes
// so transports can map it to a status without inspecting internals.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category in the engine taxonomy.
type Code string

const (
	// CodeValidation indicates malformed or missing input.
	CodeValidation Code = "validation_error"

	// CodePermissionDenied indicates a role or signature failure.
	CodePermissionDenied Code = "permission_denied"

	// CodeIllegalTransition indicates a state-machine violation.
	CodeIllegalTransition Code = "illegal_transition"

	// CodeNotFound indicates the entity is absent or owned by another tenant.
	// Cross-tenant reads are indistinguishable from absence on purpose.
	CodeNotFound Code = "not_found"

	// CodeConflict indicates a uniqueness or duplicate violation.
	CodeConflict Code = "conflict"

	// CodeTimeout indicates the caller's deadline expired before commit.
	CodeTimeout Code = "timeout"

	// CodeUnexpected indicates a defect. This is the only code that may wrap
	// an underlying system error.
	CodeUnexpected Code = "unexpected"
)

// Error is a categorized engine error. Message is safe to show to callers;
// the wrapped cause is not.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and user-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted user-safe message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a CodeUnexpected error around a system error. The message must
// not describe storage-layer details; the cause is preserved for logs only.
func Wrap(message string, err error) *Error {
	return &Error{Code: CodeUnexpected, Message: message, Err: err}
}

// CodeOf extracts the taxonomy code from err. Unrecognized errors are
// classified as CodeUnexpected.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnexpected
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// MessageOf returns the user-safe message for err. Unrecognized errors map to
// a generic message so internals never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an unexpected error occurred"
}

// HTTPStatus maps a taxonomy code to its HTTP status per the API discipline:
// 500 is reserved for defects, never for client-caused conditions.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeIllegalTransition, CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
