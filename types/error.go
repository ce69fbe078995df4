package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies runtime failures into a stable, machine-readable set.
type ErrorCode string

// Outbound call error codes
const (
	ErrConnection     ErrorCode = "CONNECTION"
	ErrAuthRequired   ErrorCode = "AUTH_REQUIRED"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Credential resolution error codes
const (
	ErrCredentialNotFound ErrorCode = "CREDENTIAL_NOT_FOUND"
	ErrStoreUnavailable   ErrorCode = "CREDENTIAL_STORE_UNAVAILABLE"
)

// Catalog error codes
const (
	ErrToolTranslation ErrorCode = "TOOL_TRANSLATION"
	ErrToolNotFound    ErrorCode = "TOOL_NOT_FOUND"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code        ErrorCode `json:"code"`
	Message     string    `json:"message"`
	HTTPStatus  int       `json:"http_status,omitempty"`
	Retryable   bool      `json:"retryable"`
	Destination string    `json:"destination,omitempty"`
	Cause       error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status observed from the destination.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable by caller policy.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithDestination names the server or agent the failed call addressed.
func (e *Error) WithDestination(dest string) *Error {
	e.Destination = dest
	return e
}

// AsError extracts a *Error from anywhere in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether the error is retryable by caller policy.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, or "" if untyped.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewConnectionError creates a transport-level failure. Retryable by caller
// policy; the runtime itself never retries.
func NewConnectionError(message string, cause error) *Error {
	return NewError(ErrConnection, message).WithCause(cause).WithRetryable(true)
}

// NewTimeoutError creates a per-operation timeout failure.
func NewTimeoutError(op string) *Error {
	return NewError(ErrTimeout, op+" timed out").WithRetryable(true)
}

// NewAuthRequiredError signals that the destination needs fresh credentials.
func NewAuthRequiredError(message string) *Error {
	return NewError(ErrAuthRequired, message).WithHTTPStatus(401)
}

// NewTranslationError creates a per-tool schema translation failure.
func NewTranslationError(tool string, cause error) *Error {
	return NewError(ErrToolTranslation, "cannot translate tool "+tool).WithCause(cause)
}
