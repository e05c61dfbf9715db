package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Generation error codes. These classify the outcome of a single
// participant's turn and never abort a round.
const (
	ErrConfiguration ErrorCode = "CONFIGURATION"
	ErrProvider      ErrorCode = "PROVIDER_ERROR"
	ErrTimeout       ErrorCode = "TIMEOUT"
	ErrRateLimited   ErrorCode = "RATE_LIMITED"
	ErrEmptyResponse ErrorCode = "EMPTY_RESPONSE"
)

// Conversation error codes. These are surfaced synchronously to the caller.
const (
	ErrEmptyParticipantSet ErrorCode = "EMPTY_PARTICIPANT_SET"
	ErrThreadNotFound      ErrorCode = "THREAD_NOT_FOUND"
	ErrPersistence         ErrorCode = "PERSISTENCE"
	ErrInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	ErrContextOverflow     ErrorCode = "CONTEXT_OVERFLOW"
	ErrRoundCancelled      ErrorCode = "ROUND_CANCELLED"
	ErrNothingToContinue   ErrorCode = "NOTHING_TO_CONTINUE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
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

// Is reports whether target is an *Error with the same code, so
// errors.Is(err, types.NewError(types.ErrTimeout, "")) matches any timeout.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
