package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Request / execution error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrProviderError  ErrorCode = "PROVIDER_ERROR"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrTimeout        ErrorCode = "TIMEOUT"
	ErrStepFailed     ErrorCode = "STEP_FAILED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Provider  string    `json:"provider,omitempty"`
	Cause     error     `json:"-"`
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

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// NewInvalidRequestError 构造请求校验错误（不可重试）。
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message)
}

// NewProviderError 构造上游提供者错误。
func NewProviderError(provider, message string) *Error {
	return NewError(ErrProviderError, message).WithProvider(provider)
}

// NewRateLimitError 构造限流错误（可重试）。
func NewRateLimitError(provider string) *Error {
	return NewError(ErrRateLimited, "rate limited by provider").
		WithProvider(provider).
		WithRetryable(true)
}

// NewTimeoutError 构造超时错误（不重试）。
func NewTimeoutError(message string) *Error {
	return NewError(ErrTimeout, message)
}
