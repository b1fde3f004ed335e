package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request and provider error codes
const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrAuthentication       ErrorCode = "AUTHENTICATION"
	ErrUnauthorized         ErrorCode = "UNAUTHORIZED"
	ErrForbidden            ErrorCode = "FORBIDDEN"
	ErrInsufficientCredits  ErrorCode = "INSUFFICIENT_CREDITS"
	ErrRateLimit            ErrorCode = "RATE_LIMIT"
	ErrNotFound             ErrorCode = "NOT_FOUND"
	ErrConfiguration        ErrorCode = "CONFIGURATION"
	ErrTimeout              ErrorCode = "TIMEOUT"
	ErrUpstreamError        ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError        ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable   ErrorCode = "SERVICE_UNAVAILABLE"
	ErrProviderUnavailable  ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrGenerationFailed     ErrorCode = "GENERATION_FAILED"
	ErrCancelled            ErrorCode = "CANCELLED"
	ErrInvalidTransition    ErrorCode = "INVALID_TRANSITION"
)

// Media pipeline error codes
const (
	ErrMaterialization ErrorCode = "MATERIALIZATION"
	ErrAssembly        ErrorCode = "ASSEMBLY"
	ErrMediaProbe      ErrorCode = "MEDIA_PROBE"
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

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
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

// WrapError wraps err with code unless it already is a *Error.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return NewError(code, message).WithCause(err)
}

// HTTPStatusFor returns the HTTP status for an error code.
func HTTPStatusFor(code ErrorCode) int {
	switch code {
	case ErrInvalidRequest, ErrInvalidTransition:
		return http.StatusBadRequest
	case ErrAuthentication, ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrInsufficientCredits:
		return http.StatusPaymentRequired
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrRateLimit:
		return http.StatusTooManyRequests
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrUpstreamError, ErrGenerationFailed:
		return http.StatusBadGateway
	case ErrServiceUnavailable, ErrProviderUnavailable:
		return http.StatusServiceUnavailable
	case ErrCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
