package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different classes of failures in the pipeline
type ErrorType string

const (
	ErrorTypeNavigation  ErrorType = "navigation"
	ErrorTypeWrongPage   ErrorType = "wrong_page"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeTransport   ErrorType = "transport"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeUnreachable ErrorType = "unreachable"
	ErrorTypeRemote      ErrorType = "remote"
	ErrorTypeCancelled   ErrorType = "cancelled"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a typed error carrying an optional HTTP status code and cause
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// WithCode creates a typed error for an HTTP status
func WithCode(t ErrorType, code int, message string) *Error {
	return &Error{Type: t, Message: message, Code: code}
}

// TypeOf returns the type of the first typed error in the chain
func TypeOf(err error) ErrorType {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// CodeOf returns the status code of the first typed error in the chain, or 0
func CodeOf(err error) int {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Code
	}
	return 0
}

// IsAuthRejection reports whether the backend refused the credential
func IsAuthRejection(err error) bool {
	code := CodeOf(err)
	return code == 401 || code == 403
}

// Is reports whether err carries the given type anywhere in its chain
func Is(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	return TypeOf(err) == t
}

// IsCommunication reports whether err is a cross-context delivery failure
// (as opposed to an error returned by the remote handler)
func IsCommunication(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeTimeout, ErrorTypeUnreachable:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeTimeout, ErrorTypeUnreachable:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a transient error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0, 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}

// Sentinel errors shared across packages
var (
	ErrRunActive     = New(ErrorTypeUnknown, "a sync run is already active")
	ErrNotConfigured = New(ErrorTypeAuth, "extension is not configured")
)
