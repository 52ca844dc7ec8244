package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies call failures per the error taxonomy: fatal codes end
// the call attempt, non-fatal codes are logged and the call proceeds.
type ErrorCode string

const (
	ErrCodeBootstrapFailed    ErrorCode = "BOOTSTRAP_FAILED"
	ErrCodeCaptureFailed      ErrorCode = "CAPTURE_FAILED"
	ErrCodeTransportFailed    ErrorCode = "TRANSPORT_FAILED"
	ErrCodeNegotiationFailed  ErrorCode = "NEGOTIATION_FAILED"
	ErrCodeConnectivityFailed ErrorCode = "CONNECTIVITY_FAILED"
	ErrCodeProtocolError      ErrorCode = "PROTOCOL_ERROR"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
)

// CallError is an application error with a code and context. Fatal errors
// bubble to the user-facing layer as a single message and terminate the call.
type CallError struct {
	Code    ErrorCode
	Message string
	Fatal   bool
	Cause   error
	Context map[string]interface{}
}

// Error implements error interface
func (e *CallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *CallError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *CallError) WithContext(key string, value interface{}) *CallError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new call error
func New(code ErrorCode, message string, fatal bool) *CallError {
	return &CallError{
		Code:    code,
		Message: message,
		Fatal:   fatal,
		Context: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a call error
func Wrap(err error, code ErrorCode, message string, fatal bool) *CallError {
	return &CallError{
		Code:    code,
		Message: message,
		Fatal:   fatal,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// Common error constructors. Bootstrap, capture and connectivity failures are
// always fatal to the attempt; transport and protocol errors are not, by
// themselves, the end of an otherwise healthy call.

func NewBootstrapError(err error) *CallError {
	return Wrap(err, ErrCodeBootstrapFailed, "could not obtain call session", true)
}

func NewCaptureError(err error) *CallError {
	return Wrap(err, ErrCodeCaptureFailed, "camera/microphone unavailable", true)
}

func NewTransportError(err error) *CallError {
	return Wrap(err, ErrCodeTransportFailed, "signaling transport failure", false)
}

func NewNegotiationError(err error) *CallError {
	return Wrap(err, ErrCodeNegotiationFailed, "session description exchange failed", true)
}

func NewConnectivityError(state string) *CallError {
	return New(ErrCodeConnectivityFailed, fmt.Sprintf("connectivity reached %s", state), true)
}

func NewProtocolError(err error) *CallError {
	return Wrap(err, ErrCodeProtocolError, "unparseable signaling frame", false)
}

func NewUnauthorizedError(message string) *CallError {
	return New(ErrCodeUnauthorized, message, true)
}

// IsFatal reports whether err is a CallError that terminates the attempt.
func IsFatal(err error) bool {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Fatal
	}
	return false
}

// CodeOf extracts the error code, or an empty code for foreign errors.
func CodeOf(err error) ErrorCode {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
