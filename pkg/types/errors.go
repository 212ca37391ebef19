package types

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Transport related errors
	ErrCodeDisconnected   ErrorCode = "DISCONNECTED"
	ErrCodeConnectionLost ErrorCode = "CONNECTION_LOST"
	ErrCodeTimeout        ErrorCode = "TIMEOUT"

	// Lease related errors
	ErrCodeLeaseNotHeld    ErrorCode = "LEASE_NOT_HELD"
	ErrCodeLeaseRenewal    ErrorCode = "LEASE_RENEWAL_FAILED"
	ErrCodeLeaseNotFound   ErrorCode = "LEASE_NOT_FOUND"
	ErrCodeNotLeader       ErrorCode = "NOT_LEADER"
	ErrCodeInvalidOp       ErrorCode = "INVALID_OPERATION"
	ErrCodeAlreadyShutdown ErrorCode = "ALREADY_SHUTDOWN"

	// Serialization related errors
	ErrCodeSerializationError   ErrorCode = "SERIALIZATION_ERROR"
	ErrCodeDeserializationError ErrorCode = "DESERIALIZATION_ERROR"

	// Configuration related errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Handler related errors
	ErrCodeInvalidHandler ErrorCode = "INVALID_HANDLER"
)

// CoordError represents a structured error in podsync
type CoordError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Cause     error          `json:"-"`
}

// NewCoordError creates a new CoordError
func NewCoordError(code ErrorCode, message string) *CoordError {
	return &CoordError{
		Code:      code,
		Message:   message,
		Details:   make(map[string]any),
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *CoordError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CoordError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value detail to the error
func (e *CoordError) WithDetail(key string, value any) *CoordError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying error
func (e *CoordError) WithCause(cause error) *CoordError {
	e.Cause = cause
	return e
}

// IsCode reports whether err is a CoordError carrying the given code
func IsCode(err error, code ErrorCode) bool {
	ce, ok := err.(*CoordError)
	return ok && ce.Code == code
}

// ErrDisconnected builds the error returned by transport operations attempted
// while the backing store is unreachable
func ErrDisconnected(op string) *CoordError {
	return NewCoordError(ErrCodeDisconnected, "coordination store unreachable").WithDetail("op", op)
}

// ErrSerialization wraps a codec encode failure
func ErrSerialization(codec string, cause error) *CoordError {
	return NewCoordError(ErrCodeSerializationError, "encode failed").
		WithDetail("codec", codec).WithCause(cause)
}

// ErrDeserialization wraps a codec decode failure
func ErrDeserialization(codec string, cause error) *CoordError {
	return NewCoordError(ErrCodeDeserializationError, "decode failed").
		WithDetail("codec", codec).WithCause(cause)
}
