// Package cxerrors provides structured error handling for the extraction engine
package cxerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInvalidConnectionString represents malformed connection strings
	ErrorTypeInvalidConnectionString ErrorType = "invalid_connection_string"
	// ErrorTypePoolBuild represents connection pool construction failures
	ErrorTypePoolBuild ErrorType = "pool_build"
	// ErrorTypeConnectionAcquire represents checkout/dial failures
	ErrorTypeConnectionAcquire ErrorType = "connection_acquire"
	// ErrorTypeQueryExecution represents query-level failures; carries the
	// partition index when one is known
	ErrorTypeQueryExecution ErrorType = "query_execution"
	// ErrorTypeConversion represents unsupported or out-of-range type conversions
	ErrorTypeConversion ErrorType = "conversion"
	// ErrorTypeSchemaMismatch represents incompatible partition schemas at finalize
	ErrorTypeSchemaMismatch ErrorType = "schema_mismatch"
	// ErrorTypeUnsupportedBackend represents backend/protocol combinations
	// the engine does not implement
	ErrorTypeUnsupportedBackend ErrorType = "unsupported_backend"
	// ErrorTypeProgramming represents caller bugs; never caught and retried
	ErrorTypeProgramming ErrorType = "programming"
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithPartition records the partition index the error originated from
func (e *Error) WithPartition(partition int) *Error {
	return e.WithDetail("partition", partition)
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// WithPartition tags any error with the partition index it came from,
// wrapping plain errors into structured ones.
func WithPartition(err error, partition int) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e.WithPartition(partition)
	}
	return Wrap(err, ErrorTypeInternal, "partition failed").WithPartition(partition)
}

// Partition extracts the partition index recorded on the error, walking
// the cause chain. The second return is false when no partition is known.
func Partition(err error) (int, bool) {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return 0, false
		}
		if p, ok := e.Details["partition"].(int); ok {
			return p, true
		}
		err = e.Cause
	}
	return 0, false
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
