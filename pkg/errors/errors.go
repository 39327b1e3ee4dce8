// Package errors provides custom error types for the milo system.
// These errors enable better error handling, programmatic error checking,
// and improved debugging throughout the application.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is reports whether any error in err's chain matches target.
var Is = errors.Is

// As finds the first error in err's chain that matches target.
var As = errors.As

// Errorf formats an error; %w wraps as in the standard library.
var Errorf = fmt.Errorf

// Wrap annotates err with a message, preserving the error chain.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf annotates err with a formatted message, preserving the error chain.
// Returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Common sentinel errors for the milo system
var (
	// ErrBusy indicates a transition was requested while another is in flight
	ErrBusy = errors.New("transition in progress")

	// ErrInvalidSource indicates an unknown or unusable audio source id
	ErrInvalidSource = errors.New("invalid source")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoActiveSource indicates a playback command with no source active
	ErrNoActiveSource = errors.New("no active source")

	// ErrBackend indicates a failure in an external audio backend
	ErrBackend = errors.New("backend failure")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrNotConnected indicates the event channel is not connected
	ErrNotConnected = errors.New("not connected")

	// ErrClosed indicates use of a closed channel or registry
	ErrClosed = errors.New("closed")
)

// BusyError represents a request rejected because a transition is in flight.
// It carries enough context for callers to decide whether to retry.
type BusyError struct {
	Requested string // what the caller asked for (source id, "multiroom", ...)
	Active    string // the source that is currently transitioning
}

// Error implements the error interface
func (e *BusyError) Error() string {
	if e.Active != "" {
		return fmt.Sprintf("cannot switch to %s: transition involving %s in progress", e.Requested, e.Active)
	}
	return fmt.Sprintf("cannot switch to %s: transition in progress", e.Requested)
}

// Is implements errors.Is support
func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

// NewBusyError creates a new BusyError
func NewBusyError(requested, active string) *BusyError {
	return &BusyError{Requested: requested, Active: active}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// SourceError represents a request naming an unknown audio source
type SourceError struct {
	Source string
}

// Error implements the error interface
func (e *SourceError) Error() string {
	return fmt.Sprintf("unknown audio source %q", e.Source)
}

// Is implements errors.Is support
func (e *SourceError) Is(target error) bool {
	return target == ErrInvalidSource
}

// NewSourceError creates a new SourceError
func NewSourceError(source string) *SourceError {
	return &SourceError{Source: source}
}

// BackendError represents a failure from an external audio backend
// (source daemon, multiroom server, equalizer)
type BackendError struct {
	Backend   string // backend id (librespot, bluetooth, roc, snapcast, equalizer)
	Operation string // start, stop, reconfigure, playback command
	Err       error
}

// Error implements the error interface
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s failed during %s: %v", e.Backend, e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// NewBackendError creates a new BackendError
func NewBackendError(backend, operation string, err error) *BackendError {
	return &BackendError{Backend: backend, Operation: operation, Err: err}
}

// TimeoutError represents an operation timeout
type TimeoutError struct {
	Operation string
	Duration  string
	Message   string
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	if e.Duration != "" {
		return fmt.Sprintf("operation %s timed out after %s: %s", e.Operation, e.Duration, e.Message)
	}
	return fmt.Sprintf("operation %s timed out: %s", e.Operation, e.Message)
}

// Is implements errors.Is support
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(operation, duration, message string) *TimeoutError {
	return &TimeoutError{Operation: operation, Duration: duration, Message: message}
}

// RPCError represents an error returned by a backend RPC endpoint
// (e.g. the snapcast JSON-RPC server or the librespot REST API)
type RPCError struct {
	Backend    string
	StatusCode int
	Message    string
	Endpoint   string
	Err        error
}

// Error implements the error interface
func (e *RPCError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("RPC error from %s (status %d): %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("RPC error from %s: %s", e.Backend, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *RPCError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *RPCError) Is(target error) bool {
	return target == ErrBackend
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapBackend wraps an error as a BackendError
func WrapBackend(backend, operation string, err error) error {
	if err == nil {
		return nil
	}
	return NewBackendError(backend, operation, err)
}

// WrapRPC wraps an error as an RPCError
func WrapRPC(backend string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return &RPCError{
		Backend:    backend,
		StatusCode: statusCode,
		Message:    err.Error(),
		Err:        err,
	}
}
