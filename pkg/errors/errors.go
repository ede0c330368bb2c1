// Package errors provides custom error types for the tracklight system.
// These errors enable programmatic error checking and consistent mapping
// onto HTTP responses at the API boundary.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is and As are aliases for the standard library equivalents, so callers
// need just one errors import.
var (
	Is = errors.Is
	As = errors.As
)

// Common sentinel errors for the event hub.
var (
	// ErrUnknownEventType indicates a publish attempt with a type outside
	// the closed event-type set.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrEmptySubscription indicates a subscribe request with no event types.
	ErrEmptySubscription = errors.New("subscription has no event types")

	// ErrConnectionClosed indicates an operation on a connection that has
	// already transitioned to the closed state.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrHubClosed indicates an operation against a hub that has shut down.
	ErrHubClosed = errors.New("hub closed")

	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrWriteTimeout indicates a transport write exceeded its deadline.
	ErrWriteTimeout = errors.New("write timed out")
)

// ValidationError represents a validation failure at the publish or
// subscribe boundary.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ConnectionError represents a transport-level failure on a single
// connection. It is always scoped to one connection and never fatal to
// the hub.
type ConnectionError struct {
	ConnectionID string
	Transport    string
	Op           string
	Err          error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection %s: %s: %v", e.Transport, e.ConnectionID, e.Op, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(connectionID, transport, op string, err error) *ConnectionError {
	return &ConnectionError{
		ConnectionID: connectionID,
		Transport:    transport,
		Op:           op,
		Err:          err,
	}
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error in %s: %s: %v", e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("config error in %s: %s", e.Component, e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{Component: component, Message: message, Err: err}
}

// IsUnknownEventType reports whether err indicates a rejected event type.
func IsUnknownEventType(err error) bool {
	return errors.Is(err, ErrUnknownEventType)
}

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConnectionClosed reports whether err indicates a closed connection.
func IsConnectionClosed(err error) bool {
	return errors.Is(err, ErrConnectionClosed)
}
