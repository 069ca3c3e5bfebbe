package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for server conditions.
var (
	// ErrInvalidConfig is returned by ValidateConfig.
	ErrInvalidConfig = errors.New("server: invalid config")

	// ErrUnauthorized is returned when a bearer token is missing or invalid.
	ErrUnauthorized = errors.New("server: unauthorized")

	// ErrRateLimited is returned when a client exceeds its upgrade rate.
	ErrRateLimited = errors.New("server: rate limited")

	// ErrMaxConnectionsReached is returned when the connection limit is reached.
	ErrMaxConnectionsReached = errors.New("server: max connections reached")

	// ErrConnectionExists is returned when a connection ID is registered twice.
	ErrConnectionExists = errors.New("server: connection already registered")

	// ErrServerClosed is returned by Run and upgrades after Shutdown.
	ErrServerClosed = errors.New("server: closed")
)

// ConnError wraps an error with connection context for debugging.
type ConnError struct {
	ConnID string
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with connection context.
func (e *ConnError) Error() string {
	if e.ConnID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: conn %s: %s: %v", e.ConnID, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnError) Unwrap() error {
	return e.Err
}
