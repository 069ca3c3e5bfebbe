package connection

import (
	"errors"
	"fmt"
)

// Usage errors.
var (
	ErrWrongRole           = errors.New("connection: operation not valid for this role")
	ErrAlreadyStarted      = errors.New("connection: already started")
	ErrNoEndpoints         = errors.New("connection: no endpoints configured")
	ErrNoReachableEndpoint = errors.New("connection: no endpoint reachable")
	ErrNilTransport        = errors.New("connection: nil transport")
)

// ErrHandlerPanic wraps a panic recovered from a handler.
var ErrHandlerPanic = errors.New("connection: handler panic")

// HandshakeError reports a rejected opening handshake.
type HandshakeError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("connection: handshake with %s failed with status %d: %v", e.URL, e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
