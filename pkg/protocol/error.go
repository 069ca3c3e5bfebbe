package protocol

import (
	"errors"
	"fmt"
)

// Usage errors.
var (
	ErrNotRegistered       = errors.New("protocol: codec used before type registration")
	ErrAlreadyRegistered   = errors.New("protocol: types already registered")
	ErrNotPacket           = errors.New("protocol: type is not a registered packet")
	ErrDuplicatePacketType = errors.New("protocol: duplicate packet type")
	ErrDuplicateType       = errors.New("protocol: type registered twice")
	ErrDuplicateFieldOrder = errors.New("protocol: duplicate field order")
	ErrReservedVersion     = errors.New("protocol: packet version is reserved")
	ErrUnregisteredEntity  = errors.New("protocol: nested entity type is not registered")
	ErrInvalidSchema       = errors.New("protocol: invalid schema")
)

// Framing errors.
var (
	ErrInvalidPacket     = errors.New("protocol: invalid packet")
	ErrUnknownPacketType = errors.New("protocol: no target type for packet type")
	ErrInvalidSize       = errors.New("protocol: invalid compressed size")
)

// Encode and decode errors.
var (
	ErrNilValue           = errors.New("protocol: nil value for required field")
	ErrValueOutOfRange    = errors.New("protocol: value out of range")
	ErrNegativeSize       = errors.New("protocol: negative size")
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")
	ErrCollectionTooLarge = errors.New("protocol: collection count exceeds limit")
	ErrMaxDepthExceeded   = errors.New("protocol: maximum nesting depth exceeded")
)

// Error records a failed codec operation and the type it involved.
type Error struct {
	Op    string // "pack" or "unpack"
	Type  string // schema name, empty when unknown
	Field string // field name, empty when the failure is not field specific
	Err   error
}

func (e *Error) Error() string {
	msg := "protocol: " + e.Op
	if e.Type != "" {
		msg += " " + e.Type
	}
	if e.Field != "" {
		msg += "." + e.Field
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFraming reports whether err is a framing violation: a malformed envelope
// or a packet type with no registered target.
func IsFraming(err error) bool {
	return errors.Is(err, ErrInvalidPacket) ||
		errors.Is(err, ErrUnknownPacketType) ||
		errors.Is(err, ErrInvalidSize)
}

func fieldError(op, typ, field string, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Op: op, Type: typ, Field: field, Err: err}
}

func invalidPacket(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidPacket}, args...)...)
}
