package protocol

import "sync/atomic"

var defaultCodec atomic.Pointer[Codec]

// RegisterTypes builds the process-wide registry from modules and installs a
// big-endian, UTF-8 codec over it. It must run once before Pack or Unpack.
func RegisterTypes(modules ...Module) error {
	return RegisterTypesWith(nil, modules...)
}

// RegisterTypesWith is RegisterTypes with codec options.
func RegisterTypesWith(opts []Option, modules ...Module) error {
	if defaultCodec.Load() != nil {
		return ErrAlreadyRegistered
	}
	reg := NewRegistry()
	if err := reg.Register(modules...); err != nil {
		return err
	}
	if !defaultCodec.CompareAndSwap(nil, NewCodec(reg, opts...)) {
		return ErrAlreadyRegistered
	}
	return nil
}

// Default returns the process-wide codec, or nil before RegisterTypes.
func Default() *Codec {
	return defaultCodec.Load()
}

// Pack encodes v with the process-wide codec.
func Pack(v any) ([]byte, error) {
	c := defaultCodec.Load()
	if c == nil {
		return nil, ErrNotRegistered
	}
	return c.Pack(v)
}

// Unpack decodes frame with the process-wide codec.
func Unpack(frame []byte) (any, error) {
	c := defaultCodec.Load()
	if c == nil {
		return nil, ErrNotRegistered
	}
	return c.Unpack(frame)
}

// ResetDefault removes the process-wide codec so tests can register again.
func ResetDefault() {
	defaultCodec.Store(nil)
}
