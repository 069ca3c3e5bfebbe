package protocol

import (
	"fmt"
	"reflect"

	"golang.org/x/text/encoding"

	"github.com/byteflow-dev/byteflow/pkg/bytestream"
)

// Codec packs registered values into envelopes and unpacks them again.
// A Codec is safe for concurrent use once its registry is sealed.
type Codec struct {
	reg    *Registry
	endian bytestream.Endian
	text   encoding.Encoding
	limits Limits
}

// Option configures a Codec.
type Option func(*Codec)

// WithEndian sets the byte order of fixed-width values and sizes.
// Both peers must agree on it.
func WithEndian(e bytestream.Endian) Option {
	return func(c *Codec) {
		c.endian = e
	}
}

// WithTextEncoding sets the encoding of string fields. The default is UTF-8.
func WithTextEncoding(enc encoding.Encoding) Option {
	return func(c *Codec) {
		c.text = enc
	}
}

// WithLimits sets the decoding limits. Zero fields keep their defaults.
func WithLimits(l Limits) Option {
	return func(c *Codec) {
		c.limits = l.withDefaults()
	}
}

// NewCodec creates a codec over reg. The registry may be sealed later, but
// every Pack and Unpack before that fails with ErrNotRegistered.
func NewCodec(reg *Registry, opts ...Option) *Codec {
	c := &Codec{
		reg:    reg,
		endian: bytestream.BigEndian,
		limits: DefaultLimits(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the registry the codec resolves types against.
func (c *Codec) Registry() *Registry {
	return c.reg
}

// Endian returns the configured byte order.
func (c *Codec) Endian() bytestream.Endian {
	return c.endian
}

// Envelope is the decoded header of a packet frame.
type Envelope struct {
	Version    byte
	PacketType int
	BodyLength int
	HeaderLen  int
}

// Pack encodes a registered packet value (T or *T) into a new frame.
func (c *Codec) Pack(v any) ([]byte, error) {
	w := bytestream.NewWriter(c.endian)
	defer w.Release()
	if err := c.PackTo(w, v); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// PackTo encodes a registered packet value into w at its current position.
func (c *Codec) PackTo(w *bytestream.Writer, v any) error {
	d, err := c.packetFor(v)
	if err != nil {
		return err
	}

	body := bytestream.NewWriter(c.endian)
	defer body.Release()
	st := &encodeState{
		w:     body,
		text:  c.text,
		depth: depthContext{max: c.limits.MaxDepth},
	}
	if err := d.encodeValue(st, v); err != nil {
		return err
	}

	_ = w.WriteByte(d.Version())
	if err := WriteCompressedSize(w, d.PacketType()); err != nil {
		return &Error{Op: "pack", Type: d.Name(), Err: err}
	}
	if err := WriteCompressedSize(w, body.Len()); err != nil {
		return &Error{Op: "pack", Type: d.Name(), Err: err}
	}
	_, _ = w.Write(body.Bytes())
	return nil
}

func (c *Codec) packetFor(v any) (Descriptor, error) {
	if !c.reg.Sealed() {
		return nil, ErrNotRegistered
	}
	if v == nil {
		return nil, &Error{Op: "pack", Err: ErrNilValue}
	}
	t := reflect.TypeOf(v)
	d, ok := c.reg.Lookup(t)
	if !ok || d.EntityKind() != KindPacket {
		return nil, &Error{Op: "pack", Err: fmt.Errorf("%w: %s", ErrNotPacket, t)}
	}
	return d, nil
}

// ReadEnvelope decodes and validates the envelope header of frame. The
// remaining bytes after the header must equal the declared body length.
func (c *Codec) ReadEnvelope(frame []byte) (Envelope, error) {
	r := bytestream.NewReader(frame, c.endian)
	return readEnvelope(r)
}

func readEnvelope(r *bytestream.Reader) (Envelope, error) {
	var env Envelope
	var err error
	if env.Version, err = r.ReadByte(); err != nil {
		return env, invalidPacket("missing version byte")
	}
	if env.PacketType, err = ReadCompressedSize(r); err != nil {
		return env, invalidPacket("packet type: %v", err)
	}
	if env.BodyLength, err = ReadCompressedSize(r); err != nil {
		return env, invalidPacket("body length: %v", err)
	}
	env.HeaderLen = r.Position()
	if r.Remaining() != env.BodyLength {
		return env, invalidPacket("declared body length %d, %d bytes remain", env.BodyLength, r.Remaining())
	}
	return env, nil
}

// Unpack decodes a frame into a pointer to its registered packet type.
func (c *Codec) Unpack(frame []byte) (any, error) {
	if !c.reg.Sealed() {
		return nil, ErrNotRegistered
	}
	r := bytestream.NewReader(frame, c.endian)
	env, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}
	d, ok := c.reg.Packet(env.PacketType)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPacketType, env.PacketType)
	}
	st := &decodeState{
		r:      r,
		text:   c.text,
		limits: c.limits,
		depth:  depthContext{max: c.limits.MaxDepth},
	}
	v, err := d.decodeValue(st)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, &Error{Op: "unpack", Type: d.Name(),
			Err: invalidPacket("%d unread bytes after body", r.Remaining())}
	}
	return v, nil
}

// UnpackAs decodes frame and asserts that it holds a T.
func UnpackAs[T any](c *Codec, frame []byte) (*T, error) {
	v, err := c.Unpack(frame)
	if err != nil {
		return nil, err
	}
	t, ok := v.(*T)
	if !ok {
		return nil, fmt.Errorf("%w: frame holds %T, want *%s", ErrNotPacket, v, reflect.TypeFor[T]())
	}
	return t, nil
}
