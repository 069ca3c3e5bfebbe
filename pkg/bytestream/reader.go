package bytestream

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"golang.org/x/text/encoding"
)

// Reader reads primitive values from a byte buffer.
// Every read advances the cursor by the width it consumed.
type Reader struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

// NewReader creates a reader over buf using the given byte order.
// The buffer is not copied and must not be modified while the reader is in use.
func NewReader(buf []byte, e Endian) *Reader {
	return &Reader{buf: buf, order: e.order()}
}

// Len returns the total length of the underlying buffer.
func (r *Reader) Len() int {
	return len(r.buf)
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || n > r.Remaining() {
		return io.ErrUnexpectedEOF
	}
	r.pos += n
	return nil
}

func (r *Reader) next(n int) ([]byte, error) {
	if n > r.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadBool reads a single byte; any non-zero value is true.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

// ReadInt8 reads a signed byte.
func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

// ReadUint16 reads a uint16 in the reader's byte order.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

// ReadInt16 reads an int16 in the reader's byte order.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a uint32 in the reader's byte order.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

// ReadInt32 reads an int32 in the reader's byte order.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a uint64 in the reader's byte order.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

// ReadInt64 reads an int64 in the reader's byte order.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads an IEEE 754 single-precision float.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE 754 double-precision float.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadBytes reads exactly n bytes.
// The returned slice references the reader's buffer; do not modify.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return r.next(n)
}

// ReadString reads n bytes and decodes them with enc (UTF-8 when enc is nil).
// The bytes are kept as they are, NULs included.
func (r *Reader) ReadString(n int, enc encoding.Encoding) (string, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return decodeString(b, enc)
}

// ReadPaddedString is ReadString for fixed-width fields padded with NULs.
// Trailing NUL bytes are dropped before decoding.
func (r *Reader) ReadPaddedString(n int, enc encoding.Encoding) (string, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	return decodeString(bytes.TrimRight(b, "\x00"), enc)
}

func decodeString(b []byte, enc encoding.Encoding) (string, error) {
	if enc == nil {
		return string(b), nil
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
