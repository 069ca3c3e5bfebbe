package protocol

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"

	"github.com/byteflow-dev/byteflow/pkg/bytestream"
)

// Kind identifies how a field value is laid out on the wire.
type Kind uint8

const (
	KindBool Kind = iota + 1
	KindInt8
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindDuration
	KindTime
	KindUUID
	KindEntity
	KindSlice
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt8:
		return "int8"
	case KindUint8:
		return "uint8"
	case KindInt16:
		return "int16"
	case KindUint16:
		return "uint16"
	case KindInt32:
		return "int32"
	case KindUint32:
		return "uint32"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindDuration:
		return "duration"
	case KindTime:
		return "time"
	case KindUUID:
		return "uuid"
	case KindEntity:
		return "entity"
	case KindSlice:
		return "sequence"
	default:
		return "unknown"
	}
}

// encodeState is the per-call state of an encode operation.
type encodeState struct {
	w     *bytestream.Writer
	text  encoding.Encoding
	depth depthContext
}

// decodeState is the per-call state of a decode operation.
type decodeState struct {
	r      *bytestream.Reader
	text   encoding.Encoding
	limits Limits
	depth  depthContext
}

// Value describes how values of one Go type are written and read.
// Values are built with the constructors in this file and combined into
// schemas with Field.
type Value[V any] struct {
	kind    Kind
	name    string
	minSize int // fewest bytes any encoding of the value takes
	refs    []Descriptor
	enc     func(s *encodeState, v V) error
	dec     func(s *decodeState) (V, error)
}

// Kind returns the wire kind of the value.
func (v Value[V]) Kind() Kind {
	return v.kind
}

// TypeName returns a readable description such as "[]SubEntity".
func (v Value[V]) TypeName() string {
	return v.name
}

func fixed[V any](k Kind, size int, enc func(w *bytestream.Writer, v V), dec func(r *bytestream.Reader) (V, error)) Value[V] {
	return Value[V]{
		kind:    k,
		name:    k.String(),
		minSize: size,
		enc: func(s *encodeState, v V) error {
			enc(s.w, v)
			return nil
		},
		dec: func(s *decodeState) (V, error) {
			return dec(s.r)
		},
	}
}

// Bool encodes a bool as one byte.
func Bool() Value[bool] {
	return fixed(KindBool, 1, (*bytestream.Writer).WriteBool, (*bytestream.Reader).ReadBool)
}

// Int8 encodes an int8 as one byte.
func Int8() Value[int8] {
	return fixed(KindInt8, 1, (*bytestream.Writer).WriteInt8, (*bytestream.Reader).ReadInt8)
}

// Uint8 encodes a byte as itself.
func Uint8() Value[uint8] {
	return fixed(KindUint8, 1, func(w *bytestream.Writer, v uint8) { _ = w.WriteByte(v) }, (*bytestream.Reader).ReadByte)
}

// Int16 encodes an int16 as two bytes.
func Int16() Value[int16] {
	return fixed(KindInt16, 2, (*bytestream.Writer).WriteInt16, (*bytestream.Reader).ReadInt16)
}

// Uint16 encodes a uint16 as two bytes.
func Uint16() Value[uint16] {
	return fixed(KindUint16, 2, (*bytestream.Writer).WriteUint16, (*bytestream.Reader).ReadUint16)
}

// Int32 encodes an int32 as four bytes.
func Int32() Value[int32] {
	return fixed(KindInt32, 4, (*bytestream.Writer).WriteInt32, (*bytestream.Reader).ReadInt32)
}

// Uint32 encodes a uint32 as four bytes.
func Uint32() Value[uint32] {
	return fixed(KindUint32, 4, (*bytestream.Writer).WriteUint32, (*bytestream.Reader).ReadUint32)
}

// Int64 encodes an int64 as eight bytes.
func Int64() Value[int64] {
	return fixed(KindInt64, 8, (*bytestream.Writer).WriteInt64, (*bytestream.Reader).ReadInt64)
}

// Uint64 encodes a uint64 as eight bytes.
func Uint64() Value[uint64] {
	return fixed(KindUint64, 8, (*bytestream.Writer).WriteUint64, (*bytestream.Reader).ReadUint64)
}

// Float32 encodes a float32 as four IEEE 754 bytes.
func Float32() Value[float32] {
	return fixed(KindFloat32, 4, (*bytestream.Writer).WriteFloat32, (*bytestream.Reader).ReadFloat32)
}

// Float64 encodes a float64 as eight IEEE 754 bytes.
func Float64() Value[float64] {
	return fixed(KindFloat64, 8, (*bytestream.Writer).WriteFloat64, (*bytestream.Reader).ReadFloat64)
}

// String encodes a string as a compressed byte length followed by the text
// in the codec's text encoding.
func String() Value[string] {
	return Value[string]{
		kind:    KindString,
		name:    "string",
		minSize: 1,
		enc: func(s *encodeState, v string) error {
			b, err := bytestream.EncodeString(v, s.text)
			if err != nil {
				return err
			}
			if err := WriteCompressedSize(s.w, len(b)); err != nil {
				return err
			}
			_, _ = s.w.Write(b)
			return nil
		},
		dec: func(s *decodeState) (string, error) {
			n, err := ReadCompressedSize(s.r)
			if err != nil {
				return "", err
			}
			if n > s.limits.MaxAllocation {
				return "", fmt.Errorf("%w: string of %d bytes", ErrAllocationTooLarge, n)
			}
			return s.r.ReadString(n, s.text)
		},
	}
}

// Duration encodes a duration as an unsigned 32-bit count of whole seconds.
// The sub-second part is truncated. Negative durations and durations above
// math.MaxUint32 seconds cannot be encoded.
func Duration() Value[time.Duration] {
	return Value[time.Duration]{
		kind:    KindDuration,
		name:    "duration",
		minSize: 4,
		enc: func(s *encodeState, v time.Duration) error {
			secs := int64(v / time.Second)
			if v < 0 || secs > math.MaxUint32 {
				return fmt.Errorf("%w: duration %s", ErrValueOutOfRange, v)
			}
			s.w.WriteUint32(uint32(secs))
			return nil
		},
		dec: func(s *decodeState) (time.Duration, error) {
			secs, err := s.r.ReadUint32()
			return time.Duration(secs) * time.Second, err
		},
	}
}

// Time encodes an absolute time as signed 64-bit milliseconds since the Unix
// epoch. Decoded times are in UTC.
func Time() Value[time.Time] {
	return Value[time.Time]{
		kind:    KindTime,
		name:    "time",
		minSize: 8,
		enc: func(s *encodeState, v time.Time) error {
			s.w.WriteInt64(v.UnixMilli())
			return nil
		},
		dec: func(s *decodeState) (time.Time, error) {
			ms, err := s.r.ReadInt64()
			if err != nil {
				return time.Time{}, err
			}
			return time.UnixMilli(ms).UTC(), nil
		},
	}
}

// UUID encodes a 128-bit identifier as its 16 bytes in RFC 4122 order.
func UUID() Value[uuid.UUID] {
	return Value[uuid.UUID]{
		kind:    KindUUID,
		name:    "uuid",
		minSize: 16,
		enc: func(s *encodeState, v uuid.UUID) error {
			_, _ = s.w.Write(v[:])
			return nil
		},
		dec: func(s *decodeState) (uuid.UUID, error) {
			b, err := s.r.ReadBytes(16)
			if err != nil {
				return uuid.Nil, err
			}
			return uuid.FromBytes(b)
		},
	}
}

// Entity inlines the fields of a nested entity with no length prefix.
func Entity[S any](schema *Schema[S]) Value[S] {
	return Value[S]{
		kind:    KindEntity,
		name:    schema.name,
		minSize: schema.minSize(),
		refs:    []Descriptor{schema},
		enc: func(s *encodeState, v S) error {
			return schema.encodeNested(s, &v)
		},
		dec: func(s *decodeState) (S, error) {
			var v S
			err := schema.decodeNested(s, &v)
			return v, err
		},
	}
}

// EntityPtr is Entity for pointer fields. Encoding a nil pointer fails with
// ErrNilValue; the wire format has no presence marker.
func EntityPtr[S any](schema *Schema[S]) Value[*S] {
	return Value[*S]{
		kind:    KindEntity,
		name:    "*" + schema.name,
		minSize: schema.minSize(),
		refs:    []Descriptor{schema},
		enc: func(s *encodeState, v *S) error {
			if v == nil {
				return ErrNilValue
			}
			return schema.encodeNested(s, v)
		},
		dec: func(s *decodeState) (*S, error) {
			v := new(S)
			if err := schema.decodeNested(s, v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// Slice encodes a sequence as a compressed element count followed by each
// element. A nil slice encodes like an empty one; decoding a zero count
// yields an empty, non-nil slice.
func Slice[E any](elem Value[E]) Value[[]E] {
	return Value[[]E]{
		kind:    KindSlice,
		name:    "[]" + elem.name,
		minSize: 1,
		refs:    elem.refs,
		enc: func(s *encodeState, v []E) error {
			if err := WriteCompressedSize(s.w, len(v)); err != nil {
				return err
			}
			for i := range v {
				if err := elem.enc(s, v[i]); err != nil {
					return fmt.Errorf("element %d: %w", i, err)
				}
			}
			return nil
		},
		dec: func(s *decodeState) ([]E, error) {
			n, err := ReadCompressedSize(s.r)
			if err != nil {
				return nil, err
			}
			if n > s.limits.MaxCollectionCount {
				return nil, fmt.Errorf("%w: %d elements", ErrCollectionTooLarge, n)
			}
			// Each element takes at least minSize bytes, so the count
			// cannot exceed what is left in the buffer.
			if elem.minSize > 0 && n > s.r.Remaining()/elem.minSize {
				return nil, invalidPacket("sequence of %d elements exceeds remaining %d bytes", n, s.r.Remaining())
			}
			out := make([]E, n)
			for i := range out {
				if out[i], err = elem.dec(s); err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
			}
			return out, nil
		},
	}
}
