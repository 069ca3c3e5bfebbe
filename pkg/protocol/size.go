package protocol

import (
	"fmt"
	"math"

	"github.com/byteflow-dev/byteflow/pkg/bytestream"
)

// SizeTag is the leading byte of a compressed size and selects the width of
// the value that follows it.
type SizeTag byte

const (
	SizeZero SizeTag = 0 // no following bytes, value 0
	SizeOne  SizeTag = 1 // 1 following byte
	SizeTwo  SizeTag = 2 // 2 following bytes, unsigned
	SizeFour SizeTag = 3 // 4 following bytes, signed; any tag above 2 decodes this way
)

// String returns the string representation of the size tag.
func (t SizeTag) String() string {
	switch t {
	case SizeZero:
		return "Zero"
	case SizeOne:
		return "OneByte"
	case SizeTwo:
		return "TwoByte"
	default:
		return "FourByte"
	}
}

// CompressedSizeTag returns the tag that encodes n.
func CompressedSizeTag(n int) SizeTag {
	switch {
	case n == 0:
		return SizeZero
	case n > 0 && n <= math.MaxUint8:
		return SizeOne
	case n > 0 && n <= math.MaxUint16:
		return SizeTwo
	default:
		return SizeFour
	}
}

// CompressedSizeLen returns the number of bytes WriteCompressedSize uses for n.
func CompressedSizeLen(n int) int {
	switch CompressedSizeTag(n) {
	case SizeZero:
		return 1
	case SizeOne:
		return 2
	case SizeTwo:
		return 3
	default:
		return 5
	}
}

// WriteCompressedSize writes n as a tag byte followed by the smallest width
// that holds it.
func WriteCompressedSize(w *bytestream.Writer, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeSize, n)
	}
	if n > math.MaxInt32 {
		return fmt.Errorf("%w: size %d", ErrValueOutOfRange, n)
	}
	tag := CompressedSizeTag(n)
	_ = w.WriteByte(byte(tag))
	switch tag {
	case SizeZero:
	case SizeOne:
		_ = w.WriteByte(byte(n))
	case SizeTwo:
		w.WriteUint16(uint16(n))
	default:
		w.WriteInt32(int32(n))
	}
	return nil
}

// ReadCompressedSize reads a value written by WriteCompressedSize.
func ReadCompressedSize(r *bytestream.Reader) (int, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch SizeTag(tag) {
	case SizeZero:
		return 0, nil
	case SizeOne:
		b, err := r.ReadByte()
		return int(b), err
	case SizeTwo:
		v, err := r.ReadUint16()
		return int(v), err
	default:
		v, err := r.ReadInt32()
		if err != nil {
			return 0, err
		}
		if v < 0 {
			return 0, fmt.Errorf("%w: %d", ErrInvalidSize, v)
		}
		return int(v), nil
	}
}
