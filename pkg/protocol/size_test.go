package protocol

import (
	"errors"
	"math"
	"testing"

	"github.com/byteflow-dev/byteflow/pkg/bytestream"
)

func TestCompressedSizeBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		value int
		tag   SizeTag
		bytes int
	}{
		{"zero", 0, SizeZero, 1},
		{"one", 1, SizeOne, 2},
		{"max_1byte", 255, SizeOne, 2},
		{"min_2byte", 256, SizeTwo, 3},
		{"max_2byte", 65535, SizeTwo, 3},
		{"min_4byte", 65536, SizeFour, 5},
		{"max_int32", math.MaxInt32, SizeFour, 5},
	}

	for _, endian := range []bytestream.Endian{bytestream.BigEndian, bytestream.LittleEndian} {
		for _, tc := range tests {
			t.Run(endian.String()+"/"+tc.name, func(t *testing.T) {
				if got := CompressedSizeTag(tc.value); got != tc.tag {
					t.Errorf("CompressedSizeTag(%d) = %s, want %s", tc.value, got, tc.tag)
				}

				w := bytestream.NewWriter(endian)
				defer w.Release()
				if err := WriteCompressedSize(w, tc.value); err != nil {
					t.Fatalf("WriteCompressedSize(%d) error: %v", tc.value, err)
				}
				buf := w.Bytes()
				if len(buf) != tc.bytes {
					t.Errorf("WriteCompressedSize(%d) wrote %d bytes, want %d", tc.value, len(buf), tc.bytes)
				}
				if len(buf) != CompressedSizeLen(tc.value) {
					t.Errorf("CompressedSizeLen(%d) = %d, want %d", tc.value, CompressedSizeLen(tc.value), len(buf))
				}
				if SizeTag(buf[0]) != tc.tag {
					t.Errorf("tag byte = %d, want %d", buf[0], tc.tag)
				}

				r := bytestream.NewReader(buf, endian)
				got, err := ReadCompressedSize(r)
				if err != nil {
					t.Fatalf("ReadCompressedSize() error: %v", err)
				}
				if got != tc.value {
					t.Errorf("ReadCompressedSize() = %d, want %d", got, tc.value)
				}
				if r.Remaining() != 0 {
					t.Errorf("Remaining() = %d, want 0", r.Remaining())
				}
			})
		}
	}
}

func TestCompressedSizeLaw(t *testing.T) {
	for n := 0; n < 70000; n += 7 {
		w := bytestream.NewWriter(bytestream.BigEndian)
		if err := WriteCompressedSize(w, n); err != nil {
			t.Fatalf("WriteCompressedSize(%d) error: %v", n, err)
		}
		got, err := ReadCompressedSize(bytestream.NewReader(w.Bytes(), bytestream.BigEndian))
		w.Release()
		if err != nil || got != n {
			t.Fatalf("decode(encode(%d)) = %d, %v", n, got, err)
		}
	}
}

func TestCompressedSizeErrors(t *testing.T) {
	w := bytestream.NewWriter(bytestream.BigEndian)
	defer w.Release()
	if err := WriteCompressedSize(w, -1); !errors.Is(err, ErrNegativeSize) {
		t.Errorf("WriteCompressedSize(-1) error = %v, want ErrNegativeSize", err)
	}

	// Tags above 2 all read four bytes; a negative value is invalid.
	r := bytestream.NewReader([]byte{0x07, 0xFF, 0xFF, 0xFF, 0xFF}, bytestream.BigEndian)
	if _, err := ReadCompressedSize(r); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("ReadCompressedSize(negative) error = %v, want ErrInvalidSize", err)
	}

	r = bytestream.NewReader([]byte{0x09, 0x00, 0x00, 0x01, 0x00}, bytestream.BigEndian)
	if got, err := ReadCompressedSize(r); err != nil || got != 256 {
		t.Errorf("ReadCompressedSize(tag 9) = %d, %v; want 256, nil", got, err)
	}

	r = bytestream.NewReader([]byte{0x02, 0x01}, bytestream.BigEndian)
	if _, err := ReadCompressedSize(r); err == nil {
		t.Error("ReadCompressedSize(truncated) should fail")
	}
}
