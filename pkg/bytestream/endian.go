package bytestream

import "encoding/binary"

// Endian selects the byte order of fixed-width values.
type Endian uint8

const (
	BigEndian Endian = iota
	LittleEndian
)

// String returns the string representation of the byte order.
func (e Endian) String() string {
	switch e {
	case BigEndian:
		return "big"
	case LittleEndian:
		return "little"
	default:
		return "unknown"
	}
}

// ParseEndian maps "big"/"little" (and the empty string, meaning big) to an Endian.
func ParseEndian(s string) (Endian, bool) {
	switch s {
	case "", "big", "big-endian":
		return BigEndian, true
	case "little", "little-endian":
		return LittleEndian, true
	default:
		return BigEndian, false
	}
}

func (e Endian) order() binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
