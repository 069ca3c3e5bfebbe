package bytestream

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"golang.org/x/text/encoding"
)

// BaseSize is the baseline capacity of a pooled writer buffer. Buffers grow
// in multiples of BaseSize.
const BaseSize = 512

// ErrReleased is returned by WriteAt when the writer has already been released.
var ErrReleased = errors.New("bytestream: writer released")

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, BaseSize)
		return &b
	},
}

func getBuffer(size int) *[]byte {
	bp := bufPool.Get().(*[]byte)
	if cap(*bp) < size {
		bufPool.Put(bp)
		b := make([]byte, size)
		return &b
	}
	*bp = (*bp)[:cap(*bp)]
	return bp
}

func putBuffer(bp *[]byte) {
	if bp == nil {
		return
	}
	bufPool.Put(bp)
}

// roundUp returns the smallest multiple of BaseSize that is >= n.
func roundUp(n int) int {
	if n <= BaseSize {
		return BaseSize
	}
	return ((n + BaseSize - 1) / BaseSize) * BaseSize
}

// Writer writes primitive values into a pooled, growable buffer.
type Writer struct {
	bp    *[]byte
	pos   int
	n     int
	order binary.ByteOrder
}

// NewWriter creates a writer with a pooled buffer of BaseSize bytes.
func NewWriter(e Endian) *Writer {
	return &Writer{bp: getBuffer(BaseSize), order: e.order()}
}

// Len returns the number of bytes written, including bytes written past the
// cursor by WriteAt.
func (w *Writer) Len() int {
	return w.n
}

// Cap returns the capacity of the current buffer.
func (w *Writer) Cap() int {
	if w.bp == nil {
		return 0
	}
	return len(*w.bp)
}

// Position returns the current write position.
func (w *Writer) Position() int {
	return w.pos
}

// Bytes returns a copy of the written bytes.
func (w *Writer) Bytes() []byte {
	if w.bp == nil {
		return nil
	}
	out := make([]byte, w.n)
	copy(out, (*w.bp)[:w.n])
	return out
}

// Reset empties the writer, keeping its buffer.
func (w *Writer) Reset() {
	w.pos = 0
	w.n = 0
}

// Release returns the buffer to the pool. It is safe to call more than once;
// the writer must not be used afterwards.
func (w *Writer) Release() {
	putBuffer(w.bp)
	w.bp = nil
	w.pos = 0
	w.n = 0
}

// ensure makes room for size more bytes at the cursor and returns the slice
// to write into.
func (w *Writer) ensure(size int) []byte {
	if w.bp == nil {
		w.bp = getBuffer(BaseSize)
	}
	need := w.pos + size
	if need > len(*w.bp) {
		nb := getBuffer(roundUp(need))
		copy(*nb, (*w.bp)[:w.n])
		putBuffer(w.bp)
		w.bp = nb
	}
	b := (*w.bp)[w.pos:need]
	w.pos = need
	if w.pos > w.n {
		w.n = w.pos
	}
	return b
}

// WriteAt moves the cursor to offset, runs fn, then restores the cursor.
// It is used to backfill values whose content is known only later.
func (w *Writer) WriteAt(offset int, fn func(w *Writer) error) error {
	if w.bp == nil {
		return ErrReleased
	}
	if offset < 0 || offset > w.n {
		return errors.New("bytestream: offset out of range")
	}
	saved := w.pos
	w.pos = offset
	err := fn(w)
	w.pos = saved
	return err
}

// WriteByte writes a single byte. It always returns nil.
func (w *Writer) WriteByte(b byte) error {
	w.ensure(1)[0] = b
	return nil
}

// WriteBool writes a boolean as a single byte (0x00 or 0x01).
func (w *Writer) WriteBool(v bool) {
	if v {
		w.ensure(1)[0] = 1
	} else {
		w.ensure(1)[0] = 0
	}
}

// WriteInt8 writes a signed byte.
func (w *Writer) WriteInt8(v int8) {
	w.ensure(1)[0] = byte(v)
}

// WriteUint16 writes a uint16 in the writer's byte order.
func (w *Writer) WriteUint16(v uint16) {
	w.order.PutUint16(w.ensure(2), v)
}

// WriteInt16 writes an int16 in the writer's byte order.
func (w *Writer) WriteInt16(v int16) {
	w.WriteUint16(uint16(v))
}

// WriteUint32 writes a uint32 in the writer's byte order.
func (w *Writer) WriteUint32(v uint32) {
	w.order.PutUint32(w.ensure(4), v)
}

// WriteInt32 writes an int32 in the writer's byte order.
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteUint64 writes a uint64 in the writer's byte order.
func (w *Writer) WriteUint64(v uint64) {
	w.order.PutUint64(w.ensure(8), v)
}

// WriteInt64 writes an int64 in the writer's byte order.
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteFloat32 writes an IEEE 754 single-precision float.
func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 writes an IEEE 754 double-precision float.
func (w *Writer) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

// Write appends raw bytes. It implements io.Writer and never fails.
func (w *Writer) Write(b []byte) (int, error) {
	copy(w.ensure(len(b)), b)
	return len(b), nil
}

// EncodeString converts s to bytes using enc (UTF-8 when enc is nil).
func EncodeString(s string, enc encoding.Encoding) ([]byte, error) {
	if enc == nil {
		return []byte(s), nil
	}
	return enc.NewEncoder().Bytes([]byte(s))
}
