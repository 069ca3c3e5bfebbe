// Package bytestream provides endianness-aware primitive reads and writes over
// byte buffers.
//
// A Reader is a cursor over an immutable buffer. A Writer owns a growable
// buffer borrowed from a shared pool; it must be released when done:
//
//	w := bytestream.NewWriter(bytestream.BigEndian)
//	defer w.Release()
//	w.WriteUint16(7)
//	mark := w.Position()
//	w.WriteUint32(0) // placeholder
//	...
//	w.WriteAt(mark, func(w *bytestream.Writer) error {
//		w.WriteUint32(uint32(w.Len() - mark - 4))
//		return nil
//	})
//
// Writers are not safe for concurrent use. Readers are safe for concurrent
// use only if each goroutine owns its own Reader.
package bytestream
