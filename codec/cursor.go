package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer is a little-endian cursor over a seekable stream. It tracks
// the absolute position itself so alignment checks and back-patching
// never have to query the underlying stream.
type Writer struct {
	w   io.WriteSeeker
	pos int64
	buf [8]byte
}

// NewWriter positions a cursor at the stream's current offset.
func NewWriter(w io.WriteSeeker) (*Writer, error) {
	pos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("query stream position: %w", err)
	}
	return &Writer{w: w, pos: pos}, nil
}

// Pos returns the absolute byte position.
func (w *Writer) Pos() int64 { return w.pos }

// SeekTo moves the cursor to an absolute position.
func (w *Writer) SeekTo(pos int64) error {
	if _, err := w.w.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", pos, err)
	}
	w.pos = pos
	return nil
}

func (w *Writer) write(b []byte) error {
	n, err := w.w.Write(b)
	w.pos += int64(n)
	if err != nil {
		return fmt.Errorf("write at %d: %w", w.pos, err)
	}
	return nil
}

// Bytes writes b verbatim.
func (w *Writer) Bytes(b []byte) error { return w.write(b) }

// U32 writes a little-endian uint32.
func (w *Writer) U32(v uint32) error {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	return w.write(w.buf[:4])
}

// I32 writes a little-endian int32.
func (w *Writer) I32(v int32) error { return w.U32(uint32(v)) }

// U16 writes a little-endian uint16.
func (w *Writer) U16(v uint16) error {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	return w.write(w.buf[:2])
}

// I16 writes a little-endian int16.
func (w *Writer) I16(v int16) error { return w.U16(uint16(v)) }

// U8 writes one byte.
func (w *Writer) U8(v uint8) error {
	w.buf[0] = v
	return w.write(w.buf[:1])
}

// I8 writes one signed byte.
func (w *Writer) I8(v int8) error { return w.U8(uint8(v)) }

// F32 writes a little-endian IEEE 754 float32.
func (w *Writer) F32(v float32) error { return w.U32(math.Float32bits(v)) }

// Location writes an offset/length pair.
func (w *Writer) Location(off, length uint32) error {
	if err := w.U32(off); err != nil {
		return err
	}
	return w.U32(length)
}

// Zero writes n zero bytes.
func (w *Writer) Zero(n int) error {
	var zeros [64]byte
	for n > 0 {
		k := n
		if k > len(zeros) {
			k = len(zeros)
		}
		if err := w.write(zeros[:k]); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// Reserve writes n placeholder zero bytes and returns their position,
// to be rewritten later through Patch.
func (w *Writer) Reserve(n int) (int64, error) {
	mark := w.pos
	if err := w.Zero(n); err != nil {
		return 0, err
	}
	return mark, nil
}

// Patch runs fn with the cursor moved to mark, restoring the saved
// position on every exit path. Patches nest LIFO: a forest index patch
// may run inside the model index patch.
func (w *Writer) Patch(mark int64, fn func() error) error {
	saved := w.pos
	if err := w.SeekTo(mark); err != nil {
		return err
	}
	ferr := fn()
	serr := w.SeekTo(saved)
	if ferr != nil {
		return ferr
	}
	return serr
}

// AssertAligned fails when the cursor is off a 4-byte boundary. Section
// boundaries must land aligned on their own; padding over a misaligned
// unit would corrupt the runtime's memory-mapped view.
func (w *Writer) AssertAligned(what string) error {
	if w.pos%4 != 0 {
		return fmt.Errorf("%w: %s ends at %d", ErrMisaligned, what, w.pos)
	}
	return nil
}

// Pad4 writes zero bytes up to the next 4-byte boundary.
func (w *Writer) Pad4() error {
	if rem := int(w.pos % 4); rem != 0 {
		return w.Zero(4 - rem)
	}
	return nil
}

// Reader is the little-endian counterpart of Writer.
type Reader struct {
	r   io.ReadSeeker
	pos int64
	buf [8]byte
}

// NewReader positions a cursor at the stream's current offset.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("query stream position: %w", err)
	}
	return &Reader{r: r, pos: pos}, nil
}

// Pos returns the absolute byte position.
func (r *Reader) Pos() int64 { return r.pos }

// SeekTo moves the cursor to an absolute position.
func (r *Reader) SeekTo(pos int64) error {
	if _, err := r.r.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", pos, err)
	}
	r.pos = pos
	return nil
}

// Size returns the stream length without moving the cursor.
func (r *Reader) Size() (int64, error) {
	end, err := r.r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seek to end: %w", err)
	}
	if _, err := r.r.Seek(r.pos, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek back to %d: %w", r.pos, err)
	}
	return end, nil
}

func (r *Reader) read(b []byte) error {
	n, err := io.ReadFull(r.r, b)
	r.pos += int64(n)
	if err != nil {
		return fmt.Errorf("%w: read %d bytes at %d: %v", ErrInvalidData, len(b), r.pos, err)
	}
	return nil
}

// Bytes reads exactly len(b) bytes.
func (r *Reader) Bytes(b []byte) error { return r.read(b) }

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.read(r.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.buf[:4]), nil
}

// I32 reads a little-endian int32.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	if err := r.read(r.buf[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.buf[:2]), nil
}

// I16 reads a little-endian int16.
func (r *Reader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

// U8 reads one byte.
func (r *Reader) U8() (uint8, error) {
	if err := r.read(r.buf[:1]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

// I8 reads one signed byte.
func (r *Reader) I8() (int8, error) {
	v, err := r.U8()
	return int8(v), err
}

// F32 reads a little-endian IEEE 754 float32.
func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	return math.Float32frombits(v), err
}

// Location reads an offset/length pair.
func (r *Reader) Location() (off, length uint32, err error) {
	if off, err = r.U32(); err != nil {
		return 0, 0, err
	}
	length, err = r.U32()
	return off, length, err
}

// AssertAligned fails when the cursor is off a 4-byte boundary.
func (r *Reader) AssertAligned(what string) error {
	if r.pos%4 != 0 {
		return fmt.Errorf("%w: %s ends at %d", ErrMisaligned, what, r.pos)
	}
	return nil
}

// SkipPad4 consumes the zero bytes up to the next 4-byte boundary and
// rejects nonzero padding.
func (r *Reader) SkipPad4() error {
	rem := int(r.pos % 4)
	if rem == 0 {
		return nil
	}
	for i := 0; i < 4-rem; i++ {
		b, err := r.U8()
		if err != nil {
			return err
		}
		if b != 0 {
			return fmt.Errorf("%w: nonzero padding byte 0x%02x at %d", ErrInvalidData, b, r.pos-1)
		}
	}
	return nil
}

// MemFile is an in-memory io.ReadWriteSeeker. Stream sections are
// staged through one so leaf name→offset maps exist before the forest
// is encoded, and the checker round-trips fonts without touching disk.
type MemFile struct {
	buf []byte
	off int64
}

// NewMemFile returns an empty in-memory file.
func NewMemFile() *MemFile { return &MemFile{} }

// Write implements io.Writer, growing the buffer as needed.
func (m *MemFile) Write(p []byte) (int, error) {
	if need := m.off + int64(len(p)); need > int64(len(m.buf)) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.off:], p)
	m.off += int64(len(p))
	return len(p), nil
}

// Read implements io.Reader.
func (m *MemFile) Read(p []byte) (int, error) {
	if m.off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.off:])
	m.off += int64(n)
	return n, nil
}

// Seek implements io.Seeker.
func (m *MemFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = m.off
	case io.SeekEnd:
		base = int64(len(m.buf))
	default:
		return 0, fmt.Errorf("seek: unknown whence %d", whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("seek: negative position %d", pos)
	}
	m.off = pos
	return pos, nil
}

// Bytes returns the written content.
func (m *MemFile) Bytes() []byte { return m.buf }

// Len returns the content length.
func (m *MemFile) Len() int { return len(m.buf) }
