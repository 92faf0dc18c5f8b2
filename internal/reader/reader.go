// Package reader implements C1, the positional byte-slice reader used to
// decode the WebAssembly binary format: single bytes, little-endian
// fixed-width numbers, LEB128 varints, and length-prefixed UTF-8 names, all
// bounded by a current cursor and an upper limit.
package reader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/wasmine-go/wasmine/internal/leb128"
)

// ErrUnexpectedEOF is returned when a read runs past the reader's limit.
var ErrUnexpectedEOF = errors.New("reader: unexpected EOF")

// ErrInvalidUTF8 is returned when a name's bytes are not valid UTF-8.
var ErrInvalidUTF8 = errors.New("reader: invalid UTF-8 name")

// Reader reads sequentially from a byte slice between [0, limit), tracking
// an absolute offset for error reporting.
type Reader struct {
	buf   []byte
	pos   int
	limit int
	// base is the absolute offset of buf[0] within the module's source
	// buffer, used only to report byte offsets in errors.
	base int
}

// New returns a Reader over buf[:len(buf)].
func New(buf []byte) *Reader { return NewLimited(buf, 0) }

// NewLimited returns a Reader over buf bounded to `limit` bytes (0 means the
// whole slice).
func NewLimited(buf []byte, limit int) *Reader {
	if limit <= 0 || limit > len(buf) {
		limit = len(buf)
	}
	return &Reader{buf: buf, limit: limit}
}

// WithBase returns a copy of r whose offsets are reported relative to base.
func (r *Reader) WithBase(base int) *Reader {
	cp := *r
	cp.base = base
	return &cp
}

// Offset returns the current absolute byte offset (for error messages).
func (r *Reader) Offset() int { return r.base + r.pos }

// Len returns the number of unread bytes remaining within the limit.
func (r *Reader) Len() int { return r.limit - r.pos }

// Remaining returns the unread bytes within the limit, without advancing.
func (r *Reader) Remaining() []byte { return r.buf[r.pos:r.limit] }

// ReadByte implements io.ByteReader, required by the leb128 decoders.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= r.limit {
		return 0, io.EOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// Byte reads a single byte, failing with ErrUnexpectedEOF at end of input.
func (r *Reader) Byte() (byte, error) {
	b, err := r.ReadByte()
	if err == io.EOF {
		return 0, r.eof()
	}
	return b, err
}

// Advance skips n bytes, failing if that runs past the limit.
func (r *Reader) Advance(n int) error {
	if r.pos+n > r.limit || n < 0 {
		return r.eof()
	}
	r.pos += n
	return nil
}

// Bytes reads and returns the next n bytes (a view into the backing slice).
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > r.limit {
		return nil, r.eof()
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// F32 reads a little-endian IEEE-754 single-precision float.
func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// F64 reads a little-endian IEEE-754 double-precision float.
func (r *Reader) F64() (float64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// VarUint32 reads an unsigned LEB128 value of at most 32 bits.
func (r *Reader) VarUint32() (uint32, error) {
	v, err := leb128.DecodeUint32(r)
	return v, r.wrap(err)
}

// VarUint64 reads an unsigned LEB128 value of at most 64 bits.
func (r *Reader) VarUint64() (uint64, error) {
	v, err := leb128.DecodeUint64(r)
	return v, r.wrap(err)
}

// VarInt32 reads a signed LEB128 value of at most 32 bits.
func (r *Reader) VarInt32() (int32, error) {
	v, err := leb128.DecodeInt32(r)
	return v, r.wrap(err)
}

// VarInt64 reads a signed LEB128 value of at most 64 bits.
func (r *Reader) VarInt64() (int64, error) {
	v, err := leb128.DecodeInt64(r)
	return v, r.wrap(err)
}

// Name reads a LEB128 length-prefixed UTF-8 string.
func (r *Reader) Name() (string, error) {
	n, err := r.VarUint32()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w at offset %d", ErrInvalidUTF8, r.Offset())
	}
	return string(b), nil
}

func (r *Reader) eof() error {
	return fmt.Errorf("%w at offset %d", ErrUnexpectedEOF, r.Offset())
}

func (r *Reader) wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return r.eof()
	}
	return fmt.Errorf("%w at offset %d", err, r.Offset())
}
