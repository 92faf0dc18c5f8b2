// Package leb128 implements the LEB128 variable-length integer encoding used
// throughout the WebAssembly binary format (C1, §4.1 of the design).
package leb128

import (
	"errors"
	"io"
)

// ErrOverflow is returned when a LEB128 value needs more bits than the
// caller's target width allows.
var ErrOverflow = errors.New("leb128: integer overflow")

// ErrInvalid names an invalid LEB128 encoding. The decoders in this package
// do not return it: a value too wide for the requested width, including a
// non-canonical sign-extension pattern, is reported as ErrOverflow.
var ErrInvalid = errors.New("leb128: invalid encoding")

// DecodeUint32 reads an unsigned LEB128 value truncated to 32 bits.
func DecodeUint32(r io.ByteReader) (uint32, error) {
	v, err := decodeUint(r, 32)
	return uint32(v), err
}

// DecodeUint64 reads an unsigned LEB128 value of up to 64 bits.
func DecodeUint64(r io.ByteReader) (uint64, error) {
	return decodeUint(r, 64)
}

func decodeUint(r io.ByteReader, width uint) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if shift >= 64 {
			return 0, ErrOverflow
		}
		result |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if width < 64 && result>>width != 0 {
		return 0, ErrOverflow
	}
	return result, nil
}

// DecodeInt32 reads a signed LEB128 value truncated to 32 bits.
func DecodeInt32(r io.ByteReader) (int32, error) {
	v, err := decodeInt(r, 32)
	return int32(v), err
}

// DecodeInt64 reads a signed LEB128 value of up to 64 bits.
func DecodeInt64(r io.ByteReader) (int64, error) {
	v, err := decodeInt(r, 64)
	return v, err
}

func decodeInt(r io.ByteReader, width uint) (int64, error) {
	var result int64
	var shift uint
	var b byte
	for {
		var err error
		b, err = r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if shift >= 64 {
			return 0, ErrOverflow
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	// Sign-extend using the final group's sign bit.
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if width >= 64 {
		return result, nil
	}
	// The value must be representable in `width` signed bits: re-extending
	// from width must reproduce the same value, otherwise either the
	// magnitude overflows the target width or the encoding used more bytes
	// than the canonical (minimal) form would, which this decoder treats as
	// the same class of error (non-canonical excess-width encoding).
	trunc := result << (64 - width) >> (64 - width)
	if trunc != result {
		return 0, ErrOverflow
	}
	return result, nil
}

// EncodeUint32 appends the unsigned LEB128 encoding of v to dst.
func EncodeUint32(dst []byte, v uint32) []byte { return EncodeUint64(dst, uint64(v)) }

// EncodeUint64 appends the unsigned LEB128 encoding of v to dst.
func EncodeUint64(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			dst = append(dst, b|0x80)
		} else {
			dst = append(dst, b)
			return dst
		}
	}
}

// EncodeInt32 appends the signed LEB128 encoding of v to dst.
func EncodeInt32(dst []byte, v int32) []byte { return EncodeInt64(dst, int64(v)) }

// EncodeInt64 appends the signed LEB128 encoding of v to dst.
func EncodeInt64(dst []byte, v int64) []byte {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst
}
