// Package encoding provides the binary primitives used to serialize ref and
// log records into a table file: little-endian fixed-width integers,
// 7-bit varints, and length-prefixed byte strings.
package encoding

import (
	"encoding/binary"
	"errors"
)

// MaxVarint64Length is the maximum number of bytes a varint64 can occupy.
const MaxVarint64Length = 10

var (
	// ErrBufferTooSmall is returned when a length-prefixed slice claims more
	// bytes than remain in the buffer.
	ErrBufferTooSmall = errors.New("encoding: buffer too small")

	// ErrVarintOverflow is returned when a varint exceeds 64 bits.
	ErrVarintOverflow = errors.New("encoding: varint overflow")

	// ErrVarintTermination is returned when a varint runs off the end of the
	// buffer before its continuation bit clears.
	ErrVarintTermination = errors.New("encoding: varint not terminated")
)

// AppendFixed64 appends a little-endian uint64 to dst.
func AppendFixed64(dst []byte, value uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, value)
}

// DecodeFixed64 decodes a uint64 from the first 8 bytes of src.
func DecodeFixed64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

// AppendVarint32 appends a uint32 as a varint to dst.
func AppendVarint32(dst []byte, value uint32) []byte {
	return AppendVarint64(dst, uint64(value))
}

// DecodeVarint32 decodes a varint32 from src, returning the value and the
// number of bytes consumed.
func DecodeVarint32(src []byte) (value uint32, bytesRead int, err error) {
	v, n, err := DecodeVarint64(src)
	if err != nil {
		return 0, 0, err
	}
	if v > 0xffffffff {
		return 0, 0, ErrVarintOverflow
	}
	return uint32(v), n, nil
}

// AppendVarint64 appends a uint64 as a varint (7 bits per byte, MSB is the
// continuation bit) to dst.
func AppendVarint64(dst []byte, value uint64) []byte {
	for value >= 0x80 {
		dst = append(dst, byte(value&0x7f)|0x80)
		value >>= 7
	}
	return append(dst, byte(value))
}

// DecodeVarint64 decodes a varint64 from src, returning the value and the
// number of bytes consumed.
func DecodeVarint64(src []byte) (value uint64, bytesRead int, err error) {
	var result uint64
	for shift := uint(0); shift < 64; shift += 7 {
		if bytesRead >= len(src) {
			return 0, 0, ErrVarintTermination
		}
		b := src[bytesRead]
		bytesRead++
		if b < 0x80 {
			result |= uint64(b) << shift
			return result, bytesRead, nil
		}
		result |= uint64(b&0x7f) << shift
	}
	return 0, 0, ErrVarintOverflow
}

// VarintLength returns the number of bytes AppendVarint64 would write for v.
func VarintLength(v uint64) int {
	length := 1
	for v >= 0x80 {
		v >>= 7
		length++
	}
	return length
}

// AppendLengthPrefixedSlice appends value to dst prefixed by its varint32
// length.
func AppendLengthPrefixedSlice(dst []byte, value []byte) []byte {
	dst = AppendVarint32(dst, uint32(len(value)))
	return append(dst, value...)
}

// DecodeLengthPrefixedSlice decodes a length-prefixed slice from src. The
// returned slice aliases src.
func DecodeLengthPrefixedSlice(src []byte) (value []byte, bytesRead int, err error) {
	length, n, err := DecodeVarint32(src)
	if err != nil {
		return nil, 0, err
	}
	bytesRead = n
	if bytesRead+int(length) > len(src) {
		return nil, 0, ErrBufferTooSmall
	}
	value = src[bytesRead : bytesRead+int(length)]
	bytesRead += int(length)
	return value, bytesRead, nil
}

// Cursor reads sequentially through a byte slice, tracking position. It is
// used by the table reader to walk a block of records without re-slicing at
// every step.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor creates a Cursor over data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

// Data returns the unread tail of the buffer.
func (c *Cursor) Data() []byte {
	return c.data[c.pos:]
}

// GetFixed64 reads a fixed 8-byte little-endian value.
func (c *Cursor) GetFixed64() (uint64, bool) {
	if c.Remaining() < 8 {
		return 0, false
	}
	v := DecodeFixed64(c.data[c.pos:])
	c.pos += 8
	return v, true
}

// GetVarint64 reads a varint64.
func (c *Cursor) GetVarint64() (uint64, bool) {
	v, n, err := DecodeVarint64(c.data[c.pos:])
	if err != nil {
		return 0, false
	}
	c.pos += n
	return v, true
}

// GetLengthPrefixedSlice reads a length-prefixed byte slice.
func (c *Cursor) GetLengthPrefixedSlice() ([]byte, bool) {
	v, n, err := DecodeLengthPrefixedSlice(c.data[c.pos:])
	if err != nil {
		return nil, false
	}
	c.pos += n
	return v, true
}

// GetByte reads a single byte.
func (c *Cursor) GetByte() (byte, bool) {
	if c.Remaining() < 1 {
		return 0, false
	}
	v := c.data[c.pos]
	c.pos++
	return v, true
}

// GetBytes reads exactly n bytes.
func (c *Cursor) GetBytes(n int) ([]byte, bool) {
	if c.Remaining() < n {
		return nil, false
	}
	v := c.data[c.pos : c.pos+n]
	c.pos += n
	return v, true
}
