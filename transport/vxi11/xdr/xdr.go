// Package xdr implements the subset of External Data Representation
// (RFC 1014) that VXI-11's ONC-RPC messages need: big-endian fixed-width
// integers, opaque byte strings padded to 4-byte boundaries, and
// length-prefixed variable arrays of opaque bytes. No library in the
// retrieved example pack speaks XDR, so this is hand-written in the same
// manual fixed-offset byte-packing style the teacher uses for its own
// invented wire protocol (see DESIGN.md, component H).
package xdr

import (
	"encoding/binary"
	"fmt"
)

// Encoder accumulates an XDR-encoded message.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte { return e.buf }

// PutUint32 appends a 4-byte big-endian unsigned integer.
func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutInt32 appends a 4-byte big-endian signed integer.
func (e *Encoder) PutInt32(v int32) { e.PutUint32(uint32(v)) }

// PutUint64 appends an 8-byte big-endian unsigned integer (hyper).
func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutBool appends a boolean as a 4-byte XDR enum (0 or 1).
func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutUint32(1)
	} else {
		e.PutUint32(0)
	}
}

// PutOpaque appends a variable-length opaque byte string: a uint32
// length prefix, the bytes themselves, then zero-padding out to a
// multiple of 4 bytes (RFC 1014 §3.10).
func (e *Encoder) PutOpaque(data []byte) {
	e.PutUint32(uint32(len(data)))
	e.buf = append(e.buf, data...)
	if pad := paddedLen(len(data)) - len(data); pad > 0 {
		e.buf = append(e.buf, make([]byte, pad)...)
	}
}

// PutString appends a string using the same opaque-with-padding
// encoding as PutOpaque (RFC 1014 §3.11).
func (e *Encoder) PutString(s string) { e.PutOpaque([]byte(s)) }

func paddedLen(n int) int {
	if rem := n % 4; rem != 0 {
		return n + (4 - rem)
	}
	return n
}

// Decoder reads sequential XDR-encoded fields from a fixed buffer.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for sequential decoding.
func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

// Remaining reports how many bytes are left to decode.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) need(n int) error {
	if d.Remaining() < n {
		return fmt.Errorf("xdr: need %d bytes, have %d", n, d.Remaining())
	}
	return nil
}

// GetUint32 decodes a 4-byte big-endian unsigned integer.
func (d *Decoder) GetUint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

// GetInt32 decodes a 4-byte big-endian signed integer.
func (d *Decoder) GetInt32() (int32, error) {
	v, err := d.GetUint32()
	return int32(v), err
}

// GetUint64 decodes an 8-byte big-endian unsigned integer (hyper).
func (d *Decoder) GetUint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return v, nil
}

// GetBool decodes a 4-byte XDR enum as a boolean (nonzero is true).
func (d *Decoder) GetBool() (bool, error) {
	v, err := d.GetUint32()
	return v != 0, err
}

// GetOpaque decodes a variable-length opaque byte string, consuming its
// length prefix, payload and any trailing padding.
func (d *Decoder) GetOpaque() ([]byte, error) {
	n, err := d.GetUint32()
	if err != nil {
		return nil, err
	}
	total := paddedLen(int(n))
	if err := d.need(total); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.buf[d.pos:d.pos+int(n)])
	d.pos += total
	return out, nil
}

// GetString decodes a string using the same opaque-with-padding
// encoding as GetOpaque.
func (d *Decoder) GetString() (string, error) {
	b, err := d.GetOpaque()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
