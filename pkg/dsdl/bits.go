// Package dsdl implements the UAVCAN v0 bit-level serialization and
// the node management data types built on it.
package dsdl

import (
	"errors"
	"math"
)

var (
	// ErrShortPayload indicates a payload ending before all fields.
	ErrShortPayload = errors.New("dsdl: payload too short")
	// ErrInvalidTag indicates a union tag outside the declared fields.
	ErrInvalidTag = errors.New("dsdl: invalid union tag")
	// ErrArrayTooLong indicates a dynamic array over its capacity.
	ErrArrayTooLong = errors.New("dsdl: array exceeds capacity")
)

// BitWriter serializes fields. Scalars are written little-endian by
// byte, each byte most significant bit first, and the trailing
// partial byte contributes its low bits.
type BitWriter struct {
	buf []byte
	pos int
}

// Bytes returns the encoded payload, padded to a whole byte.
func (w *BitWriter) Bytes() []byte {
	return w.buf
}

func (w *BitWriter) putBit(bit bool) {
	if w.pos%8 == 0 {
		w.buf = append(w.buf, 0)
	}
	if bit {
		w.buf[w.pos/8] |= 0x80 >> uint(w.pos%8)
	}
	w.pos++
}

// Uint writes the low n bits of v.
func (w *BitWriter) Uint(v uint64, n int) {
	for shift := 0; n > 0; shift += 8 {
		b := byte(v >> uint(shift))
		chunk := 8
		if n < 8 {
			chunk = n
		}
		for i := chunk - 1; i >= 0; i-- {
			w.putBit(b&(1<<uint(i)) != 0)
		}
		n -= chunk
	}
}

// Int writes a two's complement signed value of n bits.
func (w *BitWriter) Int(v int64, n int) {
	w.Uint(uint64(v), n)
}

// Bool writes one bit.
func (w *BitWriter) Bool(v bool) {
	w.putBit(v)
}

// Float32 writes an IEEE754 single.
func (w *BitWriter) Float32(v float32) {
	w.Uint(uint64(math.Float32bits(v)), 32)
}

// Void writes n zero bits.
func (w *BitWriter) Void(n int) {
	w.Uint(0, n)
}

// Bytes8 writes a dynamic uint8 array. The length prefix is omitted
// when tail is set (tail array optimization).
func (w *BitWriter) Bytes8(data []byte, capacity int, tail bool) {
	if len(data) > capacity {
		data = data[:capacity]
	}
	if !tail {
		w.Uint(uint64(len(data)), lenBits(capacity))
	}
	for _, b := range data {
		w.Uint(uint64(b), 8)
	}
}

// BitReader deserializes fields. The first read past the payload end
// records ErrShortPayload, later reads return zero values.
type BitReader struct {
	buf []byte
	pos int
	err error
}

// NewBitReader creates a reader on payload.
func NewBitReader(payload []byte) *BitReader {
	return &BitReader{buf: payload}
}

// Err returns the first error encountered.
func (r *BitReader) Err() error {
	return r.err
}

// Remaining returns the unread bit count.
func (r *BitReader) Remaining() int {
	return len(r.buf)*8 - r.pos
}

func (r *BitReader) getBit() bool {
	if r.err != nil {
		return false
	}
	if r.pos >= len(r.buf)*8 {
		r.err = ErrShortPayload
		return false
	}
	bit := r.buf[r.pos/8]&(0x80>>uint(r.pos%8)) != 0
	r.pos++
	return bit
}

// Uint reads an n-bit unsigned value.
func (r *BitReader) Uint(n int) (v uint64) {
	for shift := 0; n > 0; shift += 8 {
		chunk := 8
		if n < 8 {
			chunk = n
		}
		var b byte
		for i := 0; i < chunk; i++ {
			b <<= 1
			if r.getBit() {
				b |= 1
			}
		}
		v |= uint64(b) << uint(shift)
		n -= chunk
	}
	return
}

// Int reads an n-bit signed value.
func (r *BitReader) Int(n int) int64 {
	v := r.Uint(n)
	if n < 64 && v&(1<<uint(n-1)) != 0 {
		v |= ^uint64(0) << uint(n)
	}
	return int64(v)
}

// Bool reads one bit.
func (r *BitReader) Bool() bool {
	return r.getBit()
}

// Float32 reads an IEEE754 single.
func (r *BitReader) Float32() float32 {
	return math.Float32frombits(uint32(r.Uint(32)))
}

// Void skips n bits.
func (r *BitReader) Void(n int) {
	r.Uint(n)
}

// Bytes8 reads a dynamic uint8 array, see BitWriter.Bytes8.
func (r *BitReader) Bytes8(capacity int, tail bool) []byte {
	var n int
	if tail {
		n = r.Remaining() / 8
	} else {
		n = int(r.Uint(lenBits(capacity)))
	}
	if r.err != nil {
		return nil
	}
	if n > capacity {
		r.err = ErrArrayTooLong
		return nil
	}
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(r.Uint(8))
	}
	if r.err != nil {
		return nil
	}
	return data
}

// lenBits is the width of a dynamic array length prefix.
func lenBits(capacity int) int {
	n := 0
	for v := capacity; v > 0; v >>= 1 {
		n++
	}
	return n
}

func (r *BitReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
