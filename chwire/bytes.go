// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"encoding/binary"
	"math"
)

// Reader is a non-copying cursor over a byte slice. Every read either
// succeeds completely or fails with ErrInsufficientData and leaves the
// offset untouched, so a caller can retry the same read after more data
// arrives.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned at the start of p. The Reader
// aliases p; it never copies.
func NewReader(p []byte) *Reader { return &Reader{buf: p} }

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Offset reports the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// ReadN consumes n bytes and returns them as a subslice of the underlying
// buffer. The result is only valid until the buffer is reused.
func (r *Reader) ReadN(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrInsufficientData
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p, nil
}

// ReadByte consumes a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, ErrInsufficientData
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// ReadLEB128 consumes one LEB128-encoded unsigned value.
func (r *Reader) ReadLEB128() (uint64, error) {
	v, n, err := ReadLEB128(r.buf[r.off:])
	if err != nil {
		return 0, err
	}
	r.off += n
	return v, nil
}

// ReadString consumes a LEB128-length-prefixed string. The result is a copy
// and remains valid after the buffer is reused.
func (r *Reader) ReadString() (string, error) {
	start := r.off
	n, err := r.ReadLEB128()
	if err != nil {
		return "", err
	}
	if n > math.MaxInt32 {
		r.off = start
		return "", ErrMalformed
	}
	p, err := r.ReadN(int(n))
	if err != nil {
		r.off = start
		return "", err
	}
	return string(p), nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	p, err := r.ReadN(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	p, err := r.ReadN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	p, err := r.ReadN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// Writer accumulates wire bytes in memory. All multi-byte integers are
// little-endian, matching the server's native byte order.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the accumulated bytes. The slice aliases the Writer's
// buffer and is invalidated by further writes or Reset.
func (w *Writer) Bytes() []byte { return w.buf }

// Len reports the number of accumulated bytes.
func (w *Writer) Len() int { return len(w.buf) }

// Reset drops the accumulated bytes but keeps the capacity.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// take returns the accumulated bytes and detaches them from the Writer,
// leaving it empty with a fresh buffer. Used by the insert path to hand a
// finished chunk to the sender without copying.
func (w *Writer) take() []byte {
	b := w.buf
	w.buf = make([]byte, 0, cap(b))
	return b
}

func (w *Writer) PutByte(b byte)     { w.buf = append(w.buf, b) }
func (w *Writer) PutBytes(p []byte)  { w.buf = append(w.buf, p...) }
func (w *Writer) PutLEB128(v uint64) { w.buf = AppendLEB128(w.buf, v) }

// PutString writes a LEB128-length-prefixed string.
func (w *Writer) PutString(s string) {
	w.buf = AppendLEB128(w.buf, uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// PutLenBytes writes a LEB128-length-prefixed byte string.
func (w *Writer) PutLenBytes(p []byte) {
	w.buf = AppendLEB128(w.buf, uint64(len(p)))
	w.buf = append(w.buf, p...)
}

func (w *Writer) PutUint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *Writer) PutUint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *Writer) PutUint64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

// byteQueue is a growable byte queue with a read offset, used by cursors to
// accumulate chunks until a complete header or row can be decoded. The fast
// path adopts an incoming chunk without copying when nothing is pending.
type byteQueue struct {
	buf []byte
	off int
}

func (q *byteQueue) remaining() int { return len(q.buf) - q.off }

func (q *byteQueue) slice() []byte { return q.buf[q.off:] }

func (q *byteQueue) advance(n int) { q.off += n }

// extend appends chunk to the pending bytes. The queue takes ownership of
// chunk when it can adopt it directly.
func (q *byteQueue) extend(chunk []byte) {
	if q.remaining() == 0 {
		q.buf = chunk
		q.off = 0
		return
	}
	rest := q.buf[q.off:]
	merged := make([]byte, 0, len(rest)+len(chunk))
	merged = append(merged, rest...)
	merged = append(merged, chunk...)
	q.buf = merged
	q.off = 0
}
