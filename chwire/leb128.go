// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

// LEB128 unsigned varints carry every length and count on the wire: column
// counts, string lengths, array sizes and the outer chunk framing.

// maxLEB128Shift caps decoding at 9 bytes of payload. A continuation bit on
// the byte at shift 56 would push the next shift past the cap, so over-long
// encodings are rejected as malformed rather than silently truncated.
const maxLEB128Shift = 57

// AppendLEB128 appends the LEB128 encoding of v to dst and returns the
// extended slice. Values below 128 encode as a single byte.
func AppendLEB128(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if v == 0 {
			return dst
		}
	}
}

// LEB128Len reports the encoded size of v in bytes.
func LEB128Len(v uint64) int {
	n := 1
	for v >>= 7; v != 0; v >>= 7 {
		n++
	}
	return n
}

// ReadLEB128 decodes a LEB128 value from the front of buf and returns the
// value and the number of bytes consumed. It returns ErrInsufficientData if
// buf ends inside the encoding and ErrMalformed if the encoding is over-long.
func ReadLEB128(buf []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; ; i++ {
		if i >= len(buf) {
			return 0, 0, ErrInsufficientData
		}
		b := buf[i]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
		if shift > maxLEB128Shift {
			return 0, 0, ErrMalformed
		}
	}
}
