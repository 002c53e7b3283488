// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLEB128RoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 127, 128, 255, 256, 16383, 16384,
		1 << 20, 1<<32 - 1, 1 << 32, 1 << 57,
	}
	for _, v := range values {
		buf := AppendLEB128(nil, v)
		assert.Len(t, buf, LEB128Len(v))
		got, n, err := ReadLEB128(buf)
		require.NoError(t, err, "value %d", v)
		assert.Equal(t, v, got)
		assert.Equal(t, len(buf), n)
	}
}

func TestLEB128SingleByte(t *testing.T) {
	for v := uint64(0); v < 128; v++ {
		assert.Equal(t, []byte{byte(v)}, AppendLEB128(nil, v))
	}
	assert.Equal(t, []byte{0x80, 0x01}, AppendLEB128(nil, 128))
}

func TestLEB128Truncated(t *testing.T) {
	_, _, err := ReadLEB128(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	full := AppendLEB128(nil, 1<<40)
	for i := 0; i < len(full); i++ {
		_, _, err := ReadLEB128(full[:i])
		assert.ErrorIs(t, err, ErrInsufficientData, "prefix of %d bytes", i)
	}
}

func TestLEB128Overlong(t *testing.T) {
	// Ten continuation bytes never terminate within the shift cap.
	overlong := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, _, err := ReadLEB128(overlong)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLEB128ReadTailIgnored(t *testing.T) {
	buf := AppendLEB128(nil, 300)
	buf = append(buf, 0xde, 0xad)
	v, n, err := ReadLEB128(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), v)
	assert.Equal(t, 2, n)
}

func BenchmarkLEB128Read(b *testing.B) {
	buf := AppendLEB128(nil, 1<<40)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _, _ = ReadLEB128(buf)
	}
}

func BenchmarkLEB128Append(b *testing.B) {
	dst := make([]byte, 0, 16)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		dst = AppendLEB128(dst[:0], uint64(i)<<13)
	}
}
