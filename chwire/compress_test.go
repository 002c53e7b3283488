// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("columnar "), 4096)
	random := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(random)

	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		for name, data := range map[string][]byte{
			"compressible": compressible,
			"random":       random,
			"tiny":         []byte{42},
		} {
			block, err := compressBlock(comp, data)
			require.NoError(t, err, "%s %s", comp, name)
			out, err := decompressBlock(block)
			require.NoError(t, err, "%s %s", comp, name)
			assert.Equal(t, data, out, "%s %s", comp, name)
		}
	}
}

func TestBlockCompressionShrinks(t *testing.T) {
	data := bytes.Repeat([]byte("abcd"), 8192)
	block, err := compressBlock(CompressionLZ4, data)
	require.NoError(t, err)
	assert.Less(t, len(block), len(data))
}

func TestBlockIncompressibleFallsBackToStored(t *testing.T) {
	random := make([]byte, 1024)
	rand.New(rand.NewSource(2)).Read(random)
	block, err := compressBlock(CompressionLZ4, random)
	require.NoError(t, err)
	// Stored form adds exactly the block overhead.
	assert.Equal(t, len(random)+blockOverhead, len(block))
	assert.Equal(t, codecNoneID, block[blockChecksumLen])
}

func TestBlockChecksumMismatch(t *testing.T) {
	block, err := compressBlock(CompressionLZ4, bytes.Repeat([]byte("x"), 512))
	require.NoError(t, err)
	block[0] ^= 0xff
	_, err = decompressBlock(block)
	assert.ErrorIs(t, err, ErrDecompression)
}

func TestBlockCorruptPayload(t *testing.T) {
	block, err := compressBlock(CompressionZSTD, bytes.Repeat([]byte("y"), 4096))
	require.NoError(t, err)
	// Flip a payload byte and rewrite the checksum so the codec sees it.
	block[len(block)-1] ^= 0xff
	sum := blockChecksum(block[blockChecksumLen:])
	copy(block[:blockChecksumLen], sum[:])
	_, err = decompressBlock(block)
	assert.ErrorIs(t, err, ErrDecompression)
}

func TestBlockDeclaredSizeMismatch(t *testing.T) {
	block, err := compressBlock(CompressionNone, []byte("hello"))
	require.NoError(t, err)
	body := block[blockChecksumLen:]
	binary.LittleEndian.PutUint32(body[1:5], uint32(len(body)+1))
	sum := blockChecksum(body)
	copy(block[:blockChecksumLen], sum[:])
	_, err = decompressBlock(block)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBlockUnknownCodec(t *testing.T) {
	block, err := compressBlock(CompressionNone, []byte("hello"))
	require.NoError(t, err)
	body := block[blockChecksumLen:]
	body[0] = 0x42
	sum := blockChecksum(body)
	copy(block[:blockChecksumLen], sum[:])
	_, err = decompressBlock(block)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestBlockTooShort(t *testing.T) {
	_, err := decompressBlock(make([]byte, blockOverhead-1))
	assert.ErrorIs(t, err, ErrInsufficientData)
}
