// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/xxh3"
)

// Compression selects the block codec for a stream.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

// Block layout: 16-byte checksum, then a 9-byte header (1-byte codec id,
// 4-byte LE compressed size counting the header itself, 4-byte LE
// decompressed size), then the codec payload. The checksum covers the header
// and payload.
const (
	codecNoneID byte = 0x02
	codecLZ4ID  byte = 0x82
	codecZSTDID byte = 0x90

	blockChecksumLen = 16
	blockHeaderLen   = 9
	blockOverhead    = blockChecksumLen + blockHeaderLen

	// maxBlockSize caps the declared compressed size of a single block.
	maxBlockSize = 1 << 30
)

var (
	zstdEncOnce sync.Once
	zstdEnc     *zstd.Encoder
	zstdDecOnce sync.Once
	zstdDec     *zstd.Decoder
)

func zstdEncoder() *zstd.Encoder {
	zstdEncOnce.Do(func() {
		// Encoding is always into a caller buffer, never streamed, so a
		// single concurrency-1 encoder shared via EncodeAll is enough.
		zstdEnc, _ = zstd.NewWriter(nil,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return zstdEnc
}

func zstdDecoder() *zstd.Decoder {
	zstdDecOnce.Do(func() {
		zstdDec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return zstdDec
}

// blockChecksum hashes a block's header and payload with XXH3-128.
func blockChecksum(p []byte) [blockChecksumLen]byte {
	var sum [blockChecksumLen]byte
	h := xxh3.Hash128(p)
	binary.LittleEndian.PutUint64(sum[:8], h.Lo)
	binary.LittleEndian.PutUint64(sum[8:], h.Hi)
	return sum
}

// compressBlock wraps data into one checksummed block using the given
// compression. When the codec cannot shrink the data the block falls back to
// stored form, so the result never exceeds the input by more than the block
// overhead.
func compressBlock(comp Compression, data []byte) ([]byte, error) {
	if len(data) > maxBlockSize-blockOverhead {
		return nil, fmt.Errorf("%w: block of %d bytes exceeds the 1 GiB limit", ErrMalformed, len(data))
	}
	var id byte
	var payload []byte
	switch comp {
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		var c lz4.Compressor
		n, err := c.CompressBlock(data, dst)
		if err != nil {
			return nil, &DecompressionError{Message: "lz4 compression failed: " + err.Error()}
		}
		if n > 0 && n < len(data) {
			id, payload = codecLZ4ID, dst[:n]
		} else {
			// Incompressible input; store it raw.
			id, payload = codecNoneID, data
		}
	case CompressionZSTD:
		out := zstdEncoder().EncodeAll(data, nil)
		if len(out) < len(data) {
			id, payload = codecZSTDID, out
		} else {
			id, payload = codecNoneID, data
		}
	default:
		id, payload = codecNoneID, data
	}

	block := make([]byte, blockOverhead+len(payload))
	body := block[blockChecksumLen:]
	body[0] = id
	binary.LittleEndian.PutUint32(body[1:5], uint32(blockHeaderLen+len(payload)))
	binary.LittleEndian.PutUint32(body[5:9], uint32(len(data)))
	copy(body[blockHeaderLen:], payload)
	sum := blockChecksum(body)
	copy(block[:blockChecksumLen], sum[:])
	return block, nil
}

// decompressBlock unwraps exactly one block, verifying the checksum and the
// declared sizes before touching the codec.
func decompressBlock(block []byte) ([]byte, error) {
	if len(block) < blockOverhead {
		return nil, ErrInsufficientData
	}
	body := block[blockChecksumLen:]
	id := body[0]
	compressedSize := binary.LittleEndian.Uint32(body[1:5])
	decompressedSize := binary.LittleEndian.Uint32(body[5:9])
	if compressedSize > maxBlockSize {
		return nil, fmt.Errorf("%w: declared compressed size %d exceeds the 1 GiB limit", ErrMalformed, compressedSize)
	}
	if int(compressedSize) != len(body) {
		return nil, fmt.Errorf("%w: declared compressed size %d, block has %d bytes", ErrMalformed, compressedSize, len(body))
	}
	if sum := blockChecksum(body); sum != [blockChecksumLen]byte(block[:blockChecksumLen]) {
		return nil, &DecompressionError{Message: "block checksum mismatch"}
	}
	payload := body[blockHeaderLen:]

	switch id {
	case codecNoneID:
		if int(decompressedSize) != len(payload) {
			return nil, &DecompressionError{Message: fmt.Sprintf(
				"stored block declares %d bytes but carries %d", decompressedSize, len(payload))}
		}
		return payload, nil
	case codecLZ4ID:
		out := make([]byte, decompressedSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, &DecompressionError{Message: "lz4: " + err.Error()}
		}
		if n != int(decompressedSize) {
			return nil, &DecompressionError{Message: fmt.Sprintf(
				"lz4 block declares %d bytes but decodes to %d", decompressedSize, n)}
		}
		return out, nil
	case codecZSTDID:
		out, err := zstdDecoder().DecodeAll(payload, make([]byte, 0, decompressedSize))
		if err != nil {
			return nil, &DecompressionError{Message: "zstd: " + err.Error()}
		}
		if len(out) != int(decompressedSize) {
			return nil, &DecompressionError{Message: fmt.Sprintf(
				"zstd block declares %d bytes but decodes to %d", decompressedSize, len(out))}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown codec id 0x%02x", ErrMalformed, id)
}
