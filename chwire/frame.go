// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// Framer splits a response body into decoded chunk payloads. Each chunk is a
// LEB128 payload length followed by the payload; a zero-length chunk is the
// terminal marker. On a compressed stream every payload is one checksummed
// block which the framer verifies and decompresses.
//
// The framer is split-point agnostic: the underlying reader may deliver
// bytes at any granularity, including mid-prefix and mid-payload.
type Framer struct {
	src        *bufio.Reader
	compressed bool
	done       bool

	received uint64
	decoded  uint64
}

// NewFramer wraps r. When compressed is true every chunk payload is treated
// as one compressed block.
func NewFramer(r io.Reader, compressed bool) *Framer {
	return &Framer{src: bufio.NewReader(r), compressed: compressed}
}

// ReceivedBytes reports the raw bytes consumed from the source, including
// framing prefixes and block overhead.
func (f *Framer) ReceivedBytes() uint64 { return f.received }

// DecodedBytes reports the payload bytes produced after deframing and
// decompression.
func (f *Framer) DecodedBytes() uint64 { return f.decoded }

// Next returns the next decoded chunk payload, io.EOF after the terminal
// marker, or a terminal error. A source that ends cleanly at a chunk
// boundary also yields io.EOF; a source that ends inside a chunk yields
// ErrInsufficientData. Errors, including a mid-stream server exception, fuse
// the framer: every later call returns io.EOF.
func (f *Framer) Next() ([]byte, error) {
	if f.done {
		return nil, io.EOF
	}
	chunk, err := f.next()
	if err != nil {
		f.done = true
		return nil, err
	}
	return chunk, nil
}

func (f *Framer) next() ([]byte, error) {
	length, err := f.readPrefix()
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, io.EOF
	}
	if length > maxBlockSize {
		return nil, fmt.Errorf("%w: chunk of %d bytes exceeds the 1 GiB limit", ErrMalformed, length)
	}
	payload := make([]byte, length)
	n, err := io.ReadFull(f.src, payload)
	f.received += uint64(n)
	if err != nil {
		return nil, ErrInsufficientData
	}

	data := payload
	if f.compressed {
		if data, err = decompressBlock(payload); err != nil {
			return nil, err
		}
	}
	f.decoded += uint64(len(data))
	if exc := extractException(data); exc != nil {
		return nil, exc
	}
	return data, nil
}

// readPrefix decodes the LEB128 chunk length byte by byte. A clean EOF
// before the first byte ends the stream; an EOF inside the prefix is a
// truncation.
func (f *Framer) readPrefix() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; ; i++ {
		b, err := f.src.ReadByte()
		if err != nil {
			if err == io.EOF && i == 0 {
				return 0, io.EOF
			}
			return 0, ErrInsufficientData
		}
		f.received++
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift > maxLEB128Shift {
			return 0, ErrMalformed
		}
	}
}

var (
	exceptionTrailer = []byte("))\n")
	exceptionCode    = []byte("Code:")
	exceptionMarker  = []byte("DB::Exception:")
)

// extractException sniffs a decoded chunk for a server exception delivered
// mid-stream after a successful status line. The server appends the
// exception text to the body, ending with its stack-trace trailer.
func extractException(chunk []byte) error {
	if !bytes.HasSuffix(chunk, exceptionTrailer) {
		return nil
	}
	idx := bytes.LastIndex(chunk, exceptionCode)
	if idx < 0 {
		return nil
	}
	tail := chunk[idx:]
	if !bytes.Contains(tail, exceptionMarker) {
		return nil
	}
	return &TransportError{Message: string(bytes.TrimRight(tail, "\n"))}
}

// FrameWriter produces the chunked framing consumed by Framer, compressing
// each chunk into one block when a codec is selected. Close writes the
// terminal marker.
type FrameWriter struct {
	w           io.Writer
	compression Compression
	prefix      []byte
}

// NewFrameWriter wraps w. With CompressionNone chunks carry raw payloads.
func NewFrameWriter(w io.Writer, compression Compression) *FrameWriter {
	return &FrameWriter{w: w, compression: compression}
}

// WriteChunk frames and writes one non-empty payload.
func (fw *FrameWriter) WriteChunk(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	out := payload
	if fw.compression != CompressionNone {
		var err error
		if out, err = compressBlock(fw.compression, payload); err != nil {
			return err
		}
	}
	fw.prefix = AppendLEB128(fw.prefix[:0], uint64(len(out)))
	if _, err := fw.w.Write(fw.prefix); err != nil {
		return err
	}
	_, err := fw.w.Write(out)
	return err
}

// Close writes the terminal marker. The underlying writer is not closed.
func (fw *FrameWriter) Close() error {
	_, err := fw.w.Write([]byte{0})
	return err
}
