// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"context"
	"errors"
	"io"
	"reflect"
)

// Cursors are lazy: creating one performs no I/O. The first pull resolves
// the underlying request, so transport errors surface from Next, never from
// construction. Every cursor is single-consumer and fused.

type cursorState uint8

const (
	cursorUnresolved cursorState = iota
	cursorActive
	cursorTerminated
)

// resolved carries what a resolve step produces: the framed body, its
// closer, and the query summary parsed from the response headers.
type resolved struct {
	framer  *Framer
	body    io.Closer
	summary *QuerySummary
}

type resolveFunc func(ctx context.Context) (*resolved, error)

// RawCursor pulls decoded chunk payloads from a response stream. It is the
// foundation the typed cursors are built on.
type RawCursor struct {
	resolve resolveFunc
	framer  *Framer
	body    io.Closer
	summary *QuerySummary
	state   cursorState
}

func newRawCursor(resolve resolveFunc) *RawCursor {
	return &RawCursor{resolve: resolve}
}

// Next returns the next decoded chunk, io.EOF at end of stream, or a
// terminal error. The first error is returned exactly once; afterwards the
// cursor is terminated and every call returns io.EOF.
func (c *RawCursor) Next(ctx context.Context) ([]byte, error) {
	switch c.state {
	case cursorTerminated:
		return nil, io.EOF
	case cursorUnresolved:
		res, err := c.resolve(ctx)
		if err != nil {
			c.state = cursorTerminated
			return nil, err
		}
		c.framer, c.body, c.summary = res.framer, res.body, res.summary
		c.state = cursorActive
	}
	if err := ctx.Err(); err != nil {
		c.terminate()
		return nil, &TransportError{Message: "request cancelled", Err: err}
	}
	chunk, err := c.framer.Next()
	if err != nil {
		c.terminate()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return chunk, nil
}

func (c *RawCursor) terminate() {
	if c.state == cursorTerminated {
		return
	}
	c.state = cursorTerminated
	if c.body != nil {
		c.body.Close()
	}
}

// Close releases the underlying response without draining it. Safe to call
// at any point and after termination.
func (c *RawCursor) Close() error {
	if c.state == cursorUnresolved {
		c.state = cursorTerminated
		return nil
	}
	c.terminate()
	return nil
}

// ReceivedBytes reports raw bytes consumed from the transport so far,
// framing included. Zero before the cursor resolves; the count survives
// termination and failure.
func (c *RawCursor) ReceivedBytes() uint64 {
	if c.framer == nil {
		return 0
	}
	return c.framer.ReceivedBytes()
}

// DecodedBytes reports payload bytes produced after deframing and
// decompression. Zero before the cursor resolves; survives termination.
func (c *RawCursor) DecodedBytes() uint64 {
	if c.framer == nil {
		return 0
	}
	return c.framer.DecodedBytes()
}

// Summary returns the server's progress summary, or nil before the cursor
// resolves or when the server sent none.
func (c *RawCursor) Summary() *QuerySummary { return c.summary }

// BytesCursor streams the decoded payload of a response as byte chunks,
// without interpreting them. Use it for formats this package does not
// decode itself.
type BytesCursor struct {
	raw *RawCursor
	ctx context.Context
}

func newBytesCursor(raw *RawCursor) *BytesCursor {
	return &BytesCursor{raw: raw}
}

// Next returns the next decoded chunk or io.EOF.
func (c *BytesCursor) Next(ctx context.Context) ([]byte, error) {
	return c.raw.Next(ctx)
}

// Collect drains the stream and returns the concatenated payload.
func (c *BytesCursor) Collect(ctx context.Context) ([]byte, error) {
	var out []byte
	for {
		chunk, err := c.raw.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}

// Reader adapts the cursor to io.Reader for consumers that pull bytes, such
// as format decoders. The returned reader uses ctx for every underlying
// pull and reports stream errors from Read.
func (c *BytesCursor) Reader(ctx context.Context) io.Reader {
	c.ctx = ctx
	return &cursorReader{cursor: c}
}

func (c *BytesCursor) ReceivedBytes() uint64  { return c.raw.ReceivedBytes() }
func (c *BytesCursor) DecodedBytes() uint64   { return c.raw.DecodedBytes() }
func (c *BytesCursor) Summary() *QuerySummary { return c.raw.Summary() }
func (c *BytesCursor) Close() error           { return c.raw.Close() }

type cursorReader struct {
	cursor  *BytesCursor
	pending []byte
}

func (r *cursorReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		chunk, err := r.cursor.raw.Next(r.cursor.ctx)
		if err != nil {
			return 0, err
		}
		r.pending = chunk
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// RowCursor pulls decoded rows of type T from a RowBinary stream. With
// validation enabled (the default) the stream starts with a column header
// which is checked against T's fields; without it the stream is raw
// RowBinary decoded by T's shape.
type RowCursor[T any] struct {
	raw      *RawCursor
	validate bool

	buf        byteQueue
	meta       *RowMetadata
	headerDone bool
	terminated bool
}

func newRowCursor[T any](raw *RawCursor, validate bool) *RowCursor[T] {
	return &RowCursor[T]{raw: raw, validate: validate}
}

// Next returns the next row, io.EOF at end of stream, or a terminal error.
// Rows may span chunk boundaries; the cursor buffers partial rows
// internally. After any error the cursor is fused and returns io.EOF.
func (c *RowCursor[T]) Next(ctx context.Context) (*T, error) {
	if c.terminated {
		return nil, io.EOF
	}
	if c.validate && !c.headerDone {
		if err := c.readHeader(ctx); err != nil {
			c.fail()
			return nil, err
		}
	}
	for {
		if c.buf.remaining() > 0 {
			r := NewReader(c.buf.slice())
			var row T
			var err error
			if c.meta != nil {
				err = c.meta.DeserializeRow(r, &row)
			} else {
				err = DeserializeRow(r, &row)
			}
			if err == nil {
				c.buf.advance(r.Offset())
				return &row, nil
			}
			if !errors.Is(err, ErrInsufficientData) {
				c.fail()
				return nil, err
			}
		}
		chunk, err := c.raw.Next(ctx)
		if err == io.EOF {
			c.terminated = true
			if c.buf.remaining() > 0 {
				return nil, ErrInsufficientData
			}
			return nil, io.EOF
		}
		if err != nil {
			c.terminated = true
			return nil, err
		}
		c.buf.extend(chunk)
	}
}

// readHeader accumulates chunks until the column header parses, then binds
// it to T.
func (c *RowCursor[T]) readHeader(ctx context.Context) error {
	for {
		if c.buf.remaining() > 0 {
			r := NewReader(c.buf.slice())
			cols, err := ParseColumnsHeader(r)
			if err == nil {
				meta, err := NewRowMetadata(reflect.TypeFor[T](), cols)
				if err != nil {
					return err
				}
				c.buf.advance(r.Offset())
				c.meta = meta
				c.headerDone = true
				return nil
			}
			if !errors.Is(err, ErrInsufficientData) {
				return err
			}
		}
		chunk, err := c.raw.Next(ctx)
		if err == io.EOF {
			return &TransportError{Message: "stream ended before the column header"}
		}
		if err != nil {
			return err
		}
		c.buf.extend(chunk)
	}
}

func (c *RowCursor[T]) fail() {
	c.terminated = true
	c.raw.terminate()
}

// Columns returns the header columns once the header has been read, nil
// before that or when validation is disabled.
func (c *RowCursor[T]) Columns() []Column {
	if c.meta == nil {
		return nil
	}
	return c.meta.Columns()
}

func (c *RowCursor[T]) ReceivedBytes() uint64  { return c.raw.ReceivedBytes() }
func (c *RowCursor[T]) DecodedBytes() uint64   { return c.raw.DecodedBytes() }
func (c *RowCursor[T]) Summary() *QuerySummary { return c.raw.Summary() }
func (c *RowCursor[T]) Close() error           { c.terminated = true; return c.raw.Close() }
