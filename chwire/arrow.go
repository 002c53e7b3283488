// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"context"
	"errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ArrowCursor decodes a response whose payload is an Arrow IPC stream into
// record batches. The chunk framing and compression underneath are handled
// by the byte cursor; the IPC reader only ever sees the decoded payload.
type ArrowCursor struct {
	bytes *BytesCursor
	rdr   *ipc.Reader
	done  bool
}

// Arrow returns a record-batch cursor for q. A FORMAT ArrowStream clause is
// appended to the statement.
func (q *Query) Arrow() *ArrowCursor {
	return &ArrowCursor{
		bytes: newBytesCursor(newRawCursor(q.resolver("ArrowStream"))),
	}
}

// Next returns the next record batch, io.EOF at end of stream, or a
// terminal error. The caller owns the returned record and must Release it.
// Like every cursor in this package, the first pull resolves the request
// and the cursor is fused after any error.
func (c *ArrowCursor) Next(ctx context.Context) (arrow.Record, error) {
	if c.done {
		return nil, io.EOF
	}
	if c.rdr == nil {
		rdr, err := ipc.NewReader(c.bytes.Reader(ctx), ipc.WithAllocator(memory.DefaultAllocator))
		if err != nil {
			c.fail()
			return nil, c.wrap(err)
		}
		c.rdr = rdr
	} else {
		// Rebind the context for this pull.
		c.bytes.Reader(ctx)
	}
	if !c.rdr.Next() {
		err := c.rdr.Err()
		c.fail()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, c.wrap(err)
		}
		return nil, io.EOF
	}
	rec := c.rdr.Record()
	rec.Retain()
	return rec, nil
}

// Schema returns the stream schema, or nil before the first pull.
func (c *ArrowCursor) Schema() *arrow.Schema {
	if c.rdr == nil {
		return nil
	}
	return c.rdr.Schema()
}

// wrap passes this package's own stream errors through untouched and tags
// IPC decode failures as malformed payload.
func (c *ArrowCursor) wrap(err error) error {
	if errors.Is(err, ErrTransport) || errors.Is(err, ErrDecompression) ||
		errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrMalformed) {
		return err
	}
	return &TransportError{Message: "decoding arrow stream", Err: err}
}

func (c *ArrowCursor) fail() {
	c.done = true
	if c.rdr != nil {
		c.rdr.Release()
		c.rdr = nil
	}
	c.bytes.Close()
}

func (c *ArrowCursor) ReceivedBytes() uint64  { return c.bytes.ReceivedBytes() }
func (c *ArrowCursor) DecodedBytes() uint64   { return c.bytes.DecodedBytes() }
func (c *ArrowCursor) Summary() *QuerySummary { return c.bytes.Summary() }

// Close releases the IPC reader and the underlying response.
func (c *ArrowCursor) Close() error {
	c.fail()
	return nil
}
