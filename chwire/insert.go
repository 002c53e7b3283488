// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
)

const (
	// insertBufferSize is the serialization buffer capacity. Rows accumulate
	// here before being handed to the sender as one framed chunk.
	insertBufferSize = 256 << 10

	// insertChunkThreshold triggers a flush shortly before the buffer would
	// have to grow, leaving headroom for the row that crossed it.
	insertChunkThreshold = insertBufferSize - 2048
)

var errInsertAborted = errors.New("chwire: insert aborted")

// Inserter streams rows of type T into a table. Rows are serialized into a
// buffer and flushed as framed, compressed chunks through a bounded channel
// to a sender goroutine driving the request body, so a slow server
// backpressures the producer instead of growing memory. Call End to finish
// the insert and learn its outcome; Abort to abandon it.
//
// An Inserter is single-producer: Write, End and Abort must not be called
// concurrently.
type Inserter[T any] struct {
	client *Client
	table  string
	cols   []Column
	meta   *RowMetadata

	buf     *Writer
	chunks  chan []byte
	result  chan error
	abort   func(error)
	started bool
	ended   bool
	err     error // sticky; reported by every later call
}

// Insert starts building an insert into table. The request is not issued
// until the first Write.
func Insert[T any](c *Client, table string) *Inserter[T] {
	return &Inserter[T]{
		client: c,
		table:  table,
		buf:    NewWriter(insertBufferSize),
	}
}

// WithColumns declares the column schema. When set, rows are validated
// against it, a column header precedes the data, and the server receives
// RowBinaryWithNamesAndTypes. Without it rows travel shape-driven as plain
// RowBinary.
func (ins *Inserter[T]) WithColumns(cols ...Column) *Inserter[T] {
	ins.cols = cols
	return ins
}

// Write serializes one row. The first call starts the request; later calls
// flush full chunks to the sender, blocking only when the sender is behind.
// Any error is sticky and fails the whole insert.
func (ins *Inserter[T]) Write(ctx context.Context, row *T) error {
	if ins.err != nil {
		return ins.err
	}
	if ins.ended {
		return fmt.Errorf("chwire: insert already ended")
	}
	if !ins.started {
		if err := ins.start(ctx); err != nil {
			return ins.fail(err)
		}
	}
	mark := ins.buf.Len()
	var err error
	if ins.meta != nil {
		err = ins.meta.SerializeRow(ins.buf, row)
	} else {
		err = SerializeRow(ins.buf, row)
	}
	if err != nil {
		// A partially serialized row must not reach the wire.
		ins.buf.buf = ins.buf.buf[:mark]
		return ins.fail(err)
	}
	if ins.buf.Len() >= insertChunkThreshold {
		if err := ins.sendChunk(ctx); err != nil {
			return ins.fail(err)
		}
	}
	return nil
}

// End flushes the remaining rows, closes the stream and waits for the
// server's verdict. An insert with zero writes completes without issuing a
// request.
func (ins *Inserter[T]) End(ctx context.Context) error {
	if ins.err != nil {
		return ins.err
	}
	if ins.ended {
		return nil
	}
	ins.ended = true
	if !ins.started {
		return nil
	}
	if ins.buf.Len() > 0 {
		if err := ins.sendChunk(ctx); err != nil {
			return ins.fail(err)
		}
	}
	close(ins.chunks)
	select {
	case err := <-ins.result:
		if err != nil {
			ins.err = err
		}
		return err
	case <-ctx.Done():
		ins.abort(ctx.Err())
		return ins.fail(&TransportError{Message: "insert cancelled", Err: ctx.Err()})
	}
}

// Abort abandons the insert, cancelling the in-flight request. Safe to call
// whether or not the insert started or already failed.
func (ins *Inserter[T]) Abort() {
	if ins.started && !ins.ended {
		ins.abort(errInsertAborted)
	}
	ins.ended = true
	if ins.err == nil {
		ins.err = errInsertAborted
	}
}

func (ins *Inserter[T]) fail(err error) error {
	ins.err = err
	if ins.started {
		ins.abort(err)
	}
	return err
}

// start resolves the metadata, opens the request and launches the sender.
// The request outlives the first Write's ctx: per-call contexts govern
// individual sends, a dedicated cancel function governs the request itself.
func (ins *Inserter[T]) start(ctx context.Context) error {
	format := "RowBinary"
	if ins.cols != nil {
		meta, err := NewRowMetadata(reflect.TypeFor[T](), ins.cols)
		if err != nil {
			return err
		}
		ins.meta = meta
		format = "RowBinaryWithNamesAndTypes"
		if err := AppendColumnsHeader(ins.buf, ins.cols); err != nil {
			return err
		}
	}
	sql := fmt.Sprintf("INSERT INTO %s FORMAT %s", ins.table, format)

	reqCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	pr, pw := io.Pipe()
	ins.chunks = make(chan []byte, 1)
	ins.result = make(chan error, 1)
	ins.abort = func(cause error) {
		cancel(cause)
		pw.CloseWithError(cause)
	}
	ins.started = true

	// Sender: frames chunks onto the pipe feeding the request body. It also
	// watches the request context so an abort or failure releases it even
	// when it is idle on the channel receive.
	go func() {
		fw := NewFrameWriter(pw, ins.client.compression)
		for {
			select {
			case chunk, ok := <-ins.chunks:
				if !ok {
					if err := fw.Close(); err != nil {
						pw.CloseWithError(err)
						return
					}
					pw.Close()
					return
				}
				if err := fw.WriteChunk(chunk); err != nil {
					pw.CloseWithError(err)
					return
				}
			case <-reqCtx.Done():
				pw.CloseWithError(context.Cause(reqCtx))
				return
			}
		}
	}()

	// Request driver: reports the server's verdict on ins.result.
	go func() {
		resp, err := ins.client.send(reqCtx, sql, pr)
		if err != nil {
			// Unblock the sender if the transport gave up mid-body.
			pr.CloseWithError(err)
			ins.result <- err
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		ins.result <- nil
	}()
	return nil
}

// sendChunk hands the buffered bytes to the sender, blocking until the
// sender accepts them or ctx ends.
func (ins *Inserter[T]) sendChunk(ctx context.Context) error {
	chunk := ins.buf.take()
	select {
	case ins.chunks <- chunk:
		return nil
	case err := <-ins.result:
		if err == nil {
			err = &TransportError{Message: "insert request ended early"}
		}
		return err
	case <-ctx.Done():
		return &TransportError{Message: "insert cancelled", Err: ctx.Err()}
	}
}
