// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package chwire implements the client side of a binary, row-oriented wire
// protocol for a remote columnar analytical database.
//
// The package covers three tightly coupled layers:
//
//   - a type-tree parser ([ParseType]) that turns textual column type
//     descriptions such as "Array(Nullable(UInt32))" into a [Type] tree and
//     renders it back to its canonical string form,
//   - a row codec ([SerializeRow], [DeserializeRow], [RowMetadata]) that maps
//     Go structs to the RowBinary encoding, optionally validated against a
//     RowBinaryWithNamesAndTypes column header, and
//   - a streaming transport cursor ([BytesCursor], [RowCursor], [ArrowCursor])
//     that consumes chunked, optionally compressed response bodies and exposes
//     them as a pull sequence of raw bytes, decoded rows, or Arrow record
//     batches.
//
// # Reading rows
//
// Struct fields are mapped to columns with `ch` struct tags:
//
//	type Event struct {
//		ID   uint64 `ch:"id"`
//		Name string `ch:"name"`
//	}
//
//	client := chwire.NewClient("http://localhost:8123")
//	cursor := chwire.Rows[Event](client.Query("SELECT id, name FROM events"))
//	defer cursor.Close()
//	for {
//		event, err := cursor.Next(ctx)
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		// use event
//	}
//
// Cursors are single-consumer and fused: after the stream ends, normally or
// via an error, every subsequent pull returns [io.EOF]. Byte-accounting
// counters ([RowCursor.ReceivedBytes], [RowCursor.DecodedBytes]) stay valid
// after a failure.
//
// # Writing rows
//
// [Insert] returns an [Inserter] that serializes rows into a buffer and
// streams framed, compressed chunks to the server through a bounded hand-off,
// so producers are backpressured instead of buffering without limit:
//
//	ins := chwire.Insert[Event](client, "events")
//	for _, event := range events {
//		if err := ins.Write(ctx, &event); err != nil {
//			return err
//		}
//	}
//	return ins.End(ctx)
//
// # Errors
//
// All codec and transport errors are terminal for the current stream; the
// package never retries. See [ErrInsufficientData], [ErrMalformed],
// [TypeParseError], [SchemaMismatchError], [DecompressionError] and
// [TransportError] for the taxonomy.
package chwire
