// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire_test

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/chwire/chwire"
	"github.com/Query-farm/chwire/chwiretest"
)

type event struct {
	ID   uint64 `ch:"id"`
	Name string `ch:"name"`
}

var eventColumns = []chwire.Column{
	{Name: "id", Type: chwire.Scalar(chwire.KindUInt64)},
	{Name: "name", Type: chwire.Scalar(chwire.KindString)},
}

func encodeEvents(events ...event) func(w *chwire.Writer) error {
	return func(w *chwire.Writer) error {
		for i := range events {
			if err := chwire.SerializeRow(w, &events[i]); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestRowsQuery(t *testing.T) {
	for _, comp := range []chwire.Compression{chwire.CompressionNone, chwire.CompressionLZ4, chwire.CompressionZSTD} {
		mock := chwiretest.New()
		mock.Expect(chwiretest.RowsResponse(comp, eventColumns,
			encodeEvents(event{ID: 1, Name: "first"}, event{ID: 2, Name: "second"})))

		client := chwire.NewClient(mock.URL()).WithCompression(comp)
		cursor := chwire.Rows[event](client.Query("SELECT id, name FROM events"))

		ctx := context.Background()
		row, err := cursor.Next(ctx)
		require.NoError(t, err, comp)
		assert.Equal(t, event{ID: 1, Name: "first"}, *row)
		row, err = cursor.Next(ctx)
		require.NoError(t, err, comp)
		assert.Equal(t, event{ID: 2, Name: "second"}, *row)
		_, err = cursor.Next(ctx)
		assert.Equal(t, io.EOF, err, comp)

		require.Len(t, cursor.Columns(), 2)
		assert.Greater(t, cursor.ReceivedBytes(), uint64(0))
		assert.Greater(t, cursor.DecodedBytes(), uint64(0))

		assert.Zero(t, mock.Remaining())
		mock.Close()
	}
}

func TestRowsQueryLazyResolve(t *testing.T) {
	mock := chwiretest.New()
	defer mock.Close()

	client := chwire.NewClient(mock.URL())
	cursor := chwire.Rows[event](client.Query("SELECT 1"))
	// No request was issued and the counters read zero before the first pull.
	assert.Zero(t, cursor.ReceivedBytes())
	assert.Zero(t, cursor.DecodedBytes())
	assert.Nil(t, cursor.Summary())
	require.NoError(t, cursor.Close())
	assert.Zero(t, mock.Remaining())
}

func TestRowsQueryFusedAfterError(t *testing.T) {
	mock := chwiretest.New()
	defer mock.Close()
	mock.Expect(chwiretest.ErrorResponse(60, "Code: 60. DB::Exception: Table default.missing does not exist."))

	client := chwire.NewClient(mock.URL())
	cursor := chwire.Rows[event](client.Query("SELECT * FROM missing"))

	ctx := context.Background()
	_, err := cursor.Next(ctx)
	var te *chwire.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "60", te.Code)
	assert.Contains(t, te.Message, "does not exist")

	// The error is delivered once; the cursor is fused afterwards.
	for i := 0; i < 3; i++ {
		_, err = cursor.Next(ctx)
		assert.Equal(t, io.EOF, err)
	}
}

func TestRowsQuerySchemaMismatch(t *testing.T) {
	mock := chwiretest.New()
	defer mock.Close()
	cols := []chwire.Column{
		{Name: "id", Type: chwire.Scalar(chwire.KindUInt64)},
		{Name: "other", Type: chwire.Scalar(chwire.KindString)},
	}
	mock.Expect(chwiretest.RowsResponse(chwire.CompressionLZ4, cols, nil))

	client := chwire.NewClient(mock.URL())
	cursor := chwire.Rows[event](client.Query("SELECT id, other FROM events"))
	_, err := cursor.Next(context.Background())
	assert.ErrorIs(t, err, chwire.ErrSchemaMismatch)
	_, err = cursor.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestRowsQueryWithoutValidation(t *testing.T) {
	mock := chwiretest.New()
	defer mock.Close()
	// No header: raw RowBinary decoded by struct shape.
	body := chwire.NewWriter(64)
	require.NoError(t, encodeEvents(event{ID: 7, Name: "bare"})(body))
	mock.Expect(chwiretest.RawResponse(chwire.CompressionNone, body.Bytes()))

	client := chwire.NewClient(mock.URL()).
		WithCompression(chwire.CompressionNone).
		WithValidation(false)
	cursor := chwire.Rows[event](client.Query("SELECT id, name FROM events"))
	row, err := cursor.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, event{ID: 7, Name: "bare"}, *row)
	assert.Nil(t, cursor.Columns())
	_, err = cursor.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestRowSpanningChunks(t *testing.T) {
	// Header and row bytes split across chunk boundaries at awkward points.
	body := chwire.NewWriter(128)
	require.NoError(t, chwire.AppendColumnsHeader(body, eventColumns))
	require.NoError(t, encodeEvents(event{ID: 3, Name: "split across chunks"})(body))
	full := body.Bytes()

	var chunks [][]byte
	for i := 0; i < len(full); i += 5 {
		end := min(i+5, len(full))
		chunks = append(chunks, full[i:end])
	}

	mock := chwiretest.New()
	defer mock.Close()
	mock.Expect(chwiretest.RawResponse(chwire.CompressionLZ4, chunks...))

	client := chwire.NewClient(mock.URL())
	cursor := chwire.Rows[event](client.Query("SELECT id, name FROM events"))
	row, err := cursor.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, event{ID: 3, Name: "split across chunks"}, *row)
	_, err = cursor.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestRowsTruncatedStream(t *testing.T) {
	// Stream ends mid-row without a terminal marker.
	body := chwire.NewWriter(128)
	require.NoError(t, chwire.AppendColumnsHeader(body, eventColumns))
	require.NoError(t, encodeEvents(event{ID: 9, Name: "whole"})(body))
	partial := chwire.NewWriter(64)
	partial.PutUint64(10)
	partial.PutLEB128(100) // string length with no bytes behind it

	mock := chwiretest.New()
	defer mock.Close()
	mock.Expect(func(w http.ResponseWriter, r *http.Request) {
		fw := chwire.NewFrameWriter(w, chwire.CompressionNone)
		fw.WriteChunk(body.Bytes())
		fw.WriteChunk(partial.Bytes())
		// No terminal marker and no rest of the row.
	})

	client := chwire.NewClient(mock.URL()).WithCompression(chwire.CompressionNone)
	cursor := chwire.Rows[event](client.Query("SELECT id, name FROM events"))
	ctx := context.Background()
	row, err := cursor.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, event{ID: 9, Name: "whole"}, *row)

	_, err = cursor.Next(ctx)
	assert.ErrorIs(t, err, chwire.ErrInsufficientData)
	// Counters remain queryable after the failure.
	assert.Greater(t, cursor.ReceivedBytes(), uint64(0))
	_, err = cursor.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestQuerySummary(t *testing.T) {
	mock := chwiretest.New()
	defer mock.Close()
	summary := `{"read_rows":"1000","read_bytes":"8000","written_rows":"0","written_bytes":"0","total_rows_to_read":"1000","result_rows":"2","result_bytes":"64","elapsed_ns":"12345678"}`
	mock.Expect(chwiretest.SummaryResponse(summary,
		chwiretest.RowsResponse(chwire.CompressionLZ4, eventColumns, encodeEvents(event{ID: 1, Name: "s"}))))

	client := chwire.NewClient(mock.URL())
	cursor := chwire.Rows[event](client.Query("SELECT id, name FROM events"))
	_, err := cursor.Next(context.Background())
	require.NoError(t, err)

	s := cursor.Summary()
	require.NotNil(t, s)
	assert.Equal(t, uint64(1000), s.ReadRows)
	assert.Equal(t, uint64(8000), s.ReadBytes)
	assert.Equal(t, uint64(12345678), s.ElapsedNs)
}

func TestClientSendsAuthAndHeaders(t *testing.T) {
	mock := chwiretest.New()
	defer mock.Close()
	var seen *http.Request
	mock.Expect(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Clone(r.Context())
		chwiretest.RowsResponse(chwire.CompressionNone, eventColumns, nil)(w, r)
	})

	client := chwire.NewClient(mock.URL()).
		WithCompression(chwire.CompressionNone).
		WithDatabase("analytics").
		WithAuth("reader", "secret").
		WithHeader("X-Trace-Id", "abc123")
	cursor := chwire.Rows[event](client.Query("SELECT id, name FROM events"))
	_, err := cursor.Next(context.Background())
	assert.Equal(t, io.EOF, err) // header only, no rows

	require.NotNil(t, seen)
	assert.Equal(t, "reader", seen.Header.Get("X-ClickHouse-User"))
	assert.Equal(t, "secret", seen.Header.Get("X-ClickHouse-Key"))
	assert.Equal(t, "abc123", seen.Header.Get("X-Trace-Id"))
	assert.Equal(t, "analytics", seen.URL.Query().Get("database"))
}

func TestBytesCursorCollect(t *testing.T) {
	mock := chwiretest.New()
	defer mock.Close()
	mock.Expect(chwiretest.RawResponse(chwire.CompressionZSTD,
		[]byte("id\tname\n"), []byte("1\tfirst\n")))

	client := chwire.NewClient(mock.URL()).WithCompression(chwire.CompressionZSTD)
	cursor := client.Query("SELECT id, name FROM events FORMAT TabSeparated").Bytes()
	out, err := cursor.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "id\tname\n1\tfirst\n", string(out))
	assert.Equal(t, uint64(len(out)), cursor.DecodedBytes())
}

func TestBytesCursorReader(t *testing.T) {
	mock := chwiretest.New()
	defer mock.Close()
	mock.Expect(chwiretest.RawResponse(chwire.CompressionLZ4, []byte("hello "), []byte("world")))

	client := chwire.NewClient(mock.URL())
	cursor := client.Query("SELECT 'hello world' FORMAT RawBLOB").Bytes()
	out, err := io.ReadAll(cursor.Reader(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
}

func TestMidStreamException(t *testing.T) {
	mock := chwiretest.New()
	defer mock.Close()
	body := chwire.NewWriter(128)
	require.NoError(t, chwire.AppendColumnsHeader(body, eventColumns))
	exc := []byte("Code: 241. DB::Exception: Memory limit exceeded: would use 10.00 GiB (attempt to allocate chunk of 1048576 bytes))\n")
	mock.Expect(chwiretest.RawResponse(chwire.CompressionLZ4, body.Bytes(), exc))

	client := chwire.NewClient(mock.URL())
	cursor := chwire.Rows[event](client.Query("SELECT id, name FROM big"))
	_, err := cursor.Next(context.Background())
	var te *chwire.TransportError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "Memory limit exceeded")
	_, err = cursor.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestCancelledContext(t *testing.T) {
	mock := chwiretest.New()
	defer mock.Close()

	client := chwire.NewClient(mock.URL())
	cursor := chwire.Rows[event](client.Query("SELECT 1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cursor.Next(ctx)
	assert.ErrorIs(t, err, chwire.ErrTransport)
	_, err = cursor.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}
