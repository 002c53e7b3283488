// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnsHeaderRoundTrip(t *testing.T) {
	cols := []Column{
		{Name: "id", Type: Scalar(KindUInt64)},
		{Name: "name", Type: Scalar(KindString)},
		{Name: "score", Type: NullableOf(Scalar(KindFloat64))},
	}
	w := NewWriter(64)
	require.NoError(t, AppendColumnsHeader(w, cols))

	// Exact layout: count, then every name, then every type string.
	expect := NewWriter(64)
	expect.PutLEB128(3)
	expect.PutString("id")
	expect.PutString("name")
	expect.PutString("score")
	expect.PutString("UInt64")
	expect.PutString("String")
	expect.PutString("Nullable(Float64)")
	assert.Equal(t, expect.Bytes(), w.Bytes())

	r := NewReader(w.Bytes())
	got, err := ParseColumnsHeader(r)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range cols {
		assert.Equal(t, cols[i].Name, got[i].Name)
		assert.True(t, cols[i].Type.Equal(got[i].Type), cols[i].Name)
	}
	assert.Equal(t, 0, r.Remaining())
}

func TestColumnsHeaderEmpty(t *testing.T) {
	r := NewReader([]byte{0})
	_, err := ParseColumnsHeader(r)
	assert.ErrorIs(t, err, ErrEmptyColumns)

	assert.ErrorIs(t, AppendColumnsHeader(NewWriter(8), nil), ErrEmptyColumns)
}

func TestColumnsHeaderTruncated(t *testing.T) {
	w := NewWriter(64)
	require.NoError(t, AppendColumnsHeader(w, []Column{
		{Name: "id", Type: Scalar(KindUInt64)},
		{Name: "name", Type: Scalar(KindString)},
	}))
	full := w.Bytes()
	for i := 0; i < len(full); i++ {
		_, err := ParseColumnsHeader(NewReader(full[:i]))
		assert.ErrorIs(t, err, ErrInsufficientData, "prefix of %d bytes", i)
	}
}

func TestColumnsHeaderBadType(t *testing.T) {
	w := NewWriter(32)
	w.PutLEB128(1)
	w.PutString("id")
	w.PutString("NotAType")
	_, err := ParseColumnsHeader(NewReader(w.Bytes()))
	assert.ErrorIs(t, err, ErrTypeParse)
}

func TestColumnString(t *testing.T) {
	c := Column{Name: "ts", Type: DateTime64Type(3, "UTC")}
	assert.Equal(t, "ts: DateTime64(3, 'UTC')", c.String())
}
