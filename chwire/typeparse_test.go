// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypeRoundTrip(t *testing.T) {
	// Canonical strings survive parse-then-render unchanged.
	canonical := []string{
		"Bool",
		"Int8", "Int16", "Int32", "Int64", "Int128",
		"UInt8", "UInt16", "UInt32", "UInt64", "UInt128",
		"Float32", "Float64",
		"String",
		"FixedString(16)",
		"Decimal(9, 4)",
		"Decimal(38, 10)",
		"Date", "Date32",
		"DateTime",
		"DateTime('UTC')",
		"DateTime64(3)",
		"DateTime64(9, 'America/New_York')",
		"UUID", "IPv4", "IPv6",
		"Enum8('a' = 1, 'b' = 2)",
		"Enum16('x' = -1000, 'y' = 1000)",
		"Nullable(String)",
		"Array(Nullable(UInt32))",
		"Map(String, Array(Int64))",
		"Tuple(UInt8, String, Tuple(Float64, Float64))",
		"LowCardinality(String)",
		"Variant(Int64, String)",
		"Nested(id UInt64, tags Array(String))",
	}
	for _, s := range canonical {
		parsed, err := ParseType(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, parsed.String())

		again, err := ParseType(parsed.String())
		require.NoError(t, err, s)
		assert.True(t, parsed.Equal(again), s)
	}
}

func TestParseTypeWhitespaceNormalizes(t *testing.T) {
	parsed, err := ParseType("Map( String ,Array( Int64 ) )")
	require.NoError(t, err)
	assert.Equal(t, "Map(String, Array(Int64))", parsed.String())
}

func TestParseTypeVariantSorted(t *testing.T) {
	// Alternatives normalize to canonical order regardless of input order.
	a, err := ParseType("Variant(String, Array(UInt8), Int64)")
	require.NoError(t, err)
	b, err := ParseType("Variant(Int64, String, Array(UInt8))")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.Equal(t, "Variant(Array(UInt8), Int64, String)", a.String())
}

func TestParseTypeEnumSortedByCode(t *testing.T) {
	parsed, err := ParseType("Enum8('b' = 2, 'a' = 1)")
	require.NoError(t, err)
	assert.Equal(t, "Enum8('a' = 1, 'b' = 2)", parsed.String())

	name, ok := parsed.enumName(2)
	require.True(t, ok)
	assert.Equal(t, "b", name)
	_, ok = parsed.enumName(3)
	assert.False(t, ok)
}

func TestParseTypeEnumQuoting(t *testing.T) {
	parsed, err := ParseType(`Enum8('it\'s' = 1)`)
	require.NoError(t, err)
	assert.Equal(t, "it's", parsed.Enum[0].Name)
	again, err := ParseType(parsed.String())
	require.NoError(t, err)
	assert.True(t, parsed.Equal(again))
}

func TestParseTypeErrors(t *testing.T) {
	bad := []string{
		"",
		"NotAType",
		"Array",
		"Array()",
		"Array(UInt8",
		"UInt8)",
		"UInt8 garbage",
		"FixedString(0)",
		"FixedString(-1)",
		"Decimal(39, 2)",
		"Decimal(0, 0)",
		"Decimal(4, 5)",
		"DateTime64(10)",
		"Enum8('a' = 200)",
		"Enum16('a' = 40000)",
		"Map(String)",
		"Nested(UInt8)",
	}
	for _, s := range bad {
		_, err := ParseType(s)
		assert.ErrorIs(t, err, ErrTypeParse, "input %q", s)
	}
}

func TestParseTypeErrorNamesOffendingInput(t *testing.T) {
	_, err := ParseType("Array(Wat)")
	var tpe *TypeParseError
	require.ErrorAs(t, err, &tpe)
	assert.Equal(t, "Wat", tpe.Input)
}

func TestFlattenNested(t *testing.T) {
	cols := []Column{
		{Name: "id", Type: Scalar(KindUInt64)},
		{Name: "attrs", Type: NestedOf(
			Field{Name: "key", Type: Scalar(KindString)},
			Field{Name: "value", Type: NullableOf(Scalar(KindString))},
		)},
	}
	flat := FlattenNested(cols)
	require.Len(t, flat, 3)
	assert.Equal(t, "id", flat[0].Name)
	assert.Equal(t, "attrs.key", flat[1].Name)
	assert.Equal(t, "Array(String)", flat[1].Type.String())
	assert.Equal(t, "attrs.value", flat[2].Name)
	assert.Equal(t, "Array(Nullable(String))", flat[2].Type.String())
}
