// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates the column type constructors.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindInt128
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindUInt128
	KindFloat32
	KindFloat64
	KindString
	KindFixedString
	KindDecimal
	KindDate
	KindDate32
	KindDateTime
	KindDateTime64
	KindUUID
	KindIPv4
	KindIPv6
	KindEnum8
	KindEnum16
	KindNullable
	KindArray
	KindMap
	KindTuple
	KindVariant
	KindLowCardinality
	KindNested
)

var kindNames = map[Kind]string{
	KindBool:           "Bool",
	KindInt8:           "Int8",
	KindInt16:          "Int16",
	KindInt32:          "Int32",
	KindInt64:          "Int64",
	KindInt128:         "Int128",
	KindUInt8:          "UInt8",
	KindUInt16:         "UInt16",
	KindUInt32:         "UInt32",
	KindUInt64:         "UInt64",
	KindUInt128:        "UInt128",
	KindFloat32:        "Float32",
	KindFloat64:        "Float64",
	KindString:         "String",
	KindFixedString:    "FixedString",
	KindDecimal:        "Decimal",
	KindDate:           "Date",
	KindDate32:         "Date32",
	KindDateTime:       "DateTime",
	KindDateTime64:     "DateTime64",
	KindUUID:           "UUID",
	KindIPv4:           "IPv4",
	KindIPv6:           "IPv6",
	KindEnum8:          "Enum8",
	KindEnum16:         "Enum16",
	KindNullable:       "Nullable",
	KindArray:          "Array",
	KindMap:            "Map",
	KindTuple:          "Tuple",
	KindVariant:        "Variant",
	KindLowCardinality: "LowCardinality",
	KindNested:         "Nested",
}

func (k Kind) String() string { return kindNames[k] }

// EnumPair is one 'name' = code pair of an Enum8 or Enum16 type.
type EnumPair struct {
	Name string
	Code int16
}

// Field is one named element of a Nested type.
type Field struct {
	Name string
	Type *Type
}

// Type is one node of a column type tree. Composite kinds own their children
// exclusively; a tree is never shared between columns.
//
// Which auxiliary fields are meaningful depends on Kind: Size for
// FixedString, Precision and Scale for Decimal, Precision and Timezone for
// DateTime64, Timezone for DateTime, Args for the wrapper and container
// kinds, Enum for the enum kinds, Fields for Nested.
type Type struct {
	Kind      Kind
	Size      int
	Precision int
	Scale     int
	Timezone  string
	Args      []*Type
	Enum      []EnumPair
	Fields    []Field
}

// Scalar returns a Type with no parameters. It panics if the kind requires
// parameters.
func Scalar(k Kind) *Type {
	switch k {
	case KindFixedString, KindDecimal, KindDateTime64, KindEnum8, KindEnum16,
		KindNullable, KindArray, KindMap, KindTuple, KindVariant,
		KindLowCardinality, KindNested:
		panic("chwire: kind " + k.String() + " requires parameters")
	}
	return &Type{Kind: k}
}

// FixedStringOf returns a FixedString(n) type.
func FixedStringOf(n int) *Type { return &Type{Kind: KindFixedString, Size: n} }

// DecimalOf returns a Decimal(p, s) type.
func DecimalOf(p, s int) *Type { return &Type{Kind: KindDecimal, Precision: p, Scale: s} }

// DateTimeType returns a DateTime type, with tz empty for the server
// default zone.
func DateTimeType(tz string) *Type { return &Type{Kind: KindDateTime, Timezone: tz} }

// DateTime64Type returns a DateTime64(p) or DateTime64(p, tz) type.
func DateTime64Type(p int, tz string) *Type {
	return &Type{Kind: KindDateTime64, Precision: p, Timezone: tz}
}

// NullableOf wraps t in Nullable.
func NullableOf(t *Type) *Type { return &Type{Kind: KindNullable, Args: []*Type{t}} }

// ArrayOf wraps t in Array.
func ArrayOf(t *Type) *Type { return &Type{Kind: KindArray, Args: []*Type{t}} }

// LowCardinalityOf wraps t in LowCardinality.
func LowCardinalityOf(t *Type) *Type { return &Type{Kind: KindLowCardinality, Args: []*Type{t}} }

// MapOf returns a Map(key, value) type.
func MapOf(key, value *Type) *Type { return &Type{Kind: KindMap, Args: []*Type{key, value}} }

// TupleOf returns a Tuple of the given element types.
func TupleOf(elems ...*Type) *Type { return &Type{Kind: KindTuple, Args: elems} }

// VariantOf returns a Variant of the given alternatives, normalized into
// canonical order. Wire discriminants index this order.
func VariantOf(alts ...*Type) *Type {
	t := &Type{Kind: KindVariant, Args: alts}
	sortVariantArgs(t.Args)
	return t
}

// Enum8Of returns an Enum8 with the given pairs, stored sorted by code.
func Enum8Of(pairs ...EnumPair) *Type {
	return &Type{Kind: KindEnum8, Enum: sortEnumPairs(pairs)}
}

// Enum16Of returns an Enum16 with the given pairs, stored sorted by code.
func Enum16Of(pairs ...EnumPair) *Type {
	return &Type{Kind: KindEnum16, Enum: sortEnumPairs(pairs)}
}

// NestedOf returns a Nested type with the given fields.
func NestedOf(fields ...Field) *Type { return &Type{Kind: KindNested, Fields: fields} }

func sortVariantArgs(args []*Type) {
	sort.Slice(args, func(i, j int) bool { return args[i].String() < args[j].String() })
}

func sortEnumPairs(pairs []EnumPair) []EnumPair {
	out := append([]EnumPair(nil), pairs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// String renders the canonical form of the type. Parsing the result yields
// an equal tree.
func (t *Type) String() string {
	var sb strings.Builder
	t.render(&sb)
	return sb.String()
}

func (t *Type) render(sb *strings.Builder) {
	sb.WriteString(kindNames[t.Kind])
	switch t.Kind {
	case KindFixedString:
		sb.WriteByte('(')
		sb.WriteString(strconv.Itoa(t.Size))
		sb.WriteByte(')')
	case KindDecimal:
		sb.WriteByte('(')
		sb.WriteString(strconv.Itoa(t.Precision))
		sb.WriteString(", ")
		sb.WriteString(strconv.Itoa(t.Scale))
		sb.WriteByte(')')
	case KindDateTime:
		if t.Timezone != "" {
			sb.WriteString("('")
			sb.WriteString(t.Timezone)
			sb.WriteString("')")
		}
	case KindDateTime64:
		sb.WriteByte('(')
		sb.WriteString(strconv.Itoa(t.Precision))
		if t.Timezone != "" {
			sb.WriteString(", '")
			sb.WriteString(t.Timezone)
			sb.WriteByte('\'')
		}
		sb.WriteByte(')')
	case KindEnum8, KindEnum16:
		sb.WriteByte('(')
		for i, p := range t.Enum {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('\'')
			sb.WriteString(escapeQuoted(p.Name))
			sb.WriteString("' = ")
			sb.WriteString(strconv.Itoa(int(p.Code)))
		}
		sb.WriteByte(')')
	case KindNullable, KindArray, KindMap, KindTuple, KindVariant, KindLowCardinality:
		sb.WriteByte('(')
		for i, a := range t.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			a.render(sb)
		}
		sb.WriteByte(')')
	case KindNested:
		sb.WriteByte('(')
		for i, f := range t.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(f.Name)
			sb.WriteByte(' ')
			f.Type.render(sb)
		}
		sb.WriteByte(')')
	}
}

func escapeQuoted(s string) string {
	if !strings.ContainsAny(s, `\'`) {
		return s
	}
	var sb strings.Builder
	for _, r := range s {
		if r == '\\' || r == '\'' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Equal reports whether two type trees are structurally identical.
func (t *Type) Equal(other *Type) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.Kind != other.Kind || t.Size != other.Size ||
		t.Precision != other.Precision || t.Scale != other.Scale ||
		t.Timezone != other.Timezone {
		return false
	}
	if len(t.Args) != len(other.Args) || len(t.Enum) != len(other.Enum) ||
		len(t.Fields) != len(other.Fields) {
		return false
	}
	for i := range t.Args {
		if !t.Args[i].Equal(other.Args[i]) {
			return false
		}
	}
	for i := range t.Enum {
		if t.Enum[i] != other.Enum[i] {
			return false
		}
	}
	for i := range t.Fields {
		if t.Fields[i].Name != other.Fields[i].Name || !t.Fields[i].Type.Equal(other.Fields[i].Type) {
			return false
		}
	}
	return true
}

// decimalWidth reports the backing integer width of a Decimal in bytes,
// determined by its precision.
func (t *Type) decimalWidth() int {
	switch {
	case t.Precision <= 9:
		return 4
	case t.Precision <= 18:
		return 8
	default:
		return 16
	}
}

// unwrapLowCardinality strips LowCardinality wrappers. The wrapper changes
// only the server-side storage; RowBinary values are encoded as the inner
// type.
func (t *Type) unwrapLowCardinality() *Type {
	for t.Kind == KindLowCardinality {
		t = t.Args[0]
	}
	return t
}

// enumName resolves an enum code to its name, reporting whether the code is
// declared. Pairs are sorted by code, so a binary search suffices.
func (t *Type) enumName(code int16) (string, bool) {
	i := sort.Search(len(t.Enum), func(i int) bool { return t.Enum[i].Code >= code })
	if i < len(t.Enum) && t.Enum[i].Code == code {
		return t.Enum[i].Name, true
	}
	return "", false
}
