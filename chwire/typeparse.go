// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"fmt"
	"math"
	"strconv"
)

// simpleKinds maps parameterless type names to their kinds.
var simpleKinds = map[string]Kind{
	"Bool":    KindBool,
	"Int8":    KindInt8,
	"Int16":   KindInt16,
	"Int32":   KindInt32,
	"Int64":   KindInt64,
	"Int128":  KindInt128,
	"UInt8":   KindUInt8,
	"UInt16":  KindUInt16,
	"UInt32":  KindUInt32,
	"UInt64":  KindUInt64,
	"UInt128": KindUInt128,
	"Float32": KindFloat32,
	"Float64": KindFloat64,
	"String":  KindString,
	"Date":    KindDate,
	"Date32":  KindDate32,
	"UUID":    KindUUID,
	"IPv4":    KindIPv4,
	"IPv6":    KindIPv6,
}

// ParseType parses a textual column type such as "Map(String,
// Array(Nullable(Int64)))" into its type tree. The full input must be
// consumed; trailing characters are an error. Errors are *TypeParseError
// and identify the offending part of the input.
func ParseType(s string) (*Type, error) {
	p := &typeParser{input: s}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return nil, p.errorf(p.input[p.pos:], "unexpected trailing characters")
	}
	return t, nil
}

type typeParser struct {
	input string
	pos   int
}

func (p *typeParser) errorf(input, format string, args ...any) error {
	return &TypeParseError{Input: input, Message: fmt.Sprintf(format, args...)}
}

func (p *typeParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *typeParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *typeParser) expect(c byte) error {
	p.skipSpaces()
	if p.peek() != c {
		return p.errorf(p.input, "expected %q at offset %d", string(c), p.pos)
	}
	p.pos++
	return nil
}

// readIdent consumes a run of letters, digits and underscores.
func (p *typeParser) readIdent() string {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' {
			p.pos++
			continue
		}
		break
	}
	return p.input[start:p.pos]
}

func (p *typeParser) readInt() (int, error) {
	p.skipSpaces()
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start || p.input[start:p.pos] == "-" {
		return 0, p.errorf(p.input, "expected a number at offset %d", start)
	}
	n, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil {
		return 0, p.errorf(p.input[start:p.pos], "number out of range")
	}
	return n, nil
}

// readQuoted consumes a single-quoted string with backslash escapes.
func (p *typeParser) readQuoted() (string, error) {
	p.skipSpaces()
	if p.peek() != '\'' {
		return "", p.errorf(p.input, "expected a quoted string at offset %d", p.pos)
	}
	p.pos++
	var out []byte
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		p.pos++
		switch c {
		case '\'':
			return string(out), nil
		case '\\':
			if p.pos >= len(p.input) {
				return "", p.errorf(p.input, "unterminated escape in quoted string")
			}
			out = append(out, p.input[p.pos])
			p.pos++
		default:
			out = append(out, c)
		}
	}
	return "", p.errorf(p.input, "unterminated quoted string")
}

func (p *typeParser) parseType() (*Type, error) {
	name := p.readIdent()
	if name == "" {
		return nil, p.errorf(p.input, "expected a type name at offset %d", p.pos)
	}
	if k, ok := simpleKinds[name]; ok {
		return &Type{Kind: k}, nil
	}
	switch name {
	case "FixedString":
		return p.parseFixedString()
	case "Decimal":
		return p.parseDecimal()
	case "DateTime":
		return p.parseDateTime()
	case "DateTime64":
		return p.parseDateTime64()
	case "Enum8":
		return p.parseEnum(KindEnum8, math.MinInt8, math.MaxInt8)
	case "Enum16":
		return p.parseEnum(KindEnum16, math.MinInt16, math.MaxInt16)
	case "Nullable", "Array", "LowCardinality":
		return p.parseWrapper(name)
	case "Map":
		return p.parseMap()
	case "Tuple":
		return p.parseList(KindTuple)
	case "Variant":
		return p.parseList(KindVariant)
	case "Nested":
		return p.parseNested()
	}
	return nil, p.errorf(name, "unknown type name")
}

func (p *typeParser) parseFixedString() (*Type, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	n, err := p.readInt()
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, p.errorf(p.input, "FixedString size must be positive, got %d", n)
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return FixedStringOf(n), nil
}

func (p *typeParser) parseDecimal() (*Type, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	prec, err := p.readInt()
	if err != nil {
		return nil, err
	}
	if err := p.expect(','); err != nil {
		return nil, err
	}
	scale, err := p.readInt()
	if err != nil {
		return nil, err
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	switch {
	case prec < 1 || prec > 38:
		return nil, p.errorf(p.input, "Decimal precision must be in 1..38, got %d", prec)
	case scale < 0 || scale > prec:
		return nil, p.errorf(p.input, "Decimal scale must be in 0..precision, got %d", scale)
	}
	return DecimalOf(prec, scale), nil
}

func (p *typeParser) parseDateTime() (*Type, error) {
	p.skipSpaces()
	if p.peek() != '(' {
		return DateTimeType(""), nil
	}
	p.pos++
	tz, err := p.readQuoted()
	if err != nil {
		return nil, err
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return DateTimeType(tz), nil
}

func (p *typeParser) parseDateTime64() (*Type, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	prec, err := p.readInt()
	if err != nil {
		return nil, err
	}
	if prec < 0 || prec > 9 {
		return nil, p.errorf(p.input, "DateTime64 precision must be in 0..9, got %d", prec)
	}
	var tz string
	p.skipSpaces()
	if p.peek() == ',' {
		p.pos++
		tz, err = p.readQuoted()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return DateTime64Type(prec, tz), nil
}

func (p *typeParser) parseEnum(kind Kind, min, max int) (*Type, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var pairs []EnumPair
	for {
		name, err := p.readQuoted()
		if err != nil {
			return nil, err
		}
		if err := p.expect('='); err != nil {
			return nil, err
		}
		code, err := p.readInt()
		if err != nil {
			return nil, err
		}
		if code < min || code > max {
			return nil, p.errorf(p.input, "%s code %d out of range", kind, code)
		}
		pairs = append(pairs, EnumPair{Name: name, Code: int16(code)})
		p.skipSpaces()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return &Type{Kind: kind, Enum: sortEnumPairs(pairs)}, nil
}

func (p *typeParser) parseWrapper(name string) (*Type, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	inner, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	switch name {
	case "Nullable":
		return NullableOf(inner), nil
	case "Array":
		return ArrayOf(inner), nil
	default:
		return LowCardinalityOf(inner), nil
	}
}

func (p *typeParser) parseMap() (*Type, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	key, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if err := p.expect(','); err != nil {
		return nil, err
	}
	value, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return MapOf(key, value), nil
}

func (p *typeParser) parseList(kind Kind) (*Type, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var args []*Type
	for {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		args = append(args, t)
		p.skipSpaces()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	if kind == KindVariant {
		if len(args) > 255 {
			return nil, p.errorf(p.input, "Variant supports at most 255 alternatives, got %d", len(args))
		}
		sortVariantArgs(args)
	}
	return &Type{Kind: kind, Args: args}, nil
}

func (p *typeParser) parseNested() (*Type, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var fields []Field
	for {
		name := p.readIdent()
		if name == "" {
			return nil, p.errorf(p.input, "expected a field name at offset %d", p.pos)
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: name, Type: t})
		p.skipSpaces()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		break
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return NestedOf(fields...), nil
}
