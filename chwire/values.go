// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"fmt"
	"math"
	"net/netip"
	"time"
)

// Wrapper types for wire values whose natural Go representation is
// ambiguous. Each carries the raw wire integer and converts on demand, so
// decoding a million rows never touches time.Time or netip.Addr unless the
// caller asks.

// UInt128 is an unsigned 128-bit integer, stored as two 64-bit halves.
type UInt128 struct {
	Lo uint64
	Hi uint64
}

func (v UInt128) String() string {
	if v.Hi == 0 {
		return fmt.Sprintf("%d", v.Lo)
	}
	return fmt.Sprintf("0x%016x%016x", v.Hi, v.Lo)
}

// Int128 is a signed 128-bit integer in two's complement, stored as two
// 64-bit halves.
type Int128 struct {
	Lo uint64
	Hi int64
}

// Int128Of sign-extends a 64-bit value.
func Int128Of(v int64) Int128 {
	var hi int64
	if v < 0 {
		hi = -1
	}
	return Int128{Lo: uint64(v), Hi: hi}
}

// Decimal32 is a Decimal with precision at most 9, as a scaled integer.
type Decimal32 int32

// Decimal64 is a Decimal with precision at most 18, as a scaled integer.
type Decimal64 int64

// Decimal128 is a Decimal with precision at most 38, as a scaled 128-bit
// integer.
type Decimal128 Int128

// Date is days since the Unix epoch, the wire form of the Date type.
type Date uint16

// DateOf truncates t to its UTC day.
func DateOf(t time.Time) Date {
	return Date(t.Unix() / 86400)
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

// Date32 is days since the Unix epoch, signed, the wire form of Date32.
type Date32 int32

func (d Date32) Time() time.Time {
	return time.Unix(int64(d)*86400, 0).UTC()
}

// DateTime is seconds since the Unix epoch, the wire form of DateTime.
type DateTime uint32

// DateTimeOf converts t, truncating sub-second precision.
func DateTimeOf(t time.Time) DateTime { return DateTime(t.Unix()) }

func (d DateTime) Time() time.Time { return time.Unix(int64(d), 0).UTC() }

// DateTime64 is ticks since the Unix epoch at a column-defined precision,
// the wire form of DateTime64.
type DateTime64 int64

// Time interprets the tick count at the given precision (fractional decimal
// digits, 0 to 9).
func (d DateTime64) Time(precision int) time.Time {
	scale := int64(math.Pow10(precision))
	secs := int64(d) / scale
	frac := int64(d) % scale
	if frac < 0 {
		secs--
		frac += scale
	}
	return time.Unix(secs, frac*int64(math.Pow10(9-precision))).UTC()
}

// DateTime64Of converts t to ticks at the given precision.
func DateTime64Of(t time.Time, precision int) DateTime64 {
	scale := int64(math.Pow10(precision))
	return DateTime64(t.Unix()*scale + int64(t.Nanosecond())/int64(math.Pow10(9-precision)))
}

// Enum8 is the signed wire code of an Enum8 value.
type Enum8 int8

// Enum16 is the signed wire code of an Enum16 value.
type Enum16 int16

// IPv4 is an IPv4 address in network byte order.
type IPv4 [4]byte

// IPv4Of converts a netip address; it fails for IPv6 addresses.
func IPv4Of(a netip.Addr) (IPv4, error) {
	if !a.Is4() {
		return IPv4{}, fmt.Errorf("chwire: %s is not an IPv4 address", a)
	}
	return IPv4(a.As4()), nil
}

func (v IPv4) Addr() netip.Addr { return netip.AddrFrom4(v) }

func (v IPv4) String() string { return v.Addr().String() }

// IPv6 is an IPv6 address in network byte order.
type IPv6 [16]byte

// IPv6Of converts a netip address, mapping IPv4 addresses to their
// IPv4-in-IPv6 form.
func IPv6Of(a netip.Addr) IPv6 {
	return IPv6(a.As16())
}

func (v IPv6) Addr() netip.Addr { return netip.AddrFrom16(v) }

func (v IPv6) String() string { return v.Addr().String() }

// VariantNullIndex is the wire discriminant of a null Variant value.
const VariantNullIndex = 0xFF

// Variant is a value of a Variant column. Index is the position of the
// active alternative in the type's canonical (sorted) alternative order, or
// VariantNullIndex with a nil Value for null.
type Variant struct {
	Index uint8
	Value any
}

// VariantNull is the null Variant value.
func VariantNull() Variant { return Variant{Index: VariantNullIndex} }

// IsNull reports whether the value is the Variant null.
func (v Variant) IsNull() bool { return v.Index == VariantNullIndex }
