// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateConversions(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	d := DateOf(day)
	assert.Equal(t, day, d.Time())

	// Sub-day precision truncates.
	assert.Equal(t, d, DateOf(day.Add(7*time.Hour)))
}

func TestDateTimeConversions(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
	assert.Equal(t, at, DateTimeOf(at).Time())
}

func TestDateTime64Conversions(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 45, 123_000_000, time.UTC)
	v := DateTime64Of(at, 3)
	assert.Equal(t, at, v.Time(3))

	// Precision 0 is whole seconds.
	v0 := DateTime64Of(at, 0)
	assert.Equal(t, at.Truncate(time.Second), v0.Time(0))
}

func TestDateTime64NegativeTicks(t *testing.T) {
	before := time.Date(1969, 12, 31, 23, 59, 59, 500_000_000, time.UTC)
	v := DateTime64Of(before, 3)
	assert.Equal(t, before, v.Time(3))
}

func TestIPv4Conversions(t *testing.T) {
	addr := netip.MustParseAddr("10.20.30.40")
	v, err := IPv4Of(addr)
	require.NoError(t, err)
	assert.Equal(t, IPv4{10, 20, 30, 40}, v)
	assert.Equal(t, addr, v.Addr())
	assert.Equal(t, "10.20.30.40", v.String())

	_, err = IPv4Of(netip.MustParseAddr("::1"))
	assert.Error(t, err)
}

func TestIPv6Conversions(t *testing.T) {
	addr := netip.MustParseAddr("2001:db8::1")
	v := IPv6Of(addr)
	assert.Equal(t, addr, v.Addr())
}

func TestInt128Of(t *testing.T) {
	assert.Equal(t, Int128{Lo: 5, Hi: 0}, Int128Of(5))
	assert.Equal(t, Int128{Lo: ^uint64(0), Hi: -1}, Int128Of(-1))
}

func TestVariantNull(t *testing.T) {
	v := VariantNull()
	assert.True(t, v.IsNull())
	assert.Nil(t, v.Value)
	assert.False(t, Variant{Index: 0, Value: int64(1)}.IsNull())
}
