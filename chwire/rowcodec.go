// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// The row codec maps Go structs to RowBinary rows by reflection. Struct
// fields are matched to columns with `ch:"name"` tags; untagged fields use
// the field name and `ch:"-"` skips a field. Without a column header the
// codec is shape-driven: declaration order is wire order. With a header
// (RowMetadata) every value is validated against the column type and columns
// may arrive in any order.

type structField struct {
	name  string
	index int
}

var structFieldCache sync.Map // reflect.Type -> []structField

func structFields(t reflect.Type) ([]structField, error) {
	if cached, ok := structFieldCache.Load(t); ok {
		return cached.([]structField), nil
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("chwire: row type must be a struct, got %s", t)
	}
	var fields []structField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("ch"); ok {
			if tag == "-" {
				continue
			}
			name = tag
		}
		fields = append(fields, structField{name: name, index: i})
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("chwire: row type %s has no usable fields", t)
	}
	structFieldCache.Store(t, fields)
	return fields, nil
}

// Wrapper types recognized by identity before kind-based dispatch.
var (
	uuidType       = reflect.TypeOf(uuid.UUID{})
	uint128Type    = reflect.TypeOf(UInt128{})
	int128Type     = reflect.TypeOf(Int128{})
	decimal128Type = reflect.TypeOf(Decimal128{})
	ipv4Type       = reflect.TypeOf(IPv4{})
	ipv6Type       = reflect.TypeOf(IPv6{})
	variantType    = reflect.TypeOf(Variant{})
)

// SerializeRow appends the RowBinary encoding of row (a struct or pointer to
// struct) to w, shape-driven with no schema validation.
func SerializeRow(w *Writer, row any) error {
	return serializeRow(w, row, nil, nil)
}

// DeserializeRow decodes one RowBinary row from r into row (a pointer to
// struct), shape-driven with no schema validation.
func DeserializeRow(r *Reader, row any) error {
	v := reflect.ValueOf(row)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("chwire: row must be a non-nil pointer to struct")
	}
	v = v.Elem()
	fields, err := structFields(v.Type())
	if err != nil {
		return err
	}
	for _, f := range fields {
		if err := deserializeValue(r, v.Field(f.index), nil); err != nil {
			return namedColumnError(err, f.name)
		}
	}
	return nil
}

func serializeRow(w *Writer, row any, cols []Column, fieldFor []int) error {
	v := reflect.ValueOf(row)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return fmt.Errorf("chwire: row must not be a nil pointer")
		}
		v = v.Elem()
	}
	fields, err := structFields(v.Type())
	if err != nil {
		return err
	}
	if cols == nil {
		for _, f := range fields {
			if err := serializeValue(w, v.Field(f.index), nil); err != nil {
				return namedColumnError(err, f.name)
			}
		}
		return nil
	}
	for i, col := range cols {
		if err := serializeValue(w, v.Field(fields[fieldFor[i]].index), col.Type); err != nil {
			return namedColumnError(err, col.Name)
		}
	}
	return nil
}

// namedColumnError fills in the column name on a schema mismatch raised
// deeper in the value tree.
func namedColumnError(err error, name string) error {
	if sm, ok := err.(*SchemaMismatchError); ok && sm.Column == "" {
		sm.Column = name
		return sm
	}
	return err
}

func mismatch(t *Type, v reflect.Value) error {
	return &SchemaMismatchError{Expected: t.String(), Actual: v.Type().String()}
}

func serializeValue(w *Writer, v reflect.Value, t *Type) error {
	if t != nil {
		t = t.unwrapLowCardinality()
	}

	switch v.Type() {
	case uuidType:
		if t != nil && t.Kind != KindUUID {
			return mismatch(t, v)
		}
		putUUID(w, v.Interface().(uuid.UUID))
		return nil
	case uint128Type:
		if t != nil && t.Kind != KindUInt128 {
			return mismatch(t, v)
		}
		u := v.Interface().(UInt128)
		w.PutUint64(u.Lo)
		w.PutUint64(u.Hi)
		return nil
	case int128Type:
		if t != nil && t.Kind != KindInt128 {
			return mismatch(t, v)
		}
		u := v.Interface().(Int128)
		w.PutUint64(u.Lo)
		w.PutUint64(uint64(u.Hi))
		return nil
	case decimal128Type:
		if t != nil && (t.Kind != KindDecimal || t.decimalWidth() != 16) {
			return mismatch(t, v)
		}
		u := v.Interface().(Decimal128)
		w.PutUint64(u.Lo)
		w.PutUint64(uint64(u.Hi))
		return nil
	case ipv4Type:
		if t != nil && t.Kind != KindIPv4 {
			return mismatch(t, v)
		}
		a := v.Interface().(IPv4)
		// The wire form is a little-endian UInt32, so network order reverses.
		w.PutBytes([]byte{a[3], a[2], a[1], a[0]})
		return nil
	case ipv6Type:
		if t != nil && t.Kind != KindIPv6 {
			return mismatch(t, v)
		}
		a := v.Interface().(IPv6)
		w.PutBytes(a[:])
		return nil
	case variantType:
		if t == nil || t.Kind != KindVariant {
			if t == nil {
				return fmt.Errorf("chwire: Variant values require a column header")
			}
			return mismatch(t, v)
		}
		return serializeVariant(w, v.Interface().(Variant), t)
	}

	switch v.Kind() {
	case reflect.Bool:
		if t != nil && t.Kind != KindBool {
			return mismatch(t, v)
		}
		if v.Bool() {
			w.PutByte(1)
		} else {
			w.PutByte(0)
		}
		return nil

	case reflect.Int8:
		if t != nil {
			switch t.Kind {
			case KindInt8:
			case KindEnum8:
				if _, ok := t.enumName(int16(v.Int())); !ok {
					return &SchemaMismatchError{Expected: t.String(), Actual: fmt.Sprintf("undeclared enum code %d", v.Int())}
				}
			default:
				return mismatch(t, v)
			}
		}
		w.PutByte(byte(v.Int()))
		return nil
	case reflect.Int16:
		if t != nil {
			switch t.Kind {
			case KindInt16:
			case KindEnum16:
				if _, ok := t.enumName(int16(v.Int())); !ok {
					return &SchemaMismatchError{Expected: t.String(), Actual: fmt.Sprintf("undeclared enum code %d", v.Int())}
				}
			default:
				return mismatch(t, v)
			}
		}
		w.PutUint16(uint16(v.Int()))
		return nil
	case reflect.Int32:
		if t != nil && t.Kind != KindInt32 && t.Kind != KindDate32 &&
			!(t.Kind == KindDecimal && t.decimalWidth() == 4) {
			return mismatch(t, v)
		}
		w.PutUint32(uint32(v.Int()))
		return nil
	case reflect.Int64:
		if t != nil && t.Kind != KindInt64 && t.Kind != KindDateTime64 &&
			!(t.Kind == KindDecimal && t.decimalWidth() == 8) {
			return mismatch(t, v)
		}
		w.PutUint64(uint64(v.Int()))
		return nil

	case reflect.Uint8:
		if t != nil && t.Kind != KindUInt8 {
			return mismatch(t, v)
		}
		w.PutByte(byte(v.Uint()))
		return nil
	case reflect.Uint16:
		if t != nil && t.Kind != KindUInt16 && t.Kind != KindDate {
			return mismatch(t, v)
		}
		w.PutUint16(uint16(v.Uint()))
		return nil
	case reflect.Uint32:
		if t != nil && t.Kind != KindUInt32 && t.Kind != KindDateTime {
			return mismatch(t, v)
		}
		w.PutUint32(uint32(v.Uint()))
		return nil
	case reflect.Uint64:
		if t != nil && t.Kind != KindUInt64 {
			return mismatch(t, v)
		}
		w.PutUint64(v.Uint())
		return nil

	case reflect.Float32:
		if t != nil && t.Kind != KindFloat32 {
			return mismatch(t, v)
		}
		w.PutUint32(math.Float32bits(float32(v.Float())))
		return nil
	case reflect.Float64:
		if t != nil && t.Kind != KindFloat64 {
			return mismatch(t, v)
		}
		w.PutUint64(math.Float64bits(v.Float()))
		return nil

	case reflect.Int, reflect.Uint, reflect.Uintptr:
		// No implicit widening: the wire width must be explicit in the type.
		return fmt.Errorf("chwire: %s is not supported, use a fixed-width integer type", v.Type())

	case reflect.String:
		return serializeStringBytes(w, []byte(v.String()), t, v)

	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return serializeStringBytes(w, v.Bytes(), t, v)
		}
		var elem *Type
		if t != nil {
			if t.Kind != KindArray {
				return mismatch(t, v)
			}
			elem = t.Args[0]
		}
		w.PutLEB128(uint64(v.Len()))
		for i := 0; i < v.Len(); i++ {
			if err := serializeValue(w, v.Index(i), elem); err != nil {
				return err
			}
		}
		return nil

	case reflect.Array:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("chwire: unsupported array type %s", v.Type())
		}
		if t != nil && (t.Kind != KindFixedString || t.Size != v.Len()) {
			return mismatch(t, v)
		}
		for i := 0; i < v.Len(); i++ {
			w.PutByte(byte(v.Index(i).Uint()))
		}
		return nil

	case reflect.Map:
		var kt, vt *Type
		if t != nil {
			if t.Kind != KindMap {
				return mismatch(t, v)
			}
			kt, vt = t.Args[0], t.Args[1]
		}
		w.PutLEB128(uint64(v.Len()))
		iter := v.MapRange()
		for iter.Next() {
			if err := serializeValue(w, iter.Key(), kt); err != nil {
				return err
			}
			if err := serializeValue(w, iter.Value(), vt); err != nil {
				return err
			}
		}
		return nil

	case reflect.Struct:
		if t != nil {
			if t.Kind != KindTuple {
				return mismatch(t, v)
			}
			if v.NumField() != len(t.Args) {
				return mismatch(t, v)
			}
		}
		for i := 0; i < v.NumField(); i++ {
			var elem *Type
			if t != nil {
				elem = t.Args[i]
			}
			if err := serializeValue(w, v.Field(i), elem); err != nil {
				return err
			}
		}
		return nil

	case reflect.Pointer:
		var inner *Type
		if t != nil {
			if t.Kind != KindNullable {
				return mismatch(t, v)
			}
			inner = t.Args[0]
		}
		if v.IsNil() {
			w.PutByte(1)
			return nil
		}
		w.PutByte(0)
		return serializeValue(w, v.Elem(), inner)
	}
	return fmt.Errorf("chwire: unsupported value type %s", v.Type())
}

// serializeStringBytes handles String and FixedString targets for both
// string and []byte sources. FixedString pads with zero bytes and rejects
// oversized values.
func serializeStringBytes(w *Writer, p []byte, t *Type, v reflect.Value) error {
	if t == nil || t.Kind == KindString {
		w.PutLenBytes(p)
		return nil
	}
	if t.Kind != KindFixedString {
		return mismatch(t, v)
	}
	if len(p) > t.Size {
		return &SchemaMismatchError{
			Expected: t.String(),
			Actual:   fmt.Sprintf("%d-byte value", len(p)),
		}
	}
	w.PutBytes(p)
	for i := len(p); i < t.Size; i++ {
		w.PutByte(0)
	}
	return nil
}

func serializeVariant(w *Writer, val Variant, t *Type) error {
	if val.IsNull() {
		w.PutByte(VariantNullIndex)
		return nil
	}
	if int(val.Index) >= len(t.Args) {
		return &SchemaMismatchError{
			Expected: t.String(),
			Actual:   fmt.Sprintf("variant index %d", val.Index),
		}
	}
	w.PutByte(val.Index)
	if val.Value == nil {
		return fmt.Errorf("chwire: non-null Variant with nil value")
	}
	return serializeValue(w, reflect.ValueOf(val.Value), t.Args[val.Index])
}

func putUUID(w *Writer, u uuid.UUID) {
	// Each 64-bit half is stored little-endian, reversing its byte order.
	var p [16]byte
	for i := 0; i < 8; i++ {
		p[i] = u[7-i]
		p[8+i] = u[15-i]
	}
	w.PutBytes(p[:])
}

func readUUID(r *Reader) (uuid.UUID, error) {
	p, err := r.ReadN(16)
	if err != nil {
		return uuid.UUID{}, err
	}
	var u uuid.UUID
	for i := 0; i < 8; i++ {
		u[i] = p[7-i]
		u[8+i] = p[15-i]
	}
	return u, nil
}

func deserializeValue(r *Reader, v reflect.Value, t *Type) error {
	if t != nil {
		t = t.unwrapLowCardinality()
	}

	switch v.Type() {
	case uuidType:
		if t != nil && t.Kind != KindUUID {
			return mismatch(t, v)
		}
		u, err := readUUID(r)
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(u))
		return nil
	case uint128Type, int128Type, decimal128Type:
		if t != nil {
			switch {
			case v.Type() == uint128Type && t.Kind == KindUInt128:
			case v.Type() == int128Type && t.Kind == KindInt128:
			case v.Type() == decimal128Type && t.Kind == KindDecimal && t.decimalWidth() == 16:
			default:
				return mismatch(t, v)
			}
		}
		lo, err := r.ReadUint64()
		if err != nil {
			return err
		}
		hi, err := r.ReadUint64()
		if err != nil {
			return err
		}
		if v.Type() == uint128Type {
			v.Set(reflect.ValueOf(UInt128{Lo: lo, Hi: hi}))
		} else if v.Type() == int128Type {
			v.Set(reflect.ValueOf(Int128{Lo: lo, Hi: int64(hi)}))
		} else {
			v.Set(reflect.ValueOf(Decimal128{Lo: lo, Hi: int64(hi)}))
		}
		return nil
	case ipv4Type:
		if t != nil && t.Kind != KindIPv4 {
			return mismatch(t, v)
		}
		p, err := r.ReadN(4)
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(IPv4{p[3], p[2], p[1], p[0]}))
		return nil
	case ipv6Type:
		if t != nil && t.Kind != KindIPv6 {
			return mismatch(t, v)
		}
		p, err := r.ReadN(16)
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(IPv6(p)))
		return nil
	case variantType:
		if t == nil {
			return fmt.Errorf("chwire: Variant values require a column header")
		}
		if t.Kind != KindVariant {
			return mismatch(t, v)
		}
		val, err := readVariant(r, t)
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(val))
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		if t != nil && t.Kind != KindBool {
			return mismatch(t, v)
		}
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		v.SetBool(b != 0)
		return nil

	case reflect.Int8:
		if t != nil && t.Kind != KindInt8 && t.Kind != KindEnum8 {
			return mismatch(t, v)
		}
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		v.SetInt(int64(int8(b)))
		return nil
	case reflect.Int16:
		if t != nil && t.Kind != KindInt16 && t.Kind != KindEnum16 {
			return mismatch(t, v)
		}
		u, err := r.ReadUint16()
		if err != nil {
			return err
		}
		v.SetInt(int64(int16(u)))
		return nil
	case reflect.Int32:
		if t != nil && t.Kind != KindInt32 && t.Kind != KindDate32 &&
			!(t.Kind == KindDecimal && t.decimalWidth() == 4) {
			return mismatch(t, v)
		}
		u, err := r.ReadUint32()
		if err != nil {
			return err
		}
		v.SetInt(int64(int32(u)))
		return nil
	case reflect.Int64:
		if t != nil && t.Kind != KindInt64 && t.Kind != KindDateTime64 &&
			!(t.Kind == KindDecimal && t.decimalWidth() == 8) {
			return mismatch(t, v)
		}
		u, err := r.ReadUint64()
		if err != nil {
			return err
		}
		v.SetInt(int64(u))
		return nil

	case reflect.Uint8:
		if t != nil && t.Kind != KindUInt8 {
			return mismatch(t, v)
		}
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		v.SetUint(uint64(b))
		return nil
	case reflect.Uint16:
		if t != nil && t.Kind != KindUInt16 && t.Kind != KindDate {
			return mismatch(t, v)
		}
		u, err := r.ReadUint16()
		if err != nil {
			return err
		}
		v.SetUint(uint64(u))
		return nil
	case reflect.Uint32:
		if t != nil && t.Kind != KindUInt32 && t.Kind != KindDateTime {
			return mismatch(t, v)
		}
		u, err := r.ReadUint32()
		if err != nil {
			return err
		}
		v.SetUint(uint64(u))
		return nil
	case reflect.Uint64:
		if t != nil && t.Kind != KindUInt64 {
			return mismatch(t, v)
		}
		u, err := r.ReadUint64()
		if err != nil {
			return err
		}
		v.SetUint(u)
		return nil

	case reflect.Float32:
		if t != nil && t.Kind != KindFloat32 {
			return mismatch(t, v)
		}
		u, err := r.ReadUint32()
		if err != nil {
			return err
		}
		v.SetFloat(float64(math.Float32frombits(u)))
		return nil
	case reflect.Float64:
		if t != nil && t.Kind != KindFloat64 {
			return mismatch(t, v)
		}
		u, err := r.ReadUint64()
		if err != nil {
			return err
		}
		v.SetFloat(math.Float64frombits(u))
		return nil

	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return fmt.Errorf("chwire: %s is not supported, use a fixed-width integer type", v.Type())

	case reflect.String:
		if t != nil && t.Kind == KindFixedString {
			p, err := r.ReadN(t.Size)
			if err != nil {
				return err
			}
			v.SetString(string(p))
			return nil
		}
		if t != nil && t.Kind != KindString {
			return mismatch(t, v)
		}
		s, err := r.ReadString()
		if err != nil {
			return err
		}
		v.SetString(s)
		return nil

	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return deserializeByteSlice(r, v, t)
		}
		var elem *Type
		if t != nil {
			if t.Kind != KindArray {
				return mismatch(t, v)
			}
			elem = t.Args[0]
		}
		n, err := r.ReadLEB128()
		if err != nil {
			return err
		}
		if n > uint64(math.MaxInt32) {
			return ErrMalformed
		}
		out := reflect.MakeSlice(v.Type(), int(n), int(n))
		for i := 0; i < int(n); i++ {
			if err := deserializeValue(r, out.Index(i), elem); err != nil {
				return err
			}
		}
		v.Set(out)
		return nil

	case reflect.Array:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("chwire: unsupported array type %s", v.Type())
		}
		if t != nil && (t.Kind != KindFixedString || t.Size != v.Len()) {
			return mismatch(t, v)
		}
		p, err := r.ReadN(v.Len())
		if err != nil {
			return err
		}
		reflect.Copy(v, reflect.ValueOf(p))
		return nil

	case reflect.Map:
		var kt, vt *Type
		if t != nil {
			if t.Kind != KindMap {
				return mismatch(t, v)
			}
			kt, vt = t.Args[0], t.Args[1]
		}
		n, err := r.ReadLEB128()
		if err != nil {
			return err
		}
		if n > uint64(math.MaxInt32) {
			return ErrMalformed
		}
		out := reflect.MakeMapWithSize(v.Type(), int(n))
		key := reflect.New(v.Type().Key()).Elem()
		val := reflect.New(v.Type().Elem()).Elem()
		for i := 0; i < int(n); i++ {
			if err := deserializeValue(r, key, kt); err != nil {
				return err
			}
			if err := deserializeValue(r, val, vt); err != nil {
				return err
			}
			out.SetMapIndex(key, val)
		}
		v.Set(out)
		return nil

	case reflect.Struct:
		if t != nil {
			if t.Kind != KindTuple {
				return mismatch(t, v)
			}
			if v.NumField() != len(t.Args) {
				return mismatch(t, v)
			}
		}
		for i := 0; i < v.NumField(); i++ {
			var elem *Type
			if t != nil {
				elem = t.Args[i]
			}
			if err := deserializeValue(r, v.Field(i), elem); err != nil {
				return err
			}
		}
		return nil

	case reflect.Pointer:
		var inner *Type
		if t != nil {
			if t.Kind != KindNullable {
				return mismatch(t, v)
			}
			inner = t.Args[0]
		}
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0 {
			v.Set(reflect.Zero(v.Type()))
			return nil
		}
		out := reflect.New(v.Type().Elem())
		if err := deserializeValue(r, out.Elem(), inner); err != nil {
			return err
		}
		v.Set(out)
		return nil
	}
	return fmt.Errorf("chwire: unsupported value type %s", v.Type())
}

func deserializeByteSlice(r *Reader, v reflect.Value, t *Type) error {
	if t != nil && t.Kind == KindFixedString {
		p, err := r.ReadN(t.Size)
		if err != nil {
			return err
		}
		v.SetBytes(append([]byte(nil), p...))
		return nil
	}
	if t != nil && t.Kind != KindString {
		return mismatch(t, v)
	}
	start := r.Offset()
	n, err := r.ReadLEB128()
	if err != nil {
		return err
	}
	if n > uint64(math.MaxInt32) {
		return ErrMalformed
	}
	p, err := r.ReadN(int(n))
	if err != nil {
		r.off = start
		return err
	}
	v.SetBytes(append([]byte(nil), p...))
	return nil
}

// readVariant decodes a Variant value into its dynamic representation. The
// active alternative is decoded by its type; see decodeDynamic for the Go
// types produced.
func readVariant(r *Reader, t *Type) (Variant, error) {
	idx, err := r.ReadByte()
	if err != nil {
		return Variant{}, err
	}
	if idx == VariantNullIndex {
		return VariantNull(), nil
	}
	if int(idx) >= len(t.Args) {
		return Variant{}, fmt.Errorf("%w: variant discriminant %d of %d alternatives", ErrMalformed, idx, len(t.Args))
	}
	val, err := decodeDynamic(r, t.Args[idx])
	if err != nil {
		return Variant{}, err
	}
	return Variant{Index: idx, Value: val}, nil
}

// decodeDynamic decodes one value of type t into a dynamically typed Go
// value: fixed-width kinds to their obvious Go type, String and FixedString
// to string, Array and Tuple to []any, Map to map[string]any (string keys
// only), Nullable to a value or nil, enums to Enum8/Enum16, and the wrapper
// kinds to this package's wrapper types.
func decodeDynamic(r *Reader, t *Type) (any, error) {
	t = t.unwrapLowCardinality()
	switch t.Kind {
	case KindBool:
		b, err := r.ReadByte()
		return b != 0, err
	case KindInt8:
		b, err := r.ReadByte()
		return int8(b), err
	case KindInt16:
		u, err := r.ReadUint16()
		return int16(u), err
	case KindInt32, KindDate32:
		u, err := r.ReadUint32()
		if t.Kind == KindDate32 {
			return Date32(u), err
		}
		return int32(u), err
	case KindInt64:
		u, err := r.ReadUint64()
		return int64(u), err
	case KindUInt8:
		b, err := r.ReadByte()
		return b, err
	case KindUInt16:
		return r.ReadUint16()
	case KindUInt32:
		return r.ReadUint32()
	case KindUInt64:
		return r.ReadUint64()
	case KindInt128, KindUInt128:
		lo, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		hi, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		if t.Kind == KindUInt128 {
			return UInt128{Lo: lo, Hi: hi}, nil
		}
		return Int128{Lo: lo, Hi: int64(hi)}, nil
	case KindFloat32:
		u, err := r.ReadUint32()
		return math.Float32frombits(u), err
	case KindFloat64:
		u, err := r.ReadUint64()
		return math.Float64frombits(u), err
	case KindString:
		return r.ReadString()
	case KindFixedString:
		p, err := r.ReadN(t.Size)
		if err != nil {
			return nil, err
		}
		return string(p), nil
	case KindDecimal:
		switch t.decimalWidth() {
		case 4:
			u, err := r.ReadUint32()
			return Decimal32(u), err
		case 8:
			u, err := r.ReadUint64()
			return Decimal64(u), err
		}
		lo, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		hi, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		return Decimal128{Lo: lo, Hi: int64(hi)}, nil
	case KindDate:
		u, err := r.ReadUint16()
		return Date(u), err
	case KindDateTime:
		u, err := r.ReadUint32()
		return DateTime(u), err
	case KindDateTime64:
		u, err := r.ReadUint64()
		return DateTime64(u), err
	case KindUUID:
		return readUUID(r)
	case KindIPv4:
		p, err := r.ReadN(4)
		if err != nil {
			return nil, err
		}
		return IPv4{p[3], p[2], p[1], p[0]}, nil
	case KindIPv6:
		p, err := r.ReadN(16)
		if err != nil {
			return nil, err
		}
		return IPv6(p), nil
	case KindEnum8:
		b, err := r.ReadByte()
		return Enum8(b), err
	case KindEnum16:
		u, err := r.ReadUint16()
		return Enum16(u), err
	case KindNullable:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0 {
			return nil, nil
		}
		return decodeDynamic(r, t.Args[0])
	case KindArray:
		n, err := r.ReadLEB128()
		if err != nil {
			return nil, err
		}
		if n > uint64(math.MaxInt32) {
			return nil, ErrMalformed
		}
		out := make([]any, n)
		for i := range out {
			if out[i], err = decodeDynamic(r, t.Args[0]); err != nil {
				return nil, err
			}
		}
		return out, nil
	case KindTuple:
		out := make([]any, len(t.Args))
		for i, a := range t.Args {
			var err error
			if out[i], err = decodeDynamic(r, a); err != nil {
				return nil, err
			}
		}
		return out, nil
	case KindMap:
		if t.Args[0].unwrapLowCardinality().Kind != KindString {
			return nil, fmt.Errorf("chwire: dynamic decode supports only String map keys, got %s", t.Args[0])
		}
		n, err := r.ReadLEB128()
		if err != nil {
			return nil, err
		}
		if n > uint64(math.MaxInt32) {
			return nil, ErrMalformed
		}
		out := make(map[string]any, n)
		for i := uint64(0); i < n; i++ {
			k, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			if out[k], err = decodeDynamic(r, t.Args[1]); err != nil {
				return nil, err
			}
		}
		return out, nil
	case KindVariant:
		return readVariant(r, t)
	}
	return nil, fmt.Errorf("chwire: cannot dynamically decode %s", t)
}

// RowMetadata binds a struct type to a server column header. Columns are
// matched to fields by name, so server column order may differ from struct
// declaration order. Construction validates that every column has a field
// and every field a column.
type RowMetadata struct {
	cols     []Column
	fields   []structField
	fieldFor []int // column position -> index into fields
}

// NewRowMetadata validates rowType (a struct type) against cols.
func NewRowMetadata(rowType reflect.Type, cols []Column) (*RowMetadata, error) {
	for rowType.Kind() == reflect.Pointer {
		rowType = rowType.Elem()
	}
	fields, err := structFields(rowType)
	if err != nil {
		return nil, err
	}
	if len(fields) != len(cols) {
		return nil, &SchemaMismatchError{
			Expected: fmt.Sprintf("%d columns (%s)", len(cols), describeColumns(cols)),
			Actual:   fmt.Sprintf("%d fields in %s", len(fields), rowType),
		}
	}
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		byName[f.name] = i
	}
	m := &RowMetadata{cols: cols, fields: fields, fieldFor: make([]int, len(cols))}
	seen := make([]bool, len(fields))
	for i, col := range cols {
		fi, ok := byName[col.Name]
		if !ok || seen[fi] {
			return nil, &SchemaMismatchError{
				Column:   col.Name,
				Expected: col.Type.String(),
				Actual:   "no matching field in " + rowType.String(),
			}
		}
		seen[fi] = true
		m.fieldFor[i] = fi
	}
	return m, nil
}

// Columns returns the header columns the metadata was built from.
func (m *RowMetadata) Columns() []Column { return m.cols }

// InOrder reports whether column order matches field declaration order.
func (m *RowMetadata) InOrder() bool {
	for i, fi := range m.fieldFor {
		if i != fi {
			return false
		}
	}
	return true
}

// SerializeRow appends row encoded and validated against the header.
func (m *RowMetadata) SerializeRow(w *Writer, row any) error {
	return serializeRow(w, row, m.cols, m.fieldFor)
}

// DeserializeRow decodes one row validated against the header into row, a
// pointer to struct of the bound type.
func (m *RowMetadata) DeserializeRow(r *Reader, row any) error {
	v := reflect.ValueOf(row)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("chwire: row must be a non-nil pointer to struct")
	}
	v = v.Elem()
	for i, col := range m.cols {
		if err := deserializeValue(r, v.Field(m.fields[m.fieldFor[i]].index), col.Type); err != nil {
			return namedColumnError(err, col.Name)
		}
	}
	return nil
}

// describeColumns renders a header for error messages.
func describeColumns(cols []Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}
