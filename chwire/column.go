// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

// Column pairs a column name with its type.
type Column struct {
	Name string
	Type *Type
}

func (c Column) String() string { return c.Name + ": " + c.Type.String() }

// maxHeaderColumns bounds the column count a header may declare. Guards
// against allocating for a corrupt count before any name bytes arrive.
const maxHeaderColumns = 1 << 16

// ParseColumnsHeader reads a RowBinaryWithNamesAndTypes header: a LEB128
// column count, one pass of names, then one pass of type strings. A count of
// zero is ErrEmptyColumns. Reads that outrun the buffer leave r untouched at
// the caller's last committed position via the usual ErrInsufficientData
// retry contract, so callers should re-parse from the header start after
// appending more data.
func ParseColumnsHeader(r *Reader) ([]Column, error) {
	n, err := r.ReadLEB128()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrEmptyColumns
	}
	if n > maxHeaderColumns {
		return nil, ErrMalformed
	}
	cols := make([]Column, n)
	for i := range cols {
		if cols[i].Name, err = r.ReadString(); err != nil {
			return nil, err
		}
	}
	for i := range cols {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if cols[i].Type, err = ParseType(s); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

// AppendColumnsHeader writes a RowBinaryWithNamesAndTypes header for cols.
func AppendColumnsHeader(w *Writer, cols []Column) error {
	if len(cols) == 0 {
		return ErrEmptyColumns
	}
	w.PutLEB128(uint64(len(cols)))
	for _, c := range cols {
		w.PutString(c.Name)
	}
	for _, c := range cols {
		w.PutString(c.Type.String())
	}
	return nil
}

// FlattenNested expands every Nested column into parallel Array columns
// named "column.field", the representation the codec actually sees on the
// wire. Non-nested columns pass through unchanged.
func FlattenNested(cols []Column) []Column {
	out := make([]Column, 0, len(cols))
	for _, c := range cols {
		if c.Type.Kind != KindNested {
			out = append(out, c)
			continue
		}
		for _, f := range c.Type.Fields {
			out = append(out, Column{Name: c.Name + "." + f.Name, Type: ArrayOf(f.Type)})
		}
	}
	return out
}
