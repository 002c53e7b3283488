// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when a source is exhausted before a
	// value, field or frame completed. On a streaming cursor this is
	// recoverable internally (more bytes are awaited); surfaced to the caller
	// it means the stream was truncated.
	ErrInsufficientData = errors.New("chwire: insufficient data")

	// ErrMalformed is returned for structurally invalid wire data: an
	// over-long varint, a bad block checksum declaration, or a compressed
	// block whose declared sizes are impossible.
	ErrMalformed = errors.New("chwire: malformed data")

	// ErrEmptyColumns is returned when a column header declares zero columns.
	ErrEmptyColumns = errors.New("chwire: expected at least one column in the header")
)

// TypeParseError reports an unparseable or ill-formed column type string.
type TypeParseError struct {
	Input   string // the offending (sub)string
	Message string
}

func (e *TypeParseError) Error() string {
	return fmt.Sprintf("TypeParseError: %s (input: %q)", e.Message, e.Input)
}

// Is supports errors.Is by matching any *TypeParseError target.
func (e *TypeParseError) Is(target error) bool {
	_, ok := target.(*TypeParseError)
	return ok
}

// ErrTypeParse is a sentinel for use with errors.Is to check whether any
// error in a chain is a *TypeParseError.
var ErrTypeParse = &TypeParseError{}

// SchemaMismatchError reports a disagreement between a row's declared shape
// and a column header supplied by the server.
type SchemaMismatchError struct {
	Column   string // offending column, empty if the mismatch is positional
	Expected string // expected (wire) type
	Actual   string // actual (Go) type or shape description
}

func (e *SchemaMismatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("SchemaMismatch: expected %s, got %s", e.Expected, e.Actual)
	}
	return fmt.Sprintf("SchemaMismatch: column %q: expected %s, got %s", e.Column, e.Expected, e.Actual)
}

// Is supports errors.Is by matching any *SchemaMismatchError target.
func (e *SchemaMismatchError) Is(target error) bool {
	_, ok := target.(*SchemaMismatchError)
	return ok
}

// ErrSchemaMismatch is a sentinel for use with errors.Is.
var ErrSchemaMismatch = &SchemaMismatchError{}

// DecompressionError reports a compressed block whose checksum or declared
// decompressed size disagrees with the observed data.
type DecompressionError struct {
	Message string
}

func (e *DecompressionError) Error() string {
	return "DecompressionError: " + e.Message
}

// Is supports errors.Is by matching any *DecompressionError target.
func (e *DecompressionError) Is(target error) bool {
	_, ok := target.(*DecompressionError)
	return ok
}

// ErrDecompression is a sentinel for use with errors.Is.
var ErrDecompression = &DecompressionError{}

// TransportError is an opaque passthrough from the transport layer, including
// server-side exceptions delivered mid-stream and non-success responses.
// Timeouts surface here too: from the codec's perspective a timeout is
// indistinguishable from any other mid-stream transport failure.
type TransportError struct {
	Message string
	Code    string // server exception code, if known
	Err     error  // underlying transport error, if any
}

func (e *TransportError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("TransportError: code %s: %s", e.Code, e.Message)
	case e.Message != "":
		return "TransportError: " + e.Message
	case e.Err != nil:
		return "TransportError: " + e.Err.Error()
	}
	return "TransportError"
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is supports errors.Is by matching any *TransportError target.
func (e *TransportError) Is(target error) bool {
	_, ok := target.(*TransportError)
	return ok
}

// ErrTransport is a sentinel for use with errors.Is.
var ErrTransport = &TransportError{}
