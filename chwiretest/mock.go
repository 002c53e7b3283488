// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package chwiretest provides an in-process mock server for testing code
// built on chwire. Handlers are queued in order; each incoming request pops
// the next handler, and a request with an empty queue fails the response so
// an over-eager client is caught rather than hung.
package chwiretest

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/Query-farm/chwire/chwire"
)

// Mock is a queued-handler HTTP server speaking the chwire framing.
type Mock struct {
	srv *httptest.Server

	mu       sync.Mutex
	handlers []http.HandlerFunc
}

// New starts a mock server. Callers must Close it.
func New() *Mock {
	m := &Mock{}
	m.srv = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the server's base URL, suitable for chwire.NewClient.
func (m *Mock) URL() string { return m.srv.URL }

// Close shuts the server down.
func (m *Mock) Close() { m.srv.Close() }

// Expect queues a handler for the next unclaimed request.
func (m *Mock) Expect(h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Remaining reports how many queued handlers were never claimed. Tests
// should assert zero.
func (m *Mock) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

func (m *Mock) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	var h http.HandlerFunc
	if len(m.handlers) > 0 {
		h = m.handlers[0]
		m.handlers = m.handlers[1:]
	}
	m.mu.Unlock()
	if h == nil {
		http.Error(w, "chwiretest: no handler queued for this request", http.StatusInternalServerError)
		return
	}
	h(w, r)
}

// RowsResponse builds a handler that streams a RowBinaryWithNamesAndTypes
// response: the column header followed by whatever rows encode writes, all
// framed with the given compression. A nil encode streams just the header.
func RowsResponse(compression chwire.Compression, cols []chwire.Column, encode func(w *chwire.Writer) error) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		body := chwire.NewWriter(4096)
		if err := chwire.AppendColumnsHeader(body, cols); err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		if encode != nil {
			if err := encode(body); err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		fw := chwire.NewFrameWriter(rw, compression)
		if err := fw.WriteChunk(body.Bytes()); err != nil {
			return
		}
		fw.Close()
	}
}

// RawResponse builds a handler that frames pre-encoded payload chunks.
func RawResponse(compression chwire.Compression, chunks ...[]byte) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		fw := chwire.NewFrameWriter(rw, compression)
		for _, chunk := range chunks {
			if err := fw.WriteChunk(chunk); err != nil {
				return
			}
		}
		fw.Close()
	}
}

// ErrorResponse builds a handler that fails the request the way the server
// does: a non-200 status, the exception code header, and the message as the
// plain body.
func ErrorResponse(code int, message string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("X-ClickHouse-Exception-Code", strconv.Itoa(code))
		rw.WriteHeader(http.StatusInternalServerError)
		rw.Write([]byte(message))
	}
}

// SummaryResponse wraps a handler, attaching a summary header before it
// runs.
func SummaryResponse(summary string, h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("X-ClickHouse-Summary", summary)
		h(rw, r)
	}
}
