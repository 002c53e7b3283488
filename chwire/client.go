// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package chwire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"

	"github.com/goccy/go-json"
)

// Transport issues HTTP requests. *http.Client satisfies it; tests may
// substitute their own.
type Transport interface {
	Do(*http.Request) (*http.Response, error)
}

// Request and response headers understood by the server.
const (
	headerUser          = "X-ClickHouse-User"
	headerKey           = "X-ClickHouse-Key"
	headerSummary       = "X-ClickHouse-Summary"
	headerExceptionCode = "X-ClickHouse-Exception-Code"
)

var userAgent = fmt.Sprintf("chwire-go/0.1.0 (lv:go/%s; os:%s)", runtime.Version(), runtime.GOOS)

// Client issues queries and inserts against one server. Configure it with
// the chained With setters, then share it freely; it is immutable after
// construction in practice and all methods are safe for concurrent use.
type Client struct {
	baseURL     string
	database    string
	user        string
	password    string
	compression Compression
	validation  bool
	headers     map[string]string
	transport   Transport
}

// NewClient returns a client for the server at baseURL, such as
// "http://localhost:8123". Defaults: LZ4 compression, header validation on,
// http.DefaultClient as the transport.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		compression: CompressionLZ4,
		validation:  true,
		transport:   http.DefaultClient,
	}
}

// WithDatabase sets the default database for queries and inserts.
func (c *Client) WithDatabase(name string) *Client {
	c.database = name
	return c
}

// WithAuth sets the credentials sent with every request.
func (c *Client) WithAuth(user, password string) *Client {
	c.user, c.password = user, password
	return c
}

// WithCompression selects the stream compression for both directions.
func (c *Client) WithCompression(comp Compression) *Client {
	c.compression = comp
	return c
}

// WithValidation toggles column-header validation on the read path. When
// off, row streams are raw RowBinary decoded by struct shape alone.
func (c *Client) WithValidation(on bool) *Client {
	c.validation = on
	return c
}

// WithHeader adds a header to every request.
func (c *Client) WithHeader(name, value string) *Client {
	if c.headers == nil {
		c.headers = map[string]string{}
	}
	c.headers[name] = value
	return c
}

// WithTransport replaces the HTTP transport.
func (c *Client) WithTransport(t Transport) *Client {
	c.transport = t
	return c
}

// Compression reports the configured stream compression.
func (c *Client) Compression() Compression { return c.compression }

// Query prepares a query for execution. No I/O happens until a cursor
// obtained from the returned Query is first pulled.
func (c *Client) Query(sql string) *Query {
	return &Query{client: c, sql: sql}
}

// Query is a prepared statement paired with its client. Obtain a cursor
// with Bytes, Arrow, or the package-level Rows.
type Query struct {
	client *Client
	sql    string
}

// Bytes returns a cursor over the raw decoded payload. The response format
// is whatever the statement's FORMAT clause selects; the framing and
// compression are still handled by the cursor.
func (q *Query) Bytes() *BytesCursor {
	return newBytesCursor(newRawCursor(q.resolver("")))
}

// Rows returns a cursor of decoded T rows for q. A FORMAT clause is
// appended to the statement: RowBinaryWithNamesAndTypes when the client
// validates headers, RowBinary otherwise.
//
// This is a free function because Go methods cannot introduce type
// parameters.
func Rows[T any](q *Query) *RowCursor[T] {
	format := "RowBinary"
	if q.client.validation {
		format = "RowBinaryWithNamesAndTypes"
	}
	return newRowCursor[T](newRawCursor(q.resolver(format)), q.client.validation)
}

// resolver builds the lazy resolve step for a cursor. format, when
// non-empty, is appended as a FORMAT clause.
func (q *Query) resolver(format string) resolveFunc {
	return func(ctx context.Context) (*resolved, error) {
		sql := q.sql
		if format != "" {
			sql += " FORMAT " + format
		}
		resp, err := q.client.send(ctx, sql, nil)
		if err != nil {
			return nil, err
		}
		summary := parseSummary(resp.Header.Get(headerSummary))
		framer := NewFramer(resp.Body, q.client.compression != CompressionNone)
		return &resolved{framer: framer, body: resp.Body, summary: summary}, nil
	}
}

// send issues one request. The statement travels in the query string when
// body is non-nil (insert data occupies the body), in the body otherwise.
func (c *Client) send(ctx context.Context, sql string, body io.Reader) (*http.Response, error) {
	params := url.Values{}
	if c.database != "" {
		params.Set("database", c.database)
	}
	if c.compression != CompressionNone {
		params.Set("compress", c.compression.String())
	}
	var reqBody io.Reader = strings.NewReader(sql)
	if body != nil {
		params.Set("query", sql)
		reqBody = body
	}
	u := c.baseURL + "/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, reqBody)
	if err != nil {
		return nil, &TransportError{Message: "building request", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	if c.user != "" {
		req.Header.Set(headerUser, c.user)
		req.Header.Set(headerKey, c.password)
	}
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}
	resp, err := c.transport.Do(req)
	if err != nil {
		return nil, &TransportError{Message: "request failed", Err: err}
	}
	if resp.StatusCode != http.StatusOK || resp.Header.Get(headerExceptionCode) != "" {
		defer resp.Body.Close()
		return nil, c.collectBadResponse(resp)
	}
	return resp, nil
}

// maxBadResponseBytes caps how much of a failed response is drained for the
// error message.
const maxBadResponseBytes = 1 << 20

// collectBadResponse turns a failed response into a TransportError carrying
// the server's message. The body may itself be framed and compressed; when
// deframing fails the raw bytes are used as a fallback.
func (c *Client) collectBadResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBadResponseBytes))
	msg := raw
	framer := NewFramer(bytes.NewReader(raw), c.compression != CompressionNone)
	var decoded []byte
	for {
		chunk, err := framer.Next()
		if err == io.EOF && decoded != nil {
			msg = decoded
		}
		if err != nil {
			break
		}
		decoded = append(decoded, chunk...)
	}
	return &TransportError{
		Message: strings.TrimSpace(string(msg)),
		Code:    resp.Header.Get(headerExceptionCode),
	}
}

// QuerySummary carries the server's progress counters, parsed from the
// summary response header. The server encodes the numbers as JSON strings.
type QuerySummary struct {
	ReadRows        uint64 `json:"read_rows,string"`
	ReadBytes       uint64 `json:"read_bytes,string"`
	WrittenRows     uint64 `json:"written_rows,string"`
	WrittenBytes    uint64 `json:"written_bytes,string"`
	TotalRowsToRead uint64 `json:"total_rows_to_read,string"`
	ResultRows      uint64 `json:"result_rows,string"`
	ResultBytes     uint64 `json:"result_bytes,string"`
	ElapsedNs       uint64 `json:"elapsed_ns,string"`
}

// parseSummary decodes the summary header, returning nil when the header is
// absent or unparseable. A bad summary never fails a query.
func parseSummary(h string) *QuerySummary {
	if h == "" {
		return nil
	}
	var s QuerySummary
	if err := json.Unmarshal([]byte(h), &s); err != nil {
		return nil
	}
	return &s
}
