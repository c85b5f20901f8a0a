package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"
)

// Response is a cached HTTP response. It is immutable once stored.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte

	// Digest is the xxh3-64 hash of Body computed when the response was created.
	Digest uint64

	StoredAt time.Time
}

// NewResponse builds a Response and computes its digest.
func NewResponse(url string, status int, header http.Header, body []byte) *Response {
	return &Response{
		URL:        url,
		StatusCode: status,
		Header:     header.Clone(),
		Body:       body,
		Digest:     xxh3.Hash(body),
		StoredAt:   time.Now(),
	}
}

// FromHTTP reads resp's body (closing it) and returns the cached form.
func FromHTTP(url string, resp *http.Response) (*Response, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}

	return NewResponse(url, resp.StatusCode, resp.Header, body), nil
}

// Verify reports whether Body still hashes to Digest.
func (r *Response) Verify() bool {
	return xxh3.Hash(r.Body) == r.Digest
}

// DigestHex returns Digest as 16 hex digits.
func (r *Response) DigestHex() string {
	return fmt.Sprintf("%016x", r.Digest)
}

// HTTPResponse returns a fresh *http.Response serving the cached body.
func (r *Response) HTTPResponse(req *http.Request) *http.Response {
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(r.Body)))

	status := r.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}
