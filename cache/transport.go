package cache

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/arloliu/handover/internal/logging"
	"github.com/arloliu/handover/types"
)

// Transport is an http.RoundTripper serving the full variant's runtime
// fetches from the cache.
//
// GET requests under Scope are answered from the Runtime partition, then the
// Prefetch partition; a hit in Prefetch is copied into Runtime. Misses go to
// Base and 2xx responses are stored: paths matching Critical into Prefetch,
// everything else into Runtime. Other requests pass through untouched.
type Transport struct {
	// Base performs network requests. http.DefaultTransport if nil.
	Base http.RoundTripper

	Cache *Cache

	// Scope is the absolute base URL of the full variant.
	Scope string

	// Prefetch and Runtime are partition names.
	Prefetch string
	Runtime  string

	// Critical selects paths stored into Prefetch. types.CriticalPattern if nil.
	Critical *regexp.Regexp

	Logger types.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.inScope(req) {
		return t.base().RoundTrip(req)
	}

	ctx := req.Context()
	if cached, ok := t.Cache.Match(ctx, req, t.Runtime, t.Prefetch); ok {
		return cached.HTTPResponse(req), nil
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}

	u := req.URL.String()
	stored, err := FromHTTP(u, resp)
	if err != nil {
		return nil, err
	}

	target := t.Runtime
	if t.critical().MatchString(req.URL.Path) {
		target = t.Prefetch
	}
	if err := t.Cache.Put(ctx, target, u, stored); err != nil {
		t.logger().Warn("cache store failed", "partition", target, "url", u, "error", err)
	}

	return stored.HTTPResponse(req), nil
}

func (t *Transport) inScope(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != "" {
		return false
	}

	scope, err := url.Parse(types.NormalizeBaseURL(t.Scope))
	if err != nil {
		return false
	}

	return strings.EqualFold(req.URL.Scheme, scope.Scheme) &&
		strings.EqualFold(req.URL.Host, scope.Host) &&
		strings.HasPrefix(req.URL.Path, scope.Path)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}

	return http.DefaultTransport
}

func (t *Transport) critical() *regexp.Regexp {
	if t.Critical != nil {
		return t.Critical
	}

	return types.CriticalPattern
}

func (t *Transport) logger() types.Logger {
	if t.Logger != nil {
		return t.Logger
	}

	return logging.NewNop()
}
