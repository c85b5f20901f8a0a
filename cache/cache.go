package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/arloliu/handover/internal/logging"
	"github.com/arloliu/handover/internal/metrics"
	"github.com/arloliu/handover/types"
	"github.com/puzpuzpuz/xsync/v4"
)

// DefaultPrefix starts the name of every prefetch partition.
const DefaultPrefix = "cmp-full-prefetch:"

// Partition is one named set of cached responses.
type Partition interface {
	// Name returns the partition name.
	Name() string

	// Match returns the response cached for req, or types.ErrEntryNotFound.
	// Requests other than GET never match.
	Match(ctx context.Context, req *http.Request) (*Response, error)

	// MatchURL returns the response cached for an absolute URL, or types.ErrEntryNotFound.
	MatchURL(ctx context.Context, url string) (*Response, error)

	// Put stores resp under url, replacing any previous entry.
	Put(ctx context.Context, url string, resp *Response) error
}

// Backend opens, lists and drops partitions.
type Backend interface {
	// Open returns the named partition, creating it when missing.
	Open(ctx context.Context, name string) (Partition, error)

	// Names lists existing partitions.
	Names(ctx context.Context) ([]string, error)

	// Drop deletes a partition. Dropping a missing partition is not an error.
	Drop(ctx context.Context, name string) error
}

// Signature identifies the prefetch partition of one build.
type Signature struct {
	Prefix  string
	Base    string
	Version string
}

// NewSignature returns the signature of variant v using prefix (DefaultPrefix if empty).
func NewSignature(prefix string, v types.Variant) Signature {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return Signature{Prefix: prefix, Base: types.NormalizeBaseURL(v.BaseURL), Version: v.Version}
}

// Scope returns the name prefix shared by every version of the build.
func (s Signature) Scope() string {
	return s.Prefix + types.NormalizeBaseURL(s.Base) + ":"
}

// Name returns the partition name, "<prefix><base>:<version>".
func (s Signature) Name() string {
	return s.Scope() + s.Version
}

// Stale reports whether name is a partition of the same build with another version.
func (s Signature) Stale(name string) bool {
	return strings.HasPrefix(name, s.Scope()) && name != s.Name()
}

// Cache memoizes open partitions of a Backend and implements cross-partition
// lookups and garbage collection on top of it.
type Cache struct {
	backend    Backend
	logger     types.Logger
	metrics    types.MetricsCollector
	partitions *xsync.Map[string, Partition]
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. Default: no-op.
func WithLogger(l types.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics collector. Default: no-op.
func WithMetrics(m types.MetricsCollector) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// New creates a Cache on backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:    backend,
		logger:     logging.NewNop(),
		metrics:    metrics.NewNop(),
		partitions: xsync.NewMap[string, Partition](),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Open returns the named partition, opening it on first use.
func (c *Cache) Open(ctx context.Context, name string) (Partition, error) {
	if p, ok := c.partitions.Load(name); ok {
		return p, nil
	}

	p, err := c.backend.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("open partition %q: %w", name, err)
	}
	actual, _ := c.partitions.LoadOrStore(name, p)

	return actual, nil
}

// Lookup returns the first hit for url across names without backfilling.
//
// Returns:
//   - *Response: The cached response, nil on miss
//   - string: Name of the partition that served the hit
//   - bool: true on hit
func (c *Cache) Lookup(ctx context.Context, url string, names ...string) (*Response, string, bool) {
	for _, name := range names {
		p, err := c.Open(ctx, name)
		if err != nil {
			c.logger.Warn("cache partition unavailable", "partition", name, "error", err)
			continue
		}

		resp, err := p.MatchURL(ctx, url)
		if err == nil {
			return resp, name, true
		}
		if !errors.Is(err, types.ErrEntryNotFound) {
			c.logger.Warn("cache lookup failed", "partition", name, "url", url, "error", err)
		}
	}

	return nil, "", false
}

// MatchAcross returns the first hit for url across names in priority order.
//
// A hit found anywhere but names[0] is written back into names[0] so the
// next lookup is served by the highest-priority partition directly.
func (c *Cache) MatchAcross(ctx context.Context, url string, names ...string) (*Response, bool) {
	resp, from, ok := c.Lookup(ctx, url, names...)
	c.metrics.RecordCacheLookup(ok)
	if !ok {
		return nil, false
	}

	if from != names[0] {
		if err := c.Put(ctx, names[0], url, resp); err != nil {
			c.logger.Warn("cache backfill failed", "partition", names[0], "url", url, "error", err)
		}
	}

	return resp, true
}

// Match is MatchAcross for a request. Requests other than GET never match.
func (c *Cache) Match(ctx context.Context, req *http.Request, names ...string) (*Response, bool) {
	if req.Method != http.MethodGet && req.Method != "" {
		return nil, false
	}

	return c.MatchAcross(ctx, req.URL.String(), names...)
}

// Put stores resp under url in the named partition.
func (c *Cache) Put(ctx context.Context, name string, url string, resp *Response) error {
	p, err := c.Open(ctx, name)
	if err != nil {
		return err
	}

	return p.Put(ctx, url, resp)
}

// Cleanup drops every partition made stale by keep, plus any of the extra
// names that exist.
//
// Drops run in parallel and a failure never stops the others. The returned
// error joins every failure and is meant for logging only.
//
// Returns:
//   - []string: Names of dropped partitions
//   - error: Aggregated drop failures, nil if all succeeded
func (c *Cache) Cleanup(ctx context.Context, keep Signature, extra ...string) ([]string, error) {
	names, err := c.backend.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	retired := make(map[string]bool, len(extra))
	for _, name := range extra {
		retired[name] = true
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		dropped []string
		errs    []error
	)
	for _, name := range names {
		if !keep.Stale(name) && !retired[name] {
			continue
		}

		wg.Go(func() {
			err := c.backend.Drop(ctx, name)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("drop partition %q: %w", name, err))
				return
			}
			dropped = append(dropped, name)
			c.partitions.Delete(name)
		})
	}
	wg.Wait()

	for _, name := range dropped {
		c.logger.Debug("dropped stale cache partition", "partition", name)
	}

	return dropped, errors.Join(errs...)
}
