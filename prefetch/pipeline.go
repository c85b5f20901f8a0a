package prefetch

import (
	"context"
	"errors"
	"fmt"
	rand "math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/handover/cache"
	"github.com/arloliu/handover/internal/logging"
	"github.com/arloliu/handover/internal/metrics"
	"github.com/arloliu/handover/readiness"
	"github.com/arloliu/handover/types"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// TriggerRetry is the trigger name of automatically scheduled retries.
const TriggerRetry = "retry"

// Asset fetch results reported to metrics.
const (
	resultFetched = "fetched"
	resultSkipped = "skipped"
	resultFailed  = "failed"
)

// Pipeline prefetches the full variant's assets into the cache and proves
// its readiness.
//
// At most one run is in flight at a time; concurrent Prefetch calls share
// the outcome of the running flight.
type Pipeline struct {
	variant     types.Variant
	readiness   *readiness.Store
	cache       *cache.Cache
	cfg         Config
	critical    *regexp.Regexp
	client      *http.Client
	partitions  []string
	discoverers []Discoverer
	logger      types.Logger
	metrics     types.MetricsCollector

	flights   singleflight.Group
	listeners *xsync.Map[uint64, func(types.Outcome)]
	nextID    atomic.Uint64
	closed    atomic.Bool

	mu         sync.Mutex
	assets     []types.Asset
	retries    int
	retryTimer *time.Timer
	rng        *rand.Rand
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig sets the pipeline configuration. Zero fields take defaults.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithHTTPClient sets the client used for network fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.client = c
		}
	}
}

// WithPartitions sets the target partitions. Fetched assets are stored into
// the first; skip and validation checks consult all of them.
func WithPartitions(names ...string) Option {
	return func(p *Pipeline) {
		if len(names) > 0 {
			p.partitions = names
		}
	}
}

// WithDiscoverers replaces the discovery strategies, tried in order.
func WithDiscoverers(d ...Discoverer) Option {
	return func(p *Pipeline) {
		p.discoverers = d
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// New creates a pipeline for the full variant v.
//
// The default target partition is the variant's prefetch partition and
// discovery tries the manifest first, then a scan of the entry document.
//
// Parameters:
//   - v: Full variant to prefetch
//   - rs: Readiness store holding v's record
//   - c: Asset cache the assets are stored into
//   - opts: Optional configuration
//
// Returns:
//   - *Pipeline: Ready to use pipeline
//   - error: Invalid critical pattern
func New(v types.Variant, rs *readiness.Store, c *cache.Cache, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		variant:    v,
		readiness:  rs,
		cache:      c,
		cfg:        DefaultConfig(),
		client:     http.DefaultClient,
		partitions: []string{cache.NewSignature("", v).Name()},
		logger:     logging.NewNop(),
		metrics:    metrics.NewNop(),
		listeners:  xsync.NewMap[uint64, func(types.Outcome)](),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.cfg.setDefaults()
	re, err := p.cfg.critical()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidConfig, err)
	}
	p.critical = re
	p.rng = newRetryRNG(p.cfg.RetrySeed)

	if p.discoverers == nil {
		p.discoverers = []Discoverer{ManifestDiscoverer{}, ScanDiscoverer{Extras: p.cfg.ScanExtras}}
	}

	return p, nil
}

// Variant returns the variant the pipeline prefetches.
func (p *Pipeline) Variant() types.Variant {
	return p.variant
}

// Partitions returns the target partitions, highest priority first.
func (p *Pipeline) Partitions() []string {
	return append([]string(nil), p.partitions...)
}

// Prefetch runs the pipeline, or joins the run already in flight.
//
// The run itself is detached from ctx: cancelling ctx only stops the caller
// waiting, reported as a failed outcome, while the run continues for the
// other callers. Errors never escape; they become a failed outcome with the
// reason persisted in the readiness record.
//
// Parameters:
//   - ctx: Bounds the caller's wait
//   - trigger: Name of what caused the run, stored as the record reason
//
// Returns:
//   - types.Outcome: Outcome of the shared run
func (p *Pipeline) Prefetch(ctx context.Context, trigger string) types.Outcome {
	runCtx := context.WithoutCancel(ctx)
	ch := p.flights.DoChan(p.variant.Version, func() (any, error) {
		return p.run(runCtx, trigger), nil
	})

	select {
	case res := <-ch:
		return res.Val.(types.Outcome) //nolint:forcetypeassert
	case <-ctx.Done():
		return types.Outcome{
			Status:  types.OutcomeFailed,
			Trigger: trigger,
			Reason:  fmt.Sprintf("wait cancelled: %v", ctx.Err()),
		}
	}
}

// Validate reports whether the variant is ready and every critical asset is
// still present in the target partitions.
//
// The asset list is the last discovered one; when the pipeline has not run
// in this process it is rediscovered from the cached entry document and
// manifest without touching the network.
func (p *Pipeline) Validate(ctx context.Context) bool {
	if !p.readiness.IsReady(ctx, p.variant) {
		return false
	}

	assets := p.Assets()
	if len(assets) == 0 {
		doc := p.cachedDocument(ctx)
		found, err := p.discover(doc)
		if err != nil {
			p.logger.Debug("validation cannot rediscover assets", "error", err)
			return false
		}
		assets = found
		p.setAssets(found)
	}

	return len(p.missing(ctx, assets)) == 0
}

// OnOutcome registers fn to receive the outcome of every run, including
// automatic retries. fn is called synchronously and must not block.
//
// Returns:
//   - func(): Removes the listener
func (p *Pipeline) OnOutcome(fn func(types.Outcome)) func() {
	id := p.nextID.Add(1)
	p.listeners.Store(id, fn)

	return func() {
		p.listeners.Delete(id)
	}
}

// Assets returns the last discovered asset list.
func (p *Pipeline) Assets() []types.Asset {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]types.Asset(nil), p.assets...)
}

// Close cancels a pending retry. A run in flight completes.
func (p *Pipeline) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retryTimer != nil {
		p.retryTimer.Stop()
		p.retryTimer = nil
	}
}

func (p *Pipeline) run(ctx context.Context, trigger string) types.Outcome {
	start := time.Now()
	out := types.Outcome{Trigger: trigger}

	if p.readiness.IsReady(ctx, p.variant) {
		out.Status = types.OutcomeReady
		out.Cached = true
		p.logger.Debug("full variant already prefetched", "version", p.variant.Version, "trigger", trigger)

		return p.finish(ctx, out, start)
	}

	p.readiness.Write(ctx, p.variant, types.PatchStatus(types.StatusPrefetching, trigger))
	p.logger.Info("prefetch started", "version", p.variant.Version, "trigger", trigger)

	doc := p.document(ctx)
	assets, err := p.discover(doc)
	if err != nil {
		out.Status = types.OutcomeFailed
		out.Reason = err.Error()

		return p.finish(ctx, out, start)
	}
	p.setAssets(assets)

	var fetched, skipped, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Concurrency)
	for _, asset := range assets {
		g.Go(func() error {
			result := p.fetchAsset(ctx, asset.URL)
			p.metrics.RecordAssetFetch(result, asset.Critical)
			switch result {
			case resultFetched:
				fetched.Add(1)
			case resultSkipped:
				skipped.Add(1)
			default:
				failed.Add(1)
			}

			return nil
		})
	}
	_ = g.Wait()

	out.Fetched = int(fetched.Load())
	out.Skipped = int(skipped.Load())
	out.Failed = int(failed.Load())

	out.Missing = p.missing(ctx, assets)
	if len(out.Missing) > 0 {
		out.Status = types.OutcomeFailed
		out.Reason = missingReason(out.Missing)
	} else {
		out.Status = types.OutcomeReady
	}

	return p.finish(ctx, out, start)
}

// finish persists, reports and broadcasts an outcome, scheduling a retry
// after a failed run.
func (p *Pipeline) finish(ctx context.Context, out types.Outcome, start time.Time) types.Outcome {
	out.Duration = time.Since(start)

	if !out.Cached {
		if out.Ready() {
			p.readiness.Write(ctx, p.variant, types.PatchStatus(types.StatusReady, ""))
		} else {
			p.readiness.Write(ctx, p.variant, types.PatchStatus(types.StatusFailed, out.Reason))
		}
	}
	p.metrics.RecordPrefetchOutcome(string(out.Status), out.Duration.Seconds())

	if out.Ready() {
		p.logger.Info("prefetch ready",
			"version", p.variant.Version,
			"trigger", out.Trigger,
			"cached", out.Cached,
			"fetched", out.Fetched,
			"skipped", out.Skipped,
			"duration", out.Duration)
		p.resetRetries()
	} else {
		p.logger.Warn("prefetch failed",
			"version", p.variant.Version,
			"trigger", out.Trigger,
			"reason", out.Reason,
			"failed", out.Failed)
		p.scheduleRetry()
	}

	p.listeners.Range(func(_ uint64, fn func(types.Outcome)) bool {
		fn(out)
		return true
	})

	return out
}

// document gathers the entry document and manifest. The entry document is
// served from the cache when present; the manifest is always fetched fresh
// and falls back to the cached copy.
func (p *Pipeline) document(ctx context.Context) Document {
	doc := Document{Variant: p.variant, Critical: p.critical}

	if entryURL, err := p.variant.EntryURL(); err == nil {
		if resp, _, ok := p.cache.Lookup(ctx, entryURL, p.partitions...); ok {
			doc.Entry = resp.Body
		} else if resp, err := p.fetch(ctx, entryURL); err == nil {
			p.store(ctx, entryURL, resp)
			doc.Entry = resp.Body
		} else {
			p.logger.Warn("entry document unavailable", "url", entryURL, "error", err)
		}
	}

	manifestURL, err := p.variant.ManifestURL()
	if err != nil {
		return doc
	}

	resp, err := p.fetch(ctx, manifestURL)
	if err == nil {
		p.store(ctx, manifestURL, resp)
	} else {
		p.logger.Debug("manifest fetch failed", "url", manifestURL, "error", err)
		cached, _, ok := p.cache.Lookup(ctx, manifestURL, p.partitions...)
		if !ok {
			return doc
		}
		resp = cached
	}

	m, err := parseManifest(resp.Body)
	if err != nil {
		p.logger.Warn("manifest ignored", "url", manifestURL, "error", err)
		return doc
	}
	doc.Manifest = m

	return doc
}

// cachedDocument is document without network access.
func (p *Pipeline) cachedDocument(ctx context.Context) Document {
	doc := Document{Variant: p.variant, Critical: p.critical}

	if entryURL, err := p.variant.EntryURL(); err == nil {
		if resp, _, ok := p.cache.Lookup(ctx, entryURL, p.partitions...); ok {
			doc.Entry = resp.Body
		}
	}
	if manifestURL, err := p.variant.ManifestURL(); err == nil {
		if resp, _, ok := p.cache.Lookup(ctx, manifestURL, p.partitions...); ok {
			if m, err := parseManifest(resp.Body); err == nil {
				doc.Manifest = m
			}
		}
	}

	return doc
}

func (p *Pipeline) discover(doc Document) ([]types.Asset, error) {
	var errs []error
	for _, d := range p.discoverers {
		if !d.Available(doc) {
			continue
		}

		assets, err := d.Discover(doc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s discovery: %w", d.Name(), err))
			continue
		}
		p.logger.Debug("assets discovered", "strategy", d.Name(), "count", len(assets))

		return assets, nil
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", types.ErrManifestUnavailable, errors.Join(errs...))
	}

	return nil, fmt.Errorf("%w: neither manifest nor entry document available", types.ErrManifestUnavailable)
}

func (p *Pipeline) fetchAsset(ctx context.Context, url string) string {
	if _, _, ok := p.cache.Lookup(ctx, url, p.partitions...); ok {
		return resultSkipped
	}

	resp, err := p.fetch(ctx, url)
	if err != nil {
		p.logger.Warn("asset fetch failed", "url", url, "error", err)
		return resultFailed
	}
	if !p.store(ctx, url, resp) {
		return resultFailed
	}

	return resultFetched
}

// fetch performs a GET bounded by the per-request timeout. Non-2xx
// responses are errors.
func (p *Pipeline) fetch(ctx context.Context, url string) (*cache.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrAssetFetch, url, err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrAssetFetch, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: status %d", types.ErrAssetFetch, url, resp.StatusCode)
	}

	out, err := cache.FromHTTP(url, resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrAssetFetch, err)
	}

	return out, nil
}

func (p *Pipeline) store(ctx context.Context, url string, resp *cache.Response) bool {
	if err := p.cache.Put(ctx, p.partitions[0], url, resp); err != nil {
		p.logger.Warn("asset store failed", "url", url, "partition", p.partitions[0], "error", err)
		return false
	}

	return true
}

// missing returns the critical URLs absent from every target partition.
func (p *Pipeline) missing(ctx context.Context, assets []types.Asset) []string {
	var out []string
	for _, a := range assets {
		if !a.Critical {
			continue
		}

		resp, _, ok := p.cache.Lookup(ctx, a.URL, p.partitions...)
		if ok && p.cfg.VerifyDigest && !resp.Verify() {
			p.logger.Warn("cached asset digest mismatch", "url", a.URL)
			ok = false
		}
		if !ok {
			out = append(out, a.URL)
		}
	}

	return out
}

func missingReason(urls []string) string {
	return fmt.Sprintf("critical assets missing (%d): %s", len(urls), strings.Join(urls, ","))
}

func (p *Pipeline) setAssets(assets []types.Asset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assets = assets
}

func (p *Pipeline) resetRetries() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retries = 0
}

func (p *Pipeline) scheduleRetry() {
	if p.closed.Load() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.retryTimer != nil || p.retries >= p.cfg.MaxRetries {
		return
	}

	delay := retryDelay(p.retries, p.cfg.RetryDelay, p.cfg.RetryMultiplier, p.cfg.RetryMaxDelay, p.cfg.RetryJitter, p.rng)
	p.retries++
	p.logger.Info("prefetch retry scheduled", "attempt", p.retries, "delay", delay)

	p.retryTimer = time.AfterFunc(delay, func() {
		p.mu.Lock()
		p.retryTimer = nil
		p.mu.Unlock()

		if p.closed.Load() {
			return
		}
		p.Prefetch(context.Background(), TriggerRetry)
	})
}
