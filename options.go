package handover

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/handover/cache"
	"github.com/arloliu/handover/internal/logging"
	"github.com/arloliu/handover/internal/metrics"
	"github.com/arloliu/handover/store"
)

// Option configures a Controller with optional dependencies.
type Option func(*controllerOptions)

// controllerOptions holds optional Controller configuration.
type controllerOptions struct {
	hooks        *Hooks
	metrics      MetricsCollector
	logger       Logger
	environment  Environment
	storeBackend store.Backend
	cacheBackend cache.Backend
	httpClient   *http.Client
	clock        func() time.Time
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewController
//
// Example:
//
//	hooks := &handover.Hooks{
//	    OnPrefetchOutcome: func(ctx context.Context, out handover.Outcome) error {
//	        log.Printf("prefetch %s: %s", out.Status, out.Reason)
//	        return nil
//	    },
//	}
//	ctrl, err := handover.NewController(&cfg, boot, presenter, handover.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *controllerOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewController
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *controllerOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (compatible with zap.SugaredLogger)
//
// Returns:
//   - Option: Functional option for NewController
//
// Example:
//
//	logger := zap.NewExample().Sugar()
//	ctrl, err := handover.NewController(&cfg, boot, presenter, handover.WithLogger(logger))
func WithLogger(logger Logger) Option {
	return func(o *controllerOptions) {
		o.logger = logger
	}
}

// WithEnvironment sets the host environment consulted by the triggers.
// Without it the application is treated as visible on a fast connection.
func WithEnvironment(env Environment) Option {
	return func(o *controllerOptions) {
		o.environment = env
	}
}

// WithStore sets the backend of the persistent readiness records.
//
// Without it records live in memory and readiness does not survive a restart.
//
// Example:
//
//	kvStore, err := store.OpenNATS(ctx, js, store.DefaultBucket)
//	ctrl, err := handover.NewController(&cfg, boot, presenter, handover.WithStore(kvStore))
func WithStore(backend store.Backend) Option {
	return func(o *controllerOptions) {
		o.storeBackend = backend
	}
}

// WithCacheBackend sets the asset cache backend. Defaults to cache.NewMemory().
func WithCacheBackend(backend cache.Backend) Option {
	return func(o *controllerOptions) {
		o.cacheBackend = backend
	}
}

// WithHTTPClient sets the client used to prefetch assets.
func WithHTTPClient(client *http.Client) Option {
	return func(o *controllerOptions) {
		o.httpClient = client
	}
}

// WithClock overrides the readiness record clock.
func WithClock(now func() time.Time) Option {
	return func(o *controllerOptions) {
		o.clock = now
	}
}

// NewPrometheusMetrics returns a MetricsCollector registering its collectors with reg.
//
// Parameters:
//   - reg: Registerer, e.g. prometheus.DefaultRegisterer
//   - namespace: Metric name prefix; "handover" if empty
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) MetricsCollector {
	return metrics.NewPrometheus(reg, namespace)
}

// NewSlogLogger returns a Logger backed by the given slog.Logger.
func NewSlogLogger(logger *slog.Logger) Logger {
	return logging.NewSlog(logger)
}
