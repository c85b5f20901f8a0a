package metrics

import (
	"strconv"
	"sync"

	"github.com/arloliu/handover/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use so that a
// collector constructed but never exercised leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	stateTransitions *prometheus.CounterVec
	stateDuration    *prometheus.HistogramVec
	switches         *prometheus.CounterVec
	switchWait       prometheus.Histogram
	triggers         *prometheus.CounterVec
	stateDropped     prometheus.Counter
	outcomes         *prometheus.CounterVec
	prefetchDuration prometheus.Histogram
	assetFetches     *prometheus.CounterVec
	storageDegraded  prometheus.Counter
	cacheLookups     *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "handover" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "handover"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "controller",
			Name:      "state_transitions_total",
			Help:      "Total controller state transitions by source and target state.",
		}, []string{"from", "to"})

		p.stateDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "controller",
			Name:      "state_duration_seconds",
			Help:      "Time spent in a state before leaving it.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		}, []string{"state"})

		p.switches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "controller",
			Name:      "switches_total",
			Help:      "Completed switches to the full variant by mode (instant, ready, forced).",
		}, []string{"mode"})

		p.switchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "controller",
			Name:      "switch_wait_seconds",
			Help:      "Time between a switch request and the full variant becoming visible.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		})

		p.triggers = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "trigger",
			Name:      "fired_total",
			Help:      "Prefetch triggers fired by kind (time, level, complete, switch).",
		}, []string{"kind"})

		p.stateDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "controller",
			Name:      "state_notifications_dropped_total",
			Help:      "State change notifications dropped because a subscriber was slow.",
		})

		p.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "prefetch",
			Name:      "outcomes_total",
			Help:      "Prefetch pipeline runs by final status.",
		}, []string{"status"})

		p.prefetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "prefetch",
			Name:      "duration_seconds",
			Help:      "Duration of prefetch pipeline runs in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms .. ~51s
		})

		p.assetFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "prefetch",
			Name:      "asset_fetches_total",
			Help:      "Asset requests by result (fetched, skipped, failed) and criticality.",
		}, []string{"result", "critical"})

		p.storageDegraded = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "storage",
			Name:      "degraded_total",
			Help:      "Times the readiness store fell back to in-memory storage.",
		})

		p.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Asset cache lookups by result (hit, miss).",
		}, []string{"result"})

		p.reg.MustRegister(p.stateTransitions)
		p.reg.MustRegister(p.stateDuration)
		p.reg.MustRegister(p.switches)
		p.reg.MustRegister(p.switchWait)
		p.reg.MustRegister(p.triggers)
		p.reg.MustRegister(p.stateDropped)
		p.reg.MustRegister(p.outcomes)
		p.reg.MustRegister(p.prefetchDuration)
		p.reg.MustRegister(p.assetFetches)
		p.reg.MustRegister(p.storageDegraded)
		p.reg.MustRegister(p.cacheLookups)
	})
}

// RecordStateTransition counts the transition and observes time spent in the previous state.
func (p *PrometheusCollector) RecordStateTransition(from, to types.State, duration float64) {
	p.ensureRegistered()
	p.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	p.stateDuration.WithLabelValues(from.String()).Observe(duration)
}

// RecordSwitch counts a completed switch and observes the wait.
func (p *PrometheusCollector) RecordSwitch(mode string, waited float64) {
	p.ensureRegistered()
	p.switches.WithLabelValues(mode).Inc()
	p.switchWait.Observe(waited)
}

// RecordTrigger counts a fired trigger.
func (p *PrometheusCollector) RecordTrigger(kind string) {
	p.ensureRegistered()
	p.triggers.WithLabelValues(kind).Inc()
}

// RecordStateChangeDropped counts a dropped state notification.
func (p *PrometheusCollector) RecordStateChangeDropped() {
	p.ensureRegistered()
	p.stateDropped.Inc()
}

// RecordPrefetchOutcome counts the run result and observes its duration.
func (p *PrometheusCollector) RecordPrefetchOutcome(status string, duration float64) {
	p.ensureRegistered()
	p.outcomes.WithLabelValues(status).Inc()
	p.prefetchDuration.Observe(duration)
}

// RecordAssetFetch counts a single asset request.
func (p *PrometheusCollector) RecordAssetFetch(result string, critical bool) {
	p.ensureRegistered()
	p.assetFetches.WithLabelValues(result, strconv.FormatBool(critical)).Inc()
}

// RecordStorageDegraded counts a fallback to in-memory storage.
func (p *PrometheusCollector) RecordStorageDegraded() {
	p.ensureRegistered()
	p.storageDegraded.Inc()
}

// RecordCacheLookup counts a cache lookup.
func (p *PrometheusCollector) RecordCacheLookup(hit bool) {
	p.ensureRegistered()
	if hit {
		p.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		p.cacheLookups.WithLabelValues("miss").Inc()
	}
}
