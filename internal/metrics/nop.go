package metrics

import "github.com/arloliu/handover/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	ctrl, err := handover.NewController(&cfg, boot, presenter, handover.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// ControllerMetrics implementation

// RecordStateTransition discards the state transition metric.
func (n *NopMetrics) RecordStateTransition(_ /* from */, _ /* to */ types.State, _ /* duration */ float64) {
	// No-op
}

// RecordSwitch discards the switch metric.
func (n *NopMetrics) RecordSwitch(_ /* mode */ string, _ /* waited */ float64) {
	// No-op
}

// RecordTrigger discards the trigger metric.
func (n *NopMetrics) RecordTrigger(_ /* kind */ string) {
	// No-op
}

// RecordStateChangeDropped discards the dropped notification metric.
func (n *NopMetrics) RecordStateChangeDropped() {
	// No-op
}

// PrefetchMetrics implementation

// RecordPrefetchOutcome discards the outcome metric.
func (n *NopMetrics) RecordPrefetchOutcome(_ /* status */ string, _ /* duration */ float64) {
	// No-op
}

// RecordAssetFetch discards the asset fetch metric.
func (n *NopMetrics) RecordAssetFetch(_ /* result */ string, _ /* critical */ bool) {
	// No-op
}

// StorageMetrics implementation

// RecordStorageDegraded discards the degraded storage metric.
func (n *NopMetrics) RecordStorageDegraded() {
	// No-op
}

// RecordCacheLookup discards the cache lookup metric.
func (n *NopMetrics) RecordCacheLookup(_ /* hit */ bool) {
	// No-op
}
