package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
type MetricsCollector interface {
	ControllerMetrics
	PrefetchMetrics
	StorageMetrics
}

// ControllerMetrics defines metrics for controller-level operations.
type ControllerMetrics interface {
	// RecordStateTransition records a controller state transition event.
	//
	// Parameters:
	//   - from, to: The transition endpoints
	//   - duration: Seconds spent in the previous state
	RecordStateTransition(from, to State, duration float64)

	// RecordSwitch records a completed switch to the full variant.
	//
	// Parameters:
	//   - mode: "instant", "ready" or "forced"
	//   - waited: Seconds between the switch request and the full variant becoming visible
	RecordSwitch(mode string, waited float64)

	// RecordTrigger records a fired prefetch trigger ("time", "level", "complete", "switch").
	RecordTrigger(kind string)

	// RecordStateChangeDropped records when state notifications are dropped due to slow subscribers.
	RecordStateChangeDropped()
}

// PrefetchMetrics defines metrics for the prefetch pipeline.
type PrefetchMetrics interface {
	// RecordPrefetchOutcome records the end of a pipeline run.
	//
	// Parameters:
	//   - status: "ready" or "failed"
	//   - duration: Run time in seconds
	RecordPrefetchOutcome(status string, duration float64)

	// RecordAssetFetch records a single asset request.
	//
	// Parameters:
	//   - result: "fetched", "skipped" or "failed"
	//   - critical: Whether the asset is critical
	RecordAssetFetch(result string, critical bool)
}

// StorageMetrics defines metrics for the readiness store and asset cache.
type StorageMetrics interface {
	// RecordStorageDegraded records that the readiness store fell back to memory.
	RecordStorageDegraded()

	// RecordCacheLookup records a cache lookup.
	//
	// Parameters:
	//   - hit: true if a partition served the request
	RecordCacheLookup(hit bool)
}
