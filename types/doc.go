// Package types provides core type definitions and interfaces for the handover library.
//
// This package contains shared types that are used across multiple packages in the
// handover library. By keeping these types in a separate package, we avoid import cycles
// between the root handover package and its store, cache, prefetch and trigger packages.
//
// Key types:
//   - State: Handover controller lifecycle state
//   - Variant: Immutable description of the lite or full build
//   - Record: Persisted readiness claim for a variant version
//   - Asset: Absolute asset URL with its critical flag
//   - Logger: Structured logging interface
//   - MetricsCollector: Metrics recording interface
//   - Bootstrapper, Instance, Presenter, Environment: external collaborators
package types
