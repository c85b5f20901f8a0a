// Package prefetch downloads and validates the full variant's assets.
//
// A Pipeline run for one variant version:
//
//  1. returns ready at once when the readiness store already proves it;
//  2. records "prefetching", fetches the entry document and the manifest,
//     and discovers the asset list with the first available Discoverer;
//  3. fetches every asset not cached yet with a bounded worker pool, each
//     request under its own timeout;
//  4. checks that every critical asset is cached and records "ready", or
//     records "failed" with the missing URLs and schedules a retry.
//
// Concurrent Prefetch calls share one run. A run is detached from the
// caller's context: cancelling a caller only stops that caller's wait.
package prefetch
