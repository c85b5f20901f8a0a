// Package cache stores fetched full variant assets keyed by absolute URL.
//
// Assets live in named partitions opened from a Backend. The prefetch
// partition of a build is named after its base location and version (see
// Signature) so that partitions of older builds can be found and dropped at
// startup. Lookups may span several partitions; a hit found in a lower
// priority partition is copied into the first one.
//
// Transport plugs the cache into an http.Client for runtime fetches of the
// full variant.
package cache
