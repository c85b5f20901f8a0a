// Package store provides the small persistent key/value primitive behind the
// readiness store.
//
// Three backends are available:
//   - Memory: process-local map, used as the session fallback and in tests
//   - NATS: JetStream KeyValue bucket shared by every host on an account
//   - SQLite: single-file database for standalone hosts
//
// Keys are opaque strings; values are opaque byte slices. Get returns
// types.ErrKeyNotFound for missing keys. Every other error means the backend
// cannot be trusted for the rest of the session.
package store
