// Package readiness persists per-version prefetch status of the full variant.
//
// A Store keeps one JSON record per full variant base location. The record
// survives restarts through a store.Backend and carries the version it
// describes; a record for another version, or an expired one, never counts
// as ready.
//
// Storage failures never surface to callers. The first backend error other
// than a missing key switches the Store to an in-memory map for the rest of
// its life and is logged once.
package readiness

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/handover/internal/logging"
	"github.com/arloliu/handover/internal/metrics"
	"github.com/arloliu/handover/store"
	"github.com/arloliu/handover/types"
)

const (
	// DefaultNamespace prefixes every persisted key.
	DefaultNamespace = "cmp:prefetch"

	// DefaultTTL is how long a ready record is trusted.
	DefaultTTL = 7 * 24 * time.Hour
)

// Store is the persistent readiness state machine.
//
// Store is safe for concurrent use. Writes are read-modify-write merges
// serialized inside the process; across processes the last writer wins.
type Store struct {
	namespace string
	ttl       time.Duration
	now       func() time.Time
	logger    types.Logger
	metrics   types.MetricsCollector

	mu       sync.Mutex
	backend  store.Backend
	fallback *store.Memory
	degraded atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace sets the key namespace. Default: "cmp:prefetch".
func WithNamespace(ns string) Option {
	return func(s *Store) {
		if ns != "" {
			s.namespace = ns
		}
	}
}

// WithTTL sets how long a ready record stays valid. Default: 7 days.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger. Default: no-op.
func WithLogger(l types.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics collector. Default: no-op.
func WithMetrics(m types.MetricsCollector) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a Store on backend. A nil backend starts in memory.
//
// Parameters:
//   - backend: Persistent key/value backend
//   - opts: Optional configuration
//
// Returns:
//   - *Store: Ready-to-use store
//
// Example:
//
//	kv, _ := store.OpenSQLite(ctx, "/var/lib/handover/readiness.db")
//	rs := readiness.New(kv, readiness.WithTTL(24*time.Hour))
//	if rs.IsReady(ctx, full) { ... }
func New(backend store.Backend, opts ...Option) *Store {
	s := &Store{
		namespace: DefaultNamespace,
		ttl:       DefaultTTL,
		now:       time.Now,
		logger:    logging.NewNop(),
		metrics:   metrics.NewNop(),
		backend:   backend,
		fallback:  store.NewMemory(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if backend == nil {
		s.degraded.Store(true)
	}

	return s
}

// Key returns the persisted key of v's record.
func (s *Store) Key(v types.Variant) string {
	return s.namespace + ":" + types.NormalizeBaseURL(v.BaseURL)
}

// TTL returns the configured validity window of a ready record.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Degraded reports whether the store fell back to memory.
func (s *Store) Degraded() bool {
	return s.degraded.Load()
}

// Read returns the stored record for v's base location.
//
// The record is returned as stored, even when it belongs to another version
// or has expired; use IsReady for the validity check.
func (s *Store) Read(ctx context.Context, v types.Variant) (types.Record, bool) {
	return s.readKey(ctx, s.Key(v))
}

// Write merges patch into the record of v and returns the result.
//
// The record version is patch.Version when set, else v.Version. A record
// stored for a different version is superseded: the patch is applied to a
// fresh idle record. UpdatedAt is always stamped with the current time.
func (s *Store) Write(ctx context.Context, v types.Variant, patch types.RecordPatch) types.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.Key(v)
	version := v.Version
	if patch.Version != nil {
		version = *patch.Version
	}

	rec, ok := s.readKey(ctx, key)
	if !ok || rec.Version != version {
		rec = types.Record{Status: types.StatusIdle, Version: version}
	}
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.Reason != nil {
		rec.Reason = *patch.Reason
	}
	rec.UpdatedAt = s.now()

	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("encode readiness record failed", "key", key, "error", err)
		return rec
	}
	s.put(ctx, key, data)

	return rec
}

// IsReady reports whether v's full build is proven cached.
//
// True only for a ready record of v.Version younger than the TTL.
func (s *Store) IsReady(ctx context.Context, v types.Variant) bool {
	rec, ok := s.Read(ctx, v)
	if !ok {
		return false
	}

	return s.Valid(rec, v)
}

// Valid applies the readiness laws to rec for variant v.
func (s *Store) Valid(rec types.Record, v types.Variant) bool {
	if rec.Status != types.StatusReady || rec.Version != v.Version || rec.UpdatedAt.IsZero() {
		return false
	}

	return s.now().Sub(rec.UpdatedAt) <= s.ttl
}

// Effective returns the status rec must be treated as for variant v.
//
// An expired or version-mismatched ready record is idle.
func (s *Store) Effective(rec types.Record, v types.Variant) types.Status {
	if rec.Status == types.StatusReady && !s.Valid(rec, v) {
		return types.StatusIdle
	}
	if rec.Version != v.Version {
		return types.StatusIdle
	}

	return rec.Status
}

// PruneStale deletes every record of v's base location whose version differs
// from v.Version and returns how many were deleted.
//
// Besides the primary key this covers version-qualified keys of the form
// "<key>:<version>" left by older deployments.
func (s *Store) PruneStale(ctx context.Context, v types.Variant) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.Key(v)
	keys, err := s.keys(ctx, base)
	if err != nil {
		return 0
	}

	pruned := 0
	for _, key := range keys {
		if key != base && !strings.HasPrefix(key, base+":") {
			continue
		}

		rec, ok := s.readKey(ctx, key)
		if ok && rec.Version == v.Version {
			continue
		}

		if s.delete(ctx, key) {
			pruned++
			s.logger.Debug("pruned stale readiness record", "key", key, "version", rec.Version)
		}
	}

	return pruned
}

func (s *Store) readKey(ctx context.Context, key string) (types.Record, bool) {
	data, err := s.active().Get(ctx, key)
	if err != nil && !errors.Is(err, types.ErrKeyNotFound) {
		s.degrade(err)
		data, err = s.fallback.Get(ctx, key)
	}
	if err != nil {
		return types.Record{}, false
	}

	var rec types.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("ignoring malformed readiness record", "key", key, "error", err)
		return types.Record{}, false
	}

	return rec, true
}

func (s *Store) put(ctx context.Context, key string, data []byte) {
	if err := s.active().Put(ctx, key, data); err != nil {
		s.degrade(err)
		_ = s.fallback.Put(ctx, key, data)
	}
}

func (s *Store) delete(ctx context.Context, key string) bool {
	if err := s.active().Delete(ctx, key); err != nil {
		s.degrade(err)
		_ = s.fallback.Delete(ctx, key)
	}

	return true
}

func (s *Store) keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.active().Keys(ctx, prefix)
	if err != nil {
		s.degrade(err)
		return s.fallback.Keys(ctx, prefix)
	}

	return keys, nil
}

func (s *Store) active() store.Backend {
	if s.degraded.Load() {
		return s.fallback
	}

	return s.backend
}

// degrade switches to the in-memory fallback. Only the first call logs.
func (s *Store) degrade(err error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.Warn("readiness storage unavailable, using in-memory fallback for this session",
			"error", err)
		s.metrics.RecordStorageDegraded()
	}
}
