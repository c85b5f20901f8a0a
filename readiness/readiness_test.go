package readiness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/handover/store"
	"github.com/arloliu/handover/types"
)

var full = types.Variant{
	Kind:    types.VariantFull,
	BaseURL: "https://cdn.example.com/games/full/",
	Version: "v2",
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingBackend fails every operation.
type failingBackend struct {
	mu    sync.Mutex
	calls int
}

var errBackendDown = errors.New("quota exceeded")

func (f *failingBackend) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	return errBackendDown
}

func (f *failingBackend) Get(context.Context, string) ([]byte, error) { return nil, f.fail() }

func (f *failingBackend) Put(context.Context, string, []byte) error { return f.fail() }

func (f *failingBackend) Delete(context.Context, string) error { return f.fail() }

func (f *failingBackend) Keys(context.Context, string) ([]string, error) { return nil, f.fail() }

type countingLogger struct {
	mu    sync.Mutex
	warns int
}

func (l *countingLogger) Debug(string, ...any) {}

func (l *countingLogger) Info(string, ...any) {}

func (l *countingLogger) Error(string, ...any) {}

func (l *countingLogger) Fatal(string, ...any) {}

func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns++
}

func TestStore_Key(t *testing.T) {
	s := New(store.NewMemory())
	require.Equal(t, "cmp:prefetch:https://cdn.example.com/games/full/", s.Key(full))

	noSlash := full
	noSlash.BaseURL = "https://cdn.example.com/games/full"
	require.Equal(t, s.Key(full), s.Key(noSlash))

	s = New(store.NewMemory(), WithNamespace("custom"))
	require.Equal(t, "custom:https://cdn.example.com/games/full/", s.Key(full))
}

func TestStore_WriteMerges(t *testing.T) {
	clock := newFakeClock()
	s := New(store.NewMemory(), WithClock(clock.Now))
	ctx := t.Context()

	_, ok := s.Read(ctx, full)
	require.False(t, ok)

	rec := s.Write(ctx, full, types.PatchStatus(types.StatusPrefetching, "time"))
	require.Equal(t, types.StatusPrefetching, rec.Status)
	require.Equal(t, "v2", rec.Version)
	require.Equal(t, "time", rec.Reason)
	require.Equal(t, clock.Now(), rec.UpdatedAt)

	clock.Advance(time.Second)
	status := types.StatusReady
	rec = s.Write(ctx, full, types.RecordPatch{Status: &status})
	require.Equal(t, types.StatusReady, rec.Status)
	require.Equal(t, "time", rec.Reason, "unset patch fields keep stored values")

	got, ok := s.Read(ctx, full)
	require.True(t, ok)
	require.Equal(t, types.StatusReady, got.Status)
	require.Equal(t, clock.Now().UnixMilli(), got.UpdatedAt.UnixMilli())
}

func TestStore_TTLLaw(t *testing.T) {
	clock := newFakeClock()
	s := New(store.NewMemory(), WithClock(clock.Now), WithTTL(time.Hour))
	ctx := t.Context()

	s.Write(ctx, full, types.PatchStatus(types.StatusReady, ""))
	require.True(t, s.IsReady(ctx, full))

	clock.Advance(time.Hour)
	require.True(t, s.IsReady(ctx, full), "exactly TTL old is still valid")

	clock.Advance(time.Millisecond)
	require.False(t, s.IsReady(ctx, full))

	rec, ok := s.Read(ctx, full)
	require.True(t, ok)
	require.Equal(t, types.StatusIdle, s.Effective(rec, full))
}

func TestStore_VersionLaw(t *testing.T) {
	ctx := t.Context()
	s := New(store.NewMemory())

	old := full
	old.Version = "v1"
	s.Write(ctx, old, types.PatchStatus(types.StatusReady, ""))
	require.True(t, s.IsReady(ctx, old))
	require.False(t, s.IsReady(ctx, full), "record of another version never counts")

	rec, _ := s.Read(ctx, full)
	require.Equal(t, types.StatusIdle, s.Effective(rec, full))

	t.Run("write for new version supersedes", func(t *testing.T) {
		rec := s.Write(ctx, full, types.RecordPatch{})
		require.Equal(t, types.StatusIdle, rec.Status)
		require.Equal(t, "v2", rec.Version)
		require.Empty(t, rec.Reason)
	})
}

func TestStore_PruneStale(t *testing.T) {
	ctx := t.Context()
	backend := store.NewMemory()
	s := New(backend)

	old := full
	old.Version = "v1"
	s.Write(ctx, old, types.PatchStatus(types.StatusReady, ""))

	// version-qualified key from an older deployment
	require.NoError(t, backend.Put(ctx, s.Key(full)+":v0", []byte(`{"status":"ready","version":"v0","timestamp":1}`)))

	// sibling base location must be left alone
	sibling := full
	sibling.BaseURL = "https://cdn.example.com/games/full/extra/"
	sibling.Version = "v1"
	s.Write(ctx, sibling, types.PatchStatus(types.StatusReady, ""))

	require.Equal(t, 2, s.PruneStale(ctx, full))

	_, ok := s.Read(ctx, full)
	require.False(t, ok)
	require.True(t, s.IsReady(ctx, sibling))

	t.Run("current version is kept", func(t *testing.T) {
		s.Write(ctx, full, types.PatchStatus(types.StatusReady, ""))
		require.Equal(t, 0, s.PruneStale(ctx, full))
		require.True(t, s.IsReady(ctx, full))
	})
}

func TestStore_Degrade(t *testing.T) {
	ctx := t.Context()
	backend := &failingBackend{}
	logger := &countingLogger{}
	s := New(backend, WithLogger(logger))

	rec := s.Write(ctx, full, types.PatchStatus(types.StatusReady, ""))
	require.Equal(t, types.StatusReady, rec.Status)
	require.True(t, s.Degraded())

	// behaves normally on the fallback
	require.True(t, s.IsReady(ctx, full))
	s.Write(ctx, full, types.PatchStatus(types.StatusFailed, "x"))
	require.False(t, s.IsReady(ctx, full))
	require.Equal(t, 0, s.PruneStale(ctx, full))

	logger.mu.Lock()
	defer logger.mu.Unlock()
	require.Equal(t, 1, logger.warns, "degradation is logged once")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Equal(t, 1, backend.calls, "backend is abandoned after the first failure")
}

func TestStore_NilBackend(t *testing.T) {
	s := New(nil)
	require.True(t, s.Degraded())

	s.Write(t.Context(), full, types.PatchStatus(types.StatusReady, ""))
	require.True(t, s.IsReady(t.Context(), full))
}

func TestStore_MalformedRecord(t *testing.T) {
	backend := store.NewMemory()
	s := New(backend)
	require.NoError(t, backend.Put(t.Context(), s.Key(full), []byte("not json")))

	_, ok := s.Read(t.Context(), full)
	require.False(t, ok)
	require.False(t, s.Degraded())
}

func TestStore_Handover(t *testing.T) {
	s := New(store.NewMemory())

	_, ok := s.LoadHandover(t.Context(), full)
	require.False(t, ok)

	state := types.HandoverState{Reason: "complete", ResumeLevel: 4, KnownLiteLevel: 3}
	s.SaveHandover(t.Context(), full, state)

	got, ok := s.LoadHandover(t.Context(), full)
	require.True(t, ok)
	require.Equal(t, state, got)
	require.Equal(t, 0, s.PruneStale(t.Context(), full), "handover state is not a readiness record")
}
