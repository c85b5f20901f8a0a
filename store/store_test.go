package store

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	handovertest "github.com/arloliu/handover/testing"
	"github.com/arloliu/handover/types"
)

// backendSuite runs the shared Backend contract against b.
func backendSuite(t *testing.T, b Backend) {
	t.Helper()
	ctx := t.Context()

	t.Run("missing key", func(t *testing.T) {
		_, err := b.Get(ctx, "cmp:prefetch:https://cdn.example.com/missing/")
		require.ErrorIs(t, err, types.ErrKeyNotFound)
	})

	t.Run("put get overwrite", func(t *testing.T) {
		key := "cmp:prefetch:https://cdn.example.com/full/"
		require.NoError(t, b.Put(ctx, key, []byte(`{"status":"prefetching"}`)))
		require.NoError(t, b.Put(ctx, key, []byte(`{"status":"ready"}`)))

		got, err := b.Get(ctx, key)
		require.NoError(t, err)
		require.JSONEq(t, `{"status":"ready"}`, string(got))
	})

	t.Run("keys by prefix", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "ns:a/1", []byte("1")))
		require.NoError(t, b.Put(ctx, "ns:a/2", []byte("2")))
		require.NoError(t, b.Put(ctx, "ns:b/1", []byte("3")))

		keys, err := b.Keys(ctx, "ns:a/")
		require.NoError(t, err)
		sort.Strings(keys)
		require.Equal(t, []string{"ns:a/1", "ns:a/2"}, keys)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, "ns:gone", []byte("x")))
		require.NoError(t, b.Delete(ctx, "ns:gone"))
		require.NoError(t, b.Delete(ctx, "ns:never-existed"))

		_, err := b.Get(ctx, "ns:gone")
		require.ErrorIs(t, err, types.ErrKeyNotFound)
	})
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	backendSuite(t, m)

	t.Run("values are copied", func(t *testing.T) {
		buf := []byte("abc")
		require.NoError(t, m.Put(context.Background(), "copy", buf))
		buf[0] = 'x'

		got, err := m.Get(context.Background(), "copy")
		require.NoError(t, err)
		require.Equal(t, []byte("abc"), got)
	})
}

func TestSQLite(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		s, err := OpenSQLite(t.Context(), ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		backendSuite(t, s)
	})

	t.Run("file database survives reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "readiness.db")

		s, err := OpenSQLite(t.Context(), path)
		require.NoError(t, err)
		require.NoError(t, s.Put(t.Context(), "k", []byte("v")))
		require.NoError(t, s.Close())

		s, err = OpenSQLite(t.Context(), path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		got, err := s.Get(t.Context(), "k")
		require.NoError(t, err)
		require.Equal(t, []byte("v"), got)
	})

	t.Run("closed database reports storage unavailable", func(t *testing.T) {
		s, err := OpenSQLite(t.Context(), ":memory:")
		require.NoError(t, err)
		require.NoError(t, s.Close())

		err = s.Put(t.Context(), "k", []byte("v"))
		require.ErrorIs(t, err, types.ErrStorageUnavailable)
	})
}

func TestNATS(t *testing.T) {
	_, nc := handovertest.StartEmbeddedNATS(t)

	t.Run("wrapped bucket", func(t *testing.T) {
		kv := handovertest.CreateJetStreamKV(t, nc, "readiness-test")
		backendSuite(t, NewNATS(kv))
	})

	t.Run("open creates bucket", func(t *testing.T) {
		n, err := OpenNATS(t.Context(), handovertest.JetStream(t, nc), "")
		require.NoError(t, err)

		require.NoError(t, n.Put(t.Context(), "cmp:prefetch:https://x/", []byte("1")))
		keys, err := n.Keys(t.Context(), "cmp:prefetch:")
		require.NoError(t, err)
		require.Equal(t, []string{"cmp:prefetch:https://x/"}, keys)
	})

	t.Run("empty bucket has no keys", func(t *testing.T) {
		kv := handovertest.CreateJetStreamKV(t, nc, "readiness-empty")
		keys, err := NewNATS(kv).Keys(t.Context(), "")
		require.NoError(t, err)
		require.Empty(t, keys)
	})
}
