package cache

import (
	"net/http"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	handovertest "github.com/arloliu/handover/testing"
	"github.com/arloliu/handover/types"
)

func TestObjectStore(t *testing.T) {
	_, nc := handovertest.StartEmbeddedNATS(t)
	backend := NewObjectStore(handovertest.JetStream(t, nc), WithMemoryStorage())
	ctx := t.Context()

	name := "cmp-full-prefetch:https://cdn.example.com/full/:v1"

	t.Run("bucket name is valid and stable", func(t *testing.T) {
		require.Equal(t, BucketName(name), BucketName(name))
		require.Regexp(t, `^handover-cache-[0-9a-f]{16}$`, BucketName(name))
	})

	t.Run("put and match", func(t *testing.T) {
		p, err := backend.Open(ctx, name)
		require.NoError(t, err)
		require.Equal(t, name, p.Name())

		_, err = p.MatchURL(ctx, assetURL)
		require.ErrorIs(t, err, types.ErrEntryNotFound)

		header := http.Header{"Content-Type": {"application/wasm"}}
		require.NoError(t, p.Put(ctx, assetURL, NewResponse(assetURL, http.StatusOK, header, []byte("wasm-bytes"))))

		resp, err := p.MatchURL(ctx, assetURL)
		require.NoError(t, err)
		require.Equal(t, []byte("wasm-bytes"), resp.Body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "application/wasm", resp.Header.Get("Content-Type"))
		require.True(t, resp.Verify())
	})

	t.Run("names and drop", func(t *testing.T) {
		_, err := backend.Open(ctx, "runtime")
		require.NoError(t, err)

		names, err := backend.Names(ctx)
		require.NoError(t, err)
		sort.Strings(names)
		require.Equal(t, []string{name, "runtime"}, names)

		require.NoError(t, backend.Drop(ctx, "runtime"))
		require.NoError(t, backend.Drop(ctx, "runtime"), "dropping twice is fine")

		names, err = backend.Names(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{name}, names)
	})

	t.Run("cleanup through cache", func(t *testing.T) {
		c := New(backend)
		sig := NewSignature("", types.Variant{BaseURL: "https://cdn.example.com/full/", Version: "v2"})

		dropped, err := c.Cleanup(ctx, sig)
		require.NoError(t, err)
		require.Equal(t, []string{name}, dropped)
	})
}
