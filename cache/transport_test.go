package cache

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	handovertest "github.com/arloliu/handover/testing"
)

func newTransport(t *testing.T) (*Transport, *handovertest.AssetServer, *http.Client) {
	t.Helper()

	srv := handovertest.NewAssetServer(t, handovertest.DefaultBuild())
	tr := &Transport{
		Base:     srv.Client().Transport,
		Cache:    New(NewMemory()),
		Scope:    srv.URL(),
		Prefetch: "prefetch",
		Runtime:  "runtime",
		Logger:   handovertest.NewTestLogger(t),
	}

	return tr, srv, &http.Client{Transport: tr}
}

func get(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestTransport(t *testing.T) {
	t.Run("caches in-scope GET and routes by criticality", func(t *testing.T) {
		tr, srv, client := newTransport(t)
		ctx := t.Context()

		status, body := get(t, client, srv.URL()+"Build/game.wasm.br")
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "content of Build/game.wasm.br", body)

		status, _ = get(t, client, srv.URL()+"TemplateData/style.css")
		require.Equal(t, http.StatusOK, status)

		_, from, ok := tr.Cache.Lookup(ctx, srv.URL()+"Build/game.wasm.br", "runtime", "prefetch")
		require.True(t, ok)
		require.Equal(t, "prefetch", from)

		_, from, ok = tr.Cache.Lookup(ctx, srv.URL()+"TemplateData/style.css", "runtime", "prefetch")
		require.True(t, ok)
		require.Equal(t, "runtime", from)

		// second request is served from cache
		_, body = get(t, client, srv.URL()+"Build/game.wasm.br")
		require.Equal(t, "content of Build/game.wasm.br", body)
		require.Equal(t, 1, srv.Hits("Build/game.wasm.br"))
	})

	t.Run("errors are not cached", func(t *testing.T) {
		tr, srv, client := newTransport(t)
		srv.Fail("Build/game.data.br", http.StatusServiceUnavailable)

		status, _ := get(t, client, srv.URL()+"Build/game.data.br")
		require.Equal(t, http.StatusServiceUnavailable, status)

		_, _, ok := tr.Cache.Lookup(t.Context(), srv.URL()+"Build/game.data.br", "runtime", "prefetch")
		require.False(t, ok)
	})

	t.Run("non-GET bypasses the cache", func(t *testing.T) {
		tr, srv, client := newTransport(t)

		resp, err := client.Post(srv.URL()+"index.html", "text/plain", strings.NewReader("x"))
		require.NoError(t, err)
		resp.Body.Close()

		_, _, ok := tr.Cache.Lookup(t.Context(), srv.URL()+"index.html", "runtime", "prefetch")
		require.False(t, ok)
	})

	t.Run("out of scope bypasses the cache", func(t *testing.T) {
		tr, srv, client := newTransport(t)
		tr.Scope = srv.URL() + "Build/"

		get(t, client, srv.URL()+"index.html")
		get(t, client, srv.URL()+"index.html")
		require.Equal(t, 2, srv.Hits("index.html"))
	})
}
