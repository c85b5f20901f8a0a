package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Build is a set of files served by an AssetServer, keyed by path relative
// to the server root (no leading slash).
type Build map[string][]byte

// DefaultEntryDocument is an entry page in the shape emitted by the
// content engine's web template.
const DefaultEntryDocument = `<!DOCTYPE html>
<html lang="en-us">
  <head>
    <meta charset="utf-8">
    <link rel="stylesheet" href="TemplateData/style.css">
  </head>
  <body>
    <canvas id="canvas"></canvas>
    <script>
      var buildUrl = "Build";
      var loaderUrl = buildUrl + "/game.loader.js";
      var config = {
        dataUrl: buildUrl + "/game.data.br",
        frameworkUrl: buildUrl + "/game.framework.js.br",
        codeUrl: buildUrl + "/game.wasm.br",
        symbolsUrl: buildUrl + "/game.symbols.json.br",
      };
    </script>
  </body>
</html>
`

// CriticalFiles lists the critical files of DefaultBuild.
var CriticalFiles = []string{
	"Build/game.loader.js",
	"Build/game.data.br",
	"Build/game.framework.js.br",
	"Build/game.wasm.br",
	"Build/game.symbols.json.br",
}

// DefaultBuild returns a full variant build with an entry document, a
// manifest without an explicit critical list, five critical files and one
// non-critical stylesheet.
func DefaultBuild() Build {
	files := append([]string{}, CriticalFiles...)
	files = append(files, "TemplateData/style.css")

	manifest, _ := json.Marshal(map[string]any{"files": files})

	b := Build{
		"index.html":          []byte(DefaultEntryDocument),
		"build-manifest.json": manifest,
	}
	for _, f := range files {
		b[f] = []byte("content of " + f)
	}

	return b
}

// WithoutManifest returns a copy of b with the manifest removed so discovery
// falls back to scanning the entry document.
func (b Build) WithoutManifest() Build {
	out := make(Build, len(b))
	for k, v := range b {
		if k != "build-manifest.json" {
			out[k] = v
		}
	}

	return out
}

// AssetServer is an httptest server hosting a Build.
//
// It counts requests per path and can be told to fail or delay individual
// paths, which makes it the network side of prefetch pipeline tests.
type AssetServer struct {
	srv *httptest.Server

	mu      sync.RWMutex
	files   Build
	failing map[string]int

	delay atomic.Int64
	hits  *xsync.Map[string, *atomic.Int64]
	total atomic.Int64
}

// NewAssetServer starts a server for build. It is closed on test cleanup.
func NewAssetServer(t testing.TB, build Build) *AssetServer {
	t.Helper()

	s := &AssetServer{
		files:   make(Build, len(build)),
		failing: make(map[string]int),
		hits:    xsync.NewMap[string, *atomic.Int64](),
	}
	for k, v := range build {
		s.files[k] = v
	}

	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)

	return s
}

// URL returns the server root with a trailing slash.
func (s *AssetServer) URL() string {
	return s.srv.URL + "/"
}

// Client returns an HTTP client configured for the server.
func (s *AssetServer) Client() *http.Client {
	return s.srv.Client()
}

// Fail makes requests for path answer with status until Recover is called.
func (s *AssetServer) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[path] = status
}

// Recover undoes Fail for path.
func (s *AssetServer) Recover(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failing, path)
}

// Set adds or replaces a file.
func (s *AssetServer) Set(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = content
}

// SetDelay delays every response by d.
func (s *AssetServer) SetDelay(d time.Duration) {
	s.delay.Store(int64(d))
}

// Hits returns how many requests were made for path.
func (s *AssetServer) Hits(path string) int {
	if c, ok := s.hits.Load(path); ok {
		return int(c.Load())
	}

	return 0
}

// TotalHits returns the number of requests served.
func (s *AssetServer) TotalHits() int {
	return int(s.total.Load())
}

func (s *AssetServer) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")

	counter, _ := s.hits.LoadOrStore(path, &atomic.Int64{})
	counter.Add(1)
	s.total.Add(1)

	if d := time.Duration(s.delay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	s.mu.RLock()
	status, failing := s.failing[path]
	content, found := s.files[path]
	s.mu.RUnlock()

	switch {
	case failing:
		http.Error(w, http.StatusText(status), status)
	case !found:
		http.NotFound(w, r)
	default:
		if strings.HasSuffix(path, ".json") {
			w.Header().Set("Content-Type", "application/json")
		}
		_, _ = w.Write(content)
	}
}
