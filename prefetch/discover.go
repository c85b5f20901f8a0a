package prefetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/arloliu/handover/types"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Manifest is the asset manifest published next to a build.
type Manifest struct {
	Files    []string `json:"files"`
	Critical []string `json:"critical,omitempty"`
}

// Document is what discovery works from: the variant plus whatever of its
// entry document and manifest could be obtained.
type Document struct {
	Variant types.Variant

	// Entry is the raw entry document, nil if unavailable.
	Entry []byte

	// Manifest is the parsed manifest, nil if unavailable.
	Manifest *Manifest

	// Critical selects critical asset paths.
	Critical *regexp.Regexp
}

func (d Document) isCritical(absURL string) bool {
	u, err := url.Parse(absURL)
	if err != nil {
		return false
	}

	return d.Critical.MatchString(u.Path)
}

// Discoverer derives the asset list of a build.
type Discoverer interface {
	// Name identifies the strategy in logs.
	Name() string

	// Available reports whether the strategy can work from doc.
	Available(doc Document) bool

	// Discover returns the assets with absolute URLs.
	Discover(doc Document) ([]types.Asset, error)
}

// ManifestDiscoverer reads the asset list from the manifest.
//
// When the manifest has no critical list, critical assets are those whose
// path matches the document's critical pattern.
type ManifestDiscoverer struct{}

var _ Discoverer = ManifestDiscoverer{}

// Name implements Discoverer.
func (ManifestDiscoverer) Name() string { return "manifest" }

// Available implements Discoverer.
func (ManifestDiscoverer) Available(doc Document) bool {
	return doc.Manifest != nil && len(doc.Manifest.Files) > 0
}

// Discover implements Discoverer.
func (ManifestDiscoverer) Discover(doc Document) ([]types.Asset, error) {
	explicit := doc.Manifest.Critical != nil
	critical := make(map[string]bool, len(doc.Manifest.Critical))

	var assets assetSet
	for _, rel := range doc.Manifest.Critical {
		abs, err := doc.Variant.Resolve(rel)
		if err != nil {
			return nil, fmt.Errorf("manifest critical entry: %w", err)
		}
		critical[abs] = true
	}

	for _, rel := range doc.Manifest.Files {
		abs, err := doc.Variant.Resolve(rel)
		if err != nil {
			return nil, fmt.Errorf("manifest file entry: %w", err)
		}

		isCritical := critical[abs]
		if !explicit {
			isCritical = doc.isCritical(abs)
		}
		assets.add(abs, isCritical)
	}

	// critical entries missing from files are still required
	for _, rel := range doc.Manifest.Critical {
		abs, _ := doc.Variant.Resolve(rel)
		assets.add(abs, true)
	}

	return assets.list, nil
}

// scanPatterns locate the engine's build files in the entry document's
// inline scripts. The captured group is appended to "Build".
var scanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`loaderUrl\s*=\s*buildUrl\s*\+\s*"([^"]+)"`),
	regexp.MustCompile(`dataUrl\s*:\s*buildUrl\s*\+\s*"([^"]+)"`),
	regexp.MustCompile(`frameworkUrl\s*:\s*buildUrl\s*\+\s*"([^"]+)"`),
	regexp.MustCompile(`codeUrl\s*:\s*buildUrl\s*\+\s*"([^"]+)"`),
	regexp.MustCompile(`symbolsUrl\s*:\s*buildUrl\s*\+\s*"([^"]+)"`),
}

// ScanDiscoverer scans the entry document when no manifest is available.
//
// Inline scripts are searched for the build file assignments; script sources
// and stylesheets referenced by the document are added as well, together
// with Extras.
type ScanDiscoverer struct {
	// Extras are paths relative to the variant base added unconditionally.
	Extras []string
}

var _ Discoverer = ScanDiscoverer{}

// Name implements Discoverer.
func (ScanDiscoverer) Name() string { return "scan" }

// Available implements Discoverer.
func (ScanDiscoverer) Available(doc Document) bool {
	return len(doc.Entry) > 0
}

// Discover implements Discoverer.
func (s ScanDiscoverer) Discover(doc Document) ([]types.Asset, error) {
	var (
		assets  assetSet
		scripts []string
		refs    []string
	)

	z := html.NewTokenizer(bytes.NewReader(doc.Entry))
	inScript := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("scan entry document: %w", err)
			}

			break
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Script:
				if src := attr(tok, "src"); src != "" {
					refs = append(refs, src)
				}
				inScript = tt == html.StartTagToken
			case atom.Link:
				if strings.EqualFold(attr(tok, "rel"), "stylesheet") {
					if href := attr(tok, "href"); href != "" {
						refs = append(refs, href)
					}
				}
			}
		case html.EndTagToken:
			if tok := z.Token(); tok.DataAtom == atom.Script {
				inScript = false
			}
		case html.TextToken:
			if inScript {
				scripts = append(scripts, string(z.Text()))
			}
		}
	}

	for _, script := range scripts {
		for _, re := range scanPatterns {
			for _, m := range re.FindAllStringSubmatch(script, -1) {
				abs, err := doc.Variant.Resolve("Build" + m[1])
				if err != nil {
					return nil, fmt.Errorf("scan entry document: %w", err)
				}
				assets.add(abs, doc.isCritical(abs))
			}
		}
	}

	for _, ref := range append(refs, s.Extras...) {
		abs, ok := resolveRef(doc.Variant, ref)
		if !ok {
			continue
		}
		assets.add(abs, doc.isCritical(abs))
	}

	if len(assets.list) == 0 {
		return nil, fmt.Errorf("scan entry document: %w", types.ErrManifestUnavailable)
	}

	return assets.list, nil
}

// resolveRef resolves a document reference; absolute URLs outside the variant
// base are skipped.
func resolveRef(v types.Variant, ref string) (string, bool) {
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref, strings.HasPrefix(ref, types.NormalizeBaseURL(v.BaseURL))
	}

	abs, err := v.Resolve(ref)
	if err != nil {
		return "", false
	}

	return abs, true
}

func attr(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}

	return ""
}

func parseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	return &m, nil
}

// assetSet is an insertion-ordered asset list without duplicate URLs.
// A URL added twice is critical if either addition was.
type assetSet struct {
	list  []types.Asset
	index map[string]int
}

func (s *assetSet) add(u string, critical bool) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[u]; ok {
		s.list[i].Critical = s.list[i].Critical || critical
		return
	}

	s.index[u] = len(s.list)
	s.list = append(s.list, types.Asset{URL: u, Critical: critical})
}
