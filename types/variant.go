package types

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// VariantKind identifies one of the two interchangeable builds.
type VariantKind string

const (
	// VariantLite is the fast-starting build.
	VariantLite VariantKind = "lite"

	// VariantFull is the complete build that is prefetched and switched to.
	VariantFull VariantKind = "full"
)

// Variant describes a build loaded from configuration.
//
// A Variant is immutable once loaded; callers pass it by value.
type Variant struct {
	// Kind is either VariantLite or VariantFull.
	Kind VariantKind `yaml:"kind" json:"kind"`

	// BaseURL is the absolute base location of the build, always ending in "/".
	BaseURL string `yaml:"url" json:"url"`

	// Version identifies the deployed build. Readiness records and cache
	// partitions are scoped to it.
	Version string `yaml:"version" json:"version"`

	// ManifestPath is the manifest location relative to BaseURL.
	ManifestPath string `yaml:"manifestPath" json:"manifestPath"`

	// EntryDocument is the entry document relative to BaseURL.
	EntryDocument string `yaml:"entryDocument" json:"entryDocument"`
}

// NormalizeBaseURL appends a trailing slash when missing.
func NormalizeBaseURL(raw string) string {
	if raw == "" {
		return "/"
	}
	if strings.HasSuffix(raw, "/") {
		return raw
	}

	return raw + "/"
}

// Resolve returns the absolute URL of a path relative to the variant's base.
//
// Leading slashes on rel are stripped so that manifest entries like "/Build/x.js"
// stay inside the variant's path space.
//
// Parameters:
//   - rel: Relative path, e.g. "Build/app.loader.js"
//
// Returns:
//   - string: Absolute URL
//   - error: Parse error when BaseURL or rel is malformed
func (v Variant) Resolve(rel string) (string, error) {
	base, err := url.Parse(NormalizeBaseURL(v.BaseURL))
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", v.BaseURL, err)
	}

	ref, err := url.Parse(strings.TrimLeft(rel, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid relative path %q: %w", rel, err)
	}

	return base.ResolveReference(ref).String(), nil
}

// EntryURL returns the absolute URL of the variant's entry document.
func (v Variant) EntryURL() (string, error) {
	return v.Resolve(v.EntryDocument)
}

// ManifestURL returns the absolute URL of the variant's asset manifest.
func (v Variant) ManifestURL() (string, error) {
	return v.Resolve(v.ManifestPath)
}

// Asset is an absolute asset URL plus its critical flag.
//
// A critical asset is one without which the full variant cannot start; its
// absence from the cache blocks marking the variant ready.
type Asset struct {
	URL      string `json:"url"`
	Critical bool   `json:"critical"`
}

// DefaultCriticalPattern matches the asset paths a full build cannot start without.
const DefaultCriticalPattern = `/Build/.*\.(loader\.js|framework\.js\.br|data\.br|wasm\.br|symbols\.json\.br)$`

// CriticalPattern is the compiled DefaultCriticalPattern.
var CriticalPattern = regexp.MustCompile(DefaultCriticalPattern)
