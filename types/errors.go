package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the handover library.
//
// Use errors.Is() to check for them. Components wrap external errors with
// context using fmt.Errorf("%s: %w", msg, err).

// Controller errors - Public API errors returned by the Controller.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrBootstrapperRequired is returned when no Bootstrapper is supplied.
	ErrBootstrapperRequired = errors.New("bootstrapper is required")

	// ErrPresenterRequired is returned when no Presenter is supplied.
	ErrPresenterRequired = errors.New("presenter is required")

	// ErrAlreadyStarted is returned when Start is called on a running controller.
	ErrAlreadyStarted = errors.New("controller already started")

	// ErrNotStarted is returned when operations require a started controller.
	ErrNotStarted = errors.New("controller not started")

	// ErrSwitchTimeout is reported when a blocking switch waited past its
	// deadline and the grace extension without the full variant becoming ready.
	ErrSwitchTimeout = errors.New("switch deadline exceeded")

	// ErrOriginRejected is returned for messages from an origin that is not allowed.
	ErrOriginRejected = errors.New("message origin rejected")
)

// Prefetch errors - recorded as failure reasons, never returned by Prefetch.
var (
	// ErrManifestUnavailable is returned when neither a manifest nor a scannable
	// entry document could be obtained.
	ErrManifestUnavailable = errors.New("build manifest unavailable")

	// ErrAssetFetch is returned when a single asset request fails.
	ErrAssetFetch = errors.New("asset fetch failed")

	// ErrCriticalValidation is returned when critical assets are absent after a run.
	ErrCriticalValidation = errors.New("critical asset validation failed")
)

// Storage errors.
var (
	// ErrStorageUnavailable indicates the persistent store cannot be used.
	// The readiness store switches to an in-memory fallback when it sees it.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrKeyNotFound is returned by store backends for a missing key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrEntryNotFound is returned by cache partitions for a missing entry.
	ErrEntryNotFound = errors.New("cache entry not found")
)

// ConfigLoadError reports that the handover configuration could not be loaded.
//
// This is the only fatal error of the system: the presenter shows a static
// message and no automation is started.
type ConfigLoadError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ConfigLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load handover config: %v", e.Err)
	}

	return fmt.Sprintf("load handover config %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigLoadError) Unwrap() error {
	return e.Err
}
