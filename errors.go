package handover

import "github.com/arloliu/handover/types"

// Re-export sentinel errors from the types package.
var (
	ErrInvalidConfig        = types.ErrInvalidConfig
	ErrBootstrapperRequired = types.ErrBootstrapperRequired
	ErrPresenterRequired    = types.ErrPresenterRequired
	ErrAlreadyStarted       = types.ErrAlreadyStarted
	ErrNotStarted           = types.ErrNotStarted
	ErrSwitchTimeout        = types.ErrSwitchTimeout
	ErrOriginRejected       = types.ErrOriginRejected
	ErrManifestUnavailable  = types.ErrManifestUnavailable
	ErrAssetFetch           = types.ErrAssetFetch
	ErrCriticalValidation   = types.ErrCriticalValidation
	ErrStorageUnavailable   = types.ErrStorageUnavailable
)

// ConfigLoadError reports that the configuration could not be loaded at boot.
type ConfigLoadError = types.ConfigLoadError
