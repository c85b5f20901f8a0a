package handover

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/handover/cache"
	"github.com/arloliu/handover/prefetch"
	"github.com/arloliu/handover/readiness"
	"github.com/arloliu/handover/trigger"
	"github.com/arloliu/handover/types"
)

// ForcedSwitchPolicy decides what happens when the switch wait expires
// before the full variant is ready.
type ForcedSwitchPolicy string

const (
	// ForcedSwitchProceed activates the full variant with whatever was prefetched.
	ForcedSwitchProceed ForcedSwitchPolicy = "proceed"

	// ForcedSwitchAbort keeps the lite variant and allows a later switch request.
	ForcedSwitchAbort ForcedSwitchPolicy = "abort"
)

// ReadinessConfig controls the persistent readiness records.
type ReadinessConfig struct {
	// Namespace prefixes every readiness key.
	Namespace string `yaml:"namespace" json:"namespace"`

	// TTL is how long a ready record stays valid.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// CacheConfig controls the asset cache partitions.
type CacheConfig struct {
	// Prefix starts the name of every prefetch partition.
	Prefix string `yaml:"prefix" json:"prefix"`

	// RuntimePartition holds responses fetched by the full variant at runtime.
	RuntimePartition string `yaml:"runtimePartition" json:"runtimePartition"`

	// RetiredPartitions are dropped at start whenever they exist.
	RetiredPartitions []string `yaml:"retiredPartitions" json:"retiredPartitions"`
}

// SwitchConfig controls the lite to full switch.
type SwitchConfig struct {
	// FallbackTimeout is how long a blocking switch waits for readiness.
	FallbackTimeout time.Duration `yaml:"fallbackTimeout" json:"fallbackTimeout"`

	// GraceExtension extends an expired wait once. 0 disables the extension.
	GraceExtension time.Duration `yaml:"graceExtension" json:"graceExtension"`

	// ForcedPolicy applies when the wait, including the grace extension, expires.
	ForcedPolicy ForcedSwitchPolicy `yaml:"forcedPolicy" json:"forcedPolicy"`

	// MinMaskDuration is the shortest time the transition mask stays visible.
	MinMaskDuration time.Duration `yaml:"minMaskDuration" json:"minMaskDuration"`

	// TargetLevel is the level the level gate and the automatic switch refer to.
	TargetLevel int `yaml:"targetLevel" json:"targetLevel"`

	// LevelGate ignores completion until the highest reported level reaches TargetLevel.
	LevelGate bool `yaml:"levelGate" json:"levelGate"`

	// AutoSwitchOnTargetLevel requests the switch as soon as TargetLevel is reached.
	AutoSwitchOnTargetLevel bool `yaml:"autoSwitchOnTargetLevel" json:"autoSwitchOnTargetLevel"`
}

// Config is the configuration for the Controller.
//
// All duration fields accept standard Go duration strings like "250ms", "15s", "168h".
type Config struct {
	// Lite is the fast-starting variant launched first.
	Lite types.Variant `yaml:"lite" json:"lite"`

	// Full is the complete variant prefetched and switched to.
	Full types.Variant `yaml:"full" json:"full"`

	// Readiness controls the persistent readiness records.
	Readiness ReadinessConfig `yaml:"readiness" json:"readiness"`

	// Cache controls the asset cache partitions.
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Prefetch tunes the asset prefetch pipeline.
	Prefetch prefetch.Config `yaml:"prefetch" json:"prefetch"`

	// Trigger holds the prefetch trigger thresholds.
	Trigger trigger.Config `yaml:"trigger" json:"trigger"`

	// Switch controls the lite to full switch.
	Switch SwitchConfig `yaml:"switch" json:"switch"`

	// AllowedOrigins lists the origins cross-context messages are accepted from.
	// Empty rejects every message. An empty or "*" origin is accepted only
	// when listed verbatim.
	AllowedOrigins []string `yaml:"allowedOrigins" json:"allowedOrigins"`

	// FallbackMessage is shown when the configuration cannot be loaded at boot.
	FallbackMessage string `yaml:"fallbackMessage" json:"fallbackMessage"`

	// OperationTimeout bounds store and cache housekeeping at start.
	OperationTimeout time.Duration `yaml:"operationTimeout" json:"operationTimeout"`
}

// Variant defaults.
const (
	DefaultEntryDocument = "index.html"
	DefaultManifestPath  = "build-manifest.json"
	DefaultRuntimeCache  = "handover-runtime"
	DefaultFallbackText  = "Unable to load the application. Please reload the page."
)

// DefaultConfig returns a Config with production defaults and no variants.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		Lite: types.Variant{Kind: types.VariantLite, EntryDocument: DefaultEntryDocument, ManifestPath: DefaultManifestPath},
		Full: types.Variant{Kind: types.VariantFull, EntryDocument: DefaultEntryDocument, ManifestPath: DefaultManifestPath},
		Readiness: ReadinessConfig{
			Namespace: readiness.DefaultNamespace,
			TTL:       readiness.DefaultTTL,
		},
		Cache: CacheConfig{
			Prefix:           cache.DefaultPrefix,
			RuntimePartition: DefaultRuntimeCache,
		},
		Prefetch: prefetch.DefaultConfig(),
		Trigger:  trigger.DefaultConfig(),
		Switch: SwitchConfig{
			FallbackTimeout: 15 * time.Second,
			ForcedPolicy:    ForcedSwitchProceed,
			MinMaskDuration: 250 * time.Millisecond,
		},
		FallbackMessage:  DefaultFallbackText,
		OperationTimeout: 10 * time.Second,
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Zero values that are meaningful are left alone: GraceExtension, TargetLevel
// and the prefetch MaxRetries.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	setVariantDefaults(&cfg.Lite, types.VariantLite)
	setVariantDefaults(&cfg.Full, types.VariantFull)

	if cfg.Readiness.Namespace == "" {
		cfg.Readiness.Namespace = defaults.Readiness.Namespace
	}
	if cfg.Readiness.TTL == 0 {
		cfg.Readiness.TTL = defaults.Readiness.TTL
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = defaults.Cache.Prefix
	}
	if cfg.Cache.RuntimePartition == "" {
		cfg.Cache.RuntimePartition = defaults.Cache.RuntimePartition
	}

	p := &cfg.Prefetch
	if p.Concurrency == 0 {
		p.Concurrency = defaults.Prefetch.Concurrency
	}
	if p.RequestTimeout == 0 {
		p.RequestTimeout = defaults.Prefetch.RequestTimeout
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = defaults.Prefetch.RetryDelay
	}
	if p.RetryMultiplier == 0 {
		p.RetryMultiplier = defaults.Prefetch.RetryMultiplier
	}
	if p.CriticalPattern == "" {
		p.CriticalPattern = defaults.Prefetch.CriticalPattern
	}

	tr := &cfg.Trigger
	if tr.Delay == 0 {
		tr.Delay = defaults.Trigger.Delay
	}
	if tr.MinIdleWindow == 0 {
		tr.MinIdleWindow = defaults.Trigger.MinIdleWindow
	}
	if tr.QueueDeadline == 0 {
		tr.QueueDeadline = defaults.Trigger.QueueDeadline
	}

	if cfg.Switch.FallbackTimeout == 0 {
		cfg.Switch.FallbackTimeout = defaults.Switch.FallbackTimeout
	}
	if cfg.Switch.ForcedPolicy == "" {
		cfg.Switch.ForcedPolicy = defaults.Switch.ForcedPolicy
	}
	if cfg.Switch.MinMaskDuration == 0 {
		cfg.Switch.MinMaskDuration = defaults.Switch.MinMaskDuration
	}
	if cfg.FallbackMessage == "" {
		cfg.FallbackMessage = defaults.FallbackMessage
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
}

func setVariantDefaults(v *types.Variant, kind types.VariantKind) {
	if v.Kind == "" {
		v.Kind = kind
	}
	if v.BaseURL != "" {
		v.BaseURL = types.NormalizeBaseURL(v.BaseURL)
	}
	if v.EntryDocument == "" {
		v.EntryDocument = DefaultEntryDocument
	}
	if v.ManifestPath == "" {
		v.ManifestPath = DefaultManifestPath
	}
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - Lite and Full have a base URL; Full has a version
//   - Lite and Full are of their own kind
//   - Readiness TTL > 0
//   - Prefetch concurrency and request timeout > 0
//   - Trigger thresholds are valid
//   - FallbackTimeout > 0, GraceExtension >= 0
//   - ForcedPolicy is "proceed" or "abort"
//   - TargetLevel > 0 when LevelGate or AutoSwitchOnTargetLevel is set
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if cfg.Lite.BaseURL == "" {
		return fmt.Errorf("%w: lite variant url is required", types.ErrInvalidConfig)
	}
	if cfg.Full.BaseURL == "" {
		return fmt.Errorf("%w: full variant url is required", types.ErrInvalidConfig)
	}
	if cfg.Full.Version == "" {
		return fmt.Errorf("%w: full variant version is required", types.ErrInvalidConfig)
	}
	if cfg.Lite.Kind != types.VariantLite || cfg.Full.Kind != types.VariantFull {
		return fmt.Errorf("%w: variant kinds must be %q and %q", types.ErrInvalidConfig, types.VariantLite, types.VariantFull)
	}
	if _, err := cfg.Full.EntryURL(); err != nil {
		return fmt.Errorf("%w: full variant: %w", types.ErrInvalidConfig, err)
	}
	if cfg.Readiness.TTL <= 0 {
		return fmt.Errorf("%w: readiness TTL must be > 0, got %v", types.ErrInvalidConfig, cfg.Readiness.TTL)
	}
	if cfg.Prefetch.Concurrency <= 0 {
		return fmt.Errorf("%w: prefetch concurrency must be > 0, got %d", types.ErrInvalidConfig, cfg.Prefetch.Concurrency)
	}
	if cfg.Prefetch.RequestTimeout <= 0 {
		return fmt.Errorf("%w: prefetch request timeout must be > 0, got %v", types.ErrInvalidConfig, cfg.Prefetch.RequestTimeout)
	}
	if cfg.Prefetch.MaxRetries < 0 {
		return fmt.Errorf("%w: prefetch max retries must be >= 0, got %d", types.ErrInvalidConfig, cfg.Prefetch.MaxRetries)
	}
	if err := cfg.Trigger.Validate(); err != nil {
		return err
	}
	if cfg.Switch.FallbackTimeout <= 0 {
		return fmt.Errorf("%w: switch fallback timeout must be > 0, got %v", types.ErrInvalidConfig, cfg.Switch.FallbackTimeout)
	}
	if cfg.Switch.GraceExtension < 0 {
		return fmt.Errorf("%w: switch grace extension must be >= 0, got %v", types.ErrInvalidConfig, cfg.Switch.GraceExtension)
	}
	switch cfg.Switch.ForcedPolicy {
	case ForcedSwitchProceed, ForcedSwitchAbort:
	default:
		return fmt.Errorf("%w: unknown forced switch policy %q", types.ErrInvalidConfig, cfg.Switch.ForcedPolicy)
	}
	if (cfg.Switch.LevelGate || cfg.Switch.AutoSwitchOnTargetLevel) && cfg.Switch.TargetLevel <= 0 {
		return fmt.Errorf("%w: switch target level must be > 0 when level gating is enabled", types.ErrInvalidConfig)
	}

	return nil
}

// ValidateWithWarnings checks configuration and logs warnings for non-recommended values.
//
// This is called after Validate() in NewController() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.Switch.MinMaskDuration > cfg.Switch.FallbackTimeout {
		logger.Warn(
			"MinMaskDuration exceeds FallbackTimeout, every blocking switch will wait for the mask",
			"minMaskDuration", cfg.Switch.MinMaskDuration,
			"fallbackTimeout", cfg.Switch.FallbackTimeout,
		)
	}

	if cfg.Prefetch.Concurrency > 8 {
		logger.Warn(
			"prefetch concurrency is high and may compete with the running lite variant",
			"concurrency", cfg.Prefetch.Concurrency,
			"recommended", "2-4",
		)
	}

	if cfg.Trigger.LevelThreshold > 0 && cfg.Switch.TargetLevel > 0 && cfg.Switch.TargetLevel <= cfg.Trigger.LevelThreshold {
		logger.Warn(
			"switch target level does not leave room for prefetch after the level trigger",
			"levelThreshold", cfg.Trigger.LevelThreshold,
			"targetLevel", cfg.Switch.TargetLevel,
		)
	}

	if len(cfg.AllowedOrigins) == 0 {
		logger.Warn("no allowed origins configured, every cross-context message is rejected")
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Timings are scaled down 100x or more from the production defaults.
// Use DefaultConfig() for production deployments.
//
// Returns:
//   - Config: Configuration with fast timings for tests
//
// Example:
//
//	cfg := handover.TestConfig()
//	cfg.Lite.BaseURL = liteServer.URL()
//	cfg.Full.BaseURL = fullServer.URL()
//	ctrl, err := handover.NewController(&cfg, bootstrapper, presenter)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.Full.Version = "test"
	cfg.Prefetch.RequestTimeout = 2 * time.Second
	cfg.Prefetch.RetryDelay = 50 * time.Millisecond
	cfg.Prefetch.RetryMaxDelay = 500 * time.Millisecond
	cfg.Trigger.Delay = 140 * time.Millisecond
	cfg.Trigger.SlowNetworkExtra = 150 * time.Millisecond
	cfg.Trigger.QueueDeadline = 120 * time.Millisecond
	cfg.Switch.FallbackTimeout = 150 * time.Millisecond
	cfg.Switch.MinMaskDuration = 25 * time.Millisecond
	cfg.OperationTimeout = time.Second

	return cfg
}

// LoadConfig reads a YAML or JSON configuration file on top of DefaultConfig.
//
// Returns:
//   - Config: Loaded configuration with defaults applied and validated
//   - error: *types.ConfigLoadError describing the failure
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &types.ConfigLoadError{Path: path, Err: err}
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		var loadErr *types.ConfigLoadError
		if errors.As(err, &loadErr) {
			loadErr.Path = path
		}

		return Config{}, err
	}

	return cfg, nil
}

// ParseConfig decodes a YAML or JSON document on top of DefaultConfig.
//
// Returns:
//   - Config: Decoded configuration with defaults applied and validated
//   - error: *types.ConfigLoadError describing the failure
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &types.ConfigLoadError{Err: fmt.Errorf("decode: %w", err)}
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, &types.ConfigLoadError{Err: err}
	}

	return cfg, nil
}
