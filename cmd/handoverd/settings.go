package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arloliu/handover"
)

// Settings are the daemon's own settings. The handover configuration itself
// lives in the file named by Config.
type Settings struct {
	Listen          string
	Config          string
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string

	// Store is "memory", "sqlite" or "nats".
	Store      string
	SQLitePath string

	// Cache is "memory" or "nats".
	Cache string

	NATSURL    string
	NATSBucket string
	Subject    string

	// Overrides applied on top of the handover configuration file.
	LiteURL     string
	FullURL     string
	FullVersion string
}

// LoadSettings reads settings from an optional file plus HANDOVER_* environment
// variables, e.g. HANDOVER_STORE=nats or HANDOVER_FULL_VERSION=2024.06.1.
func LoadSettings(path string) (Settings, error) {
	v := viper.New()

	v.SetDefault("listen", ":8080")
	v.SetDefault("config", "handover.yaml")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store", "sqlite")
	v.SetDefault("sqlite.path", "data/handover.db")
	v.SetDefault("cache", "memory")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.bucket", "")
	v.SetDefault("nats.subject", "handover.messages")
	v.SetDefault("lite.url", "")
	v.SetDefault("full.url", "")
	v.SetDefault("full.version", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
	}

	v.SetEnvPrefix("HANDOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s := Settings{
		Listen:          v.GetString("listen"),
		Config:          v.GetString("config"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		LogLevel:        v.GetString("log.level"),
		LogFormat:       v.GetString("log.format"),
		Store:           strings.ToLower(v.GetString("store")),
		SQLitePath:      v.GetString("sqlite.path"),
		Cache:           strings.ToLower(v.GetString("cache")),
		NATSURL:         v.GetString("nats.url"),
		NATSBucket:      v.GetString("nats.bucket"),
		Subject:         v.GetString("nats.subject"),
		LiteURL:         v.GetString("lite.url"),
		FullURL:         v.GetString("full.url"),
		FullVersion:     v.GetString("full.version"),
	}

	if err := s.validate(); err != nil {
		return Settings{}, err
	}

	return s, nil
}

func (s Settings) validate() error {
	switch s.Store {
	case "memory", "sqlite":
	case "nats":
		if s.NATSURL == "" {
			return fmt.Errorf("store %q requires nats.url", s.Store)
		}
	default:
		return fmt.Errorf("unknown store %q", s.Store)
	}

	switch s.Cache {
	case "memory":
	case "nats":
		if s.NATSURL == "" {
			return fmt.Errorf("cache %q requires nats.url", s.Cache)
		}
	default:
		return fmt.Errorf("unknown cache %q", s.Cache)
	}

	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be > 0, got %v", s.ShutdownTimeout)
	}

	return nil
}

// Apply overlays the URL and version overrides onto cfg.
func (s Settings) Apply(cfg *handover.Config) {
	if s.LiteURL != "" {
		cfg.Lite.BaseURL = s.LiteURL
	}
	if s.FullURL != "" {
		cfg.Full.BaseURL = s.FullURL
	}
	if s.FullVersion != "" {
		cfg.Full.Version = s.FullVersion
	}
}
