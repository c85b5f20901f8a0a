package prefetch

import (
	"fmt"
	"regexp"
	"time"

	"github.com/arloliu/handover/types"
)

// Config tunes a Pipeline.
type Config struct {
	// Concurrency is the number of asset fetch workers.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// RequestTimeout bounds each asset request.
	RequestTimeout time.Duration `yaml:"requestTimeout" json:"requestTimeout"`

	// RetryDelay is the delay before the first retry of a failed run.
	RetryDelay time.Duration `yaml:"retryDelay" json:"retryDelay"`

	// RetryMultiplier grows the delay between consecutive retries. 1 keeps it fixed.
	RetryMultiplier float64 `yaml:"retryMultiplier" json:"retryMultiplier"`

	// RetryMaxDelay caps the retry delay. 0 means no cap.
	RetryMaxDelay time.Duration `yaml:"retryMaxDelay" json:"retryMaxDelay"`

	// RetryJitter adds up to this fraction of the delay at random. 0 disables jitter.
	RetryJitter float64 `yaml:"retryJitter" json:"retryJitter"`

	// RetrySeed makes retry jitter deterministic when non-zero.
	RetrySeed int64 `yaml:"retrySeed" json:"retrySeed"`

	// MaxRetries bounds automatic retries after a failed run. 0 disables them.
	MaxRetries int `yaml:"maxRetries" json:"maxRetries"`

	// VerifyDigest re-hashes cached critical bodies during validation.
	VerifyDigest bool `yaml:"verifyDigest" json:"verifyDigest"`

	// CriticalPattern selects critical asset paths when the manifest has no
	// explicit list.
	CriticalPattern string `yaml:"criticalPattern" json:"criticalPattern"`

	// ScanExtras are paths relative to the base added in scan discovery mode.
	ScanExtras []string `yaml:"scanExtras" json:"scanExtras"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:     2,
		RequestTimeout:  45 * time.Second,
		RetryDelay:      30 * time.Second,
		RetryMultiplier: 1,
		RetryMaxDelay:   5 * time.Minute,
		MaxRetries:      3,
		CriticalPattern: types.DefaultCriticalPattern,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = 1
	}
	if c.CriticalPattern == "" {
		c.CriticalPattern = d.CriticalPattern
	}
}

func (c *Config) critical() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.CriticalPattern)
	if err != nil {
		return nil, fmt.Errorf("critical pattern %q: %w", c.CriticalPattern, err)
	}

	return re, nil
}
