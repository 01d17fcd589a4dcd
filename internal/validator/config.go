package validator

import (
	"time"
)

const (
	// maxAccessibilityTimeout caps the reachability probe regardless of the
	// configured timeout. Confirming that an endpoint answers never needs
	// more than this.
	maxAccessibilityTimeout = 3 * time.Second

	// failureTTL is how long a failed result stays cached. Deliberately
	// short and not configurable: a station that is merely down should be
	// retried soon, while a known-good one keeps the long configured TTL.
	failureTTL = 5 * time.Minute
)

// Config holds the validator's runtime configuration.
type Config struct {
	// Timeout applies to both checkers; the accessibility probe is further
	// capped at maxAccessibilityTimeout.
	Timeout time.Duration `json:"timeout_ms"`

	// BatchSize bounds how many stations are probed concurrently.
	BatchSize int `json:"batch_size"`

	// EnableCache toggles result caching.
	EnableCache bool `json:"enable_cache"`

	// CacheTTL is the success-path cache lifetime.
	CacheTTL time.Duration `json:"cache_ttl_ms"`
}

// DefaultConfig returns the validator defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:     10 * time.Second,
		BatchSize:   5,
		EnableCache: true,
		CacheTTL:    24 * time.Hour,
	}
}

// normalize clamps invalid values back to defaults.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	return c
}

// ConfigPatch is a partial configuration update; nil fields are left
// unchanged.
type ConfigPatch struct {
	Timeout     *time.Duration `json:"timeout_ms,omitempty"`
	BatchSize   *int           `json:"batch_size,omitempty"`
	EnableCache *bool          `json:"enable_cache,omitempty"`
	CacheTTL    *time.Duration `json:"cache_ttl_ms,omitempty"`
}

// apply returns c with the patch's non-nil fields applied.
func (p ConfigPatch) apply(c Config) Config {
	if p.Timeout != nil {
		c.Timeout = *p.Timeout
	}
	if p.BatchSize != nil {
		c.BatchSize = *p.BatchSize
	}
	if p.EnableCache != nil {
		c.EnableCache = *p.EnableCache
	}
	if p.CacheTTL != nil {
		c.CacheTTL = *p.CacheTTL
	}
	return c.normalize()
}
