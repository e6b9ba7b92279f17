package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines connection lifecycle timing.
type Config struct {
	ConnectTimeout time.Duration
	ResolveTimeout time.Duration
	WriteTimeout   time.Duration
	// ResolveBackoff paces retries after a failed name lookup.
	ResolveBackoff BackoffConfig
	// ConnectBackoff paces retries after a refused or unreachable connect.
	ConnectBackoff BackoffConfig
	// HardErrorDelay is the pause after a broken established connection
	// before resolving again.
	HardErrorDelay time.Duration
	// MaxIdleWait caps how long the worker sleeps without any due work.
	MaxIdleWait time.Duration
}

// DefaultConfig returns the retry cadence CWP clients have always used:
// a flat 5s between lookups and a flat 2s between connects.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		ResolveTimeout: 5 * time.Second,
		WriteTimeout:   5 * time.Second,
		ResolveBackoff: BackoffConfig{
			InitialDelay: 5 * time.Second,
			Multiplier:   1.0,
		},
		ConnectBackoff: BackoffConfig{
			InitialDelay: 2 * time.Second,
			Multiplier:   1.0,
		},
		HardErrorDelay: 200 * time.Millisecond,
		MaxIdleWait:    30 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = def.ResolveTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ResolveBackoff.InitialDelay <= 0 {
		c.ResolveBackoff = def.ResolveBackoff
	}
	if c.ConnectBackoff.InitialDelay <= 0 {
		c.ConnectBackoff = def.ConnectBackoff
	}
	if c.HardErrorDelay <= 0 {
		c.HardErrorDelay = def.HardErrorDelay
	}
	if c.MaxIdleWait <= 0 {
		c.MaxIdleWait = def.MaxIdleWait
	}
	return c
}
