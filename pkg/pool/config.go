package pool

import "time"

// Config describes size, lifetime and validation policy for pooled
// connections. It is immutable after pool construction.
type Config struct {
	// MaxSize caps concurrently open physical connections.
	MaxSize int32
	// IdleTimeout recycles connections idle longer than this.
	IdleTimeout time.Duration
	// MaxLifetime recycles connections older than this regardless of use.
	MaxLifetime time.Duration
	// ConnectionTimeout bounds a single checkout. A checkout that cannot
	// be satisfied within it fails with connection_acquire instead of
	// blocking forever.
	ConnectionTimeout time.Duration
	// TestOnCheckout validates a connection with a ping before handing it
	// to a partition.
	TestOnCheckout bool
}

// DefaultConfig returns the standard pool policy.
func DefaultConfig() Config {
	return Config{
		MaxSize:           10,
		IdleTimeout:       5 * time.Minute,
		MaxLifetime:       30 * time.Minute,
		ConnectionTimeout: 30 * time.Second,
		TestOnCheckout:    true,
	}
}

// WithDefaults fills zero-valued fields so a partially specified Config
// behaves like DefaultConfig for the omitted knobs.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MaxSize <= 0 {
		c.MaxSize = d.MaxSize
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = d.MaxLifetime
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = d.ConnectionTimeout
	}
	return c
}
