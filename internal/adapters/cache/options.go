package cache

import "github.com/stagehq/marquee/pkg/logger"

// Option applies a configuration option to the ResultCache.
type Option func(*ResultCache)

// WithMaxEntries bounds the cache before LRU eviction kicks in.
func WithMaxEntries(n int) Option {
	return func(c *ResultCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithStaleServePolicy sets the probe consulted on reads and
// invalidations; when it reports true the cache serves possibly-stale
// entries past TTL instead of forcing recomputation.
func WithStaleServePolicy(probe func() bool) Option {
	return func(c *ResultCache) {
		if probe != nil {
			c.serveStale = probe
		}
	}
}

// WithLogger sets a custom logger for the cache.
func WithLogger(log logger.Logger) Option {
	return func(c *ResultCache) {
		if log != nil {
			c.log = log
		}
	}
}
