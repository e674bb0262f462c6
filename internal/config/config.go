// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New(...Option) initializer to build a Config with defaults.
// - All future functions must accept context.Context as the first parameter.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DeltaQueueSize bounds the in-memory inventory delta queue.
	DeltaQueueSize int `koanf:"delta_queue_size"`

	// SyncWorkerCount sets the number of synchronizer workers. Each worker
	// owns one queue shard so per-event ordering is preserved.
	SyncWorkerCount int `koanf:"sync_worker_count"`

	// SnapshotIntervalMS controls how often the catalog publishes a fresh
	// read snapshot for the ranking engine.
	SnapshotIntervalMS int `koanf:"snapshot_interval_ms"`

	// CacheMaxEntries bounds the result cache before LRU eviction kicks in.
	CacheMaxEntries int `koanf:"cache_max_entries"`

	// CacheShortTTLMS applies to availability-sensitive results.
	CacheShortTTLMS int `koanf:"cache_short_ttl_ms"`

	// CacheLongTTLMS applies to facet-heavy aggregate results.
	CacheLongTTLMS int `koanf:"cache_long_ttl_ms"`

	// HotAvailabilityRatio marks a result availability-sensitive when any
	// hit has available/total at or below this ratio.
	HotAvailabilityRatio float64 `koanf:"hot_availability_ratio"`

	// SearchTimeoutMS bounds one search request end to end; expiry serves
	// a best-effort degraded result instead of failing.
	SearchTimeoutMS int `koanf:"search_timeout_ms"`

	// MaxPageSize caps the per-page hit count.
	MaxPageSize int `koanf:"max_page_size"`

	// MaxPageCount caps pagination depth; deeper requests get a
	// refine-search marker instead of a scan.
	MaxPageCount int `koanf:"max_page_count"`

	// StalenessSLAMS bounds apply-to-invalidation lag before the system
	// counts an SLA violation.
	StalenessSLAMS int `koanf:"staleness_sla_ms"`

	// DegradeWindowMS is how long violations must persist before the
	// controller leaves HEALTHY.
	DegradeWindowMS int `koanf:"degrade_window_ms"`

	// RecoverWindowMS is how long a clean run must persist before the
	// controller returns to HEALTHY.
	RecoverWindowMS int `koanf:"recover_window_ms"`

	// ErrorRateThreshold is the backend error fraction that also forces
	// degradation.
	ErrorRateThreshold float64 `koanf:"error_rate_threshold"`

	// ApplyRetryMax bounds backend apply attempts per delta.
	ApplyRetryMax int `koanf:"apply_retry_max"`

	// ApplyBackoffBaseMS is the base of the exponential apply backoff.
	ApplyBackoffBaseMS int `koanf:"apply_backoff_base_ms"`

	// SuggestLimit caps the autocomplete candidate count.
	SuggestLimit int `koanf:"suggest_limit"`

	// SuggestMaxPrefix bounds the indexed prefix length.
	SuggestMaxPrefix int `koanf:"suggest_max_prefix"`

	// Ranking weights. Text boosts follow title/artist/venue field order.
	TitleBoost       float64 `koanf:"title_boost"`
	ArtistBoost      float64 `koanf:"artist_boost"`
	VenueBoost       float64 `koanf:"venue_boost"`
	PopularityWeight float64 `koanf:"popularity_weight"`
	GeoWeight        float64 `koanf:"geo_weight"`
	StalenessPenalty float64 `koanf:"staleness_penalty"`
}

// New creates a Config populated with defaults.
func New() *Config {
	c := &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		DeltaQueueSize:       100_000,
		SyncWorkerCount:      runtime.NumCPU() * 4,
		SnapshotIntervalMS:   200,
		CacheMaxEntries:      50_000,
		CacheShortTTLMS:      2_000,
		CacheLongTTLMS:       30_000,
		HotAvailabilityRatio: 0.05,
		SearchTimeoutMS:      800,
		MaxPageSize:          50,
		MaxPageCount:         20,
		StalenessSLAMS:       1_000,
		DegradeWindowMS:      3_000,
		RecoverWindowMS:      5_000,
		ErrorRateThreshold:   0.10,
		ApplyRetryMax:        5,
		ApplyBackoffBaseMS:   10,
		SuggestLimit:         8,
		SuggestMaxPrefix:     20,
		TitleBoost:           2.0,
		ArtistBoost:          3.0,
		VenueBoost:           1.0,
		PopularityWeight:     1.0,
		GeoWeight:            1.0,
		StalenessPenalty:     25.0,
	}
	return c
}
