// Package repository owns the event catalog state.
package repository

import "time"

// Option applies a configuration option to the CatalogStore.
type Option func(*CatalogStore)

// WithShardCount sets the number of catalog shards.
func WithShardCount(n int) Option {
	return func(s *CatalogStore) {
		if n > 0 {
			s.shardCount = uint64(n)
		}
	}
}

// WithSnapshotInterval sets the snapshot publication cadence.
func WithSnapshotInterval(d time.Duration) Option {
	return func(s *CatalogStore) {
		if d > 0 {
			s.snapshotInterval = d
		}
	}
}
