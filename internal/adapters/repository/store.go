// Package repository owns the event catalog: versioned per-event state,
// coarse epoch counters, and the immutable snapshots the read path ranks
// against. The synchronizer is the only writer of availability state.
package repository

import (
	"context"
	"time"

	"github.com/stagehq/marquee/internal/domain/model"
)

// ApplyOutcome reports what a version-gated apply did.
type ApplyOutcome struct {
	// Applied is false when the delta was rejected as stale.
	Applied bool

	// NewVersion is the event version after the apply (unchanged on stale).
	NewVersion int64

	// EpochKeys lists the coarse epoch counters bumped by the apply,
	// e.g. "category:music", "city:new york". Empty on stale.
	EpochKeys []string
}

// Snapshot is an immutable view of the catalog published for readers.
// Events must not be mutated; the store replaces event pointers on write.
type Snapshot struct {
	Events  []*model.Event
	TakenAt time.Time
}

// Store provides catalog access for the synchronizer and the read path.
type Store interface {
	// Upsert creates or replaces a catalog document (ingestion and
	// metadata updates, not availability mutation).
	Upsert(ctx context.Context, ev *model.Event) error

	// Apply performs a version-gated availability mutation. Deltas whose
	// version is not strictly greater than the stored version come back
	// with Applied=false and no error; that is the idempotent Stale drop.
	// Unknown events fail with ErrNotFound.
	Apply(ctx context.Context, d model.Delta) (ApplyOutcome, error)

	// Get returns the current document for id.
	Get(ctx context.Context, id string) (*model.Event, bool)

	// MarkDegraded flags or clears an event whose applies exhausted the
	// retry budget; queries touching it bypass the cache until cleared.
	MarkDegraded(ctx context.Context, id string, degraded bool)

	// Snapshot returns the most recently published read view.
	Snapshot(ctx context.Context) *Snapshot

	// FreshSnapshot republishes the read view if writes dirtied it and
	// returns the latest.
	FreshSnapshot(ctx context.Context) *Snapshot

	// RefreshSnapshot forces immediate snapshot publication.
	RefreshSnapshot(ctx context.Context)

	// Epoch returns the current value of one epoch counter.
	Epoch(ctx context.Context, key string) int64

	// Epochs returns the current values for several epoch counters in
	// input order, zero for counters never bumped.
	Epochs(ctx context.Context, keys []string) []int64

	// Count returns the number of events in the catalog.
	Count(ctx context.Context) int
}
