package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stagehq/marquee/internal/domain/model"
	"github.com/stagehq/marquee/pkg/metrics"
)

// Default catalog configuration constants.
const (
	defaultShardCount       = 64
	defaultSnapshotInterval = 200 * time.Millisecond
)

// shard holds a slice of the catalog under its own lock so distinct events
// mutate concurrently; there is no catalog-wide write lock.
type shard struct {
	mu     sync.RWMutex
	events map[string]*model.Event
}

// CatalogStore is the in-memory Store implementation. Writers replace
// event pointers, never mutate them in place, so published snapshots stay
// immutable for readers.
type CatalogStore struct {
	shards     []*shard
	shardCount uint64

	// epochs maps "category:<name>" / "city:<name>" to counters.
	epochMu sync.RWMutex
	epochs  map[string]*atomic.Int64

	snapshot         atomic.Pointer[Snapshot]
	dirty            atomic.Bool
	publishMu        sync.Mutex
	snapshotInterval time.Duration
	stopCh           chan struct{}
	stopOnce         sync.Once
}

// NewCatalogStore creates a catalog and starts periodic snapshot
// publication until ctx is cancelled or Close is called.
func NewCatalogStore(ctx context.Context, opts ...Option) *CatalogStore {
	s := &CatalogStore{
		shardCount:       defaultShardCount,
		epochs:           make(map[string]*atomic.Int64),
		snapshotInterval: defaultSnapshotInterval,
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{events: make(map[string]*model.Event)}
	}
	s.snapshot.Store(&Snapshot{TakenAt: time.Now()})

	go s.snapshotLoop(ctx)
	return s
}

// Close stops the snapshot loop.
func (s *CatalogStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

func (s *CatalogStore) shardFor(id string) *shard {
	return s.shards[xxhash.Sum64String(id)%s.shardCount]
}

// Upsert creates or replaces a catalog document. The stored copy is
// private to the store.
func (s *CatalogStore) Upsert(ctx context.Context, ev *model.Event) error {
	if ev == nil || ev.ID == "" {
		return fmt.Errorf("%w: missing event id", ErrInvalidEvent)
	}
	if !ev.ConsistentAvailability() {
		return fmt.Errorf("%w: availability invariant violated for %s", ErrInvalidEvent, ev.ID)
	}

	cp := *ev
	cp.UpdatedAt = time.Now()

	sh := s.shardFor(ev.ID)
	sh.mu.Lock()
	sh.events[ev.ID] = &cp
	sh.mu.Unlock()

	s.dirty.Store(true)
	return nil
}

// Apply performs the version-gated availability mutation. Only a delta
// whose version is strictly greater than the stored version is accepted;
// anything else is the idempotent Stale drop.
func (s *CatalogStore) Apply(ctx context.Context, d model.Delta) (ApplyOutcome, error) {
	sh := s.shardFor(d.EventID)
	sh.mu.Lock()
	cur, ok := sh.events[d.EventID]
	if !ok {
		sh.mu.Unlock()
		return ApplyOutcome{}, fmt.Errorf("%w: %s", ErrNotFound, d.EventID)
	}
	if d.Version <= cur.Version {
		sh.mu.Unlock()
		metrics.RecordDeltaStale()
		return ApplyOutcome{Applied: false, NewVersion: cur.Version}, nil
	}

	next := *cur
	switch d.Kind {
	case model.DeltaDecrement:
		next.Available -= d.Seats
	case model.DeltaIncrement:
		next.Available += d.Seats
	case model.DeltaSet:
		next.Available = d.Seats
	default:
		sh.mu.Unlock()
		return ApplyOutcome{}, fmt.Errorf("%w: delta kind %d", ErrInvalidDelta, d.Kind)
	}

	// Clamp into the invariant range; the source of truth already
	// serialized the mutation, an out-of-range result here is drift.
	if next.Available < 0 {
		next.Available = 0
	}
	if next.Available > next.Total {
		next.Available = next.Total
	}
	next.SoldOut = next.Available == 0
	next.Version = d.Version
	next.Degraded = false // a successful apply clears the degraded flag
	next.UpdatedAt = time.Now()

	sh.events[d.EventID] = &next
	sh.mu.Unlock()

	keys := epochKeysFor(&next)
	for _, k := range keys {
		s.bumpEpoch(k)
	}
	s.dirty.Store(true)
	metrics.RecordDeltaApplied()

	return ApplyOutcome{Applied: true, NewVersion: next.Version, EpochKeys: keys}, nil
}

// Get returns the current document for id.
func (s *CatalogStore) Get(ctx context.Context, id string) (*model.Event, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	ev, ok := sh.events[id]
	sh.mu.RUnlock()
	return ev, ok
}

// MarkDegraded flags or clears an event after apply exhaustion/recovery.
func (s *CatalogStore) MarkDegraded(ctx context.Context, id string, degraded bool) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	if cur, ok := sh.events[id]; ok && cur.Degraded != degraded {
		next := *cur
		next.Degraded = degraded
		next.UpdatedAt = time.Now()
		sh.events[id] = &next
		s.dirty.Store(true)
	}
	sh.mu.Unlock()
}

// Snapshot returns the most recently published read view.
func (s *CatalogStore) Snapshot(ctx context.Context) *Snapshot {
	return s.snapshot.Load()
}

// FreshSnapshot republishes the read view if writes dirtied it, then
// returns the latest. Callers that must not observe a pre-mutation view
// (recomputation after an invalidation) read through here; publishMu makes
// an in-flight publish complete before the dirty check returns.
func (s *CatalogStore) FreshSnapshot(ctx context.Context) *Snapshot {
	s.publishMu.Lock()
	if s.dirty.Swap(false) {
		s.publishSnapshot()
	}
	s.publishMu.Unlock()
	return s.snapshot.Load()
}

// RefreshSnapshot forces immediate publication.
func (s *CatalogStore) RefreshSnapshot(ctx context.Context) {
	s.publishMu.Lock()
	s.dirty.Store(false)
	s.publishSnapshot()
	s.publishMu.Unlock()
}

// Epoch returns the current value of one epoch counter.
func (s *CatalogStore) Epoch(ctx context.Context, key string) int64 {
	s.epochMu.RLock()
	c, ok := s.epochs[key]
	s.epochMu.RUnlock()
	if !ok {
		return 0
	}
	return c.Load()
}

// Epochs returns the current values for keys in input order.
func (s *CatalogStore) Epochs(ctx context.Context, keys []string) []int64 {
	out := make([]int64, len(keys))
	s.epochMu.RLock()
	for i, k := range keys {
		if c, ok := s.epochs[k]; ok {
			out[i] = c.Load()
		}
	}
	s.epochMu.RUnlock()
	return out
}

// Count returns the number of events in the catalog.
func (s *CatalogStore) Count(ctx context.Context) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.events)
		sh.mu.RUnlock()
	}
	return n
}

func (s *CatalogStore) bumpEpoch(key string) {
	s.epochMu.RLock()
	c, ok := s.epochs[key]
	s.epochMu.RUnlock()
	if !ok {
		s.epochMu.Lock()
		if c, ok = s.epochs[key]; !ok {
			c = &atomic.Int64{}
			s.epochs[key] = c
		}
		s.epochMu.Unlock()
	}
	c.Add(1)
	metrics.RecordEpochBump()
}

// snapshotLoop republishes the read view whenever writes dirtied it.
func (s *CatalogStore) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.FreshSnapshot(ctx)
		}
	}
}

func (s *CatalogStore) publishSnapshot() {
	start := time.Now()

	events := make([]*model.Event, 0, s.Count(context.Background()))
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, ev := range sh.events {
			events = append(events, ev)
		}
		sh.mu.RUnlock()
	}

	s.snapshot.Store(&Snapshot{Events: events, TakenAt: time.Now()})

	metrics.RecordSnapshotRebuildDuration(float64(time.Since(start).Milliseconds()))
	metrics.RecordSnapshotPublished()
	metrics.UpdateSnapshotLastUnix(time.Now().Unix())
	metrics.UpdateCatalogEvents(len(events))
}

// EpochKeyCategory and EpochKeyCity build epoch counter keys.
func EpochKeyCategory(category string) string {
	return "category:" + strings.ToLower(category)
}

func EpochKeyCity(city string) string {
	return "city:" + strings.ToLower(city)
}

func epochKeysFor(ev *model.Event) []string {
	return []string{EpochKeyCategory(ev.Category), EpochKeyCity(ev.Venue.City)}
}
