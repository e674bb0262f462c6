// Package cache memoizes search results keyed by plan + epoch hash, with
// dependency-based invalidation, TTL, LRU eviction, and single-flight
// recomputation. Invalidation arrives asynchronously from the
// synchronizer; a result served microseconds before its invalidating
// mutation is within the staleness SLA, not a violation.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stagehq/marquee/pkg/logger"
	"github.com/stagehq/marquee/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Default cache configuration constants.
const (
	defaultMaxEntries = 50_000
)

// entry is one cached result plus its bookkeeping.
type entry struct {
	key       string
	value     any
	deps      []string
	expiresAt time.Time // zero means no expiry
	stale     bool      // dependency changed while in degraded mode
	elem      *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// ResultCache implements the cache layer. The dependency → keys index and
// the entry map share one lock; readers only take it briefly around map
// lookups, never across recomputation.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lru     *list.List // front = most recently used
	byDep   map[string]map[string]struct{}

	maxEntries int

	// serveStale reports whether degraded-mode stale serving is active.
	serveStale func() bool

	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64

	log logger.Logger
}

// New creates a ResultCache with configuration options.
func New(opts ...Option) *ResultCache {
	c := &ResultCache{
		entries:    make(map[string]*entry),
		lru:        list.New(),
		byDep:      make(map[string]map[string]struct{}),
		maxEntries: defaultMaxEntries,
		serveStale: func() bool { return false },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("cache")
	}
	return c
}

// Get returns the cached value for key. The second result reports a hit;
// the third reports that the value is possibly stale (only ever true while
// degraded-mode stale serving is active). An entry is never served past
// its TTL outside of degraded mode.
func (c *ResultCache) Get(ctx context.Context, key string) (any, bool, bool) {
	val, hit, stale, _, _ := c.get(key)
	return val, hit, stale
}

// get implements Get. An entry past its TTL outside degraded mode is
// dropped and reported as a miss, but its value is still handed back so
// GetOrCompute can fall back to it when the caller's deadline expires
// before the recomputation finishes.
func (c *ResultCache) get(key string) (val any, hit, stale bool, last any, hasLast bool) {
	now := time.Now()
	degraded := c.serveStale()

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		metrics.RecordCacheMiss()
		return nil, false, false, nil, false
	}

	if e.stale || e.expired(now) {
		v := e.value
		if !degraded {
			c.removeLocked(e)
			c.mu.Unlock()
			c.misses.Add(1)
			metrics.RecordCacheMiss()
			return nil, false, false, v, true
		}
		c.lru.MoveToFront(e.elem)
		c.mu.Unlock()
		c.hits.Add(1)
		metrics.RecordCacheHit()
		metrics.RecordCacheStaleServed()
		return v, true, true, v, true
	}

	c.lru.MoveToFront(e.elem)
	v := e.value
	c.mu.Unlock()
	c.hits.Add(1)
	metrics.RecordCacheHit()
	return v, true, false, v, true
}

// Put stores a fully-computed value under key. ttl of zero means no
// expiry. Existing state for the key is replaced.
func (c *ResultCache) Put(ctx context.Context, key string, value any, deps []string, ttl time.Duration) {
	e := &entry{key: key, value: value, deps: deps}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		c.removeLocked(old)
	}
	for len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	e.elem = c.lru.PushFront(e)
	c.entries[key] = e
	for _, dep := range deps {
		keys, ok := c.byDep[dep]
		if !ok {
			keys = make(map[string]struct{})
			c.byDep[dep] = keys
		}
		keys[key] = struct{}{}
	}
	size := len(c.entries)
	c.mu.Unlock()

	metrics.UpdateCacheEntries(size)
}

// Invalidate drops (or, while stale serving is active, marks stale) every
// entry depending on dep. A dependency-index inconsistency self-heals by
// flushing the affected namespace; corrupted state is never served.
func (c *ResultCache) Invalidate(ctx context.Context, dep string) {
	degraded := c.serveStale()

	c.mu.Lock()
	keys, ok := c.byDep[dep]
	if !ok {
		c.mu.Unlock()
		return
	}
	corrupt := false
	for key := range keys {
		e, ok := c.entries[key]
		if !ok {
			// Index names a key the entry map lost: the invariant is
			// broken, flush the whole namespace below.
			corrupt = true
			continue
		}
		if degraded {
			e.stale = true
		} else {
			c.removeLocked(e)
		}
		metrics.RecordCacheInvalidation()
	}
	if corrupt {
		for key := range keys {
			if e, ok := c.entries[key]; ok {
				c.removeLocked(e)
			}
		}
		delete(c.byDep, dep)
	}
	size := len(c.entries)
	c.mu.Unlock()

	if corrupt {
		metrics.RecordErrorByComponent("cache", "corrupt_index")
		c.log.Warn(ctx, "dependency index inconsistency; flushed namespace",
			logger.String("dependency", dep))
	}
	metrics.UpdateCacheEntries(size)
}

// Computed is a computation outcome plus its caching policy. TTL of zero
// means no expiry; Bypass keeps a successful result out of the cache.
type Computed struct {
	Value  any
	Deps   []string
	TTL    time.Duration
	Bypass bool
}

// GetOrCompute returns the cached value for key or computes it once for
// all concurrent callers. Cancellation of one caller abandons only that
// caller's wait; the computation finishes for the others, and only
// fully-computed results are stored. Partial/error results never are.
// A caller whose context expires while waiting gets the last known value
// for the key marked stale when one exists, its context error otherwise.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	key string,
	compute func(ctx context.Context) (Computed, error),
) (any, bool, bool, error) {
	val, hit, stale, last, hasLast := c.get(key)
	if hit {
		return val, true, stale, nil
	}

	// Detach the computation from this caller's cancellation so other
	// waiters still receive the result.
	computeCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		out, err := compute(computeCtx)
		if err != nil {
			return nil, err
		}
		if out.Bypass {
			metrics.RecordCacheBypass()
		} else {
			c.Put(computeCtx, key, out.Value, out.Deps, out.TTL)
		}
		return out.Value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, false, res.Err
		}
		if res.Shared {
			metrics.RecordSingleflightShared()
		}
		return res.Val, false, false, nil
	case <-ctx.Done():
		if hasLast {
			metrics.RecordCacheStaleServed()
			return last, true, true, nil
		}
		return nil, false, false, ctx.Err()
	}
}

// Len returns the current number of entries.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HitRate returns the lifetime hit fraction, zero before any lookups.
func (c *ResultCache) HitRate() float64 {
	hits := float64(c.hits.Load())
	total := hits + float64(c.misses.Load())
	if total == 0 {
		return 0
	}
	return hits / total
}

// Flush drops every entry. Used on recovery transitions where possibly
// stale state must not linger.
func (c *ResultCache) Flush(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.byDep = make(map[string]map[string]struct{})
	c.lru.Init()
	c.mu.Unlock()
	metrics.UpdateCacheEntries(0)
}

// removeLocked unlinks e from the entry map, the LRU list and the
// dependency index. Caller holds mu.
func (c *ResultCache) removeLocked(e *entry) {
	delete(c.entries, e.key)
	c.lru.Remove(e.elem)
	for _, dep := range e.deps {
		if keys, ok := c.byDep[dep]; ok {
			delete(keys, e.key)
			if len(keys) == 0 {
				delete(c.byDep, dep)
			}
		}
	}
}

// evictLocked drops the least-recently-used entry. Caller holds mu.
func (c *ResultCache) evictLocked() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	c.removeLocked(back.Value.(*entry))
	metrics.RecordCacheEviction()
}
