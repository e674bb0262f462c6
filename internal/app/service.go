// Package app wires the catalog, delta queue, synchronizer, cache,
// suggestion index, and degradation controller into the search service.
package app

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stagehq/marquee/internal/adapters/cache"
	"github.com/stagehq/marquee/internal/adapters/mq/queue"
	"github.com/stagehq/marquee/internal/adapters/mq/worker"
	"github.com/stagehq/marquee/internal/adapters/repository"
	"github.com/stagehq/marquee/internal/config"
	"github.com/stagehq/marquee/internal/domain/health"
	"github.com/stagehq/marquee/internal/domain/model"
	"github.com/stagehq/marquee/internal/domain/query"
	"github.com/stagehq/marquee/internal/domain/rank"
	"github.com/stagehq/marquee/internal/domain/suggest"
	"github.com/stagehq/marquee/pkg/logger"
	"github.com/stagehq/marquee/pkg/metrics"
)

// SearchResult is one served page. Degraded marks results assembled from
// possibly-stale state or containing events behind on their deltas.
type SearchResult struct {
	Hits     []model.Hit   `json:"hits"`
	Facets   *model.Facets `json:"facets,omitempty"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	NextPage int           `json:"next_page"`
	Refine   bool          `json:"refine,omitempty"`
	Degraded bool          `json:"degraded,omitempty"`
}

// Status is the service health view exposed over HTTP.
type Status struct {
	State          string  `json:"state"`
	LagMillis      int64   `json:"lag_millis"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	CacheEntries   int     `json:"cache_entries"`
	CatalogEvents  int     `json:"catalog_events"`
	QueueDepth     int     `json:"queue_depth"`
	SuggestEntries int     `json:"suggest_entries"`
}

// Service owns the full search pipeline.
type Service struct {
	cfg *config.Config

	store  *repository.CatalogStore
	queue  *queue.DeltaQueue
	pool   *worker.Pool
	cache  *cache.ResultCache
	health *health.Controller

	builder     *query.Builder
	engine      *rank.Engine
	suggestions *suggest.Index

	flaggedMu sync.RWMutex
	flagged   map[string]struct{}

	log logger.Logger
}

// New assembles a Service from configuration. The catalog snapshot loop
// starts immediately; the synchronizer and controller start with Start.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:     cfg,
		flagged: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("app")
	}

	s.health = health.New(
		health.WithStalenessSLA(time.Duration(cfg.StalenessSLAMS)*time.Millisecond),
		health.WithDegradeWindow(time.Duration(cfg.DegradeWindowMS)*time.Millisecond),
		health.WithRecoverWindow(time.Duration(cfg.RecoverWindowMS)*time.Millisecond),
		health.WithErrorRateThreshold(cfg.ErrorRateThreshold),
	)

	if s.store == nil {
		s.store = repository.NewCatalogStore(ctx,
			repository.WithSnapshotInterval(time.Duration(cfg.SnapshotIntervalMS)*time.Millisecond),
		)
	}

	s.cache = cache.New(
		cache.WithMaxEntries(cfg.CacheMaxEntries),
		cache.WithStaleServePolicy(s.health.Degraded),
	)
	// Entries marked stale while degraded must not linger once the
	// controller settles back into healthy.
	s.health.Subscribe(func(from, to health.State) {
		if to == health.StateHealthy {
			s.cache.Flush(context.Background())
		}
	})

	s.queue = queue.New(
		queue.WithShardCount(cfg.SyncWorkerCount),
		queue.WithCapacity(cfg.DeltaQueueSize),
	)
	s.pool = worker.NewPool(s.queue, s.store,
		worker.WithRetryMax(cfg.ApplyRetryMax),
		worker.WithBackoffBase(time.Duration(cfg.ApplyBackoffBaseMS)*time.Millisecond),
		worker.WithInvalidationSink(s.onInvalidation),
		worker.WithLagObserver(s.health.ReportLag),
		worker.WithErrorObserver(s.health.ReportApplyError),
	)

	// The builder's hard bound sits above the refine cap: pages past the
	// cap but under the bound get a refine marker, not a rejection.
	s.builder = query.NewBuilder(
		query.WithMaxPageSize(cfg.MaxPageSize),
		query.WithMaxPage(cfg.MaxPageCount*5),
	)
	s.engine = rank.NewEngine(
		rank.WithFieldBoosts(cfg.TitleBoost, cfg.ArtistBoost, cfg.VenueBoost),
		rank.WithPopularityWeight(cfg.PopularityWeight),
		rank.WithGeoWeight(cfg.GeoWeight),
		rank.WithStalenessPenalty(cfg.StalenessPenalty),
		rank.WithMaxPageCount(cfg.MaxPageCount),
	)
	s.suggestions = suggest.New(
		suggest.WithLimit(cfg.SuggestLimit),
		suggest.WithMaxPrefix(cfg.SuggestMaxPrefix),
	)

	return s, nil
}

// Start launches the synchronizer pool and the degradation controller.
func (s *Service) Start(ctx context.Context) {
	s.pool.Start(ctx)
	s.health.Start(ctx)
	s.log.Info(ctx, "service started",
		logger.Int("sync_workers", s.queue.ShardCount()),
		logger.Int("cache_max_entries", s.cfg.CacheMaxEntries))
}

// Stop drains the queue, stops the workers and controller, and closes
// the catalog snapshot loop.
func (s *Service) Stop(ctx context.Context) {
	s.pool.Stop()
	s.health.Stop()
	s.store.Close()
	s.log.Info(ctx, "service stopped")
}

// Search plans, ranks, and caches one search request.
func (s *Service) Search(ctx context.Context, req query.Request) (*SearchResult, error) {
	start := time.Now()
	metrics.RecordSearchRequest()
	defer func() {
		metrics.RecordSearchLatency(float64(time.Since(start).Milliseconds()))
	}()

	plan, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}

	if s.cfg.SearchTimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.SearchTimeoutMS)*time.Millisecond)
		defer cancel()
	}

	state := s.health.State()
	// Recovering mode sheds facet aggregation to shorten the catch-up.
	skipFacets := state == health.StateRecovering

	key, epochKeys := s.searchKey(ctx, plan, skipFacets)
	val, _, stale, err := s.cache.GetOrCompute(ctx, key, func(ctx context.Context) (cache.Computed, error) {
		return s.computeSearch(ctx, plan, epochKeys, skipFacets)
	})
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, err
		}
		// The deadline ran out with nothing cached under the key: serve a
		// filters-only partial rather than failing the request.
		res, perr := s.partialSearch(context.WithoutCancel(ctx), plan)
		if perr != nil {
			return nil, err
		}
		metrics.RecordSearchDegraded()
		return res, nil
	}

	res := val.(*SearchResult)
	if stale || state != health.StateHealthy {
		// Copy before flagging; the cached value is shared.
		flagged := *res
		flagged.Degraded = true
		res = &flagged
	}
	if res.Degraded {
		metrics.RecordSearchDegraded()
	}
	return res, nil
}

// computeSearch ranks the current snapshot and decides the cache policy
// for the outcome.
func (s *Service) computeSearch(ctx context.Context, plan *query.Plan, epochKeys []string, skipFacets bool) (cache.Computed, error) {
	// Read through the freshness gate: a recomputation triggered by an
	// invalidation must not rank the pre-delta view.
	snap := s.store.FreshSnapshot(ctx)
	out, err := s.engine.Rank(ctx, rank.Input{
		Plan:       plan,
		Events:     snap.Events,
		Flagged:    s.flaggedSet(),
		SkipFacets: skipFacets,
	})
	if err != nil {
		return cache.Computed{}, err
	}

	res := &SearchResult{
		Hits:     out.Hits,
		Facets:   out.Facets,
		Total:    out.Total,
		Page:     plan.Page,
		NextPage: out.NextPage,
		Refine:   out.Refine,
	}

	deps := make([]string, 0, len(epochKeys)+len(out.Hits))
	deps = append(deps, epochKeys...)
	if len(epochKeys) == 0 {
		// Unfiltered plans have no epoch component in their key, so
		// aggregates spanning off-page events subscribe to the epochs the
		// result actually touched.
		deps = append(deps, observedEpochKeys(out)...)
	}
	bypass := false
	hot := false
	for _, h := range out.Hits {
		deps = append(deps, worker.EventKey(h.Event.ID))
		if h.Event.Degraded {
			res.Degraded = true
			bypass = true
		}
		if h.Event.Total > 0 &&
			float64(h.Event.Available)/float64(h.Event.Total) <= s.cfg.HotAvailabilityRatio {
			hot = true
		}
	}

	var ttl time.Duration
	switch {
	case plan.PastOnly(time.Now()):
		ttl = 0
	case hot:
		ttl = time.Duration(s.cfg.CacheShortTTLMS) * time.Millisecond
	default:
		ttl = time.Duration(s.cfg.CacheLongTTLMS) * time.Millisecond
	}

	return cache.Computed{Value: res, Deps: deps, TTL: ttl, Bypass: bypass}, nil
}

// partialSearchBudget bounds the facet-less fallback pass that runs after
// a search deadline has already expired.
const partialSearchBudget = 250 * time.Millisecond

// partialSearch ranks the current snapshot without facets. The result is
// never cached and always flagged degraded.
func (s *Service) partialSearch(ctx context.Context, plan *query.Plan) (*SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, partialSearchBudget)
	defer cancel()
	out, err := s.engine.Rank(ctx, rank.Input{
		Plan:       plan,
		Events:     s.store.Snapshot(ctx).Events,
		Flagged:    s.flaggedSet(),
		SkipFacets: true,
	})
	if err != nil {
		return nil, err
	}
	return &SearchResult{
		Hits:     out.Hits,
		Total:    out.Total,
		Page:     plan.Page,
		NextPage: out.NextPage,
		Refine:   out.Refine,
		Degraded: true,
	}, nil
}

// observedEpochKeys collects the category/city epochs a result touched,
// from the facet pass when present, otherwise from the page hits.
func observedEpochKeys(out rank.Result) []string {
	seen := make(map[string]struct{})
	var keys []string
	add := func(k string) {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	if out.Facets != nil {
		for _, b := range out.Facets.Categories {
			add(repository.EpochKeyCategory(b.Key))
		}
		for _, b := range out.Facets.Cities {
			add(repository.EpochKeyCity(b.Key))
		}
		return keys
	}
	for _, h := range out.Hits {
		add(repository.EpochKeyCategory(h.Event.Category))
		add(repository.EpochKeyCity(h.Event.Venue.City))
	}
	return keys
}

// searchKey derives the cache key from the canonical plan and the current
// epoch values of every category/city the plan touches. An epoch bump
// shifts the key, so stale entries simply stop being addressed.
func (s *Service) searchKey(ctx context.Context, plan *query.Plan, skipFacets bool) (string, []string) {
	var epochKeys []string
	for _, c := range plan.TermValues("category") {
		epochKeys = append(epochKeys, repository.EpochKeyCategory(c))
	}
	for _, c := range plan.TermValues("city") {
		epochKeys = append(epochKeys, repository.EpochKeyCity(c))
	}
	epochs := s.store.Epochs(ctx, epochKeys)

	var b strings.Builder
	b.WriteString(plan.Key())
	for i, k := range epochKeys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.FormatInt(epochs[i], 10))
	}
	if skipFacets {
		b.WriteString("|nofacets")
	}
	return "search:" + strconv.FormatUint(xxhash.Sum64String(b.String()), 16), epochKeys
}

// Suggest serves typeahead candidates for prefix.
func (s *Service) Suggest(ctx context.Context, prefix string) []model.Suggestion {
	start := time.Now()
	defer func() {
		metrics.RecordSuggestLatency(float64(time.Since(start).Milliseconds()))
	}()
	return s.suggestions.Suggest(ctx, prefix)
}

// UpsertEvent ingests or replaces a catalog document and rebuilds the
// suggestion index. Availability deltas never come through here.
func (s *Service) UpsertEvent(ctx context.Context, ev *model.Event) error {
	if err := s.store.Upsert(ctx, ev); err != nil {
		return err
	}
	s.rebuildSuggestions(ctx)
	s.cache.Invalidate(ctx, worker.EventKey(ev.ID))
	return nil
}

// EnqueueDelta admits one availability delta into the synchronizer.
func (s *Service) EnqueueDelta(ctx context.Context, d model.Delta) error {
	if d.EmittedAt.IsZero() {
		d.EmittedAt = time.Now()
	}
	return s.queue.Enqueue(ctx, d)
}

// SetPopularity updates an event's popularity and rebuilds suggestions.
func (s *Service) SetPopularity(ctx context.Context, id string, popularity float64) error {
	ev, ok := s.store.Get(ctx, id)
	if !ok {
		return repository.ErrNotFound
	}
	updated := *ev
	updated.Popularity = popularity
	if err := s.store.Upsert(ctx, &updated); err != nil {
		return err
	}
	s.rebuildSuggestions(ctx)
	s.cache.Invalidate(ctx, worker.EventKey(id))
	return nil
}

// SetFlagged marks or clears a risk-flagged event. Flagged events are
// suppressed from results when the plan asks for it.
func (s *Service) SetFlagged(ctx context.Context, id string, flagged bool) {
	s.flaggedMu.Lock()
	if flagged {
		s.flagged[id] = struct{}{}
	} else {
		delete(s.flagged, id)
	}
	s.flaggedMu.Unlock()
	s.cache.Invalidate(ctx, worker.EventKey(id))
}

// Health reports the current serving state and key gauges.
func (s *Service) Health(ctx context.Context) Status {
	return Status{
		State:          s.health.State().String(),
		LagMillis:      s.health.LastLag().Milliseconds(),
		CacheHitRate:   s.cache.HitRate(),
		CacheEntries:   s.cache.Len(),
		CatalogEvents:  s.store.Count(ctx),
		QueueDepth:     s.queue.Len(),
		SuggestEntries: s.suggestions.Len(),
	}
}

// Store exposes the catalog for read-only callers such as the seed tool
// verification path.
func (s *Service) Store() repository.Store {
	return s.store
}

// onInvalidation fans an applied delta's invalidation out to the cache
// and counts the apply as a healthy signal.
func (s *Service) onInvalidation(ctx context.Context, inv worker.Invalidation) {
	// Publish before dropping entries: once a key is gone, the next
	// recomputation must see the mutation that dropped it.
	s.store.FreshSnapshot(ctx)
	for _, key := range inv.Keys {
		s.cache.Invalidate(ctx, key)
	}
	s.health.ReportApplySuccess()
}

func (s *Service) rebuildSuggestions(ctx context.Context) {
	s.store.RefreshSnapshot(ctx)
	s.suggestions.Rebuild(ctx, s.store.Snapshot(ctx).Events)
}

func (s *Service) flaggedSet() map[string]struct{} {
	s.flaggedMu.RLock()
	defer s.flaggedMu.RUnlock()
	out := make(map[string]struct{}, len(s.flagged))
	for id := range s.flagged {
		out[id] = struct{}{}
	}
	return out
}
