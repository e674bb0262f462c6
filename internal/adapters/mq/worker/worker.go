// Package worker runs the availability synchronizer: a pool with one
// worker pinned to each delta-queue shard, so deltas for one event are
// applied strictly in arrival order while distinct events proceed in
// parallel.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stagehq/marquee/internal/adapters/mq/queue"
	"github.com/stagehq/marquee/internal/adapters/repository"
	"github.com/stagehq/marquee/internal/domain/model"
	"github.com/stagehq/marquee/pkg/logger"
	"github.com/stagehq/marquee/pkg/metrics"
)

// Default retry configuration.
const (
	defaultRetryMax    = 5
	defaultBackoffBase = 10 * time.Millisecond
)

// Applier is the slice of the catalog store the synchronizer needs.
type Applier interface {
	Apply(ctx context.Context, d model.Delta) (repository.ApplyOutcome, error)
	MarkDegraded(ctx context.Context, eventID string, degraded bool)
}

// Invalidation names the cache dependencies dirtied by an applied delta.
type Invalidation struct {
	EventID string
	Keys    []string
}

// Pool consumes the delta queue and applies deltas to the catalog.
type Pool struct {
	queue *queue.DeltaQueue
	store Applier

	retryMax    int
	backoffBase time.Duration

	onInvalidate func(context.Context, Invalidation)
	onLag        func(time.Duration)
	onError      func()

	wg       sync.WaitGroup
	stopOnce sync.Once
	log      logger.Logger
}

// NewPool creates a synchronizer pool over q and store.
func NewPool(q *queue.DeltaQueue, store Applier, opts ...Option) *Pool {
	p := &Pool{
		queue:       q,
		store:       store,
		retryMax:    defaultRetryMax,
		backoffBase: defaultBackoffBase,
		log:         logger.Get().Named("sync"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches one worker per queue shard. Workers exit when the queue
// closes and its shards drain, or when ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	n := p.queue.ShardCount()
	metrics.UpdateWorkerActiveCount(n)
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.log.Info(ctx, "synchronizer started", logger.Int("workers", n))
}

// Stop closes the queue and waits for all workers to drain and exit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.queue.Close()
		p.wg.Wait()
		metrics.UpdateWorkerActiveCount(0)
	})
}

func (p *Pool) run(ctx context.Context, shard int) {
	defer p.wg.Done()
	ch := p.queue.Shard(shard)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-ch:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			p.process(ctx, d)
		}
	}
}

// process applies one delta with bounded exponential backoff. Retry
// exhaustion marks the event degraded rather than blocking the shard, so
// one poisoned event cannot stall its neighbours.
func (p *Pool) process(ctx context.Context, d model.Delta) {
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= p.retryMax; attempt++ {
		if attempt > 0 {
			metrics.RecordApplyRetry()
			if !p.sleep(ctx, p.backoffBase<<(attempt-1)) {
				return
			}
		}

		out, err := p.store.Apply(ctx, d)
		if err == nil {
			if out.Applied {
				p.emit(ctx, d, out)
			}
			metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
			return
		}
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidDelta) {
			// Retrying cannot fix these.
			lastErr = err
			break
		}
		lastErr = err
	}

	metrics.RecordDeltaExhausted()
	metrics.RecordWorkerError()
	p.store.MarkDegraded(ctx, d.EventID, true)
	if p.onError != nil {
		p.onError()
	}
	p.log.Error(ctx, "delta apply exhausted retries; event marked degraded",
		logger.String("event_id", d.EventID),
		logger.Int64("version", d.Version),
		logger.Error(lastErr))
}

// emit publishes the invalidation for an applied delta and observes the
// emit-to-invalidate lag.
func (p *Pool) emit(ctx context.Context, d model.Delta, out repository.ApplyOutcome) {
	if p.onInvalidate != nil {
		keys := make([]string, 0, len(out.EpochKeys)+1)
		keys = append(keys, EventKey(d.EventID))
		keys = append(keys, out.EpochKeys...)
		p.onInvalidate(ctx, Invalidation{EventID: d.EventID, Keys: keys})
	}
	if !d.EmittedAt.IsZero() {
		lag := time.Since(d.EmittedAt)
		metrics.RecordSyncLag(float64(lag.Milliseconds()))
		if p.onLag != nil {
			p.onLag(lag)
		}
	}
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// EventKey is the cache dependency key for a single event.
func EventKey(eventID string) string {
	return "event:" + eventID
}
