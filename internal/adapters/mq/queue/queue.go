// Package queue provides the bounded in-process delta queue feeding the
// availability synchronizer. Deltas for the same event always land on the
// same shard, which keeps them ordered relative to each other while
// distinct events fan out across shards.
package queue

import (
	"context"
	"runtime"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/stagehq/marquee/internal/domain/model"
	"github.com/stagehq/marquee/pkg/logger"
	"github.com/stagehq/marquee/pkg/metrics"
)

// Default queue configuration.
var (
	defaultShardCount = runtime.NumCPU() * 4
	defaultCapacity   = 100_000
)

// DeltaQueue is a sharded bounded queue of availability deltas.
type DeltaQueue struct {
	shards   []chan model.Delta
	capacity int

	mu     sync.RWMutex
	closed bool

	log logger.Logger
}

// New creates a DeltaQueue with configuration options.
func New(opts ...Option) *DeltaQueue {
	q := &DeltaQueue{
		capacity: defaultCapacity,
		log:      logger.Get().Named("queue"),
	}
	shardCount := defaultShardCount
	for _, opt := range opts {
		opt(q, &shardCount)
	}
	if shardCount < 1 {
		shardCount = 1
	}
	perShard := q.capacity / shardCount
	if perShard < 1 {
		perShard = 1
	}
	q.shards = make([]chan model.Delta, shardCount)
	for i := range q.shards {
		q.shards[i] = make(chan model.Delta, perShard)
	}
	metrics.UpdateQueueCapacity(shardCount * perShard)
	return q
}

// Enqueue places a delta on the shard owned by its event. It never
// blocks: a full shard rejects with ErrQueueFull so the producer can
// apply back-pressure instead of stalling the ingest path.
func (q *DeltaQueue) Enqueue(ctx context.Context, d model.Delta) error {
	if d.EventID == "" || d.Version <= 0 {
		metrics.RecordQueueEnqueueError()
		return ErrInvalidDelta
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecordQueueEnqueueError()
		return ErrQueueClosed
	}

	shard := q.shards[q.shardFor(d.EventID)]
	select {
	case shard <- d:
		metrics.RecordQueueEnqueue()
		q.observeSize()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		return ErrQueueFull
	}
}

// Shard exposes the receive side of shard i for its dedicated worker.
func (q *DeltaQueue) Shard(i int) <-chan model.Delta {
	return q.shards[i]
}

// ShardCount returns the number of shards.
func (q *DeltaQueue) ShardCount() int {
	return len(q.shards)
}

// Len returns the total number of queued deltas across shards.
func (q *DeltaQueue) Len() int {
	total := 0
	for _, s := range q.shards {
		total += len(s)
	}
	return total
}

// Close stops accepting deltas and closes every shard channel so workers
// drain what remains and exit. Safe to call once.
func (q *DeltaQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, s := range q.shards {
		close(s)
	}
	q.log.Info(context.Background(), "delta queue closed")
}

func (q *DeltaQueue) shardFor(eventID string) uint64 {
	return xxhash.Sum64String(eventID) % uint64(len(q.shards))
}

func (q *DeltaQueue) observeSize() {
	size := q.Len()
	metrics.UpdateQueueSize(size)
	capacity := len(q.shards) * cap(q.shards[0])
	if capacity > 0 {
		metrics.UpdateQueueUtilization(float64(size) / float64(capacity))
	}
}
