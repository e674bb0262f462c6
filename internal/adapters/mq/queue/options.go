package queue

// Option applies a configuration option to the DeltaQueue.
type Option func(*DeltaQueue, *int)

// WithShardCount sets the number of queue shards. One synchronizer
// worker consumes each shard.
func WithShardCount(n int) Option {
	return func(q *DeltaQueue, shards *int) {
		if n > 0 {
			*shards = n
		}
	}
}

// WithCapacity sets the total queue capacity, split across shards.
func WithCapacity(n int) Option {
	return func(q *DeltaQueue, _ *int) {
		if n > 0 {
			q.capacity = n
		}
	}
}
