package worker

import (
	"context"
	"time"

	"github.com/stagehq/marquee/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithRetryMax sets the number of retries after the first failed apply.
func WithRetryMax(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.retryMax = n
		}
	}
}

// WithBackoffBase sets the base delay of the exponential retry backoff.
func WithBackoffBase(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.backoffBase = d
		}
	}
}

// WithInvalidationSink sets the callback receiving cache invalidations
// for every applied delta.
func WithInvalidationSink(fn func(context.Context, Invalidation)) Option {
	return func(p *Pool) { p.onInvalidate = fn }
}

// WithLagObserver sets the callback receiving the emit-to-invalidate lag
// of every applied delta.
func WithLagObserver(fn func(time.Duration)) Option {
	return func(p *Pool) { p.onLag = fn }
}

// WithErrorObserver sets the callback invoked when a delta exhausts its
// retries.
func WithErrorObserver(fn func()) Option {
	return func(p *Pool) { p.onError = fn }
}

// WithLogger sets a custom logger for the pool.
func WithLogger(log logger.Logger) Option {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}
