// Package health tracks synchronizer signals and drives the
// HEALTHY/DEGRADED/RECOVERING state machine that the rest of the service
// consults for stale serving, result flagging, and facet shedding.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/stagehq/marquee/pkg/logger"
	"github.com/stagehq/marquee/pkg/metrics"
)

// State is the controller's current serving mode.
type State int

const (
	StateHealthy State = iota
	StateRecovering
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateRecovering:
		return "recovering"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Default controller configuration.
const (
	defaultStalenessSLA   = time.Second
	defaultDegradeWindow  = 3 * time.Second
	defaultRecoverWindow  = 5 * time.Second
	defaultErrorThreshold = 0.10
	evaluateInterval      = 100 * time.Millisecond
)

// Controller is the degradation state machine. Transitions require
// sustained evidence in both directions so a single slow delta or a
// single clean one cannot flap the service.
type Controller struct {
	mu    sync.Mutex
	state State

	sla            time.Duration
	degradeWindow  time.Duration
	recoverWindow  time.Duration
	errorThreshold float64

	lastLag      time.Duration
	lagBreaching bool
	breachStart  time.Time
	healthyStart time.Time

	buckets     []rateBucket
	bucketWidth time.Duration

	observers []func(from, to State)

	now      func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
	log      logger.Logger
}

type rateBucket struct {
	slot      int64
	successes int64
	errors    int64
}

// New creates a Controller with configuration options.
func New(opts ...Option) *Controller {
	c := &Controller{
		sla:            defaultStalenessSLA,
		degradeWindow:  defaultDegradeWindow,
		recoverWindow:  defaultRecoverWindow,
		errorThreshold: defaultErrorThreshold,
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("health")
	}
	// Error rate is measured over the degrade window, in one-second
	// buckets (at least two so a slot boundary cannot erase the window).
	n := int(c.degradeWindow/time.Second) + 1
	if n < 2 {
		n = 2
	}
	c.buckets = make([]rateBucket, n)
	c.bucketWidth = time.Second
	metrics.UpdateDegradationState(int(c.state))
	return c
}

// Start runs periodic evaluation so time-based transitions (such as
// RECOVERING settling into HEALTHY) fire without waiting for a signal.
func (c *Controller) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(evaluateInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-t.C:
				c.mu.Lock()
				c.evaluate(c.now())
				c.mu.Unlock()
			}
		}
	}()
}

// Stop halts periodic evaluation.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// ReportLag records an observed emit-to-invalidate lag.
func (c *Controller) ReportLag(lag time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastLag = lag
	c.lagBreaching = lag > c.sla
	c.evaluate(c.now())
}

// ReportApplySuccess records one successfully applied delta.
func (c *Controller) ReportApplySuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucket(c.now()).successes++
	c.evaluate(c.now())
}

// ReportApplyError records one delta that exhausted its retries.
func (c *Controller) ReportApplyError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucket(c.now()).errors++
	c.evaluate(c.now())
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Degraded reports whether stale serving is currently permitted.
func (c *Controller) Degraded() bool {
	return c.State() == StateDegraded
}

// LastLag returns the most recently reported lag.
func (c *Controller) LastLag() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLag
}

// Subscribe registers an observer invoked on every state transition,
// outside the controller lock.
func (c *Controller) Subscribe(fn func(from, to State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// evaluate advances the state machine. Caller holds mu.
func (c *Controller) evaluate(now time.Time) {
	breaching := c.lagBreaching || c.errorRate(now) > c.errorThreshold

	if breaching {
		if c.breachStart.IsZero() {
			c.breachStart = now
		}
	} else {
		c.breachStart = time.Time{}
	}

	switch c.state {
	case StateHealthy:
		if breaching && now.Sub(c.breachStart) >= c.degradeWindow {
			c.transition(StateDegraded)
		}
	case StateDegraded:
		if !breaching {
			c.healthyStart = now
			c.transition(StateRecovering)
		}
	case StateRecovering:
		if breaching {
			c.breachStart = now
			c.transition(StateDegraded)
		} else if now.Sub(c.healthyStart) >= c.recoverWindow {
			c.transition(StateHealthy)
		}
	}
}

// transition switches states and notifies observers. Caller holds mu.
func (c *Controller) transition(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	metrics.UpdateDegradationState(int(to))
	metrics.RecordDegradationTransition(from.String(), to.String())
	c.log.Warn(context.Background(), "degradation state changed",
		logger.String("from", from.String()),
		logger.String("to", to.String()),
		logger.Duration("last_lag", c.lastLag))

	observers := make([]func(from, to State), 0, len(c.observers))
	observers = append(observers, c.observers...)
	go func() {
		for _, fn := range observers {
			fn(from, to)
		}
	}()
}

// bucket returns the rate bucket for now, resetting it if the slot has
// rotated past its previous occupant. Caller holds mu.
func (c *Controller) bucket(now time.Time) *rateBucket {
	slot := now.UnixNano() / int64(c.bucketWidth)
	b := &c.buckets[slot%int64(len(c.buckets))]
	if b.slot != slot {
		b.slot = slot
		b.successes = 0
		b.errors = 0
	}
	return b
}

// errorRate computes the error fraction across live buckets. Caller
// holds mu.
func (c *Controller) errorRate(now time.Time) float64 {
	slot := now.UnixNano() / int64(c.bucketWidth)
	oldest := slot - int64(len(c.buckets)) + 1
	var successes, errs int64
	for i := range c.buckets {
		b := &c.buckets[i]
		if b.slot >= oldest && b.slot <= slot {
			successes += b.successes
			errs += b.errors
		}
	}
	total := successes + errs
	if total == 0 {
		return 0
	}
	return float64(errs) / float64(total)
}
