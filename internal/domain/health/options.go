package health

import (
	"time"

	"github.com/stagehq/marquee/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithStalenessSLA sets the lag above which a signal counts as breaching.
func WithStalenessSLA(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.sla = d
		}
	}
}

// WithDegradeWindow sets how long breaching must persist before the
// controller leaves HEALTHY.
func WithDegradeWindow(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.degradeWindow = d
		}
	}
}

// WithRecoverWindow sets how long signals must stay clean before
// RECOVERING settles into HEALTHY.
func WithRecoverWindow(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.recoverWindow = d
		}
	}
}

// WithErrorRateThreshold sets the apply-error fraction that counts as
// breaching.
func WithErrorRateThreshold(f float64) Option {
	return func(c *Controller) {
		if f > 0 {
			c.errorThreshold = f
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger for the controller.
func WithLogger(log logger.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}
