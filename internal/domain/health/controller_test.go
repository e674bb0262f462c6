package health_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stagehq/marquee/internal/domain/health"
	"github.com/stagehq/marquee/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newController(clk *fakeClock) *health.Controller {
	return health.New(
		health.WithClock(clk.now),
		health.WithStalenessSLA(time.Second),
		health.WithDegradeWindow(3*time.Second),
		health.WithRecoverWindow(5*time.Second),
		health.WithErrorRateThreshold(0.10),
	)
}

func TestDegradeOnSustainedLag(t *testing.T) {
	Convey("Given a healthy controller", t, func() {
		clk := newFakeClock()
		c := newController(clk)
		So(c.State(), ShouldEqual, health.StateHealthy)

		Convey("When lag breaches the SLA only briefly", func() {
			c.ReportLag(2 * time.Second)
			clk.advance(time.Second)
			c.ReportLag(100 * time.Millisecond)
			clk.advance(5 * time.Second)
			c.ReportLag(100 * time.Millisecond)

			Convey("Then it stays healthy", func() {
				So(c.State(), ShouldEqual, health.StateHealthy)
			})
		})

		Convey("When lag stays over the SLA for the degrade window", func() {
			c.ReportLag(2 * time.Second)
			clk.advance(time.Second)
			c.ReportLag(3 * time.Second)
			clk.advance(2 * time.Second)
			c.ReportLag(2 * time.Second)

			Convey("Then it degrades", func() {
				So(c.State(), ShouldEqual, health.StateDegraded)
			})
		})
	})
}

func TestRecoveryPath(t *testing.T) {
	Convey("Given a degraded controller", t, func() {
		clk := newFakeClock()
		c := newController(clk)
		c.ReportLag(2 * time.Second)
		clk.advance(3 * time.Second)
		c.ReportLag(2 * time.Second)
		So(c.State(), ShouldEqual, health.StateDegraded)

		Convey("When signals return under the SLA", func() {
			clk.advance(time.Second)
			c.ReportLag(100 * time.Millisecond)

			Convey("Then it enters recovering", func() {
				So(c.State(), ShouldEqual, health.StateRecovering)
			})

			Convey("And sustained clean signals settle it into healthy", func() {
				clk.advance(5 * time.Second)
				c.ReportLag(100 * time.Millisecond)
				So(c.State(), ShouldEqual, health.StateHealthy)
			})

			Convey("But a fresh breach sends it straight back to degraded", func() {
				clk.advance(2 * time.Second)
				c.ReportLag(4 * time.Second)
				So(c.State(), ShouldEqual, health.StateDegraded)
			})
		})
	})
}

func TestDegradeOnErrorRate(t *testing.T) {
	Convey("Given a controller seeing mostly failed applies", t, func() {
		clk := newFakeClock()
		c := newController(clk)

		for i := 0; i < 5; i++ {
			c.ReportApplySuccess()
		}
		for i := 0; i < 5; i++ {
			c.ReportApplyError()
		}
		clk.advance(3 * time.Second)
		c.ReportApplyError()

		Convey("Then the error rate breach degrades it", func() {
			So(c.State(), ShouldEqual, health.StateDegraded)
		})
	})

	Convey("Given a controller with a low error fraction", t, func() {
		clk := newFakeClock()
		c := newController(clk)

		for i := 0; i < 99; i++ {
			c.ReportApplySuccess()
		}
		c.ReportApplyError()
		clk.advance(3 * time.Second)
		c.ReportApplySuccess()

		Convey("Then it stays healthy", func() {
			So(c.State(), ShouldEqual, health.StateHealthy)
		})
	})
}

func TestTransitionObservers(t *testing.T) {
	Convey("Given a subscribed observer", t, func() {
		clk := newFakeClock()
		c := newController(clk)

		type hop struct{ from, to health.State }
		ch := make(chan hop, 8)
		c.Subscribe(func(from, to health.State) { ch <- hop{from, to} })

		Convey("When the controller degrades", func() {
			c.ReportLag(2 * time.Second)
			clk.advance(3 * time.Second)
			c.ReportLag(2 * time.Second)

			Convey("Then the observer hears about it", func() {
				select {
				case h := <-ch:
					So(h.from, ShouldEqual, health.StateHealthy)
					So(h.to, ShouldEqual, health.StateDegraded)
				case <-time.After(time.Second):
					So("observer not notified", ShouldBeEmpty)
				}
			})
		})
	})
}
