package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewManager(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		reg := prometheus.NewRegistry()

		Convey("When creating a manager with defaults", func() {
			m := NewManager(WithPrometheusRegistry(reg))

			Convey("Then it should carry the default identity", func() {
				So(m, ShouldNotBeNil)
				So(m.namespace, ShouldEqual, "marquee")
				So(m.subsystem, ShouldEqual, "search")
			})
		})

		Convey("When creating a manager with options", func() {
			m := NewManager(
				WithPrometheusRegistry(reg),
				WithNamespace("test"),
				WithSubsystem("query"),
				WithHistogramBuckets([]float64{1, 10, 100}),
			)

			Convey("Then the options should be applied", func() {
				So(m.namespace, ShouldEqual, "test")
				So(m.subsystem, ShouldEqual, "query")
				So(m.histogramBuckets, ShouldResemble, []float64{1, 10, 100})
			})
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording search-path metrics", func() {
			So(func() {
				RecordSearchRequest()
				RecordSearchLatency(12.5)
				RecordSearchDegraded()
				RecordSuggestRequest()
				RecordSuggestLatency(1.5)
				UpdateSuggestionEntries(42)
			}, ShouldNotPanic)
		})

		Convey("When recording cache metrics", func() {
			So(func() {
				RecordCacheHit()
				RecordCacheMiss()
				RecordCacheStaleServed()
				RecordCacheEviction()
				RecordCacheInvalidation()
				RecordCacheBypass()
				UpdateCacheEntries(10)
				RecordSingleflightShared()
			}, ShouldNotPanic)
		})

		Convey("When recording synchronizer metrics", func() {
			So(func() {
				RecordDeltaApplied()
				RecordDeltaStale()
				RecordDeltaExhausted()
				RecordApplyRetry()
				RecordEpochBump()
				RecordSyncLag(450)
			}, ShouldNotPanic)
		})

		Convey("When recording degradation and queue metrics", func() {
			So(func() {
				UpdateDegradationState(2)
				RecordDegradationTransition("healthy", "degraded")
				UpdateQueueCapacity(1000)
				UpdateQueueSize(10)
				UpdateQueueUtilization(0.01)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("search", "GET", "200")
				RecordHTTPRequestDuration("search", "GET", "200", 3.2)
				RecordErrorByComponent("cache", "corrupt_index")
			}, ShouldNotPanic)
		})

		Convey("Then the registry should be exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
