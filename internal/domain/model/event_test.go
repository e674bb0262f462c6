package model_test

import (
	"testing"

	"github.com/stagehq/marquee/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestConsistentAvailability(t *testing.T) {
	Convey("Given events in various availability states", t, func() {
		Convey("When availability is within bounds and sold_out matches", func() {
			e := &model.Event{Total: 100, Available: 70, SoldOut: false}
			So(e.ConsistentAvailability(), ShouldBeTrue)

			e = &model.Event{Total: 100, Available: 0, SoldOut: true}
			So(e.ConsistentAvailability(), ShouldBeTrue)
		})

		Convey("When available exceeds total", func() {
			e := &model.Event{Total: 100, Available: 101}
			So(e.ConsistentAvailability(), ShouldBeFalse)
		})

		Convey("When available is negative", func() {
			e := &model.Event{Total: 100, Available: -1}
			So(e.ConsistentAvailability(), ShouldBeFalse)
		})

		Convey("When sold_out contradicts the count", func() {
			e := &model.Event{Total: 100, Available: 10, SoldOut: true}
			So(e.ConsistentAvailability(), ShouldBeFalse)

			e = &model.Event{Total: 100, Available: 0, SoldOut: false}
			So(e.ConsistentAvailability(), ShouldBeFalse)
		})
	})
}

func TestDeltaKindString(t *testing.T) {
	Convey("Given the delta kinds", t, func() {
		So(model.DeltaDecrement.String(), ShouldEqual, "decrement")
		So(model.DeltaIncrement.String(), ShouldEqual, "increment")
		So(model.DeltaSet.String(), ShouldEqual, "set")
		So(model.DeltaKind(99).String(), ShouldEqual, "unknown")
	})
}
