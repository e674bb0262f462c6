package suggest_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stagehq/marquee/internal/domain/model"
	"github.com/stagehq/marquee/internal/domain/suggest"
	. "github.com/smartystreets/goconvey/convey"
)

func ev(title, artist string, popularity float64) *model.Event {
	return &model.Event{
		ID: title + "/" + artist, Title: title, Artist: artist,
		Popularity: popularity,
	}
}

func TestPrefixLookup(t *testing.T) {
	Convey("Given an index over titles and artists", t, func() {
		ctx := context.Background()
		idx := suggest.New()
		idx.Rebuild(ctx, []*model.Event{
			ev("Taylor Made Tour", "Taylor Swift", 0.95),
			ev("Tame Impala Live", "Tame Impala", 0.80),
			ev("Jazz Evening", "Tania Maria", 0.40),
		})

		Convey("When looking up a shared prefix", func() {
			hits := idx.Suggest(ctx, "ta")

			Convey("Then matches come back ordered by weight", func() {
				So(len(hits), ShouldBeGreaterThanOrEqualTo, 3)
				So(hits[0].Text, ShouldEqual, "Taylor Made Tour")
				for i := 1; i < len(hits); i++ {
					So(hits[i].Weight, ShouldBeLessThanOrEqualTo, hits[i-1].Weight)
				}
			})
		})

		Convey("When the prefix narrows", func() {
			hits := idx.Suggest(ctx, "tam")
			texts := make([]string, len(hits))
			for i, h := range hits {
				texts[i] = h.Text
			}
			So(texts, ShouldContain, "Tame Impala Live")
			So(texts, ShouldContain, "Tame Impala")
			So(texts, ShouldNotContain, "Taylor Swift")
		})

		Convey("When lookup is case-insensitive with padding", func() {
			So(idx.Suggest(ctx, "  TAY "), ShouldNotBeEmpty)
		})

		Convey("When nothing matches", func() {
			So(idx.Suggest(ctx, "zzz"), ShouldBeEmpty)
			So(idx.Suggest(ctx, ""), ShouldBeEmpty)
		})
	})
}

func TestDedupeKeepsHigherWeight(t *testing.T) {
	Convey("Given the same artist on events of different popularity", t, func() {
		ctx := context.Background()
		idx := suggest.New()
		idx.Rebuild(ctx, []*model.Event{
			ev("Night One", "The Strokes", 0.30),
			ev("Night Two", "The Strokes", 0.90),
		})

		Convey("Then the artist appears once at the higher weight", func() {
			hits := idx.Suggest(ctx, "the s")
			count := 0
			for _, h := range hits {
				if h.Text == "The Strokes" {
					count++
					So(h.Weight, ShouldEqual, 0.90)
					So(h.Kind, ShouldEqual, "artist")
				}
			}
			So(count, ShouldEqual, 1)
		})
	})
}

func TestTopKAndPrefixBound(t *testing.T) {
	Convey("Given more candidates than the limit", t, func() {
		ctx := context.Background()
		idx := suggest.New(suggest.WithLimit(3), suggest.WithMaxPrefix(5))

		events := make([]*model.Event, 0, 10)
		for i := 0; i < 10; i++ {
			events = append(events, ev(fmt.Sprintf("Rocket Show %d", i), fmt.Sprintf("Band %d", i), float64(i)/10))
		}
		idx.Rebuild(ctx, events)

		Convey("Then lookups cap at the limit, highest weights first", func() {
			hits := idx.Suggest(ctx, "rocke")
			So(hits, ShouldHaveLength, 3)
			So(hits[0].Weight, ShouldEqual, 0.9)
		})

		Convey("And prefixes longer than the bound fall back to it", func() {
			long := idx.Suggest(ctx, "rocket show that keeps going")
			bounded := idx.Suggest(ctx, "rocke")
			So(long, ShouldResemble, bounded)
		})
	})
}

func TestRebuildSwapsAtomically(t *testing.T) {
	Convey("Given an index rebuilt with new content", t, func() {
		ctx := context.Background()
		idx := suggest.New()
		idx.Rebuild(ctx, []*model.Event{ev("Alpha", "Alice", 0.5)})
		So(idx.Suggest(ctx, "al"), ShouldNotBeEmpty)

		idx.Rebuild(ctx, []*model.Event{ev("Beta", "Bob", 0.5)})

		Convey("Then old entries are gone and new ones serve", func() {
			So(idx.Suggest(ctx, "al"), ShouldBeEmpty)
			So(idx.Suggest(ctx, "be"), ShouldNotBeEmpty)
			So(idx.Len(), ShouldEqual, 2)
		})
	})
}
