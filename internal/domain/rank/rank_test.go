package rank_test

import (
	"context"
	"testing"
	"time"

	"github.com/stagehq/marquee/internal/domain/model"
	"github.com/stagehq/marquee/internal/domain/query"
	"github.com/stagehq/marquee/internal/domain/rank"
	. "github.com/smartystreets/goconvey/convey"
)

func f64(v float64) *float64 { return &v }

func event(id, title, artist, city string, lat, lon float64, opts ...func(*model.Event)) *model.Event {
	e := &model.Event{
		ID:       id,
		Title:    title,
		Artist:   artist,
		Venue:    model.Venue{Name: city + " Arena", City: city, Lat: lat, Lon: lon, Capacity: 20000},
		Category: "music",
		Date:     time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC),
		PriceMin: 80,
		PriceMax: 250,
		Total:    1000, Available: 500,
		Popularity: 50,
		Version:    1,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func TestGeoRadiusFiltering(t *testing.T) {
	Convey("Given one event 10mi away and one 60mi away", t, func() {
		// Origin: lower Manhattan. ~10mi north vs ~60mi north.
		near := event("e1", "Taylor Swift | The Eras Tour", "Taylor Swift", "New York", 40.8580, -74.0060)
		far := event("e2", "Taylor Swift | The Eras Tour", "Taylor Swift", "Poughkeepsie", 41.5800, -74.0060)

		b := query.NewBuilder()
		plan, err := b.Build(query.Request{
			Text:     "Taylor Swift",
			PriceMax: f64(200),
			Geo:      &query.Geo{Lat: 40.7128, Lon: -74.0060, Radius: 50},
		})
		So(err, ShouldBeNil)

		engine := rank.NewEngine()

		Convey("When ranking", func() {
			res, err := engine.Rank(context.Background(), rank.Input{
				Plan:   plan,
				Events: []*model.Event{far, near},
			})

			Convey("Then only the near event should be returned", func() {
				So(err, ShouldBeNil)
				So(res.Total, ShouldEqual, 1)
				So(res.Hits, ShouldHaveLength, 1)
				So(res.Hits[0].Event.ID, ShouldEqual, "e1")
				So(res.Hits[0].Distance, ShouldBeBetween, 5.0, 15.0)
			})
		})
	})
}

func TestFieldBoosts(t *testing.T) {
	Convey("Given an artist match and a venue-only match", t, func() {
		artistHit := event("a", "Greatest Hits Live", "Nova", "Austin", 30.26, -97.74)
		venueHit := event("b", "Open Mic Night", "Various", "Austin", 30.26, -97.74,
			func(e *model.Event) { e.Venue.Name = "Nova Hall" })

		b := query.NewBuilder()
		plan, err := b.Build(query.Request{Text: "nova"})
		So(err, ShouldBeNil)

		engine := rank.NewEngine()
		res, err := engine.Rank(context.Background(), rank.Input{
			Plan:   plan,
			Events: []*model.Event{venueHit, artistHit},
		})

		Convey("Then the artist match should outrank the venue match", func() {
			So(err, ShouldBeNil)
			So(res.Hits, ShouldHaveLength, 2)
			So(res.Hits[0].Event.ID, ShouldEqual, "a")
			So(res.Hits[0].Score, ShouldBeGreaterThan, res.Hits[1].Score)
		})
	})
}

func TestDeterministicTieBreak(t *testing.T) {
	Convey("Given events with identical scores", t, func() {
		early := event("z-late-id", "Jazz Night", "Trio", "Chicago", 41.88, -87.63,
			func(e *model.Event) { e.Date = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) })
		lateA := event("a-low-id", "Jazz Night", "Trio", "Chicago", 41.88, -87.63)
		lateB := event("b-mid-id", "Jazz Night", "Trio", "Chicago", 41.88, -87.63)

		b := query.NewBuilder()
		plan, err := b.Build(query.Request{Text: "jazz"})
		So(err, ShouldBeNil)

		engine := rank.NewEngine()
		events := []*model.Event{lateB, early, lateA}

		Convey("When ranking repeatedly", func() {
			first, err := engine.Rank(context.Background(), rank.Input{Plan: plan, Events: events})
			So(err, ShouldBeNil)

			for i := 0; i < 5; i++ {
				again, err := engine.Rank(context.Background(), rank.Input{Plan: plan, Events: events})
				So(err, ShouldBeNil)
				So(len(again.Hits), ShouldEqual, len(first.Hits))
				for j := range again.Hits {
					So(again.Hits[j].Event.ID, ShouldEqual, first.Hits[j].Event.ID)
				}
			}

			Convey("Then earlier date ranks first, then lower id", func() {
				So(first.Hits[0].Event.ID, ShouldEqual, "z-late-id")
				So(first.Hits[1].Event.ID, ShouldEqual, "a-low-id")
				So(first.Hits[2].Event.ID, ShouldEqual, "b-mid-id")
			})
		})
	})
}

func TestFacetsOnePass(t *testing.T) {
	Convey("Given a mixed candidate set", t, func() {
		events := []*model.Event{
			event("1", "Show A", "X", "Austin", 30.26, -97.74, func(e *model.Event) { e.PriceMin = 30 }),
			event("2", "Show B", "Y", "Austin", 30.26, -97.74, func(e *model.Event) { e.PriceMin = 120 }),
			event("3", "Show C", "Z", "Dallas", 32.78, -96.80, func(e *model.Event) {
				e.Category = "comedy"
				e.PriceMin = 700
			}),
		}

		b := query.NewBuilder()
		plan, err := b.Build(query.Request{})
		So(err, ShouldBeNil)

		engine := rank.NewEngine()
		res, err := engine.Rank(context.Background(), rank.Input{Plan: plan, Events: events})
		So(err, ShouldBeNil)

		Convey("Then category, price and city buckets should be counted", func() {
			So(res.Facets, ShouldNotBeNil)
			So(res.Facets.Categories, ShouldResemble, []model.FacetBucket{
				{Key: "music", Count: 2}, {Key: "comedy", Count: 1},
			})
			So(res.Facets.Cities, ShouldResemble, []model.FacetBucket{
				{Key: "austin", Count: 2}, {Key: "dallas", Count: 1},
			})
			So(res.Facets.PriceRanges, ShouldResemble, []model.FacetBucket{
				{Key: "under_50", Count: 1}, {Key: "100_to_200", Count: 1}, {Key: "over_500", Count: 1},
			})
		})

		Convey("And facets should be skipped in filters-only mode", func() {
			res, err := engine.Rank(context.Background(), rank.Input{Plan: plan, Events: events, SkipFacets: true})
			So(err, ShouldBeNil)
			So(res.Facets, ShouldBeNil)
			So(res.Total, ShouldEqual, 3)
		})
	})
}

func TestSoldOutAndFlaggedFiltering(t *testing.T) {
	Convey("Given sold-out and risk-flagged events", t, func() {
		ok := event("ok", "Concert", "Band", "Austin", 30.26, -97.74)
		soldOut := event("gone", "Concert", "Band", "Austin", 30.26, -97.74,
			func(e *model.Event) { e.Available, e.SoldOut = 0, true })
		flagged := event("risky", "Concert", "Band", "Austin", 30.26, -97.74)

		b := query.NewBuilder()
		engine := rank.NewEngine()
		events := []*model.Event{ok, soldOut, flagged}

		Convey("When sold-out events are excluded by default", func() {
			plan, err := b.Build(query.Request{Text: "concert"})
			So(err, ShouldBeNil)
			res, err := engine.Rank(context.Background(), rank.Input{Plan: plan, Events: events})
			So(err, ShouldBeNil)
			So(res.Total, ShouldEqual, 2)
		})

		Convey("When sold-out events are opted in", func() {
			plan, err := b.Build(query.Request{Text: "concert", IncludeSoldOut: true})
			So(err, ShouldBeNil)
			res, err := engine.Rank(context.Background(), rank.Input{Plan: plan, Events: events})
			So(err, ShouldBeNil)
			So(res.Total, ShouldEqual, 3)
		})

		Convey("When the plan suppresses flagged events", func() {
			plan, err := b.Build(query.Request{Text: "concert", SuppressFlagged: true})
			So(err, ShouldBeNil)
			res, err := engine.Rank(context.Background(), rank.Input{
				Plan:    plan,
				Events:  events,
				Flagged: map[string]struct{}{"risky": {}},
			})
			So(err, ShouldBeNil)
			So(res.Total, ShouldEqual, 1)
			So(res.Hits[0].Event.ID, ShouldEqual, "ok")
		})
	})
}

func TestStalenessPenalty(t *testing.T) {
	Convey("Given a degraded and a healthy event with equal text match", t, func() {
		healthy := event("h", "Rock Fest", "Band", "Austin", 30.26, -97.74)
		degraded := event("d", "Rock Fest", "Band", "Austin", 30.26, -97.74,
			func(e *model.Event) { e.Degraded = true })

		b := query.NewBuilder()
		plan, err := b.Build(query.Request{Text: "rock"})
		So(err, ShouldBeNil)

		engine := rank.NewEngine()
		res, err := engine.Rank(context.Background(), rank.Input{
			Plan:   plan,
			Events: []*model.Event{degraded, healthy},
		})

		Convey("Then the degraded event should rank below the healthy one", func() {
			So(err, ShouldBeNil)
			So(res.Hits[0].Event.ID, ShouldEqual, "h")
			So(res.Hits[1].Event.ID, ShouldEqual, "d")
		})
	})
}

func TestDeepPaginationRefineMarker(t *testing.T) {
	Convey("Given a page beyond the configured cap", t, func() {
		b := query.NewBuilder(query.WithMaxPage(100))
		plan, err := b.Build(query.Request{Page: 10})
		So(err, ShouldBeNil)

		engine := rank.NewEngine(rank.WithMaxPageCount(5))
		res, err := engine.Rank(context.Background(), rank.Input{
			Plan:   plan,
			Events: []*model.Event{event("1", "A", "B", "C", 0, 0)},
		})

		Convey("Then the refine marker should be returned without a scan", func() {
			So(err, ShouldBeNil)
			So(res.Refine, ShouldBeTrue)
			So(res.Hits, ShouldBeEmpty)
			So(res.NextPage, ShouldEqual, -1)
		})
	})
}

func TestSortModes(t *testing.T) {
	Convey("Given events differing in date, price and popularity", t, func() {
		e1 := event("1", "Show", "A", "Austin", 30.26, -97.74, func(e *model.Event) {
			e.Date = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
			e.PriceMin = 200
			e.Popularity = 10
		})
		e2 := event("2", "Show", "B", "Austin", 30.26, -97.74, func(e *model.Event) {
			e.Date = time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
			e.PriceMin = 50
			e.Popularity = 90
		})
		events := []*model.Event{e1, e2}

		b := query.NewBuilder()
		engine := rank.NewEngine()

		rankIDs := func(sortBy string) []string {
			plan, err := b.Build(query.Request{Text: "show", Sort: sortBy})
			So(err, ShouldBeNil)
			res, err := engine.Rank(context.Background(), rank.Input{Plan: plan, Events: events})
			So(err, ShouldBeNil)
			ids := make([]string, len(res.Hits))
			for i, h := range res.Hits {
				ids[i] = h.Event.ID
			}
			return ids
		}

		So(rankIDs("date"), ShouldResemble, []string{"1", "2"})
		So(rankIDs("price"), ShouldResemble, []string{"2", "1"})
		So(rankIDs("popularity"), ShouldResemble, []string{"2", "1"})
	})
}

func TestPopularityFallbackWithoutQuery(t *testing.T) {
	Convey("Given an empty-text request with no filters", t, func() {
		low := event("low", "Local Act", "A", "Austin", 30.26, -97.74,
			func(e *model.Event) { e.Popularity = 5 })
		high := event("high", "Headliner", "B", "Dallas", 32.78, -96.80,
			func(e *model.Event) { e.Popularity = 95 })
		mid := event("mid", "Support", "C", "Houston", 29.76, -95.37,
			func(e *model.Event) { e.Popularity = 40 })

		b := query.NewBuilder()
		plan, err := b.Build(query.Request{})
		So(err, ShouldBeNil)

		engine := rank.NewEngine()
		res, err := engine.Rank(context.Background(), rank.Input{
			Plan:   plan,
			Events: []*model.Event{low, high, mid},
		})

		Convey("Then the result should be ordered by popularity", func() {
			So(err, ShouldBeNil)
			So(res.Total, ShouldEqual, 3)
			So(res.Hits[0].Event.ID, ShouldEqual, "high")
			So(res.Hits[1].Event.ID, ShouldEqual, "mid")
			So(res.Hits[2].Event.ID, ShouldEqual, "low")
		})
	})
}

func TestCancellation(t *testing.T) {
	Convey("Given a cancelled context", t, func() {
		events := make([]*model.Event, 5000)
		for i := range events {
			events[i] = event("e", "Show", "A", "Austin", 30.26, -97.74)
		}

		b := query.NewBuilder()
		plan, err := b.Build(query.Request{Text: "show"})
		So(err, ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		engine := rank.NewEngine()
		_, err = engine.Rank(ctx, rank.Input{Plan: plan, Events: events})

		Convey("Then the scan should stop with the context error", func() {
			So(err, ShouldEqual, context.Canceled)
		})
	})
}
