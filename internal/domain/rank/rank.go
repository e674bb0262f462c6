// Package rank scores and aggregates catalog events against a query plan.
// Ranking is a pure function of the plan and an immutable snapshot; it
// never touches synchronizer state.
package rank

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/stagehq/marquee/internal/domain/model"
	"github.com/stagehq/marquee/internal/domain/query"
)

// Default engine configuration constants.
const (
	defaultTitleBoost       = 2.0
	defaultArtistBoost      = 3.0
	defaultVenueBoost       = 1.0
	defaultPopularityWeight = 1.0
	defaultGeoWeight        = 1.0
	defaultStalenessPenalty = 25.0
	defaultMaxPageCount     = 20

	// cancelCheckStride bounds how often the scan polls ctx.
	cancelCheckStride = 1024

	earthRadiusMiles = 3958.8
)

// Input bundles everything a ranking pass reads.
type Input struct {
	Plan   *query.Plan
	Events []*model.Event

	// Flagged holds risk-flagged event ids supplied by the fraud
	// collaborator; consulted only when the plan sets SuppressFlagged.
	Flagged map[string]struct{}

	// SkipFacets sheds facet aggregation (filters-only fallback).
	SkipFacets bool

	// Now anchors date comparisons; zero means time.Now().
	Now time.Time
}

// Result is one ranked page plus facets over the whole filtered set.
type Result struct {
	Hits   []model.Hit
	Facets *model.Facets
	Total  int

	// Refine is set instead of scanning when pagination exceeds the cap.
	Refine bool

	// NextPage is the follow-up cursor, -1 when the result set is exhausted.
	NextPage int
}

// Engine computes ranked, faceted results. Stateless apart from weights;
// safe for unbounded concurrent use.
type Engine struct {
	titleBoost       float64
	artistBoost      float64
	venueBoost       float64
	popularityWeight float64
	geoWeight        float64
	stalenessPenalty float64
	maxPageCount     int
}

// NewEngine creates an Engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		titleBoost:       defaultTitleBoost,
		artistBoost:      defaultArtistBoost,
		venueBoost:       defaultVenueBoost,
		popularityWeight: defaultPopularityWeight,
		geoWeight:        defaultGeoWeight,
		stalenessPenalty: defaultStalenessPenalty,
		maxPageCount:     defaultMaxPageCount,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank filters, scores, sorts and paginates the snapshot for the plan.
// Facets are computed in the same pass over the filtered set regardless of
// the chosen sort. Cancellation is honored best-effort between strides.
func (e *Engine) Rank(ctx context.Context, in Input) (Result, error) {
	plan := in.Plan
	if plan.Page >= e.maxPageCount {
		// Deep pagination costs are unbounded; tell the caller to refine.
		return Result{Refine: true, NextPage: -1}, nil
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	geo := plan.GeoOrigin()
	priceRange := plan.Range("price")
	dateRange := plan.Range("date")
	categories := toSet(plan.TermValues("category"))
	cities := toSet(plan.TermValues("city"))

	hits := make([]model.Hit, 0, plan.PageSize)
	var facets *facetAccumulator
	if !in.SkipFacets {
		facets = newFacetAccumulator()
	}

	for i, ev := range in.Events {
		if i%cancelCheckStride == 0 && ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		if plan.SuppressFlagged {
			if _, flagged := in.Flagged[ev.ID]; flagged {
				continue
			}
		}
		if !plan.IncludeSoldOut && ev.SoldOut {
			continue
		}
		if len(categories) > 0 {
			if _, ok := categories[fold(ev.Category)]; !ok {
				continue
			}
		}
		if len(cities) > 0 {
			if _, ok := cities[fold(ev.Venue.City)]; !ok {
				continue
			}
		}
		if priceRange != nil {
			if priceRange.HasMin && ev.PriceMin < priceRange.Min {
				continue
			}
			if priceRange.HasMax && ev.PriceMin > priceRange.Max {
				continue
			}
		}
		if dateRange != nil {
			d := float64(ev.Date.Unix())
			if dateRange.HasMin && d < dateRange.Min {
				continue
			}
			if dateRange.HasMax && d > dateRange.Max {
				continue
			}
		}

		distance := -1.0
		if geo != nil {
			distance = haversineMiles(geo.Lat, geo.Lon, ev.Venue.Lat, ev.Venue.Lon)
			if distance > geo.Radius {
				continue
			}
		}

		textScore, matched := e.textScore(plan.Terms, ev)
		if len(plan.Terms) > 0 && !matched {
			continue
		}

		if facets != nil {
			facets.observe(ev)
		}

		score := textScore + e.popularityWeight*ev.Popularity
		if geo != nil {
			score += e.geoWeight / (1 + distance)
		}
		if ev.Degraded {
			score -= e.stalenessPenalty
		}

		hits = append(hits, model.Hit{Event: ev, Score: score, Distance: distance})
	}

	sortHits(hits, plan.Sort)

	total := len(hits)
	start := plan.Page * plan.PageSize
	if start > total {
		start = total
	}
	end := start + plan.PageSize
	if end > total {
		end = total
	}
	page := hits[start:end]

	next := -1
	if end < total && plan.Page+1 < e.maxPageCount {
		next = plan.Page + 1
	}

	res := Result{Hits: page, Total: total, NextPage: next}
	if facets != nil {
		res.Facets = facets.result()
	}
	return res, nil
}

// textScore sums field boosts over matching terms. Every term must match
// at least one field for the event to count as a text match.
func (e *Engine) textScore(terms []string, ev *model.Event) (float64, bool) {
	if len(terms) == 0 {
		return 0, true
	}
	title := fold(ev.Title)
	artist := fold(ev.Artist)
	venue := fold(ev.Venue.Name)

	score := 0.0
	for _, term := range terms {
		matched := false
		if contains(title, term) {
			score += e.titleBoost
			matched = true
		}
		if contains(artist, term) {
			score += e.artistBoost
			matched = true
		}
		if contains(venue, term) {
			score += e.venueBoost
			matched = true
		}
		if !matched {
			return 0, false
		}
	}
	return score, true
}

// sortHits orders hits by the requested spec with the deterministic
// tie-break: earlier event date first, then lower event id.
func sortHits(hits []model.Hit, spec query.Sort) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		switch spec {
		case query.SortDate:
			if !a.Event.Date.Equal(b.Event.Date) {
				return a.Event.Date.Before(b.Event.Date)
			}
			if a.Score != b.Score {
				return a.Score > b.Score
			}
		case query.SortPrice:
			if a.Event.PriceMin != b.Event.PriceMin {
				return a.Event.PriceMin < b.Event.PriceMin
			}
			if a.Score != b.Score {
				return a.Score > b.Score
			}
		case query.SortPopularity:
			if a.Event.Popularity != b.Event.Popularity {
				return a.Event.Popularity > b.Event.Popularity
			}
			if a.Score != b.Score {
				return a.Score > b.Score
			}
		case query.SortDistance:
			if a.Distance != b.Distance {
				return a.Distance < b.Distance
			}
		default: // relevance
			if a.Score != b.Score {
				return a.Score > b.Score
			}
		}
		if !a.Event.Date.Equal(b.Event.Date) {
			return a.Event.Date.Before(b.Event.Date)
		}
		return a.Event.ID < b.Event.ID
	})
}

// haversineMiles returns the great-circle distance between two points.
func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
