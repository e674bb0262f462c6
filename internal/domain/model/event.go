// Package model contains domain models passed between layers.
package model

import "time"

// Venue locates an event and carries the fields facets group by.
type Venue struct {
	Name     string  `json:"name"`
	City     string  `json:"city"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Capacity int     `json:"capacity,omitempty"`
}

// Event is a catalog document. Availability fields are owned by the
// synchronizer; everything else is set at ingestion and on catalog updates.
type Event struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Venue      Venue     `json:"venue"`
	Category   string    `json:"category"`
	Date       time.Time `json:"date"`
	PriceMin   float64   `json:"price_min"`
	PriceMax   float64   `json:"price_max"`
	Total      int       `json:"total"`
	Available  int       `json:"available"`
	SoldOut    bool      `json:"sold_out"`
	Popularity float64   `json:"popularity"` // externally supplied, refreshed on catalog update
	Version    int64     `json:"version"`    // monotonic, bumped on every accepted mutation
	Degraded   bool      `json:"degraded"`   // set when an apply exhausted its retry budget
	UpdatedAt  time.Time `json:"updated_at"`
}

// ConsistentAvailability reports whether the availability invariant holds:
// 0 <= Available <= Total and SoldOut exactly when Available is zero.
func (e *Event) ConsistentAvailability() bool {
	if e.Available < 0 || e.Available > e.Total {
		return false
	}
	return e.SoldOut == (e.Available == 0)
}

// DeltaKind discriminates inventory mutations.
type DeltaKind int

const (
	// DeltaDecrement removes seats (purchase).
	DeltaDecrement DeltaKind = iota
	// DeltaIncrement returns seats (cancellation).
	DeltaIncrement
	// DeltaSet overwrites the available count (admin correction).
	DeltaSet
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaDecrement:
		return "decrement"
	case DeltaIncrement:
		return "increment"
	case DeltaSet:
		return "set"
	default:
		return "unknown"
	}
}

// Delta is one inventory mutation from the transactional source of truth.
// Delivery is at-least-once and ordered per EventID; Version gates apply.
type Delta struct {
	EventID   string    `json:"event_id"`
	Kind      DeltaKind `json:"kind"`
	Seats     int       `json:"seats"`
	Version   int64     `json:"version"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Hit is one ranked search result.
type Hit struct {
	Event    *Event  `json:"event"`
	Score    float64 `json:"score"`
	Distance float64 `json:"distance"` // miles from the geo origin; negative when no origin
}

// FacetBucket is one aggregated count within a facet dimension.
type FacetBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Facets groups bucket lists by dimension.
type Facets struct {
	Categories  []FacetBucket `json:"categories"`
	PriceRanges []FacetBucket `json:"price_ranges"`
	Cities      []FacetBucket `json:"cities"`
}

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	Text   string  `json:"text"`
	Kind   string  `json:"kind"` // "title" or "artist"
	Weight float64 `json:"weight"`
}
