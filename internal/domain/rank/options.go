package rank

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithFieldBoosts sets the text-match boosts for title, artist and venue.
func WithFieldBoosts(title, artist, venue float64) Option {
	return func(e *Engine) {
		if title > 0 {
			e.titleBoost = title
		}
		if artist > 0 {
			e.artistBoost = artist
		}
		if venue > 0 {
			e.venueBoost = venue
		}
	}
}

// WithPopularityWeight sets the popularity contribution weight.
func WithPopularityWeight(w float64) Option {
	return func(e *Engine) {
		if w >= 0 {
			e.popularityWeight = w
		}
	}
}

// WithGeoWeight sets the inverse-distance bonus weight.
func WithGeoWeight(w float64) Option {
	return func(e *Engine) {
		if w >= 0 {
			e.geoWeight = w
		}
	}
}

// WithStalenessPenalty sets the score penalty for degraded events.
func WithStalenessPenalty(p float64) Option {
	return func(e *Engine) {
		if p >= 0 {
			e.stalenessPenalty = p
		}
	}
}

// WithMaxPageCount caps pagination depth before the refine marker.
func WithMaxPageCount(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPageCount = n
		}
	}
}
