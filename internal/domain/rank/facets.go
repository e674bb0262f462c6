package rank

import (
	"sort"
	"strings"

	"github.com/stagehq/marquee/internal/domain/model"
)

// priceBucket boundaries keyed on the event's minimum price.
type priceBucket struct {
	key  string
	from float64
	to   float64 // exclusive; <0 means unbounded
}

var priceBuckets = []priceBucket{
	{key: "under_50", from: 0, to: 50},
	{key: "50_to_100", from: 50, to: 100},
	{key: "100_to_200", from: 100, to: 200},
	{key: "200_to_500", from: 200, to: 500},
	{key: "over_500", from: 500, to: -1},
}

// facetAccumulator counts facet buckets in a single pass over the
// filtered candidate set.
type facetAccumulator struct {
	categories map[string]int
	prices     map[string]int
	cities     map[string]int
}

func newFacetAccumulator() *facetAccumulator {
	return &facetAccumulator{
		categories: make(map[string]int),
		prices:     make(map[string]int),
		cities:     make(map[string]int),
	}
}

func (a *facetAccumulator) observe(ev *model.Event) {
	a.categories[fold(ev.Category)]++
	a.cities[fold(ev.Venue.City)]++
	for i := range priceBuckets {
		b := &priceBuckets[i]
		if ev.PriceMin >= b.from && (b.to < 0 || ev.PriceMin < b.to) {
			a.prices[b.key]++
			break
		}
	}
}

func (a *facetAccumulator) result() *model.Facets {
	prices := make([]model.FacetBucket, 0, len(a.prices))
	for i := range priceBuckets {
		if n := a.prices[priceBuckets[i].key]; n > 0 {
			prices = append(prices, model.FacetBucket{Key: priceBuckets[i].key, Count: n})
		}
	}
	return &model.Facets{
		Categories:  sortedBuckets(a.categories),
		PriceRanges: prices,
		Cities:      sortedBuckets(a.cities),
	}
}

// sortedBuckets orders by count descending, then key ascending, so facet
// output is deterministic for a given snapshot.
func sortedBuckets(counts map[string]int) []model.FacetBucket {
	out := make([]model.FacetBucket, 0, len(counts))
	for k, n := range counts {
		out = append(out, model.FacetBucket{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func fold(s string) string {
	return strings.ToLower(s)
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
