// Package suggest maintains the typeahead prefix index over event titles
// and artist names. The index is rebuilt wholesale and swapped in; reads
// never observe a partially built map.
package suggest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/stagehq/marquee/internal/domain/model"
	"github.com/stagehq/marquee/pkg/metrics"
)

// Default index configuration.
const (
	defaultLimit     = 8
	defaultMaxPrefix = 20
)

// Index answers prefix lookups with the top suggestions by weight.
type Index struct {
	limit     int
	maxPrefix int

	// Rebuild builds a fresh map and publishes it with a single
	// assignment under the write lock.
	mu       sync.RWMutex
	byPrefix map[string][]model.Suggestion
	entries  int
}

// New creates an empty Index with configuration options.
func New(opts ...Option) *Index {
	idx := &Index{
		limit:     defaultLimit,
		maxPrefix: defaultMaxPrefix,
		byPrefix:  make(map[string][]model.Suggestion),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Suggest returns up to the configured limit of suggestions for prefix,
// ordered by weight descending then text ascending. An unknown prefix
// yields an empty, valid result.
func (idx *Index) Suggest(ctx context.Context, prefix string) []model.Suggestion {
	metrics.RecordSuggestRequest()
	key := normalize(prefix)
	if key == "" {
		return nil
	}
	if len(key) > idx.maxPrefix {
		key = key[:idx.maxPrefix]
	}

	idx.mu.RLock()
	hits := idx.byPrefix[key]
	idx.mu.RUnlock()
	if len(hits) == 0 {
		return nil
	}
	out := make([]model.Suggestion, len(hits))
	copy(out, hits)
	return out
}

// Rebuild reconstructs the index from the current catalog. Availability
// mutations never call this; only creation, title/artist edits, and
// popularity changes do.
func (idx *Index) Rebuild(ctx context.Context, events []*model.Event) {
	// Dedupe by normalized text, keeping the highest weight.
	type candidate struct {
		text   string
		kind   string
		weight float64
	}
	best := make(map[string]candidate)
	for _, ev := range events {
		for _, c := range []candidate{
			{text: ev.Title, kind: "title", weight: ev.Popularity},
			{text: ev.Artist, kind: "artist", weight: ev.Popularity},
		} {
			norm := normalize(c.text)
			if norm == "" {
				continue
			}
			if prev, ok := best[norm]; !ok || c.weight > prev.weight {
				best[norm] = c
			}
		}
	}

	fresh := make(map[string][]model.Suggestion)
	for norm, c := range best {
		s := model.Suggestion{Text: c.text, Kind: c.kind, Weight: c.weight}
		max := len(norm)
		if max > idx.maxPrefix {
			max = idx.maxPrefix
		}
		for i := 1; i <= max; i++ {
			fresh[norm[:i]] = append(fresh[norm[:i]], s)
		}
	}
	for key, hits := range fresh {
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].Weight != hits[j].Weight {
				return hits[i].Weight > hits[j].Weight
			}
			return hits[i].Text < hits[j].Text
		})
		if len(hits) > idx.limit {
			hits = hits[:idx.limit]
		}
		fresh[key] = hits
	}

	idx.mu.Lock()
	idx.byPrefix = fresh
	idx.entries = len(best)
	idx.mu.Unlock()

	metrics.UpdateSuggestionEntries(len(best))
}

// Len returns the number of distinct indexed texts.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.entries
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
