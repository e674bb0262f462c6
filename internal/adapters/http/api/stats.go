// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
)

// StatsHandler handles stats requests.
type StatsHandler struct {
	deps Dependencies
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps Dependencies) *StatsHandler {
	return &StatsHandler{deps: deps}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	status := h.deps.Health(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"state":           status.State,
		"lag_millis":      status.LagMillis,
		"cache_hit_rate":  status.CacheHitRate,
		"cache_entries":   status.CacheEntries,
		"catalog_events":  status.CatalogEvents,
		"queue_depth":     status.QueueDepth,
		"suggest_entries": status.SuggestEntries,
	})
}
