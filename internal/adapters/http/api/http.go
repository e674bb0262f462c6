// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stagehq/marquee/internal/app"
	"github.com/stagehq/marquee/internal/domain/model"
	"github.com/stagehq/marquee/internal/domain/query"
	"github.com/stagehq/marquee/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	Search(ctx context.Context, req query.Request) (*app.SearchResult, error)
	Suggest(ctx context.Context, prefix string) []model.Suggestion
	UpsertEvent(ctx context.Context, ev *model.Event) error
	EnqueueDelta(ctx context.Context, d model.Delta) error
	SetFlagged(ctx context.Context, id string, flagged bool)
	SetPopularity(ctx context.Context, id string, popularity float64) error
	Health(ctx context.Context) app.Status
}

// Server wires HTTP routes for the business API.
type Server struct {
	searchHandler  *SearchHandler
	suggestHandler *SuggestHandler
	eventsHandler  *EventsHandler
	deltasHandler  *DeltasHandler
	adminHandler   *AdminHandler
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		searchHandler:  NewSearchHandler(deps),
		suggestHandler: NewSuggestHandler(deps),
		eventsHandler:  NewEventsHandler(deps),
		deltasHandler:  NewDeltasHandler(deps),
		adminHandler:   NewAdminHandler(deps),
		healthHandler:  NewHealthHandler(deps),
		statsHandler:   NewStatsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/search", MetricsMiddleware(s.searchHandler.HandleSearch, "search"))
	mux.HandleFunc("/suggest", MetricsMiddleware(s.suggestHandler.HandleSuggest, "suggest"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("/deltas", MetricsMiddleware(s.deltasHandler.HandlePostDelta, "deltas"))
	mux.HandleFunc("/admin/flags", MetricsMiddleware(s.adminHandler.HandlePostFlag, "admin_flags"))
	mux.HandleFunc("/admin/popularity", MetricsMiddleware(s.adminHandler.HandlePostPopularity, "admin_popularity"))
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
