// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stagehq/marquee/internal/domain/model"
)

// EventsHandler handles catalog ingestion requests.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// eventRequest mirrors the ingestion schema for POST /events.
type eventRequest struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Category string `json:"category"`
	Venue    struct {
		Name string  `json:"name"`
		City string  `json:"city"`
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
	} `json:"venue"`
	Date       string  `json:"date"`
	PriceMin   float64 `json:"price_min"`
	PriceMax   float64 `json:"price_max"`
	Total      int     `json:"total"`
	Available  int     `json:"available"`
	Popularity float64 `json:"popularity"`
	Version    int64   `json:"version"`
}

func (e eventRequest) validate() error {
	switch {
	case strings.TrimSpace(e.ID) == "":
		return errors.New("missing id")
	case strings.TrimSpace(e.Title) == "":
		return errors.New("missing title")
	case strings.TrimSpace(e.Category) == "":
		return errors.New("missing category")
	case strings.TrimSpace(e.Date) == "":
		return errors.New("missing date")
	case e.Total < 0 || e.Available < 0 || e.Available > e.Total:
		return errors.New("available must be within [0, total]")
	}
	if _, err := time.Parse(time.RFC3339, e.Date); err != nil {
		return errors.New("invalid date; must be RFC3339")
	}
	return nil
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	date, _ := time.Parse(time.RFC3339, req.Date)
	version := req.Version
	if version == 0 {
		version = 1
	}
	ev := &model.Event{
		ID:       req.ID,
		Title:    req.Title,
		Artist:   req.Artist,
		Category: req.Category,
		Venue: model.Venue{
			Name: req.Venue.Name,
			City: req.Venue.City,
			Lat:  req.Venue.Lat,
			Lon:  req.Venue.Lon,
		},
		Date:       date,
		PriceMin:   req.PriceMin,
		PriceMax:   req.PriceMax,
		Total:      req.Total,
		Available:  req.Available,
		SoldOut:    req.Available == 0,
		Popularity: req.Popularity,
		Version:    version,
	}
	if err := h.deps.UpsertEvent(r.Context(), ev); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeJSON(w, http.StatusCreated, ackResponse{Status: "created"})
}
