// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/stagehq/marquee/internal/adapters/repository"
)

// AdminHandler handles risk-flag and popularity mutations from the
// fraud and analytics collaborators.
type AdminHandler struct {
	deps Dependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Dependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type flagRequest struct {
	EventID string `json:"event_id"`
	Flagged bool   `json:"flagged"`
}

type popularityRequest struct {
	EventID    string  `json:"event_id"`
	Popularity float64 `json:"popularity"`
}

// HandlePostFlag handles POST /admin/flags requests.
func (h *AdminHandler) HandlePostFlag(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_flag"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.EventID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing event_id")))
		return
	}
	h.deps.SetFlagged(r.Context(), req.EventID, req.Flagged)
	writeJSON(w, http.StatusOK, ackResponse{Status: "ok"})
}

// HandlePostPopularity handles POST /admin/popularity requests.
func (h *AdminHandler) HandlePostPopularity(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_popularity"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req popularityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.EventID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing event_id")))
		return
	}
	if err := h.deps.SetPopularity(r.Context(), req.EventID, req.Popularity); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "ok"})
}
