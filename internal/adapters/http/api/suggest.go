// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/stagehq/marquee/internal/domain/model"
)

// SuggestHandler handles typeahead requests.
type SuggestHandler struct {
	deps Dependencies
}

// NewSuggestHandler creates a new suggest handler.
func NewSuggestHandler(deps Dependencies) *SuggestHandler {
	return &SuggestHandler{deps: deps}
}

type suggestResponse struct {
	Suggestions []model.Suggestion `json:"suggestions"`
}

// HandleSuggest handles GET /suggest?q=prefix requests. An unknown
// prefix returns an empty list, not an error.
func (h *SuggestHandler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	const op = "api.suggest"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	prefix := r.URL.Query().Get("q")
	if prefix == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	hits := h.deps.Suggest(r.Context(), prefix)
	if hits == nil {
		hits = []model.Suggestion{}
	}
	writeJSON(w, http.StatusOK, suggestResponse{Suggestions: hits})
}
