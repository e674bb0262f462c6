// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stagehq/marquee/internal/adapters/mq/queue"
	"github.com/stagehq/marquee/internal/domain/model"
)

// DeltasHandler handles availability delta requests.
type DeltasHandler struct {
	deps Dependencies
}

// NewDeltasHandler creates a new deltas handler.
func NewDeltasHandler(deps Dependencies) *DeltasHandler {
	return &DeltasHandler{deps: deps}
}

// deltaRequest mirrors the schema for POST /deltas.
type deltaRequest struct {
	EventID   string `json:"event_id"`
	Kind      string `json:"kind"` // decrement, increment, set
	Seats     int    `json:"seats"`
	Version   int64  `json:"version"`
	EmittedAt string `json:"emitted_at,omitempty"`
}

func (d deltaRequest) validate() error {
	switch {
	case strings.TrimSpace(d.EventID) == "":
		return errors.New("missing event_id")
	case d.Version <= 0:
		return errors.New("version must be positive")
	case d.Seats < 0:
		return errors.New("seats must not be negative")
	}
	if _, err := parseDeltaKind(d.Kind); err != nil {
		return err
	}
	if d.EmittedAt != "" {
		if _, err := time.Parse(time.RFC3339Nano, d.EmittedAt); err != nil {
			return errors.New("invalid emitted_at; must be RFC3339")
		}
	}
	return nil
}

func parseDeltaKind(s string) (model.DeltaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "decrement":
		return model.DeltaDecrement, nil
	case "increment":
		return model.DeltaIncrement, nil
	case "set":
		return model.DeltaSet, nil
	default:
		return 0, errors.New("kind must be decrement, increment or set")
	}
}

// HandlePostDelta handles POST /deltas requests. Accepted deltas are
// applied asynchronously; redeliveries are safe because stale versions
// are dropped downstream.
func (h *DeltasHandler) HandlePostDelta(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_delta"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req deltaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	kind, _ := parseDeltaKind(req.Kind)
	d := model.Delta{
		EventID: req.EventID,
		Kind:    kind,
		Seats:   req.Seats,
		Version: req.Version,
	}
	if req.EmittedAt != "" {
		d.EmittedAt, _ = time.Parse(time.RFC3339Nano, req.EmittedAt)
	}

	if err := h.deps.EnqueueDelta(r.Context(), d); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
