// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stagehq/marquee/internal/domain/query"
)

// SearchHandler handles search requests.
type SearchHandler struct {
	deps Dependencies
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(deps Dependencies) *SearchHandler {
	return &SearchHandler{deps: deps}
}

// HandleSearch handles GET /search requests.
//
// Query parameters: q, category (repeatable), city (repeatable),
// price_min, price_max, date_from, date_to (RFC3339), lat, lon, radius,
// sort, page, page_size, include_sold_out, suppress_flagged.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.search"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	req, err := parseSearchRequest(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, query.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseSearchRequest(q url.Values) (query.Request, error) {
	req := query.Request{
		Text:       q.Get("q"),
		Categories: q["category"],
		Cities:     q["city"],
		Sort:       q.Get("sort"),
	}

	var err error
	if req.PriceMin, err = parseFloatParam(q, "price_min"); err != nil {
		return req, err
	}
	if req.PriceMax, err = parseFloatParam(q, "price_max"); err != nil {
		return req, err
	}
	if req.DateFrom, err = parseTimeParam(q, "date_from"); err != nil {
		return req, err
	}
	if req.DateTo, err = parseTimeParam(q, "date_to"); err != nil {
		return req, err
	}

	if q.Get("lat") != "" || q.Get("lon") != "" || q.Get("radius") != "" {
		lat, err := strconv.ParseFloat(q.Get("lat"), 64)
		if err != nil {
			return req, errors.New("invalid lat")
		}
		lon, err := strconv.ParseFloat(q.Get("lon"), 64)
		if err != nil {
			return req, errors.New("invalid lon")
		}
		radius, err := strconv.ParseFloat(q.Get("radius"), 64)
		if err != nil {
			return req, errors.New("invalid radius")
		}
		req.Geo = &query.Geo{Lat: lat, Lon: lon, Radius: radius}
	}

	if v := q.Get("page"); v != "" {
		if req.Page, err = strconv.Atoi(v); err != nil {
			return req, errors.New("invalid page")
		}
	}
	if v := q.Get("page_size"); v != "" {
		if req.PageSize, err = strconv.Atoi(v); err != nil {
			return req, errors.New("invalid page_size")
		}
	}
	req.IncludeSoldOut = q.Get("include_sold_out") == "true"
	req.SuppressFlagged = q.Get("suppress_flagged") == "true"
	return req, nil
}

func parseFloatParam(q url.Values, name string) (*float64, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, errors.New("invalid " + name)
	}
	return &f, nil
}

func parseTimeParam(q url.Values, name string) (*time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, errors.New("invalid " + name + "; must be RFC3339")
	}
	return &t, nil
}
