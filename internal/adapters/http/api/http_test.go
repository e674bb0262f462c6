package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stagehq/marquee/internal/adapters/http/api"
	"github.com/stagehq/marquee/internal/adapters/mq/queue"
	"github.com/stagehq/marquee/internal/app"
	"github.com/stagehq/marquee/internal/domain/model"
	"github.com/stagehq/marquee/internal/domain/query"
	. "github.com/smartystreets/goconvey/convey"
)

// stubDeps is a controllable Dependencies implementation.
type stubDeps struct {
	searchRes  *app.SearchResult
	searchErr  error
	searchReq  query.Request
	suggestRes []model.Suggestion
	upserted   []*model.Event
	deltas     []model.Delta
	deltaErr   error
	flags      map[string]bool
	popErr     error
	status     app.Status
}

func newStubDeps() *stubDeps {
	return &stubDeps{
		searchRes: &app.SearchResult{Total: 0, NextPage: -1},
		flags:     make(map[string]bool),
		status:    app.Status{State: "healthy"},
	}
}

func (s *stubDeps) Search(ctx context.Context, req query.Request) (*app.SearchResult, error) {
	s.searchReq = req
	return s.searchRes, s.searchErr
}

func (s *stubDeps) Suggest(ctx context.Context, prefix string) []model.Suggestion {
	return s.suggestRes
}

func (s *stubDeps) UpsertEvent(ctx context.Context, ev *model.Event) error {
	s.upserted = append(s.upserted, ev)
	return nil
}

func (s *stubDeps) EnqueueDelta(ctx context.Context, d model.Delta) error {
	if s.deltaErr != nil {
		return s.deltaErr
	}
	s.deltas = append(s.deltas, d)
	return nil
}

func (s *stubDeps) SetFlagged(ctx context.Context, id string, flagged bool) {
	s.flags[id] = flagged
}

func (s *stubDeps) SetPopularity(ctx context.Context, id string, popularity float64) error {
	return s.popErr
}

func (s *stubDeps) Health(ctx context.Context) app.Status {
	return s.status
}

func newTestServer(deps api.Dependencies) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func TestSearchEndpoint(t *testing.T) {
	Convey("Given the search endpoint", t, func() {
		deps := newStubDeps()
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("When parameters are well-formed", func() {
			resp, err := http.Get(srv.URL + "/search?q=jazz&category=music&city=Austin&price_min=20&price_max=90&lat=30.2&lon=-97.7&radius=25&sort=price&page=1&page_size=10&suppress_flagged=true")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the request reaches the service intact", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(deps.searchReq.Text, ShouldEqual, "jazz")
				So(deps.searchReq.Categories, ShouldResemble, []string{"music"})
				So(deps.searchReq.Cities, ShouldResemble, []string{"Austin"})
				So(*deps.searchReq.PriceMin, ShouldEqual, 20)
				So(*deps.searchReq.PriceMax, ShouldEqual, 90)
				So(deps.searchReq.Geo.Radius, ShouldEqual, 25)
				So(deps.searchReq.Sort, ShouldEqual, "price")
				So(deps.searchReq.Page, ShouldEqual, 1)
				So(deps.searchReq.PageSize, ShouldEqual, 10)
				So(deps.searchReq.SuppressFlagged, ShouldBeTrue)
			})
		})

		Convey("When a numeric parameter is malformed", func() {
			resp, err := http.Get(srv.URL + "/search?price_min=abc")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the service rejects the query", func() {
			deps.searchErr = query.ErrInvalidQuery
			resp, err := http.Get(srv.URL + "/search?q=x")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the method is wrong", func() {
			resp, err := http.Post(srv.URL+"/search", "application/json", nil)
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSuggestEndpoint(t *testing.T) {
	Convey("Given the suggest endpoint", t, func() {
		deps := newStubDeps()
		deps.suggestRes = []model.Suggestion{{Text: "Jazz Night", Kind: "title", Weight: 0.7}}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("When a prefix is supplied", func() {
			resp, err := http.Get(srv.URL + "/suggest?q=ja")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var body struct {
				Suggestions []model.Suggestion `json:"suggestions"`
			}
			So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
			So(body.Suggestions, ShouldHaveLength, 1)
			So(body.Suggestions[0].Text, ShouldEqual, "Jazz Night")
		})

		Convey("When no candidates exist the list is empty, not null", func() {
			deps.suggestRes = nil
			resp, err := http.Get(srv.URL + "/suggest?q=zz")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			var body map[string]json.RawMessage
			So(json.NewDecoder(resp.Body).Decode(&body), ShouldBeNil)
			So(string(body["suggestions"]), ShouldEqual, "[]")
		})

		Convey("When the prefix is missing", func() {
			resp, err := http.Get(srv.URL + "/suggest")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestEventsEndpoint(t *testing.T) {
	Convey("Given the ingestion endpoint", t, func() {
		deps := newStubDeps()
		srv := newTestServer(deps)
		defer srv.Close()

		valid := map[string]any{
			"id": "E1", "title": "Midnight Echoes", "artist": "The Frequencies",
			"category": "music",
			"venue":    map[string]any{"name": "Hall", "city": "Austin", "lat": 30.2, "lon": -97.7},
			"date":     "2026-11-05T20:00:00Z",
			"price_min": 60.0, "price_max": 180.0,
			"total": 100, "available": 100, "popularity": 0.5,
		}

		post := func(v any) *http.Response {
			buf, _ := json.Marshal(v)
			resp, err := http.Post(srv.URL+"/events", "application/json", bytes.NewReader(buf))
			So(err, ShouldBeNil)
			return resp
		}

		Convey("When the document is valid", func() {
			resp := post(valid)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusCreated)
			So(deps.upserted, ShouldHaveLength, 1)
			So(deps.upserted[0].ID, ShouldEqual, "E1")
			So(deps.upserted[0].Version, ShouldEqual, 1)
			So(deps.upserted[0].Venue.City, ShouldEqual, "Austin")
		})

		Convey("When availability exceeds total", func() {
			bad := map[string]any{}
			for k, v := range valid {
				bad[k] = v
			}
			bad["available"] = 500
			resp := post(bad)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the body is not JSON", func() {
			resp, err := http.Post(srv.URL+"/events", "application/json", bytes.NewReader([]byte("{")))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestDeltasEndpoint(t *testing.T) {
	Convey("Given the deltas endpoint", t, func() {
		deps := newStubDeps()
		srv := newTestServer(deps)
		defer srv.Close()

		post := func(v any) *http.Response {
			buf, _ := json.Marshal(v)
			resp, err := http.Post(srv.URL+"/deltas", "application/json", bytes.NewReader(buf))
			So(err, ShouldBeNil)
			return resp
		}

		Convey("When the delta is valid", func() {
			resp := post(map[string]any{
				"event_id": "E1", "kind": "decrement", "seats": 2, "version": 7,
			})
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
			So(deps.deltas, ShouldHaveLength, 1)
			So(deps.deltas[0].Kind, ShouldEqual, model.DeltaDecrement)
			So(deps.deltas[0].Version, ShouldEqual, 7)
		})

		Convey("When the kind is unknown", func() {
			resp := post(map[string]any{
				"event_id": "E1", "kind": "teleport", "seats": 2, "version": 7,
			})
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the queue is saturated", func() {
			deps.deltaErr = queue.ErrQueueFull
			resp := post(map[string]any{
				"event_id": "E1", "kind": "decrement", "seats": 2, "version": 7,
			})
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusTooManyRequests)
		})
	})
}

func TestHealthAndAdminEndpoints(t *testing.T) {
	Convey("Given the health and admin endpoints", t, func() {
		deps := newStubDeps()
		deps.status = app.Status{State: "degraded", LagMillis: 1500}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("When health is requested", func() {
			resp, err := http.Get(srv.URL + "/healthz")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			var status app.Status
			So(json.NewDecoder(resp.Body).Decode(&status), ShouldBeNil)
			So(status.State, ShouldEqual, "degraded")
			So(status.LagMillis, ShouldEqual, 1500)
		})

		Convey("When an event is flagged", func() {
			buf, _ := json.Marshal(map[string]any{"event_id": "E1", "flagged": true})
			resp, err := http.Post(srv.URL+"/admin/flags", "application/json", bytes.NewReader(buf))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(deps.flags["E1"], ShouldBeTrue)
		})

		Convey("When a flag request omits the event", func() {
			buf, _ := json.Marshal(map[string]any{"flagged": true})
			resp, err := http.Post(srv.URL+"/admin/flags", "application/json", bytes.NewReader(buf))
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}
