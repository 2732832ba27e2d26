package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tasks"
	"github.com/desertthunder/mixtape/internal/tools"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []tasks.Request
	updates  []tasks.ProgressUpdate
	result   *tasks.Result
	err      error
}

func (f *fakeGenerator) Generate(ctx context.Context, req tasks.Request, progress chan<- tasks.ProgressUpdate) (*tasks.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	for _, u := range f.updates {
		if progress != nil {
			progress <- u
		}
	}
	return f.result, f.err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func testTracks() []models.Track {
	return []models.Track{
		{ID: "t1", Name: "One", Artists: []models.ArtistRef{{ID: "a1", Name: "Alpha"}}},
		{ID: "t2", Name: "Two", Artists: []models.ArtistRef{{ID: "a2", Name: "Bravo"}}},
	}
}

func mustCatalog(t *testing.T) *tools.Catalog {
	t.Helper()
	catalog, err := tools.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog failed: %v", err)
	}
	return catalog
}

func newTestAPI(t *testing.T, gen Generator, limiter *rate.Limiter) (*BasicRouter, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "mixtape_test_total", Help: "test"}))

	router := NewBasicRouter()
	router.Use(Recover(log.New(io.Discard)))
	NewAPI(gen, mustCatalog(t), reg, log.New(io.Discard)).Register(router, limiter)
	return router, reg
}

func postGenerate(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIHealth(t *testing.T) {
	router, _ := newTestAPI(t, &fakeGenerator{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestAPITools(t *testing.T) {
	router, _ := newTestAPI(t, &fakeGenerator{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tools", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var catalog tools.Catalog
	if err := json.Unmarshal(rec.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("invalid catalog JSON: %v", err)
	}
	if want := len(mustCatalog(t).Tools); len(catalog.Tools) != want {
		t.Errorf("expected %d tools, got %d", want, len(catalog.Tools))
	}
}

func TestAPIGenerate(t *testing.T) {
	t.Run("returns the result", func(t *testing.T) {
		gen := &fakeGenerator{result: &tasks.Result{RunID: "run1", Tracks: testTracks()}}
		router, _ := newTestAPI(t, gen, nil)

		rec := postGenerate(t, router, "/api/generate", `{"prompt":"  indie rock  ","target_tracks":2}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gen.requests[0].Prompt != "indie rock" || gen.requests[0].TargetTracks != 2 {
			t.Errorf("unexpected request %+v", gen.requests[0])
		}

		var got struct {
			RunID  string `json:"run_id"`
			Tracks []struct {
				ID string `json:"id"`
			} `json:"tracks"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.RunID != "run1" || len(got.Tracks) != 2 {
			t.Errorf("unexpected payload %s", rec.Body.String())
		}
	})

	tests := []struct {
		name   string
		body   string
		err    error
		status int
		called bool
	}{
		{name: "malformed body", body: `{"prompt":`, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"prompt":"x","colour":"red"}`, status: http.StatusBadRequest},
		{name: "empty prompt", body: `{"prompt":"   "}`, status: http.StatusBadRequest},
		{
			name:   "no tracks",
			body:   `{"prompt":"x"}`,
			err:    &tasks.GenerateError{RunID: "run2", Err: shared.ErrNoTracks, Partial: testTracks()[:1]},
			status: http.StatusUnprocessableEntity,
			called: true,
		},
		{
			name:   "invalid input",
			body:   `{"prompt":"x"}`,
			err:    &tasks.GenerateError{RunID: "run3", Err: shared.ErrInvalidInput},
			status: http.StatusBadRequest,
			called: true,
		},
		{
			name:   "cancelled",
			body:   `{"prompt":"x"}`,
			err:    &tasks.GenerateError{RunID: "run4", Err: context.Canceled},
			status: http.StatusServiceUnavailable,
			called: true,
		},
		{
			name:   "unexpected",
			body:   `{"prompt":"x"}`,
			err:    fmt.Errorf("boom"),
			status: http.StatusInternalServerError,
			called: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{err: tt.err}
			router, _ := newTestAPI(t, gen, nil)

			rec := postGenerate(t, router, "/api/generate", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if (gen.calls() > 0) != tt.called {
				t.Errorf("generator called = %v, want %v", gen.calls() > 0, tt.called)
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("missing error field: %s", rec.Body.String())
			}
		})
	}

	t.Run("failure carries run id and partial tracks", func(t *testing.T) {
		gen := &fakeGenerator{err: &tasks.GenerateError{RunID: "run9", Err: shared.ErrNoTracks, Partial: testTracks()}}
		router, _ := newTestAPI(t, gen, nil)

		rec := postGenerate(t, router, "/api/generate", `{"prompt":"x"}`)
		var body errorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if body.RunID != "run9" || len(body.Partial) != 2 {
			t.Errorf("unexpected error body %+v", body)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		router, _ := newTestAPI(t, &fakeGenerator{}, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generate", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
		if rec.Header().Get("Allow") != http.MethodPost {
			t.Errorf("expected Allow: POST, got %q", rec.Header().Get("Allow"))
		}
	})
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, r io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func TestAPIGenerateStream(t *testing.T) {
	updates := []tasks.ProgressUpdate{
		{RunID: "run1", Phase: tasks.Planning, Message: "planning"},
		{RunID: "run1", Phase: tasks.Executing, Step: 1, Total: 2, Message: "search_genre"},
		{RunID: "run1", Phase: tasks.Done, Message: "done"},
	}

	t.Run("progress then result", func(t *testing.T) {
		gen := &fakeGenerator{updates: updates, result: &tasks.Result{RunID: "run1", Tracks: testTracks()}}
		router, _ := newTestAPI(t, gen, nil)
		srv := httptest.NewServer(router)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/api/generate?stream=1", "application/json", strings.NewReader(`{"prompt":"x"}`))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
			t.Fatalf("expected event stream, got %q", ct)
		}
		events := readEvents(t, resp.Body)
		if len(events) != len(updates)+1 {
			t.Fatalf("expected %d events, got %d: %+v", len(updates)+1, len(events), events)
		}
		for i := range updates {
			if events[i].name != "progress" {
				t.Errorf("event %d: expected progress, got %s", i, events[i].name)
			}
		}
		if !strings.Contains(events[1].data, `"phase":"executing"`) {
			t.Errorf("phase should be rendered by name, got %s", events[1].data)
		}
		last := events[len(events)-1]
		if last.name != "result" || !strings.Contains(last.data, `"run_id":"run1"`) {
			t.Errorf("unexpected final event %+v", last)
		}
	})

	t.Run("error event", func(t *testing.T) {
		gen := &fakeGenerator{err: &tasks.GenerateError{RunID: "run2", Err: shared.ErrNoTracks}}
		router, _ := newTestAPI(t, gen, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"prompt":"x"}`))
		req.Header.Set("Accept", "text/event-stream")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		events := readEvents(t, rec.Body)
		if len(events) != 1 || events[0].name != "error" {
			t.Fatalf("expected one error event, got %+v", events)
		}
		if !strings.Contains(events[0].data, `"run_id":"run2"`) {
			t.Errorf("error event missing run id: %s", events[0].data)
		}
	})
}

func TestAPIRateLimit(t *testing.T) {
	gen := &fakeGenerator{result: &tasks.Result{RunID: "run1", Tracks: testTracks()}}
	router, _ := newTestAPI(t, gen, rate.NewLimiter(rate.Limit(0.001), 1))

	if rec := postGenerate(t, router, "/api/generate", `{"prompt":"x"}`); rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	rec := postGenerate(t, router, "/api/generate", `{"prompt":"x"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if gen.calls() != 1 {
		t.Errorf("limited request should not reach the generator, got %d calls", gen.calls())
	}

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", health.Code)
	}
}

func TestAPIMetrics(t *testing.T) {
	router, _ := newTestAPI(t, &fakeGenerator{}, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mixtape_test_total") {
		t.Errorf("metrics output missing registered counter: %s", rec.Body.String())
	}
}

func TestAPIWithoutGatherer(t *testing.T) {
	router := NewBasicRouter()
	NewAPI(&fakeGenerator{}, mustCatalog(t), nil, nil).Register(router, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a gatherer, got %d", rec.Code)
	}
}
