package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tasks"
	"github.com/desertthunder/mixtape/internal/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const maxRequestBody = 64 << 10

// Generator runs a generation request. [tasks.Engine] implements it.
type Generator interface {
	Generate(ctx context.Context, req tasks.Request, progress chan<- tasks.ProgressUpdate) (*tasks.Result, error)
}

// API serves the generation endpoints.
//
//	GET  /healthz        liveness
//	GET  /api/tools      tool catalog
//	POST /api/generate   run a request; ?stream=1 streams progress as server-sent events
//	GET  /metrics        Prometheus metrics
type API struct {
	generator Generator
	catalog   *tools.Catalog
	gatherer  prometheus.Gatherer
	logger    *log.Logger
}

// NewAPI creates the API. gatherer may be nil to leave /metrics unregistered.
func NewAPI(generator Generator, catalog *tools.Catalog, gatherer prometheus.Gatherer, logger *log.Logger) *API {
	if logger == nil {
		logger = log.Default()
	}
	return &API{generator: generator, catalog: catalog, gatherer: gatherer, logger: logger}
}

// Register adds the API routes to r. A non-nil limiter throttles /api/generate.
func (a *API) Register(r Router, limiter *rate.Limiter) {
	r.Handle(http.MethodGet, "/healthz", http.HandlerFunc(a.health))
	r.Handle(http.MethodGet, "/api/tools", http.HandlerFunc(a.listTools))

	var generate http.Handler = http.HandlerFunc(a.generate)
	if limiter != nil {
		generate = RateLimit(limiter)(generate)
	}
	r.Handle(http.MethodPost, "/api/generate", generate)

	if a.gatherer != nil {
		r.Handle(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.catalog)
}

func (a *API) generate(w http.ResponseWriter, r *http.Request) {
	var req tasks.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	if wantsStream(r) {
		a.stream(w, r, req)
		return
	}

	result, err := a.generator.Generate(r.Context(), req, nil)
	if err != nil {
		status, body := errorResponse(err)
		a.logger.Warn("generation failed", "status", status, "error", err)
		writeJSON(w, status, body)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func wantsStream(r *http.Request) bool {
	return r.URL.Query().Get("stream") == "1" || strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// progressEvent is the wire form of a [tasks.ProgressUpdate].
type progressEvent struct {
	RunID   string      `json:"run_id"`
	Phase   tasks.Phase `json:"phase"`
	Step    int         `json:"step"`
	Total   int         `json:"total"`
	Message string      `json:"message"`
}

type outcome struct {
	result *tasks.Result
	err    error
}

// stream runs the request and writes progress, then the result or error, as server-sent events.
func (a *API) stream(w http.ResponseWriter, r *http.Request, req tasks.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	progress := make(chan tasks.ProgressUpdate, 32)
	done := make(chan outcome, 1)
	go func() {
		res, err := a.generator.Generate(r.Context(), req, progress)
		done <- outcome{res, err}
	}()

	send := func(u tasks.ProgressUpdate) {
		writeEvent(w, "progress", progressEvent{RunID: u.RunID, Phase: u.Phase, Step: u.Step, Total: u.Total, Message: u.Message})
		flusher.Flush()
	}

	for {
		select {
		case u := <-progress:
			send(u)
		case out := <-done:
			for drained := false; !drained; {
				select {
				case u := <-progress:
					send(u)
				default:
					drained = true
				}
			}
			if out.err != nil {
				_, body := errorResponse(out.err)
				writeEvent(w, "error", body)
			} else {
				writeEvent(w, "result", out.result)
			}
			flusher.Flush()
			return
		}
	}
}

// errorBody is the JSON error payload.
type errorBody struct {
	Error   string         `json:"error"`
	RunID   string         `json:"run_id,omitempty"`
	Partial []models.Track `json:"partial,omitempty"`
}

func errorResponse(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}
	var genErr *tasks.GenerateError
	if errors.As(err, &genErr) {
		body.RunID = genErr.RunID
		body.Partial = genErr.Partial
		body.Error = genErr.Err.Error()
	}

	switch {
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest, body
	case errors.Is(err, shared.ErrNoTracks):
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, body
	}
	return http.StatusInternalServerError, body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{"error":"failed to encode event"}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
