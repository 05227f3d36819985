// Package mockserver is a scripted stand-in for the research service. It
// serves the health, ask and streaming ask endpoints and replays scenarios
// frame by frame.
package mockserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/zjrosen/sift/internal/log"
)

// ScenarioHeader selects a scenario per request. The "scenario" query
// parameter does the same.
const ScenarioHeader = "X-Mock-Scenario"

// Handler serves the research service endpoints from scripted scenarios.
type Handler struct {
	mu        sync.RWMutex
	scenarios map[string]Scenario
	fallback  string
	delay     time.Duration
}

// HandlerConfig configures the handler.
type HandlerConfig struct {
	// Scenarios are added to (and override) the built-in ones.
	Scenarios []Scenario
	// Default names the scenario used when a request does not pick one.
	// Default: "standard"
	Default string
	// Delay is the pause between steps of built-in scenarios.
	Delay time.Duration
}

// NewHandler creates a handler with the built-in scenarios plus cfg.Scenarios.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		fallback: cfg.Default,
		delay:    cfg.Delay,
	}
	if h.fallback == "" {
		h.fallback = ScenarioStandard
	}
	h.SetScenarios(cfg.Scenarios)
	return h
}

// SetScenarios replaces the user scenarios, keeping the built-in ones unless
// a scenario overrides them by name. Requests already streaming keep the
// script they started with.
func (h *Handler) SetScenarios(scenarios []Scenario) {
	m := make(map[string]Scenario)
	for _, sc := range Builtin(h.delay) {
		m[sc.Name] = sc
	}
	for _, sc := range scenarios {
		m[sc.Name] = sc
	}

	h.mu.Lock()
	h.scenarios = m
	h.mu.Unlock()
}

// Routes returns an http.Handler with all API routes registered.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("POST /api/ask", h.Ask)
	mux.HandleFunc("POST /api/ask/stream", h.AskStream)
	return mux
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the service's error envelope.
type ErrorResponse struct {
	Detail any `json:"detail"`
}

// FieldError is one request validation failure.
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

type askRequest struct {
	Question *string `json:"question"`
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ask handles POST /api/ask: the whole scenario runs before anything is
// written.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	question, sc, ok := h.prepare(w, r)
	if !ok {
		return
	}

	if !sleep(r.Context(), sc.Delay*time.Duration(len(sc.Steps))) {
		return
	}

	payload, failure, err := sc.Outcome(question)
	switch {
	case err != nil:
		h.writeError(w, http.StatusInternalServerError, "Failed to process question: "+err.Error())
	case failure != "":
		h.writeError(w, http.StatusInternalServerError, "Failed to process question: "+failure)
	case payload == nil:
		h.writeError(w, http.StatusInternalServerError, "Failed to process question: pipeline did not finish")
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}
}

// AskStream handles POST /api/ask/stream, writing one flushed frame per step.
// A scenario without a terminal step ends the response early.
func (h *Handler) AskStream(w http.ResponseWriter, r *http.Request) {
	question, sc, ok := h.prepare(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for i, step := range sc.Steps {
		if !sleep(ctx, sc.Delay) {
			log.Debug(log.CatMock, "client went away", "scenario", sc.Name, "step", i)
			return
		}
		frame, err := step.Frame(question)
		if err != nil {
			log.ErrorErr(log.CatMock, "Failed to render step", err, "scenario", sc.Name, "step", i)
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		flusher.Flush()
	}
	log.Debug(log.CatMock, "scenario finished", "scenario", sc.Name, "steps", len(sc.Steps))
}

// prepare decodes and validates the request and resolves its scenario,
// writing the error response itself when it fails.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (string, Scenario, bool) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeValidation(w, FieldError{Loc: []string{"body"}, Msg: "JSON decode error", Type: "json_invalid"})
		return "", Scenario{}, false
	}
	if req.Question == nil {
		h.writeValidation(w, FieldError{Loc: []string{"body", "question"}, Msg: "Field required", Type: "missing"})
		return "", Scenario{}, false
	}
	raw := *req.Question
	switch n := utf8.RuneCountInString(raw); {
	case n < 3:
		h.writeValidation(w, FieldError{Loc: []string{"body", "question"}, Msg: "String should have at least 3 characters", Type: "string_too_short"})
		return "", Scenario{}, false
	case n > 500:
		h.writeValidation(w, FieldError{Loc: []string{"body", "question"}, Msg: "String should have at most 500 characters", Type: "string_too_long"})
		return "", Scenario{}, false
	}
	question := strings.TrimSpace(raw)
	if question == "" {
		h.writeError(w, http.StatusBadRequest, "Question cannot be empty.")
		return "", Scenario{}, false
	}

	name := r.Header.Get(ScenarioHeader)
	if name == "" {
		name = r.URL.Query().Get("scenario")
	}
	if name == "" {
		name = h.fallback
	}
	h.mu.RLock()
	sc, ok := h.scenarios[name]
	h.mu.RUnlock()
	if !ok {
		h.writeError(w, http.StatusNotFound, "Unknown scenario: "+name)
		return "", Scenario{}, false
	}

	log.Debug(log.CatMock, "serving question", "path", r.URL.Path, "scenario", name,
		"requestID", r.Header.Get("X-Request-ID"))
	return question, sc, true
}

// sleep waits d or until ctx is done, reporting whether it waited fully.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatMock, "Failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, ErrorResponse{Detail: detail})
}

func (h *Handler) writeValidation(w http.ResponseWriter, errs ...FieldError) {
	h.writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Detail: errs})
}
