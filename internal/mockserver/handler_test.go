package mockserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/sift/internal/stream"
)

func post(t *testing.T, h *Handler, path, body, scenario string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	if scenario != "" {
		req.Header.Set(ScenarioHeader, scenario)
	}
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)
	return w
}

func decodeAll(t *testing.T, body []byte) []stream.Event {
	t.Helper()
	dec := stream.NewDecoder(io.NopCloser(bytes.NewReader(body)))
	var events []stream.Event
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestHandler_Health(t *testing.T) {
	h := NewHandler(HandlerConfig{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	h.Routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandler_AskStream_Standard(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	w := post(t, h, "/api/ask/stream", `{"question":"Does coffee help?"}`, "")

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := decodeAll(t, w.Body.Bytes())
	require.Len(t, events, 11)
	require.Equal(t, stream.Progress{Stage: "retriever", Status: "running"}, events[0])

	result, ok := events[len(events)-1].(stream.Result)
	require.True(t, ok)
	var run map[string]any
	require.NoError(t, json.Unmarshal(result.Payload, &run))
	require.Equal(t, "Does coffee help?", run["question"])
}

func TestHandler_AskStream_Deep(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	w := post(t, h, "/api/ask/stream?scenario=deep", `{"question":"Does coffee help?"}`, "")

	events := decodeAll(t, w.Body.Bytes())
	plan, ok := events[1].(stream.PlanExpanded)
	require.True(t, ok)
	require.Len(t, plan.Subtasks, 3)

	var completed int
	for _, ev := range events {
		if sp, ok := ev.(stream.SubtaskProgress); ok && sp.Status == "completed" {
			require.NotNil(t, sp.ResultCount)
			completed++
		}
	}
	require.Equal(t, 3, completed)
}

func TestHandler_AskStream_Error(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	w := post(t, h, "/api/ask/stream", `{"question":"Does coffee help?"}`, ScenarioError)

	events := decodeAll(t, w.Body.Bytes())
	require.Equal(t, stream.Error{Message: "Retriever failed: search backend unavailable"}, events[len(events)-1])
}

func TestHandler_AskStream_TruncatedHasNoTerminal(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	w := post(t, h, "/api/ask/stream", `{"question":"Does coffee help?"}`, ScenarioTruncated)

	events := decodeAll(t, w.Body.Bytes())
	require.Len(t, events, 3)
	for _, ev := range events {
		require.False(t, stream.IsTerminal(ev))
	}
}

func TestHandler_Validation(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	tests := []struct {
		name   string
		body   string
		status int
		detail string
	}{
		{name: "blank", body: `{"question":"     "}`, status: http.StatusBadRequest, detail: `"Question cannot be empty."`},
		{name: "too short", body: `{"question":"hi"}`, status: http.StatusUnprocessableEntity, detail: "string_too_short"},
		{name: "missing", body: `{}`, status: http.StatusUnprocessableEntity, detail: "Field required"},
		{name: "invalid json", body: `not json`, status: http.StatusUnprocessableEntity, detail: "json_invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/api/ask", "/api/ask/stream"} {
				w := post(t, h, path, tt.body, "")
				require.Equal(t, tt.status, w.Code, path)
				require.Contains(t, w.Body.String(), tt.detail, path)
			}
		})
	}
}

func TestHandler_UnknownScenario(t *testing.T) {
	h := NewHandler(HandlerConfig{})
	w := post(t, h, "/api/ask/stream", `{"question":"Does coffee help?"}`, "nope")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Ask(t *testing.T) {
	h := NewHandler(HandlerConfig{})

	w := post(t, h, "/api/ask", `{"question":"Does coffee help?"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"synthesis"`)

	w = post(t, h, "/api/ask", `{"question":"Does coffee help?"}`, ScenarioError)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "Failed to process question: Retriever failed")

	w = post(t, h, "/api/ask", `{"question":"Does coffee help?"}`, ScenarioTruncated)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandler_CustomScenarioOverridesBuiltin(t *testing.T) {
	h := NewHandler(HandlerConfig{
		Default: "custom",
		Scenarios: []Scenario{{
			Name: "custom",
			Steps: []Step{
				{Raw: "{not json"},
				{Type: "heartbeat"},
				{Type: "result", Data: map[string]any{"answer": 42}},
			},
		}},
	})

	w := post(t, h, "/api/ask/stream", `{"question":"Does coffee help?"}`, "")

	events := decodeAll(t, w.Body.Bytes())
	require.Len(t, events, 2, "malformed raw frame is dropped by the decoder")
	require.Equal(t, stream.EventType("heartbeat"), events[0].Type())
	require.JSONEq(t, `{"answer":42}`, string(events[1].(stream.Result).Payload))
}

func TestHandler_SetScenariosReplacesUserScenarios(t *testing.T) {
	h := NewHandler(HandlerConfig{Scenarios: []Scenario{{Name: "first", Steps: []Step{{Type: "error", Message: "one"}}}}})

	w := post(t, h, "/api/ask", `{"question":"Does coffee help?"}`, "first")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	h.SetScenarios([]Scenario{{Name: "second", Steps: []Step{{Type: "result", Data: map[string]any{"ok": true}}}}})

	w = post(t, h, "/api/ask", `{"question":"Does coffee help?"}`, "first")
	require.Equal(t, http.StatusNotFound, w.Code, "old user scenarios are gone")

	w = post(t, h, "/api/ask", `{"question":"Does coffee help?"}`, "second")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = post(t, h, "/api/ask", `{"question":"Does coffee help?"}`, ScenarioStandard)
	require.Equal(t, http.StatusOK, w.Code, "built-ins stay")
}

func TestHandler_AskStream_StopsWhenClientLeaves(t *testing.T) {
	h := NewHandler(HandlerConfig{Delay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/ask/stream", bytes.NewBufferString(`{"question":"Does coffee help?"}`)).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Routes().ServeHTTP(w, req)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after cancellation")
	}
}
