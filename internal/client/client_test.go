package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/sift/internal/mockserver"
	"github.com/zjrosen/sift/internal/stream"
)

func newMock(t *testing.T, cfg mockserver.HandlerConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mockserver.NewHandler(cfg).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func newClient(baseURL string) *Client {
	return New(Config{
		BaseURL:        baseURL,
		Timeout:        5 * time.Second,
		UserAgent:      "sift-test",
		ConnectRetries: 2,
		RetryInterval:  time.Millisecond,
	})
}

func TestValidateQuestion(t *testing.T) {
	q, err := ValidateQuestion("  Does coffee help?  ")
	require.NoError(t, err)
	require.Equal(t, "Does coffee help?", q)

	_, err = ValidateQuestion("   ")
	require.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = ValidateQuestion("hi")
	require.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = ValidateQuestion(strings.Repeat("é", 501))
	require.ErrorIs(t, err, ErrInvalidQuestion)

	_, err = ValidateQuestion(strings.Repeat("é", 500))
	require.NoError(t, err, "length counts characters, not bytes")
}

func TestAskStream_DecodesEvents(t *testing.T) {
	srv := newMock(t, mockserver.HandlerConfig{})
	c := newClient(srv.URL)

	dec, err := c.AskStream(context.Background(), "Does coffee help?")
	require.NoError(t, err)
	defer func() { _ = dec.Close() }()

	var last stream.Event
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		last = ev
	}
	_, ok := last.(stream.Result)
	require.True(t, ok)
	require.Positive(t, dec.BytesRead())
}

func TestAskStream_SendsHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	questions := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		questions <- body["question"]
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"type\":\"result\",\"data\":{}}\n\n")
	}))
	defer srv.Close()

	ctx := WithRequestID(context.Background(), "run-123")
	dec, err := newClient(srv.URL).AskStream(ctx, "  Does coffee help?")
	require.NoError(t, err)
	_ = dec.Close()

	require.Equal(t, "Does coffee help?", <-questions)
	got := <-headers
	require.Equal(t, "text/event-stream", got.Get("Accept"))
	require.Equal(t, "application/json", got.Get("Content-Type"))
	require.Equal(t, "run-123", got.Get("X-Request-ID"))
	require.Equal(t, "sift-test", got.Get("User-Agent"))
}

func TestAskStream_GeneratesRequestID(t *testing.T) {
	ids := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids <- r.Header.Get("X-Request-ID")
	}))
	defer srv.Close()

	dec, err := newClient(srv.URL).AskStream(context.Background(), "Does coffee help?")
	require.NoError(t, err)
	_ = dec.Close()
	require.Len(t, <-ids, 36)
}

func TestAskStream_NonSuccessStatusIsConnectionError(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"detail":"Question cannot be empty."}`)
	}))
	defer bad.Close()

	_, err := newClient(bad.URL).AskStream(context.Background(), "Does coffee help?")
	require.True(t, stream.IsConnectionError(err))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	require.Equal(t, "Question cannot be empty.", statusErr.Detail)
}

func TestAskStream_RetriesTemporaryFailures(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "data: {\"type\":\"result\",\"data\":null}\n\n")
	}))
	defer srv.Close()

	dec, err := newClient(srv.URL).AskStream(context.Background(), "Does coffee help?")
	require.NoError(t, err)
	_ = dec.Close()
	require.Equal(t, int32(3), attempts.Load())
}

func TestAskStream_GivesUpAfterRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).AskStream(context.Background(), "Does coffee help?")
	require.True(t, stream.IsConnectionError(err))
	require.Equal(t, int32(3), attempts.Load(), "one attempt plus two retries")
}

func TestAskStream_DoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":[{"loc":["body","question"],"msg":"String should have at least 3 characters"}]}`)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).AskStream(context.Background(), "Does coffee help?")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "question: String should have at least 3 characters", statusErr.Detail)
	require.Equal(t, int32(1), attempts.Load())
}

func TestAskStream_UnreachableIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(url).AskStream(context.Background(), "Does coffee help?")
	require.True(t, stream.IsConnectionError(err))
}

func TestAskStream_InvalidQuestionNotSent(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { attempts.Add(1) }))
	defer srv.Close()

	_, err := newClient(srv.URL).AskStream(context.Background(), "  ")
	require.ErrorIs(t, err, ErrInvalidQuestion)
	require.Zero(t, attempts.Load())
}

func TestAskStream_CancelledContext(t *testing.T) {
	srv := newMock(t, mockserver.HandlerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newClient(srv.URL).AskStream(ctx, "Does coffee help?")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, stream.IsConnectionError(err))
}

func TestAskStream_CancelUnblocksNext(t *testing.T) {
	srv := newMock(t, mockserver.HandlerConfig{Delay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	dec, err := newClient(srv.URL).AskStream(ctx, "Does coffee help?")
	require.NoError(t, err)
	defer func() { _ = dec.Close() }()

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = dec.Next()
	require.ErrorIs(t, err, context.Canceled)
}

func TestAsk(t *testing.T) {
	srv := newMock(t, mockserver.HandlerConfig{})
	c := newClient(srv.URL)

	payload, err := c.Ask(context.Background(), "Does coffee help?")
	require.NoError(t, err)
	var run map[string]any
	require.NoError(t, json.Unmarshal(payload, &run))
	require.Equal(t, "Does coffee help?", run["question"])
}

func TestAsk_ServerError(t *testing.T) {
	srv := newMock(t, mockserver.HandlerConfig{Default: mockserver.ScenarioError})

	_, err := newClient(srv.URL).Ask(context.Background(), "Does coffee help?")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	require.Contains(t, statusErr.Detail, "Retriever failed")
}

func TestHealth(t *testing.T) {
	srv := newMock(t, mockserver.HandlerConfig{})
	require.NoError(t, newClient(srv.URL).Health(context.Background()))

	sick := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"degraded"}`)
	}))
	defer sick.Close()
	require.ErrorContains(t, newClient(sick.URL).Health(context.Background()), "degraded")
}

func TestDecodeDetail(t *testing.T) {
	require.Equal(t, "boom", decodeDetail([]byte(`{"detail":"boom"}`)))
	require.Equal(t, "plain text", decodeDetail([]byte("plain text\n")))
	require.Equal(t, "a: x; y", decodeDetail([]byte(`{"detail":[{"loc":["a"],"msg":"x"},{"msg":"y"}]}`)))
	require.Equal(t, `{"code":7}`, decodeDetail([]byte(`{"detail":{"code":7}}`)))
}
