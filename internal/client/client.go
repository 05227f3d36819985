// Package client talks to the research service over HTTP: it opens the
// progress stream, calls the non-streaming endpoint and checks health.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/zjrosen/sift/internal/log"
	"github.com/zjrosen/sift/internal/stream"
)

const (
	askPath       = "/api/ask"
	askStreamPath = "/api/ask/stream"
	healthPath    = "/api/health"

	minQuestionLen = 3
	maxQuestionLen = 500

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 * 1024
)

// Config configures a Client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration // non-streaming requests only
	UserAgent      string
	ConnectRetries int
	MaxFrameBytes  int

	// RetryInterval is the first backoff delay between connection attempts.
	// Default: 250ms
	RetryInterval time.Duration

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Client is safe for concurrent use.
type Client struct {
	cfg    Config
	base   string
	http   *http.Client
	stream *http.Client
}

// New creates a client for cfg.BaseURL.
func New(cfg Config) *Client {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 250 * time.Millisecond
	}
	if cfg.ConnectRetries < 0 {
		cfg.ConnectRetries = 0
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		cfg:  cfg,
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		// Streams have no client timeout; the caller's context bounds them.
		stream: &http.Client{Transport: transport},
	}
}

type requestIDKey struct{}

// WithRequestID makes requests sent with ctx carry id as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// ValidateQuestion trims q and checks it is between 3 and 500 characters.
func ValidateQuestion(q string) (string, error) {
	q = strings.TrimSpace(q)
	n := utf8.RuneCountInString(q)
	switch {
	case n == 0:
		return "", fmt.Errorf("%w: question cannot be empty", ErrInvalidQuestion)
	case n < minQuestionLen:
		return "", fmt.Errorf("%w: question must be at least %d characters", ErrInvalidQuestion, minQuestionLen)
	case n > maxQuestionLen:
		return "", fmt.Errorf("%w: question must be at most %d characters, got %d", ErrInvalidQuestion, maxQuestionLen, n)
	}
	return q, nil
}

type askRequest struct {
	Question string `json:"question"`
}

// AskStream opens the progress stream for question. The returned decoder is
// tied to ctx; the caller must Close it. Connection failures before a response
// arrives are retried; a non-2xx response is returned as a
// *stream.ConnectionError wrapping *StatusError.
func (c *Client) AskStream(ctx context.Context, question string) (*stream.Decoder, error) {
	question, err := ValidateQuestion(question)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(askRequest{Question: question})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	resp, err := c.connect(ctx, c.stream, http.MethodPost, askStreamPath, body, "text/event-stream")
	if err != nil {
		return nil, err
	}

	log.Debug(log.CatHTTP, "stream opened", "status", resp.StatusCode, "contentType", resp.Header.Get("Content-Type"))
	return stream.NewDecoder(resp.Body,
		stream.WithContext(ctx),
		stream.WithMaxFrameSize(c.cfg.MaxFrameBytes),
	), nil
}

// Ask calls the non-streaming endpoint and returns the raw success payload.
func (c *Client) Ask(ctx context.Context, question string) (json.RawMessage, error) {
	question, err := ValidateQuestion(question)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(askRequest{Question: question})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	resp, err := c.connect(ctx, c.http, http.MethodPost, askPath, body, "application/json")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &stream.ConnectionError{Err: fmt.Errorf("reading response: %w", err)}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("research service returned invalid JSON (%d bytes)", len(data))
	}
	return json.RawMessage(data), nil
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health reports whether the service answers GET /api/health with status ok.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.connect(ctx, c.http, http.MethodGet, healthPath, nil, "application/json")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("research service unhealthy: status %q", health.Status)
	}
	return nil
}

// connect sends one request, retrying transport failures and temporary
// gateway errors with exponential backoff. It returns a 2xx response or an
// error; cancellation is returned as the context error.
func (c *Client) connect(ctx context.Context, hc *http.Client, method, path string, body []byte, accept string) (*http.Response, error) {
	id := requestID(ctx)
	url := c.base + path
	attempt := 0

	operation := func() (*http.Response, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("building request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("X-Request-ID", id)
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}

		log.Debug(log.CatHTTP, "sending request", "method", method, "url", url, "requestID", id, "attempt", attempt)
		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			log.Warn(log.CatHTTP, "request failed", "url", url, "attempt", attempt, "error", err)
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		statusErr := readStatusError(resp)
		log.Warn(log.CatHTTP, "request rejected", "url", url, "status", resp.StatusCode, "detail", statusErr.Detail)
		if statusErr.Temporary() {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryInterval

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.cfg.ConnectRetries)+1),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &stream.ConnectionError{Err: err}
	}
	return resp, nil
}

func readStatusError(resp *http.Response) *StatusError {
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil && !errors.Is(err, io.EOF) {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return &StatusError{StatusCode: resp.StatusCode, Detail: decodeDetail(data)}
}
