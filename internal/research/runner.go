// Package research runs one question end to end: it opens the stream,
// folds events into pipeline state, publishes snapshots for live views,
// caches answers and records the run in history.
package research

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/sift/internal/cachemanager"
	"github.com/zjrosen/sift/internal/client"
	"github.com/zjrosen/sift/internal/history"
	"github.com/zjrosen/sift/internal/log"
	"github.com/zjrosen/sift/internal/progress"
	"github.com/zjrosen/sift/internal/pubsub"
	"github.com/zjrosen/sift/internal/stream"
	"github.com/zjrosen/sift/internal/tracing"
)

// finalPublishTimeout bounds how long Ask waits for a slow view to accept
// the RunFinished event.
const finalPublishTimeout = time.Second

// Opener sends questions to the research service. *client.Client satisfies it.
type Opener interface {
	AskStream(ctx context.Context, question string) (*stream.Decoder, error)
	Ask(ctx context.Context, question string) (json.RawMessage, error)
}

// AnswerKey is a normalized question used as the cache key.
type AnswerKey string

// NormalizeQuestion folds case and whitespace so trivially different
// spellings of a question share a cache entry.
func NormalizeQuestion(q string) AnswerKey {
	return AnswerKey(strings.ToLower(strings.Join(strings.Fields(q), " ")))
}

// Update is the payload published on the broker. State is set for
// pubsub.StateUpdated, Run for pubsub.RunFinished.
type Update struct {
	RunID string
	State progress.State
	Run   *history.Run
}

// Config wires a Runner. Only Client is required.
type Config struct {
	Client   Opener
	Runs     history.RunRepository
	Cache    cachemanager.CacheManager[AnswerKey, json.RawMessage]
	CacheTTL time.Duration
	Broker   *pubsub.Broker[Update]
	Tracer   trace.Tracer
}

// AskOptions tune a single question.
type AskOptions struct {
	// Direct uses the non-streaming endpoint; no StateUpdated events are
	// published.
	Direct bool
	// NoCache bypasses the answer cache in both directions.
	NoCache bool
}

// Runner is safe for concurrent use; each Ask owns its own decoder and
// aggregator.
type Runner struct {
	client   Opener
	runs     history.RunRepository
	cache    cachemanager.CacheManager[AnswerKey, json.RawMessage]
	cacheTTL time.Duration
	broker   *pubsub.Broker[Update]
	tracer   trace.Tracer
}

// NewRunner creates a runner from cfg.
func NewRunner(cfg Config) *Runner {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return &Runner{
		client:   cfg.Client,
		runs:     cfg.Runs,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		broker:   cfg.Broker,
		tracer:   tracer,
	}
}

// Ask runs question and returns the finished run along with the run's error,
// which is nil only when the service produced a result. An invalid question
// returns a nil run. Every other run is recorded in history, including
// cancelled ones.
func (r *Runner) Ask(ctx context.Context, question string, opts AskOptions) (*history.Run, error) {
	question, err := client.ValidateQuestion(question)
	if err != nil {
		return nil, err
	}

	run := &history.Run{
		ID:        uuid.NewString(),
		Question:  question,
		Mode:      history.ModeStream,
		StartedAt: time.Now(),
	}
	if opts.Direct {
		run.Mode = history.ModeDirect
	}

	ctx = client.WithRequestID(ctx, run.ID)
	ctx, span := tracing.StartAsk(ctx, r.tracer, run.ID, question, string(run.Mode))
	log.Info(log.CatProgress, "asking", "run", run.ID, "mode", run.Mode,
		"trace", span.SpanContext().TraceID().String())

	var ignored int
	fetch := func(ctx context.Context, q string) (json.RawMessage, error) {
		if opts.Direct {
			return r.client.Ask(ctx, q)
		}
		outcome, n := r.consume(ctx, run, span, q)
		ignored = n
		return outcome.Payload, outcome.Err
	}

	answers := cachemanager.NewReadThroughCache(r.cache, fetch, opts.NoCache)
	payload, hit, err := answers.Get(ctx, NormalizeQuestion(question), question, r.cacheTTL)

	outcome := progress.Outcome{Payload: payload, Err: err}
	if err == nil && payload == nil {
		outcome.Payload = json.RawMessage("null")
	}
	if hit {
		run.CacheHit = true
		span.AddEvent(tracing.EventCacheHit)
		span.SetAttributes(attribute.Bool(tracing.AttrCacheHit, true))
	}

	run.Outcome = outcome.Kind()
	run.Payload = outcome.Payload
	if outcome.Err != nil {
		run.Error = outcome.Err.Error()
	}
	run.FinishedAt = time.Now()
	tracing.EndAsk(span, outcome, run.BytesRead, ignored)

	r.record(ctx, run)
	r.publishFinished(run)

	log.Info(log.CatProgress, "run finished", "run", run.ID, "outcome", run.Outcome,
		"cacheHit", run.CacheHit, "duration", run.Duration())
	return run, outcome.Err
}

// consume streams one question and keeps run's snapshot current.
func (r *Runner) consume(ctx context.Context, run *history.Run, span trace.Span, question string) (progress.Outcome, int) {
	agg := progress.New()
	publish := func(s progress.State) {
		snapshot := s
		run.State = &snapshot
		if r.broker != nil {
			r.broker.Publish(pubsub.StateUpdated, Update{RunID: run.ID, State: s})
		}
	}
	publish(agg.State())

	dec, err := r.client.AskStream(ctx, question)
	if err != nil {
		return progress.Outcome{Err: err}, 0
	}
	defer func() { _ = dec.Close() }()

	outcome := progress.Consume(&tracedSource{Decoder: dec, span: span}, agg, publish)
	run.BytesRead = dec.BytesRead()
	if dropped := dec.Dropped(); dropped > 0 {
		log.Debug(log.CatStream, "dropped malformed frames", "run", run.ID, "count", dropped)
	}
	return outcome, agg.Ignored() + dec.Dropped()
}

func (r *Runner) record(ctx context.Context, run *history.Run) {
	if r.runs == nil {
		return
	}
	// Cancelled runs are recorded too.
	if err := r.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		log.ErrorErr(log.CatStore, "Failed to save run", err, "run", run.ID)
	}
}

func (r *Runner) publishFinished(run *history.Run) {
	if r.broker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalPublishTimeout)
	defer cancel()
	update := Update{RunID: run.ID, Run: run}
	if run.State != nil {
		update.State = *run.State
	}
	if err := r.broker.PublishWait(ctx, pubsub.RunFinished, update); err != nil {
		log.Warn(log.CatUI, "run finished event not delivered", "run", run.ID, "error", err)
	}
}

// tracedSource records every decoded event on the ask span.
type tracedSource struct {
	*stream.Decoder
	span trace.Span
}

func (s *tracedSource) Next() (stream.Event, error) {
	ev, err := s.Decoder.Next()
	if err == nil {
		tracing.RecordEvent(s.span, ev)
	}
	return ev, err
}
