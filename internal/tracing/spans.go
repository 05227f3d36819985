package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/sift/internal/progress"
	"github.com/zjrosen/sift/internal/stream"
)

// Span attribute keys.
const (
	AttrRunID        = "sift.run.id"
	AttrQuestion     = "sift.question"
	AttrMode         = "sift.mode"
	AttrCacheHit     = "sift.cache.hit"
	AttrBytesRead    = "sift.stream.bytes_read"
	AttrIgnored      = "sift.stream.ignored"
	AttrOutcome      = "sift.outcome"
	AttrEventType    = "event.type"
	AttrStage        = "stage.agent"
	AttrStatus       = "stage.status"
	AttrSubtaskIndex = "subtask.index"
	AttrSubtaskCount = "subtask.count"
	AttrResultCount  = "subtask.papers_found"
	AttrErrorType    = "error.type"
)

// Span and event names.
const (
	SpanAsk       = "sift.ask"
	EventFrame    = "stream.frame"
	EventCacheHit = "cache.hit"
)

// StartAsk starts the span covering one question.
func StartAsk(ctx context.Context, tracer trace.Tracer, runID, question, mode string) (context.Context, trace.Span) {
	return tracer.Start(ctx, SpanAsk,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrRunID, runID),
			attribute.String(AttrQuestion, question),
			attribute.String(AttrMode, mode),
		),
	)
}

// RecordEvent adds ev to span as a span event.
func RecordEvent(span trace.Span, ev stream.Event) {
	attrs := []attribute.KeyValue{attribute.String(AttrEventType, string(ev.Type()))}
	switch e := ev.(type) {
	case stream.Progress:
		attrs = append(attrs, attribute.String(AttrStage, e.Stage), attribute.String(AttrStatus, e.Status))
	case stream.PlanExpanded:
		attrs = append(attrs, attribute.Int(AttrSubtaskCount, len(e.Subtasks)))
	case stream.SubtaskProgress:
		attrs = append(attrs, attribute.Int(AttrSubtaskIndex, e.Index), attribute.String(AttrStatus, e.Status))
		if e.ResultCount != nil {
			attrs = append(attrs, attribute.Int(AttrResultCount, *e.ResultCount))
		}
	}
	span.AddEvent(EventFrame, trace.WithAttributes(attrs...))
}

// EndAsk records the outcome on span and ends it.
func EndAsk(span trace.Span, o progress.Outcome, bytesRead int64, ignored int) {
	kind := string(o.Kind())
	span.SetAttributes(
		attribute.String(AttrOutcome, kind),
		attribute.Int64(AttrBytesRead, bytesRead),
		attribute.Int(AttrIgnored, ignored),
	)
	if o.Err != nil {
		span.RecordError(o.Err, trace.WithAttributes(attribute.String(AttrErrorType, kind)))
		span.SetStatus(codes.Error, o.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
