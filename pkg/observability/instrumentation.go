package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys shared by the pipeline and the LLM client
const (
	AttrLocation   = attribute.Key("location")
	AttrAudience   = attribute.Key("audience")
	AttrStage      = attribute.Key("stage.name")
	AttrLLMModel   = attribute.Key("llm.model")
	AttrLLMPurpose = attribute.Key("llm.purpose")
)

// EndSpan sets the span status from err and records its duration
func EndSpan(span trace.Span, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.Float64("duration.seconds", time.Since(start).Seconds()))
	span.End()
}

// InstrumentStage runs one pipeline stage inside a workflow.stage.<name> span
func (t *Telemetry) InstrumentStage(ctx context.Context, stage string, location string, fn func(context.Context) error) error {
	ctx, span := t.StartSpan(ctx, "workflow.stage."+stage,
		trace.WithAttributes(AttrStage.String(stage), AttrLocation.String(location)),
	)

	start := time.Now()
	err := fn(ctx)
	if err != nil {
		span.SetAttributes(attribute.String("status", "error"))
	} else {
		span.SetAttributes(attribute.String("status", "success"))
	}
	EndSpan(span, start, err)
	return err
}

// InstrumentLLMCall runs a chat request inside an llm.chat span tagged with its purpose.
// Token counts are attached only when the call succeeds.
func (t *Telemetry) InstrumentLLMCall(ctx context.Context, model string, purpose string, fn func(context.Context) (promptTokens, completionTokens int, err error)) error {
	ctx, span := t.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			AttrLLMModel.String(model),
			AttrLLMPurpose.String(purpose),
			attribute.String("llm.provider", "ollama"),
		),
	)

	start := time.Now()
	promptTokens, completionTokens, err := fn(ctx)
	if err == nil {
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", promptTokens),
			attribute.Int("llm.completion_tokens", completionTokens),
			attribute.Int("llm.total_tokens", promptTokens+completionTokens),
		)
	}
	EndSpan(span, start, err)
	return err
}

// StartAnalysisRequest starts the root span of one pipeline run
func (t *Telemetry) StartAnalysisRequest(ctx context.Context, requestID, location, audience string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "analysis.request",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			AttrLocation.String(location),
			AttrAudience.String(audience),
		),
	)
}

// StartBatchRequest starts the span enclosing a batch of runs
func (t *Telemetry) StartBatchRequest(ctx context.Context, size int, audience string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "analysis.batch",
		trace.WithAttributes(
			attribute.Int("batch.size", size),
			AttrAudience.String(audience),
		),
	)
}
