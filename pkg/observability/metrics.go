package observability

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline's OpenTelemetry instruments
type Metrics struct {
	analyses            metric.Int64Counter
	llmRequests         metric.Int64Counter
	llmTokens           metric.Int64Counter
	knowledgeSearches   metric.Int64Counter
	promptCacheLookups  metric.Int64Counter
	extractionFallbacks metric.Int64Counter

	analysisDuration metric.Float64Histogram
	stageDuration    metric.Float64Histogram
	llmDuration      metric.Float64Histogram

	inFlight atomic.Int64
}

// instrumentSet collects creation errors so NewMetrics can report them together
type instrumentSet struct {
	meter metric.Meter
	errs  []error
}

func (s *instrumentSet) counter(name, unit, desc string) metric.Int64Counter {
	c, err := s.meter.Int64Counter(name, metric.WithUnit(unit), metric.WithDescription(desc))
	s.errs = append(s.errs, err)
	return c
}

func (s *instrumentSet) seconds(name, desc string) metric.Float64Histogram {
	h, err := s.meter.Float64Histogram(name, metric.WithUnit("s"), metric.WithDescription(desc))
	s.errs = append(s.errs, err)
	return h
}

// NewMetrics registers every instrument on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	set := &instrumentSet{meter: meter}
	m := &Metrics{
		analyses:            set.counter("analyses_total", "{analysis}", "Pipeline runs by outcome"),
		llmRequests:         set.counter("llm_requests_total", "{request}", "LLM chat requests"),
		llmTokens:           set.counter("llm_tokens_used_total", "{token}", "LLM tokens consumed by kind"),
		knowledgeSearches:   set.counter("knowledge_searches_total", "{search}", "Knowledge store searches by outcome"),
		promptCacheLookups:  set.counter("prompt_cache_lookups_total", "{lookup}", "Audience prompt cache lookups by result"),
		extractionFallbacks: set.counter("extraction_fallbacks_total", "{fallback}", "Structured extractions that fell back to line parsing"),

		analysisDuration: set.seconds("analysis_duration_seconds", "Duration of pipeline runs"),
		stageDuration:    set.seconds("stage_duration_seconds", "Duration of individual pipeline stages"),
		llmDuration:      set.seconds("llm_request_duration_seconds", "Duration of LLM chat requests"),
	}

	_, err := meter.Int64ObservableGauge("active_analyses",
		metric.WithUnit("{analysis}"),
		metric.WithDescription("Pipeline runs in flight"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.inFlight.Load())
			return nil
		}),
	)
	set.errs = append(set.errs, err)

	if err := errors.Join(set.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordAnalysisStarted marks a pipeline run as in flight
func (m *Metrics) RecordAnalysisStarted(ctx context.Context) {
	m.inFlight.Add(1)
}

// RecordAnalysisComplete records the outcome of a pipeline run started with RecordAnalysisStarted
func (m *Metrics) RecordAnalysisComplete(ctx context.Context, duration time.Duration, status string) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.analyses.Add(ctx, 1, attrs)
	m.analysisDuration.Record(ctx, duration.Seconds(), attrs)
	m.inFlight.Add(-1)
}

func (m *Metrics) RecordStage(ctx context.Context, stage string, duration time.Duration, status string) {
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

// RecordLLMRequest counts one chat request and its prompt and completion tokens
func (m *Metrics) RecordLLMRequest(ctx context.Context, model string, promptTokens, completionTokens int64, duration time.Duration) {
	byModel := attribute.String("model", model)
	m.llmRequests.Add(ctx, 1, metric.WithAttributes(byModel))
	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(byModel))
	m.llmTokens.Add(ctx, promptTokens, metric.WithAttributes(byModel, attribute.String("type", "prompt")))
	m.llmTokens.Add(ctx, completionTokens, metric.WithAttributes(byModel, attribute.String("type", "completion")))
}

func (m *Metrics) RecordKnowledgeSearch(ctx context.Context, success bool) {
	m.knowledgeSearches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", outcome(success, "success", "failure")),
	))
}

func (m *Metrics) RecordPromptCacheLookup(ctx context.Context, agent string, hit bool) {
	m.promptCacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("result", outcome(hit, "hit", "miss")),
	))
}

func (m *Metrics) RecordExtractionFallback(ctx context.Context, agent string) {
	m.extractionFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

// GetActiveAnalysisCount returns the number of pipeline runs in flight
func (m *Metrics) GetActiveAnalysisCount() int64 {
	return m.inFlight.Load()
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
