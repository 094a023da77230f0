package llm

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/observability"
)

const defaultPurpose = "completion"

// InstrumentedLLMClient decorates a domain.LLMClient with spans and token metrics.
// It is what the agents receive in production.
type InstrumentedLLMClient struct {
	next      domain.LLMClient
	telemetry *observability.Telemetry
	metrics   *observability.Metrics
	model     string
	logger    *observability.StructuredLogger
}

// NewInstrumentedLLMClient wraps next. metrics may be nil, in which case only spans are recorded.
func NewInstrumentedLLMClient(next domain.LLMClient, telemetry *observability.Telemetry, metrics *observability.Metrics, model string) (*InstrumentedLLMClient, error) {
	switch {
	case next == nil:
		return nil, errors.New("client is required")
	case telemetry == nil:
		return nil, errors.New("telemetry is required")
	}

	return &InstrumentedLLMClient{
		next:      next,
		telemetry: telemetry,
		metrics:   metrics,
		model:     model,
		logger:    observability.NewStructuredLogger("llm"),
	}, nil
}

// purposeOf reads the purpose tag agents attach to the first message
func purposeOf(messages []domain.Message) string {
	if len(messages) == 0 {
		return defaultPurpose
	}
	if p, ok := messages[0].Metadata["purpose"].(string); ok && p != "" {
		return p
	}
	return defaultPurpose
}

// Chat sends messages to the wrapped client inside an llm.chat span
func (c *InstrumentedLLMClient) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	purpose := purposeOf(messages)
	started := time.Now()

	var resp *domain.ChatResponse
	err := c.telemetry.InstrumentLLMCall(ctx, c.model, purpose, func(ctx context.Context) (int, int, error) {
		r, err := c.next.Chat(ctx, messages, opts)
		if err != nil {
			return 0, 0, err
		}
		resp = r
		return r.Usage.PromptTokens, r.Usage.CompletionTokens, nil
	})
	if err != nil {
		c.logger.Warn(ctx, "LLM chat failed", map[string]interface{}{
			"model":   c.model,
			"purpose": purpose,
			"error":   err.Error(),
		})
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordLLMRequest(ctx, c.model,
			int64(resp.Usage.PromptTokens),
			int64(resp.Usage.CompletionTokens),
			time.Since(started))
	}
	return resp, nil
}

// Embed generates an embedding inside an llm.embed span
func (c *InstrumentedLLMClient) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, span := c.telemetry.StartSpan(ctx, "llm.embed",
		trace.WithAttributes(
			observability.AttrLLMModel.String(c.model),
			attribute.Int("llm.input_length", len(text)),
		),
	)
	started := time.Now()

	vec, err := c.next.Embed(ctx, text)
	if err == nil {
		span.SetAttributes(attribute.Int("llm.embedding_dimensions", len(vec)))
	}
	observability.EndSpan(span, started, err)
	return vec, err
}

// CheckHealth probes the wrapped client when it implements domain.HealthChecker.
// Clients without a probe are reported healthy.
func (c *InstrumentedLLMClient) CheckHealth(ctx context.Context) error {
	checker, ok := c.next.(domain.HealthChecker)
	if !ok {
		return nil
	}

	ctx, span := c.telemetry.StartSpan(ctx, "llm.health",
		trace.WithAttributes(observability.AttrLLMModel.String(c.model)),
	)
	started := time.Now()
	err := checker.CheckHealth(ctx)
	observability.EndSpan(span, started, err)
	return err
}
