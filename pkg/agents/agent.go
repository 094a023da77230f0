package agents

import (
	"context"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/observability"
)

// Agent names used for logging, metrics and status reporting
const (
	DataQualityAgentName = "data_quality_agent"
	ForecastAgentName    = "forecast_agent"
	AdviceAgentName      = "advice_agent"
)

// Option configures an agent
type Option func(*options)

type options struct {
	chat    domain.ChatOptions
	metrics *observability.Metrics
	clock   clockwork.Clock
}

func newOptions(opts []Option) options {
	o := options{
		chat: domain.ChatOptions{
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithChatOptions sets the generation options used for every backend call
func WithChatOptions(chat domain.ChatOptions) Option {
	return func(o *options) {
		o.chat = chat
	}
}

// WithMetrics records prompt cache lookups and extraction fallbacks
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock sets the clock used for report timestamps
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// complete sends a single user prompt and returns the trimmed completion.
// purpose is carried in message metadata so instrumented clients can label the span.
func complete(ctx context.Context, llm domain.LLMClient, purpose, prompt string, chat domain.ChatOptions) (string, error) {
	messages := []domain.Message{
		{
			Role:     "user",
			Content:  prompt,
			Metadata: map[string]interface{}{"purpose": purpose},
		},
	}

	resp, err := llm.Chat(ctx, messages, chat)
	if err != nil {
		return "", &domain.GenerationError{Op: purpose, Err: err}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", &domain.GenerationError{Op: purpose}
	}
	return strings.TrimSpace(resp.Content), nil
}
