package domain

import (
	"context"
)

// LLMClient defines the interface for text generation backends
type LLMClient interface {
	// Chat performs a single-shot chat completion
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error)

	// Embed generates an embedding vector for text
	Embed(ctx context.Context, text string) ([]float64, error)
}

// HealthChecker is implemented by collaborators that expose a liveness probe
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// WeatherSource defines the interface for weather data providers
type WeatherSource interface {
	// Geocode resolves a place name to coordinates
	Geocode(ctx context.Context, name string) (Coordinates, error)

	// CurrentConditions returns the latest observation at coordinates
	CurrentConditions(ctx context.Context, coords Coordinates, label string) (*WeatherSnapshot, error)

	// Forecast returns the multi-day forecast series at coordinates
	Forecast(ctx context.Context, coords Coordinates, label string) (*ForecastSeries, error)
}

// KnowledgeStore defines the interface for the advisory knowledge corpus
type KnowledgeStore interface {
	// Search returns documents similar to query, best match first
	Search(ctx context.Context, query string, limit int, filter SearchFilter) ([]RetrievalResult, error)

	// Add indexes a new document
	Add(ctx context.Context, doc KnowledgeDocument) error

	// Stats reports corpus statistics
	Stats(ctx context.Context) (*KnowledgeStats, error)

	// Contextual runs the multi-strategy retrieval used by the pipeline
	Contextual(ctx context.Context, query ContextQuery) []RetrievalResult
}

// SearchFilter restricts similarity search to a category and/or location
type SearchFilter struct {
	Category KnowledgeCategory `json:"category,omitempty"`
	Location string            `json:"location,omitempty"`
}

// ContextQuery describes the weather context for knowledge retrieval.
// Conditions is the composite text (condition, description and risk alerts);
// Condition is the bare condition used by the category-filtered searches.
type ContextQuery struct {
	Conditions string   `json:"conditions"`
	Condition  string   `json:"condition,omitempty"`
	Location   string   `json:"location,omitempty"`
	Audience   Audience `json:"audience"`
}

// ChatOptions provides options for chat completions
type ChatOptions struct {
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	Content      string     `json:"content"`
	Usage        TokenUsage `json:"usage"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
