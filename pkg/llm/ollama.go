package llm

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

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
)

// OllamaOptions are the sampling defaults applied when a ChatOptions field is zero
type OllamaOptions struct {
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	TopP           float64       `json:"top_p"`
	TopK           int           `json:"top_k"`
	EmbeddingModel string        `json:"embedding_model"`
	Timeout        time.Duration `json:"timeout"`
}

func defaultOllamaOptions() OllamaOptions {
	return OllamaOptions{
		Temperature: 0.7,
		MaxTokens:   2048,
		TopP:        0.9,
		Timeout:     2 * time.Minute,
	}
}

// OllamaClient talks to a local Ollama server over its REST API.
// Chat and Embed share a circuit breaker; CheckHealth bypasses it.
type OllamaClient struct {
	baseURL  string
	model    string
	defaults OllamaOptions
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type samplingOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []chatMessage   `json:"messages"`
	Options  samplingOptions `json:"options"`
	Stream   bool            `json:"stream"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaClient returns a client for baseURL. A nil options uses the built-in
// sampling defaults; an empty EmbeddingModel reuses the chat model.
func NewOllamaClient(baseURL, model string, options *OllamaOptions) *OllamaClient {
	opts := defaultOllamaOptions()
	if options != nil {
		opts = *options
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = model
	}

	return &OllamaClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		defaults: opts,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        "ollama",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
	}
}

// Model returns the chat model name
func (c *OllamaClient) Model() string {
	return c.model
}

// Chat runs a non-streaming completion. Transport failures and blank completions
// are both reported as *domain.GenerationError.
func (c *OllamaClient) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: make([]chatMessage, 0, len(messages)),
		Options:  c.sampling(opts),
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	var out chatResponse
	if err := c.call(ctx, "/api/chat", req, &out); err != nil {
		return nil, &domain.GenerationError{Op: "chat", Err: err}
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return nil, &domain.GenerationError{Op: "chat"}
	}

	reason := out.DoneReason
	if reason == "" {
		reason = "stop"
	}
	return &domain.ChatResponse{
		Content: out.Message.Content,
		Usage: domain.TokenUsage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
		FinishReason: reason,
	}, nil
}

// Embed returns the embedding of text under the configured embedding model
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float64, error) {
	var out embedResponse
	if err := c.call(ctx, "/api/embeddings", embedRequest{Model: c.defaults.EmbeddingModel, Prompt: text}, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("ollama returned an empty embedding")
	}
	return out.Embedding, nil
}

// CheckHealth lists the installed models to confirm the server answers
func (c *OllamaClient) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// call POSTs payload to path through the breaker and decodes a 200 body into out.
// 5xx responses count as breaker failures.
func (c *OllamaClient) call(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		r, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= http.StatusInternalServerError {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})
	if resp == nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// sampling overlays the per-call options on the client defaults
func (c *OllamaClient) sampling(opts domain.ChatOptions) samplingOptions {
	s := samplingOptions{
		Temperature: c.defaults.Temperature,
		NumPredict:  c.defaults.MaxTokens,
		TopP:        c.defaults.TopP,
		TopK:        c.defaults.TopK,
		Stop:        opts.Stop,
	}
	if opts.Temperature > 0 {
		s.Temperature = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		s.NumPredict = opts.MaxTokens
	}
	if opts.TopP > 0 {
		s.TopP = opts.TopP
	}
	if opts.TopK > 0 {
		s.TopK = opts.TopK
	}
	return s
}
