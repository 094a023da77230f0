package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
)

// Purpose returns the purpose label carried in the first message's metadata
func Purpose(messages []domain.Message) string {
	if len(messages) == 0 || messages[0].Metadata == nil {
		return ""
	}
	purpose, _ := messages[0].Metadata["purpose"].(string)
	return purpose
}

// MockLLMClient is a mock implementation of LLMClient for testing
type MockLLMClient struct {
	mu           sync.Mutex
	Responses    map[string]string // keyed by purpose, "default" as fallback
	CallCount    int
	Calls        map[string]int
	Prompts      map[string]string // last prompt seen per purpose
	LastMessages []domain.Message
	ShouldError  bool
	ErrorMessage string
	HealthErr    error
	// ChatFunc allows custom chat behavior for tests
	ChatFunc func(ctx context.Context, messages []domain.Message, options domain.ChatOptions) (*domain.ChatResponse, error)
}

// NewMockLLMClient creates a new mock LLM client
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Responses: make(map[string]string),
		Calls:     make(map[string]int),
		Prompts:   make(map[string]string),
	}
}

// Chat implements domain.LLMClient
func (m *MockLLMClient) Chat(ctx context.Context, messages []domain.Message, options domain.ChatOptions) (*domain.ChatResponse, error) {
	purpose := Purpose(messages)

	m.mu.Lock()
	m.CallCount++
	m.Calls[purpose]++
	if len(messages) > 0 {
		m.Prompts[purpose] = messages[len(messages)-1].Content
	}
	m.LastMessages = messages
	chatFunc := m.ChatFunc
	m.mu.Unlock()

	// ChatFunc runs without the lock so tests can block inside it
	if chatFunc != nil {
		return chatFunc(ctx, messages, options)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldError {
		return nil, fmt.Errorf("%s", m.ErrorMessage)
	}

	content, ok := m.Responses[purpose]
	if !ok {
		content, ok = m.Responses["default"]
	}
	if !ok {
		content = "Mock response"
	}

	return &domain.ChatResponse{
		Content: content,
		Usage: domain.TokenUsage{
			PromptTokens:     50,
			CompletionTokens: 50,
			TotalTokens:      100,
		},
		FinishReason: "stop",
	}, nil
}

// Embed implements domain.LLMClient
func (m *MockLLMClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if m.ShouldError {
		return nil, fmt.Errorf("%s", m.ErrorMessage)
	}
	return []float64{0.1, 0.2, 0.3, 0.4, 0.5}, nil
}

// CheckHealth implements domain.HealthChecker
func (m *MockLLMClient) CheckHealth(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.HealthErr
}

// SetResponse sets the completion returned for a purpose
func (m *MockLLMClient) SetResponse(purpose, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[purpose] = content
}

// GetCallCount returns the number of Chat calls made
func (m *MockLLMClient) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// LastPrompt returns the most recent prompt sent with purpose
func (m *MockLLMClient) LastPrompt(purpose string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Prompts[purpose]
}

// CallsFor returns the number of Chat calls made with purpose
func (m *MockLLMClient) CallsFor(purpose string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[purpose]
}

// MockWeatherSource is a mock implementation of WeatherSource.
// Unset funcs answer with fixtures built from the requested label.
type MockWeatherSource struct {
	mu            sync.Mutex
	GeocodeCalls  int
	GeocodeFunc   func(ctx context.Context, name string) (domain.Coordinates, error)
	CurrentFunc   func(ctx context.Context, coords domain.Coordinates, label string) (*domain.WeatherSnapshot, error)
	ForecastFunc  func(ctx context.Context, coords domain.Coordinates, label string) (*domain.ForecastSeries, error)
	ForecastTemps []float64
}

// NewMockWeatherSource creates a weather source returning mild conditions
func NewMockWeatherSource() *MockWeatherSource {
	return &MockWeatherSource{}
}

// Geocode implements domain.WeatherSource
func (m *MockWeatherSource) Geocode(ctx context.Context, name string) (domain.Coordinates, error) {
	m.mu.Lock()
	m.GeocodeCalls++
	m.mu.Unlock()

	if m.GeocodeFunc != nil {
		return m.GeocodeFunc(ctx, name)
	}
	return ManilaCoordinates, nil
}

// CurrentConditions implements domain.WeatherSource
func (m *MockWeatherSource) CurrentConditions(ctx context.Context, coords domain.Coordinates, label string) (*domain.WeatherSnapshot, error) {
	if m.CurrentFunc != nil {
		return m.CurrentFunc(ctx, coords, label)
	}
	snap := NewSnapshot(label, 30, 70, "Clouds")
	snap.Latitude, snap.Longitude = coords.Latitude, coords.Longitude
	return &snap, nil
}

// Forecast implements domain.WeatherSource
func (m *MockWeatherSource) Forecast(ctx context.Context, coords domain.Coordinates, label string) (*domain.ForecastSeries, error) {
	if m.ForecastFunc != nil {
		return m.ForecastFunc(ctx, coords, label)
	}
	temps := m.ForecastTemps
	if temps == nil {
		temps = []float64{28, 29, 31, 30, 29, 28, 29, 30}
	}
	return NewForecastSeries(label, temps, 70, "Clouds"), nil
}

// GetGeocodeCalls returns the number of Geocode calls made
func (m *MockWeatherSource) GetGeocodeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GeocodeCalls
}
