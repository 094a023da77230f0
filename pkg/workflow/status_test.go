package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncolesummers/weather-insights-agent/internal/testutil"
	"github.com/ncolesummers/weather-insights-agent/pkg/agents"
	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/workflow"
)

// brokenStore fails every operation
type brokenStore struct{}

func (brokenStore) Search(context.Context, string, int, domain.SearchFilter) ([]domain.RetrievalResult, error) {
	return nil, &domain.StoreError{Op: "search", Err: errors.New("database is closed")}
}

func (brokenStore) Add(context.Context, domain.KnowledgeDocument) error {
	return &domain.StoreError{Op: "add", Err: errors.New("database is closed")}
}

func (brokenStore) Stats(context.Context) (*domain.KnowledgeStats, error) {
	return nil, &domain.StoreError{Op: "stats", Err: errors.New("database is closed")}
}

func (brokenStore) Contextual(context.Context, domain.ContextQuery) []domain.RetrievalResult {
	return []domain.RetrievalResult{}
}

// chatOnly is an LLM client without a health probe
type chatOnly struct{ mock *testutil.MockLLMClient }

func (c chatOnly) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	return c.mock.Chat(ctx, messages, opts)
}

func (c chatOnly) Embed(ctx context.Context, text string) ([]float64, error) {
	return c.mock.Embed(ctx, text)
}

func serviceByName(t *testing.T, status *domain.SystemStatus, name string) domain.ServiceStatus {
	t.Helper()
	for _, s := range status.Services {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("service %q not reported", name)
	return domain.ServiceStatus{}
}

func TestStatus_AllOperational(t *testing.T) {
	graph := newGraph(t, workflow.Dependencies{})

	status := graph.Status(testutil.NewTestContext(t))

	assert.Equal(t, domain.StatusOperational, status.Workflow)
	require.Len(t, status.Services, 6)
	for _, s := range status.Services {
		assert.Equal(t, domain.StatusOperational, s.Status, "service %s", s.Name)
	}

	for _, name := range []string{agents.DataQualityAgentName, agents.ForecastAgentName, agents.AdviceAgentName} {
		serviceByName(t, status, name)
	}

	require.NotNil(t, status.KnowledgeBaseStats)
	assert.Equal(t, "weather_knowledge", status.KnowledgeBaseStats.CollectionName)
	assert.Equal(t, 384, status.KnowledgeBaseStats.VectorDimension)
}

func TestStatus_ProbesAreIndependent(t *testing.T) {
	var geocoded []string
	weather := testutil.NewMockWeatherSource()
	weather.GeocodeFunc = func(ctx context.Context, name string) (domain.Coordinates, error) {
		geocoded = append(geocoded, name)
		return domain.Coordinates{}, &domain.ProviderError{Status: 401, Message: "invalid api key"}
	}

	graph := newGraph(t, workflow.Dependencies{Weather: weather, Knowledge: brokenStore{}})

	status := graph.Status(testutil.NewTestContext(t))

	assert.Equal(t, []string{"Manila"}, geocoded)

	weatherStatus := serviceByName(t, status, workflow.ServiceWeather)
	assert.Equal(t, domain.StatusError, weatherStatus.Status)
	assert.Contains(t, weatherStatus.Details["error"], "invalid api key")

	knowledgeStatus := serviceByName(t, status, workflow.ServiceKnowledge)
	assert.Equal(t, domain.StatusError, knowledgeStatus.Status)
	assert.Nil(t, status.KnowledgeBaseStats)

	assert.Equal(t, domain.StatusOperational, serviceByName(t, status, workflow.ServiceLLM).Status)
}

func TestStatus_LLMHealth(t *testing.T) {
	t.Run("failing probe", func(t *testing.T) {
		llm := testutil.NewPipelineLLM()
		llm.HealthErr = errors.New("connection refused")
		graph := newGraph(t, workflow.Dependencies{LLM: llm})

		s := serviceByName(t, graph.Status(testutil.NewTestContext(t)), workflow.ServiceLLM)

		assert.Equal(t, domain.StatusError, s.Status)
		assert.Equal(t, "health check failed: connection refused", s.Details["error"])
	})

	t.Run("no probe", func(t *testing.T) {
		graph := newGraph(t, workflow.Dependencies{LLM: chatOnly{testutil.NewPipelineLLM()}})

		s := serviceByName(t, graph.Status(testutil.NewTestContext(t)), workflow.ServiceLLM)

		assert.Equal(t, domain.StatusOperational, s.Status)
		assert.Equal(t, "unsupported", s.Details["health_check"])
	})
}

// panickingStore blows up when asked for stats
type panickingStore struct{ brokenStore }

func (panickingStore) Stats(context.Context) (*domain.KnowledgeStats, error) {
	panic("nil collection handle")
}

func TestStatus_PanickingProbeReportsError(t *testing.T) {
	graph := newGraph(t, workflow.Dependencies{Knowledge: panickingStore{}})

	var status *domain.SystemStatus
	require.NotPanics(t, func() {
		status = graph.Status(testutil.NewTestContext(t))
	})

	knowledgeStatus := serviceByName(t, status, workflow.ServiceKnowledge)
	assert.Equal(t, domain.StatusError, knowledgeStatus.Status)
	assert.Equal(t, "probe panicked: nil collection handle", knowledgeStatus.Details["error"])
	assert.Nil(t, status.KnowledgeBaseStats)

	assert.Equal(t, domain.StatusOperational, serviceByName(t, status, workflow.ServiceWeather).Status)
	assert.Equal(t, domain.StatusOperational, serviceByName(t, status, workflow.ServiceLLM).Status)
}
