package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ncolesummers/weather-insights-agent/internal/testutil"
	"github.com/ncolesummers/weather-insights-agent/pkg/agents"
	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/knowledge"
	"github.com/ncolesummers/weather-insights-agent/pkg/workflow"
)

func newKnowledgeStore(t *testing.T) *knowledge.Store {
	t.Helper()
	store, err := knowledge.Open(":memory:", knowledge.NewHashEmbedder(384))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newGraph(t *testing.T, deps workflow.Dependencies) *workflow.InsightsGraph {
	t.Helper()
	if deps.Weather == nil {
		deps.Weather = testutil.NewMockWeatherSource()
	}
	if deps.LLM == nil {
		deps.LLM = testutil.NewPipelineLLM()
	}
	if deps.Knowledge == nil {
		deps.Knowledge = newKnowledgeStore(t)
	}

	graph, err := workflow.NewInsightsGraph(workflow.DefaultConfig(), deps)
	require.NoError(t, err)
	return graph
}

func TestNewInsightsGraph(t *testing.T) {
	weather := testutil.NewMockWeatherSource()
	llm := testutil.NewMockLLMClient()
	store := newKnowledgeStore(t)

	tests := []struct {
		name    string
		cfg     *workflow.Config
		deps    workflow.Dependencies
		wantErr string
	}{
		{
			name: "all collaborators",
			cfg:  workflow.DefaultConfig(),
			deps: workflow.Dependencies{Weather: weather, LLM: llm, Knowledge: store},
		},
		{
			name:    "nil config",
			deps:    workflow.Dependencies{Weather: weather, LLM: llm, Knowledge: store},
			wantErr: "config is required",
		},
		{
			name:    "missing weather source",
			cfg:     workflow.DefaultConfig(),
			deps:    workflow.Dependencies{LLM: llm, Knowledge: store},
			wantErr: "weather source is required",
		},
		{
			name:    "missing llm client",
			cfg:     workflow.DefaultConfig(),
			deps:    workflow.Dependencies{Weather: weather, Knowledge: store},
			wantErr: "llm client is required",
		},
		{
			name:    "missing knowledge store",
			cfg:     workflow.DefaultConfig(),
			deps:    workflow.Dependencies{Weather: weather, LLM: llm},
			wantErr: "knowledge store is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph, err := workflow.NewInsightsGraph(tt.cfg, tt.deps)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, graph)
		})
	}
}

func TestRun_ManilaFarmersHeatSpike(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 4, 14, 2, 0, 0, 0, time.UTC))
	weather := testutil.NewMockWeatherSource()
	weather.CurrentFunc = func(ctx context.Context, coords domain.Coordinates, label string) (*domain.WeatherSnapshot, error) {
		snap := testutil.NewSnapshot(label, 38, 55, "Clear")
		return &snap, nil
	}
	weather.ForecastTemps = []float64{31, 34, 38, 37, 33, 30, 29, 31}
	llm := testutil.NewPipelineLLM()

	graph := newGraph(t, workflow.Dependencies{Weather: weather, LLM: llm, Clock: clock})

	result := graph.Run(testutil.NewTestContext(t), domain.AnalysisRequest{
		Location: "Manila, PH",
		Audience: domain.AudienceFarmers,
	})

	require.True(t, result.Success, "run failed: %s", result.ErrorMessage)
	assert.Empty(t, result.ErrorMessage)
	assert.Equal(t, "Manila, PH", result.Location)
	assert.Equal(t, "2025-04-14T10:00:00+08:00", result.AnalysisTime.Format(time.RFC3339))

	require.NotNil(t, result.CurrentWeather)
	assert.Equal(t, 38.0, result.CurrentWeather.Temperature)

	require.NotNil(t, result.DataQuality)
	assert.GreaterOrEqual(t, result.DataQuality.QualityScore, 0.0)
	assert.LessOrEqual(t, result.DataQuality.QualityScore, 1.0)

	require.NotNil(t, result.ForecastInsights)
	assert.Contains(t, result.ForecastInsights.RiskAlerts, agents.AlertHeat)
	assert.NotEmpty(t, result.ForecastInsights.Insights)

	require.NotNil(t, result.Recommendations)
	require.NotEmpty(t, result.Recommendations.ActionChecklist)
	assert.Equal(t, "NOW: Shade livestock", result.Recommendations.ActionChecklist[0])
	for _, rec := range result.Recommendations.Recommendations {
		if rec.Title == "Shade livestock" {
			assert.Equal(t, domain.PriorityCritical, rec.Priority)
		}
	}
	assert.Contains(t, result.Recommendations.ContactSuggestions, "Local health department for heat safety information")

	assert.NotEmpty(t, result.RelevantKnowledge)
	assert.LessOrEqual(t, len(result.RelevantKnowledge), 5)
	for i := 1; i < len(result.RelevantKnowledge); i++ {
		assert.GreaterOrEqual(t, result.RelevantKnowledge[i-1].Score, result.RelevantKnowledge[i].Score)
	}

	// The audience prompt is generated once for each agent that uses one
	assert.Equal(t, 1, llm.CallsFor("forecast_prompt"))
	assert.Equal(t, 1, llm.CallsFor("advice_prompt"))
}

func TestRun_UsesSuppliedCoordinates(t *testing.T) {
	weather := testutil.NewMockWeatherSource()
	graph := newGraph(t, workflow.Dependencies{Weather: weather})

	coords := domain.Coordinates{Latitude: 10.3157, Longitude: 123.8854}
	result := graph.Run(testutil.NewTestContext(t), domain.AnalysisRequest{Location: "Cebu", Coordinates: &coords})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, 0, weather.GetGeocodeCalls())
	assert.Equal(t, coords.Latitude, result.CurrentWeather.Latitude)
}

func TestRun_FetchesCurrentAndForecastConcurrently(t *testing.T) {
	currentEntered := make(chan struct{})
	forecastEntered := make(chan struct{})
	await := func(ctx context.Context, ch <-chan struct{}, other string) error {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return fmt.Errorf("%s fetch never started", other)
		}
	}

	weather := testutil.NewMockWeatherSource()
	weather.CurrentFunc = func(ctx context.Context, coords domain.Coordinates, label string) (*domain.WeatherSnapshot, error) {
		close(currentEntered)
		if err := await(ctx, forecastEntered, "forecast"); err != nil {
			return nil, err
		}
		snap := testutil.NewSnapshot(label, 30, 70, "Clouds")
		return &snap, nil
	}
	weather.ForecastFunc = func(ctx context.Context, coords domain.Coordinates, label string) (*domain.ForecastSeries, error) {
		close(forecastEntered)
		if err := await(ctx, currentEntered, "current"); err != nil {
			return nil, err
		}
		return testutil.NewForecastSeries(label, []float64{28, 29, 30}, 70, "Clouds"), nil
	}

	graph := newGraph(t, workflow.Dependencies{Weather: weather})
	result := graph.Run(testutil.NewTestContext(t), domain.AnalysisRequest{Location: "Iloilo"})

	require.True(t, result.Success, result.ErrorMessage)
	require.NotNil(t, result.CurrentWeather)
	assert.Equal(t, "Iloilo", result.CurrentWeather.Location)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(w *testutil.MockWeatherSource, llm *testutil.MockLLMClient)
		wantPrefix  string
		notCalled   []string
		wantNoCalls bool
	}{
		{
			name: "geocode failure",
			setup: func(w *testutil.MockWeatherSource, _ *testutil.MockLLMClient) {
				w.GeocodeFunc = func(ctx context.Context, name string) (domain.Coordinates, error) {
					return domain.Coordinates{}, fmt.Errorf("%w: %s", domain.ErrGeocodeNotFound, name)
				}
			},
			wantPrefix:  "Weather data fetch failed: location not found",
			wantNoCalls: true,
		},
		{
			name: "forecast provider failure",
			setup: func(w *testutil.MockWeatherSource, _ *testutil.MockLLMClient) {
				w.ForecastFunc = func(ctx context.Context, coords domain.Coordinates, label string) (*domain.ForecastSeries, error) {
					return nil, &domain.ProviderError{Status: 503, Message: "unavailable"}
				}
			},
			wantPrefix:  "Weather data fetch failed: weather provider returned status 503",
			wantNoCalls: true,
		},
		{
			name: "data quality failure",
			setup: func(_ *testutil.MockWeatherSource, llm *testutil.MockLLMClient) {
				llm.SetResponse("data_quality", "")
			},
			wantPrefix: "Data analysis failed: ",
			notCalled:  []string{"forecast_prompt", "forecast_narrative", "advice_narrative"},
		},
		{
			name: "forecast failure",
			setup: func(_ *testutil.MockWeatherSource, llm *testutil.MockLLMClient) {
				llm.SetResponse("forecast_narrative", "")
			},
			wantPrefix: "Forecast analysis failed: ",
			notCalled:  []string{"insight_extraction", "advice_prompt", "advice_narrative"},
		},
		{
			name: "advice failure",
			setup: func(_ *testutil.MockWeatherSource, llm *testutil.MockLLMClient) {
				llm.SetResponse("advice_narrative", "")
			},
			wantPrefix: "Advice generation failed: ",
			notCalled:  []string{"recommendation_extraction"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weather := testutil.NewMockWeatherSource()
			llm := testutil.NewPipelineLLM()
			tt.setup(weather, llm)

			graph := newGraph(t, workflow.Dependencies{Weather: weather, LLM: llm})
			result := graph.Run(testutil.NewTestContext(t), domain.AnalysisRequest{Location: "Manila", Audience: domain.AudienceFarmers})

			assert.False(t, result.Success)
			assert.True(t, strings.HasPrefix(result.ErrorMessage, tt.wantPrefix),
				"ErrorMessage = %q, want prefix %q", result.ErrorMessage, tt.wantPrefix)
			assert.Equal(t, "Manila", result.Location)
			assert.Nil(t, result.DataQuality)
			assert.Nil(t, result.ForecastInsights)
			assert.Nil(t, result.Recommendations)
			assert.NotNil(t, result.RelevantKnowledge)
			assert.Empty(t, result.RelevantKnowledge)

			if tt.wantNoCalls {
				assert.Equal(t, 0, llm.GetCallCount())
			}
			for _, purpose := range tt.notCalled {
				assert.Equal(t, 0, llm.CallsFor(purpose), "%s should not run after the failure", purpose)
			}
		})
	}
}

func TestRun_RecoversFromPanic(t *testing.T) {
	llm := testutil.NewMockLLMClient()
	llm.ChatFunc = func(ctx context.Context, messages []domain.Message, options domain.ChatOptions) (*domain.ChatResponse, error) {
		panic("backend exploded")
	}
	graph := newGraph(t, workflow.Dependencies{LLM: llm})

	result := graph.Run(testutil.NewTestContext(t), domain.AnalysisRequest{Location: "Manila"})

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, "Unexpected workflow error: backend exploded", result.ErrorMessage)
}

func TestRun_RecordsStageSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	graph := newGraph(t, workflow.Dependencies{Telemetry: testutil.NewTestTelemetry(recorder)})

	result := graph.Run(testutil.NewTestContext(t), domain.AnalysisRequest{Location: "Manila", Audience: domain.AudienceOfficials})
	require.True(t, result.Success, result.ErrorMessage)
	require.NotNil(t, graph.Metrics())

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	for _, want := range []string{
		"workflow.stage.fetch",
		"workflow.stage.data_quality",
		"workflow.stage.forecast",
		"workflow.stage.knowledge",
		"workflow.stage.advice",
		"analysis.request",
	} {
		assert.Contains(t, names, want)
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("timeout")
	err := &workflow.StageError{Stage: workflow.StageFetch, Message: "Weather data fetch failed", Err: cause}

	assert.Equal(t, "Weather data fetch failed: timeout", err.Error())
	assert.ErrorIs(t, err, cause)

	missing := &workflow.StageError{Stage: workflow.StageAdvice, Message: "Missing analysis data for advice generation"}
	assert.Equal(t, "Missing analysis data for advice generation", missing.Error())
}
