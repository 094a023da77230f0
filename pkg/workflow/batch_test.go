package workflow_test

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncolesummers/weather-insights-agent/internal/testutil"
	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/workflow"
)

func TestRunBatch_IsolatesFailuresAndKeepsOrder(t *testing.T) {
	weather := testutil.NewMockWeatherSource()
	weather.GeocodeFunc = func(ctx context.Context, name string) (domain.Coordinates, error) {
		if name == "Atlantis" {
			return domain.Coordinates{}, fmt.Errorf("%w: %s", domain.ErrGeocodeNotFound, name)
		}
		return testutil.ManilaCoordinates, nil
	}
	graph := newGraph(t, workflow.Dependencies{Weather: weather})

	locations := []string{"Manila", "Atlantis", "Cebu"}
	results := graph.RunBatch(testutil.NewTestContext(t), locations, domain.AudienceFarmers)

	require.Len(t, results, 3)
	for i, location := range locations {
		require.NotNil(t, results[i])
		assert.Equal(t, location, results[i].Location, "result %d out of order", i)
	}

	assert.True(t, results[0].Success, results[0].ErrorMessage)
	assert.False(t, results[1].Success)
	assert.Equal(t, "Weather data fetch failed: location not found: Atlantis", results[1].ErrorMessage)
	assert.True(t, results[2].Success, results[2].ErrorMessage)
}

func TestRunBatch_PanicInOneRunDoesNotReachSiblings(t *testing.T) {
	base := testutil.NewPipelineLLM()
	llm := testutil.NewMockLLMClient()
	llm.ChatFunc = func(ctx context.Context, messages []domain.Message, options domain.ChatOptions) (*domain.ChatResponse, error) {
		if testutil.Purpose(messages) == "data_quality" && strings.Contains(messages[0].Content, "Location: Boom") {
			panic("corrupt observation")
		}
		return base.Chat(ctx, messages, options)
	}
	graph := newGraph(t, workflow.Dependencies{LLM: llm})

	results := graph.RunBatch(testutil.NewTestContext(t), []string{"Boom", "Manila"}, domain.AudienceGeneral)

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, "Unexpected workflow error: corrupt observation", results[0].ErrorMessage)
	assert.True(t, results[1].Success, results[1].ErrorMessage)
}

func TestRunBatch_RespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	weather := testutil.NewMockWeatherSource()
	weather.GeocodeFunc = func(ctx context.Context, name string) (domain.Coordinates, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return testutil.ManilaCoordinates, nil
	}

	cfg := workflow.DefaultConfig()
	cfg.BatchConcurrency = 2
	graph, err := workflow.NewInsightsGraph(cfg, workflow.Dependencies{
		Weather:   weather,
		LLM:       testutil.NewPipelineLLM(),
		Knowledge: newKnowledgeStore(t),
	})
	require.NoError(t, err)

	results := graph.RunBatch(testutil.NewTestContext(t), []string{"A", "B", "C", "D", "E"}, domain.AudienceGeneral)

	require.Len(t, results, 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 5, weather.GetGeocodeCalls())
}

func TestRunBatch_Empty(t *testing.T) {
	graph := newGraph(t, workflow.Dependencies{})

	results := graph.RunBatch(testutil.NewTestContext(t), nil, domain.AudienceGeneral)

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestBatchSummary(t *testing.T) {
	results := []*domain.InsightsResult{
		{Location: "Manila", Success: true},
		{Location: "Atlantis", Success: false, ErrorMessage: "Weather data fetch failed: location not found"},
		{Location: "Cebu", Success: true},
	}

	summary := workflow.BatchSummary(results, 1500*time.Millisecond)

	if summary.TotalLocations != 3 {
		t.Errorf("TotalLocations = %v, want 3", summary.TotalLocations)
	}
	if summary.SuccessfulAnalyses != 2 {
		t.Errorf("SuccessfulAnalyses = %v, want 2", summary.SuccessfulAnalyses)
	}
	if summary.FailedAnalyses != 1 {
		t.Errorf("FailedAnalyses = %v, want 1", summary.FailedAnalyses)
	}
	if summary.ProcessingTime != 1.5 {
		t.Errorf("ProcessingTime = %v, want 1.5", summary.ProcessingTime)
	}
	assert.Equal(t, results, summary.Results)
}
