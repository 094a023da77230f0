package testutil

import (
	"context"
	"testing"
	"time"

	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/observability"
)

// TestTimeout provides a standard timeout for test contexts
const TestTimeout = 5 * time.Second

// FixedTime is the base timestamp for fixtures
var FixedTime = time.Date(2025, 4, 14, 6, 0, 0, 0, domain.PhilippineTZ)

// ManilaCoordinates is the fixture location for geocoding
var ManilaCoordinates = domain.Coordinates{Latitude: 14.5995, Longitude: 120.9842}

// NewTestContext creates a context with standard test timeout
func NewTestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// NewSnapshot creates a plausible observation
func NewSnapshot(location string, temperature float64, humidity int, condition string) domain.WeatherSnapshot {
	return domain.WeatherSnapshot{
		Location:      location,
		Latitude:      ManilaCoordinates.Latitude,
		Longitude:     ManilaCoordinates.Longitude,
		Temperature:   temperature,
		Humidity:      humidity,
		Pressure:      1010,
		WindSpeed:     4.5,
		WindDirection: 90,
		Condition:     condition,
		Description:   "scattered clouds",
		Timestamp:     FixedTime,
	}
}

// NewForecastSeries creates a 3-hourly series with one point per temperature
func NewForecastSeries(location string, temps []float64, humidity int, condition string) *domain.ForecastSeries {
	series := &domain.ForecastSeries{Location: location}
	for i, temp := range temps {
		p := NewSnapshot(location, temp, humidity, condition)
		p.Timestamp = FixedTime.Add(time.Duration(i) * 3 * time.Hour)
		series.Points = append(series.Points, p)
	}
	return series
}

// NewTestTelemetry creates telemetry that records spans and discards metrics
func NewTestTelemetry(spanRecorder *tracetest.SpanRecorder) *observability.Telemetry {
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(spanRecorder))
	return observability.NewTelemetryFromProviders(tp, metricnoop.NewMeterProvider())
}

// Completions for every backend call the pipeline makes, keyed by purpose
const (
	ForecastPromptTemplate = `You are a weather forecasting specialist helping {audience}.

Current conditions:
{current_weather}

Forecast:
{forecast_data}`

	ForecastNarrative = `WEATHER TRENDS: Hot and dry conditions building through midweek.

AGRICULTURE INSIGHTS:
- Irrigate early in the morning. Heat stress is expected by afternoon.
- Consider delaying transplanting until temperatures ease

DISASTER RISKS:
- Heat warning for outdoor workers today

CONFIDENCE LEVEL: high - consistent model agreement`

	InsightExtraction = "```json\n" + `[
  {"category": "agriculture", "priority": "high", "time_horizon": "24h", "title": "Irrigate early", "description": "Irrigate before 8am to limit evaporation", "confidence": 0.85},
  {"category": "disaster", "priority": "critical", "time_horizon": "immediate", "title": "Heat stress warning", "description": "Extreme heat expected this afternoon", "confidence": 0.9}
]` + "\n```"

	QualityNarrative = `QUALITY SCORE: 0.9
ISSUES FOUND: None detected
DATA SUMMARY: Complete observation with plausible readings
RECOMMENDATIONS: Data is suitable for planning decisions`

	AdvicePromptTemplate = `You are a weather advisory specialist helping farmers.

Data analysis:
{data_analysis}

Forecast analysis:
{forecast_analysis}`

	AdviceNarrative = `IMMEDIATE ACTIONS:
- Move livestock to shaded areas now

FARMING RECOMMENDATIONS:
- Irrigate crops tomorrow before sunrise

PLANNING ADVICE:
- Plan harvest for cooler days`

	RecommendationExtraction = `[
  {"target_audience": "farmers", "action_type": "planning", "priority": "low", "title": "Review planting calendar", "action": "Shift planting to next week", "reasoning": "Heat persists", "timing": "this_week", "resources_needed": []},
  {"target_audience": "farmers", "action_type": "immediate", "priority": "critical", "title": "Shade livestock", "action": "Move livestock under shade", "reasoning": "Heat stress risk", "timing": "now", "resources_needed": ["shade nets"]},
  {"target_audience": "farmers", "action_type": "preparation", "priority": "medium", "title": "Check irrigation lines", "action": "Inspect irrigation before the heat peak", "reasoning": "Crops need water", "timing": "within_24h", "resources_needed": ["water"]}
]`
)

// NewPipelineLLM creates a mock backend answering every pipeline call
func NewPipelineLLM() *MockLLMClient {
	m := NewMockLLMClient()
	m.Responses["forecast_prompt"] = ForecastPromptTemplate
	m.Responses["forecast_narrative"] = ForecastNarrative
	m.Responses["insight_extraction"] = InsightExtraction
	m.Responses["data_quality"] = QualityNarrative
	m.Responses["advice_prompt"] = AdvicePromptTemplate
	m.Responses["advice_narrative"] = AdviceNarrative
	m.Responses["recommendation_extraction"] = RecommendationExtraction
	return m
}
