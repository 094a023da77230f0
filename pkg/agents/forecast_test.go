package agents_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncolesummers/weather-insights-agent/internal/testutil"
	"github.com/ncolesummers/weather-insights-agent/pkg/agents"
	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
)

// calmSeries triggers no risk alert: 25°C, 60% humidity, light wind, cloudy
func calmSeries(mutate func(i int, p *domain.WeatherSnapshot)) []domain.WeatherSnapshot {
	series := testutil.NewForecastSeries("Manila", []float64{25, 25, 25, 25}, 60, "Clouds")
	for i := range series.Points {
		mutate(i, &series.Points[i])
	}
	return series.Points
}

func TestAssessRisks_Thresholds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(i int, p *domain.WeatherSnapshot)
		want   []string
	}{
		{
			name:   "calm",
			mutate: func(int, *domain.WeatherSnapshot) {},
			want:   []string{},
		},
		{
			name:   "heat at threshold",
			mutate: func(i int, p *domain.WeatherSnapshot) { p.Temperature = 35 },
			want:   []string{},
		},
		{
			name: "heat past threshold",
			mutate: func(i int, p *domain.WeatherSnapshot) {
				if i == 2 {
					p.Temperature = 36
				}
			},
			want: []string{agents.AlertHeat},
		},
		{
			name:   "frost at threshold",
			mutate: func(i int, p *domain.WeatherSnapshot) { p.Temperature = 0 },
			want:   []string{},
		},
		{
			name: "frost past threshold",
			mutate: func(i int, p *domain.WeatherSnapshot) {
				if i == 3 {
					p.Temperature = -1
				}
			},
			want: []string{agents.AlertFrost},
		},
		{
			name: "thunderstorm",
			mutate: func(i int, p *domain.WeatherSnapshot) {
				if i == 1 {
					p.Condition = "Thunderstorm"
				}
			},
			want: []string{agents.AlertStorm},
		},
		{
			name: "squall",
			mutate: func(i int, p *domain.WeatherSnapshot) {
				if i == 0 {
					p.Condition = "Squall"
				}
			},
			want: []string{agents.AlertStorm},
		},
		{
			name:   "wind at threshold",
			mutate: func(i int, p *domain.WeatherSnapshot) { p.WindSpeed = 20 },
			want:   []string{},
		},
		{
			name: "wind past threshold",
			mutate: func(i int, p *domain.WeatherSnapshot) {
				if i == 1 {
					p.WindSpeed = 21
				}
			},
			want: []string{agents.AlertHighWind},
		},
		{
			name:   "humidity mean at threshold",
			mutate: func(i int, p *domain.WeatherSnapshot) { p.Humidity = 85 },
			want:   []string{},
		},
		{
			name:   "humidity mean past threshold",
			mutate: func(i int, p *domain.WeatherSnapshot) { p.Humidity = 86 },
			want:   []string{agents.AlertHighHumidity},
		},
		{
			name:   "dry at threshold",
			mutate: func(i int, p *domain.WeatherSnapshot) { p.Humidity = 50 },
			want:   []string{},
		},
		{
			name:   "dry past threshold",
			mutate: func(i int, p *domain.WeatherSnapshot) { p.Humidity = 49 },
			want:   []string{agents.AlertDry},
		},
		{
			name: "low humidity with rain is not dry",
			mutate: func(i int, p *domain.WeatherSnapshot) {
				p.Humidity = 40
				if i == 2 {
					p.Condition = "Drizzle"
				}
			},
			want: []string{},
		},
		{
			name: "alerts keep evaluation order",
			mutate: func(i int, p *domain.WeatherSnapshot) {
				p.Humidity = 90
				p.Condition = "Thunderstorm"
				if i == 0 {
					p.Temperature = 38
					p.WindSpeed = 25
				}
			},
			want: []string{agents.AlertHeat, agents.AlertStorm, agents.AlertHighWind, agents.AlertHighHumidity},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := agents.AssessRisks(calmSeries(tt.mutate))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdentifyTrends(t *testing.T) {
	tests := []struct {
		name      string
		temps     []float64
		humidity  int
		pressures []float64
		wind      float64
		want      []string
	}{
		{
			name:  "warming",
			temps: []float64{20, 22, 24, 26},
			want:  []string{"Temperatures rising over the forecast period"},
		},
		{
			name:  "cooling",
			temps: []float64{30, 28, 26, 24},
			want:  []string{"Temperatures falling over the forecast period"},
		},
		{
			name:  "stable within slope threshold",
			temps: []float64{25, 25.5, 25, 25.5},
			want:  []string{"Stable temperature pattern expected"},
		},
		{
			name:      "humid, falling pressure, windy",
			temps:     []float64{25, 25, 25, 25},
			humidity:  80,
			pressures: []float64{1012, 1010, 1008, 1006},
			wind:      16,
			want: []string{
				"Stable temperature pattern expected",
				"High humidity levels - increased thunderstorm risk",
				"Falling atmospheric pressure - potential weather system approaching",
				"High wind speeds expected - potential for severe weather",
			},
		},
		{
			name:      "rising pressure",
			temps:     []float64{25, 25, 25},
			pressures: []float64{1000, 1004, 1008},
			want: []string{
				"Stable temperature pattern expected",
				"Rising atmospheric pressure - clearing weather expected",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			humidity := tt.humidity
			if humidity == 0 {
				humidity = 60
			}
			series := testutil.NewForecastSeries("Manila", tt.temps, humidity, "Clouds")
			for i := range series.Points {
				if tt.pressures != nil {
					series.Points[i].Pressure = tt.pressures[i]
				}
				if tt.wind != 0 {
					series.Points[i].WindSpeed = tt.wind
				}
			}

			assert.Equal(t, tt.want, agents.IdentifyTrends(series.Points))
		})
	}
}

func TestParseInsights(t *testing.T) {
	insights := agents.ParseInsights(testutil.ForecastNarrative)

	require.Len(t, insights, 3)

	assert.Equal(t, domain.Insight{
		Category:    domain.CategoryAgriculture,
		Priority:    domain.PriorityLow,
		TimeHorizon: domain.HorizonWeekly,
		Title:       "Irrigate early in the morning",
		Description: "Irrigate early in the morning. Heat stress is expected by afternoon.",
		Confidence:  0.8,
	}, insights[0])

	assert.Equal(t, domain.PriorityMedium, insights[1].Priority)
	assert.Equal(t, "Consider delaying transplanting until temperatures...", insights[1].Title)
	assert.Equal(t, 0.7, insights[1].Confidence)

	assert.Equal(t, domain.CategoryDisaster, insights[2].Category)
	assert.Equal(t, domain.PriorityCritical, insights[2].Priority)
	assert.Equal(t, domain.HorizonImmediate, insights[2].TimeHorizon)
}

func TestParseInsights_TimingSectionIsGeneral(t *testing.T) {
	text := "TIMING RECOMMENDATIONS:\n- Travel tomorrow morning is likely safe\n- stray line\nnot a bullet"

	insights := agents.ParseInsights(text)

	require.Len(t, insights, 2)
	assert.Equal(t, domain.CategoryGeneral, insights[0].Category)
	assert.Equal(t, domain.Horizon24h, insights[0].TimeHorizon)
}

func TestParseInsights_BulletsBeforeAnySection(t *testing.T) {
	insights := agents.ParseInsights("- orphan bullet\nSome prose")
	assert.Empty(t, insights)
}

func TestForecastAgent_Analyze(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 4, 14, 0, 30, 0, 0, time.UTC))
	llm := testutil.NewPipelineLLM()
	agent := agents.NewForecastAgent(llm, agents.WithClock(clock))

	current := testutil.NewSnapshot("Manila, PH", 33, 70, "Clear")
	series := testutil.NewForecastSeries("Manila, PH", []float64{30, 33, 38, 34}, 60, "Clear")

	result, err := agent.Analyze(testutil.NewTestContext(t), &current, series, domain.AudienceFarmers)
	require.NoError(t, err)

	assert.Equal(t, "Manila, PH", result.Location)
	assert.Equal(t, "2025-04-14T08:30:00+08:00", result.AnalysisTime.Format(time.RFC3339))
	assert.Equal(t, []string{agents.AlertHeat}, result.RiskAlerts)
	assert.Equal(t, testutil.ForecastNarrative, result.Summary)

	require.Len(t, result.Insights, 2)
	assert.Equal(t, "Heat stress warning", result.Insights[1].Title)
	assert.Equal(t, domain.PriorityCritical, result.Insights[1].Priority)
	assert.Equal(t, 0.9, result.Insights[1].Confidence)
	assert.Equal(t, 1, llm.CallsFor("insight_extraction"))
}

func TestForecastAgent_ExtractionDefaultsAndNormalization(t *testing.T) {
	llm := testutil.NewPipelineLLM()
	llm.SetResponse("insight_extraction", `Here you go: [{"category": "Weather", "priority": "URGENT", "description": "Bring umbrellas", "confidence": 1.7}, {"category": "AGRICULTURE", "time_horizon": "3-day"}] thanks`)
	agent := agents.NewForecastAgent(llm)

	current := testutil.NewSnapshot("Cebu", 29, 70, "Rain")
	series := testutil.NewForecastSeries("Cebu", []float64{29, 29}, 70, "Rain")

	result, err := agent.Analyze(testutil.NewTestContext(t), &current, series, domain.AudienceGeneral)
	require.NoError(t, err)
	require.Len(t, result.Insights, 2)

	assert.Equal(t, domain.Insight{
		Category:    domain.CategoryGeneral,
		Priority:    domain.PriorityMedium,
		TimeHorizon: domain.Horizon24h,
		Title:       "Weather insight",
		Description: "Bring umbrellas",
		Confidence:  1.0,
	}, result.Insights[0])
	assert.Equal(t, domain.CategoryAgriculture, result.Insights[1].Category)
	assert.Equal(t, domain.Horizon3Day, result.Insights[1].TimeHorizon)
	assert.Equal(t, 0.7, result.Insights[1].Confidence)
}

func TestForecastAgent_FallsBackOnInvalidExtraction(t *testing.T) {
	tests := []struct {
		name       string
		extraction string
	}{
		{name: "prose without array", extraction: "I could not find any insights."},
		{name: "broken json", extraction: `[{"category": "agriculture", "priority": }]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := testutil.NewPipelineLLM()
			llm.SetResponse("insight_extraction", tt.extraction)
			agent := agents.NewForecastAgent(llm)

			current := testutil.NewSnapshot("Manila", 30, 70, "Clouds")
			series := testutil.NewForecastSeries("Manila", []float64{29, 30}, 70, "Clouds")

			result, err := agent.Analyze(testutil.NewTestContext(t), &current, series, domain.AudienceFarmers)
			require.NoError(t, err)
			assert.Equal(t, agents.ParseInsights(testutil.ForecastNarrative), result.Insights)
		})
	}
}

func TestForecastAgent_NarrativeFailure(t *testing.T) {
	llm := testutil.NewPipelineLLM()
	llm.SetResponse("forecast_narrative", "")
	agent := agents.NewForecastAgent(llm)

	current := testutil.NewSnapshot("Manila", 30, 70, "Clouds")
	series := testutil.NewForecastSeries("Manila", []float64{29, 30}, 70, "Clouds")

	_, err := agent.Analyze(testutil.NewTestContext(t), &current, series, domain.AudienceFarmers)
	require.Error(t, err)
}
