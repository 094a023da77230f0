package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/observability"
)

// Risk alert text, appended in this order when triggered
const (
	AlertHeat         = "HEAT WARNING: Extreme temperatures expected - risk of heat stress"
	AlertFrost        = "FROST WARNING: Freezing temperatures expected - protect crops and livestock"
	AlertStorm        = "STORM ALERT: Thunderstorms predicted - secure outdoor equipment"
	AlertHighWind     = "HIGH WIND WARNING: Strong winds expected - avoid tall structures"
	AlertHighHumidity = "HIGH HUMIDITY: Increased risk of plant diseases and heat stress"
	AlertDry          = "DRY CONDITIONS: No rain expected - monitor irrigation needs"
)

// Risk thresholds
const (
	heatThreshold         = 35.0
	frostThreshold        = 0.0
	highWindThreshold     = 20.0
	highHumidityThreshold = 85.0
	dryHumidityThreshold  = 50.0

	trendSlopeThreshold  = 0.5
	trendHumidityMean    = 75.0
	trendWindThreshold   = 15.0
	summaryTempDiffLimit = 3.0
	dailySummaryDays     = 5
)

var (
	stormConditions = map[string]bool{"Thunderstorm": true, "Squall": true}
	rainConditions  = map[string]bool{"Rain": true, "Drizzle": true, "Thunderstorm": true}
)

// Fallback keyword tables for insights
var (
	insightPriorityKeywords = []keywordRule{
		{label: string(domain.PriorityCritical), keywords: []string{"critical", "urgent", "warning", "danger"}},
		{label: string(domain.PriorityHigh), keywords: []string{"important", "risk", "alert", "avoid"}},
		{label: string(domain.PriorityMedium), keywords: []string{"consider", "monitor", "watch"}},
	}

	insightConfidenceKeywords = []struct {
		confidence float64
		keywords   []string
	}{
		{confidence: 0.8, keywords: []string{"likely", "expected", "will"}},
		{confidence: 0.6, keywords: []string{"possible", "may", "might"}},
	}

	insightHorizonKeywords = []keywordRule{
		{label: string(domain.HorizonImmediate), keywords: []string{"today", "now", "immediate"}},
		{label: string(domain.Horizon24h), keywords: []string{"tomorrow", "24 hour", "next day"}},
		{label: string(domain.Horizon3Day), keywords: []string{"3 day", "this week"}},
	}

	// Section headers in a forecast narrative and the insight category they carry
	insightSections = map[string]domain.InsightCategory{
		"AGRICULTURE INSIGHTS:":   domain.CategoryAgriculture,
		"DISASTER RISKS:":         domain.CategoryDisaster,
		"TIMING RECOMMENDATIONS:": domain.CategoryGeneral,
	}
	insightSectionOrder = []string{"AGRICULTURE INSIGHTS:", "DISASTER RISKS:", "TIMING RECOMMENDATIONS:"}
)

const defaultInsightConfidence = 0.7

// IdentifyTrends describes the temperature, humidity, pressure and wind patterns of a series
func IdentifyTrends(points []domain.WeatherSnapshot) []string {
	if len(points) == 0 {
		return []string{}
	}

	temps := make([]float64, len(points))
	pressures := make([]float64, len(points))
	for i, p := range points {
		temps[i] = p.Temperature
		pressures[i] = p.Pressure
	}

	var trends []string

	switch slope := linearSlope(temps); {
	case slope > trendSlopeThreshold:
		trends = append(trends, "Temperatures rising over the forecast period")
	case slope < -trendSlopeThreshold:
		trends = append(trends, "Temperatures falling over the forecast period")
	default:
		trends = append(trends, "Stable temperature pattern expected")
	}

	if meanHumidity(points) > trendHumidityMean {
		trends = append(trends, "High humidity levels - increased thunderstorm risk")
	}

	switch slope := linearSlope(pressures); {
	case slope < -trendSlopeThreshold:
		trends = append(trends, "Falling atmospheric pressure - potential weather system approaching")
	case slope > trendSlopeThreshold:
		trends = append(trends, "Rising atmospheric pressure - clearing weather expected")
	}

	if maxWind(points) > trendWindThreshold {
		trends = append(trends, "High wind speeds expected - potential for severe weather")
	}

	return trends
}

// AssessRisks evaluates the six risk conditions over a series
func AssessRisks(points []domain.WeatherSnapshot) []string {
	risks := []string{}
	if len(points) == 0 {
		return risks
	}

	maxTemp, minTemp := points[0].Temperature, points[0].Temperature
	storm, rain := false, false
	for _, p := range points {
		if p.Temperature > maxTemp {
			maxTemp = p.Temperature
		}
		if p.Temperature < minTemp {
			minTemp = p.Temperature
		}
		storm = storm || stormConditions[p.Condition]
		rain = rain || rainConditions[p.Condition]
	}
	humidity := meanHumidity(points)

	if maxTemp > heatThreshold {
		risks = append(risks, AlertHeat)
	}
	if minTemp < frostThreshold {
		risks = append(risks, AlertFrost)
	}
	if storm {
		risks = append(risks, AlertStorm)
	}
	if maxWind(points) > highWindThreshold {
		risks = append(risks, AlertHighWind)
	}
	if humidity > highHumidityThreshold {
		risks = append(risks, AlertHighHumidity)
	}
	if !rain && humidity < dryHumidityThreshold {
		risks = append(risks, AlertDry)
	}

	return risks
}

// linearSlope returns the least-squares slope of values over their index
func linearSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}

	meanX := (n - 1) / 2
	var meanY float64
	for _, v := range values {
		meanY += v
	}
	meanY /= n

	var num, den float64
	for i, v := range values {
		dx := float64(i) - meanX
		num += dx * (v - meanY)
		den += dx * dx
	}
	return num / den
}

func meanHumidity(points []domain.WeatherSnapshot) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += float64(p.Humidity)
	}
	return sum / float64(len(points))
}

func maxWind(points []domain.WeatherSnapshot) float64 {
	var m float64
	for i, p := range points {
		if i == 0 || p.WindSpeed > m {
			m = p.WindSpeed
		}
	}
	return m
}

// ParseInsights extracts insights from the bulleted sections of a forecast narrative
func ParseInsights(text string) []domain.Insight {
	sections := make(map[string][]string)
	bulletSections(text, insightSectionOrder, func(section, item string) {
		sections[section] = append(sections[section], item)
	})

	insights := []domain.Insight{}
	for _, section := range insightSectionOrder {
		for _, item := range sections[section] {
			insights = append(insights, domain.Insight{
				Category:    insightSections[section],
				Priority:    domain.Priority(classify(item, insightPriorityKeywords, string(domain.PriorityLow))),
				TimeHorizon: domain.TimeHorizon(classify(item, insightHorizonKeywords, string(domain.HorizonWeekly))),
				Title:       insightTitle(item),
				Description: item,
				Confidence:  insightConfidence(item),
			})
		}
	}
	return insights
}

func insightTitle(item string) string {
	if i := strings.Index(item, "."); i >= 0 {
		return item[:i]
	}
	return truncate(item, 50) + "..."
}

func insightConfidence(item string) float64 {
	lower := strings.ToLower(item)
	for _, rule := range insightConfidenceKeywords {
		if containsAny(lower, rule.keywords) {
			return rule.confidence
		}
	}
	return defaultInsightConfidence
}

type extractedInsight struct {
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	TimeHorizon string   `json:"time_horizon"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Confidence  *float64 `json:"confidence"`
}

// decodeInsights parses an extraction response, applying defaults and normalizing enums
func decodeInsights(text string) ([]domain.Insight, error) {
	array, err := extractJSONArray(text)
	if err != nil {
		return nil, err
	}

	var raw []extractedInsight
	if err := json.Unmarshal([]byte(array), &raw); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	insights := make([]domain.Insight, 0, len(raw))
	for _, r := range raw {
		insight := domain.Insight{
			Category:    normalizeCategory(r.Category),
			Priority:    normalizePriority(r.Priority, domain.PriorityMedium),
			TimeHorizon: normalizeHorizon(r.TimeHorizon),
			Title:       r.Title,
			Description: r.Description,
			Confidence:  defaultInsightConfidence,
		}
		if insight.Title == "" {
			insight.Title = "Weather insight"
		}
		if r.Confidence != nil {
			insight.Confidence = clamp01(*r.Confidence)
		}
		insights = append(insights, insight)
	}
	return insights, nil
}

func normalizeCategory(s string) domain.InsightCategory {
	switch c := domain.InsightCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case domain.CategoryAgriculture, domain.CategoryDisaster, domain.CategoryGeneral:
		return c
	default:
		return domain.CategoryGeneral
	}
}

func normalizePriority(s string, fallback domain.Priority) domain.Priority {
	switch p := domain.Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case domain.PriorityCritical, domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow:
		return p
	default:
		return fallback
	}
}

func normalizeHorizon(s string) domain.TimeHorizon {
	switch h := domain.TimeHorizon(strings.ToLower(strings.TrimSpace(s))); h {
	case domain.HorizonImmediate, domain.Horizon24h, domain.Horizon3Day, domain.HorizonWeekly:
		return h
	default:
		return domain.Horizon24h
	}
}

// ForecastAgent interprets a forecast series for an audience
type ForecastAgent struct {
	llm     domain.LLMClient
	opts    options
	prompts *PromptCache
	logger  *observability.StructuredLogger
}

// NewForecastAgent creates a forecast agent with its own prompt cache
func NewForecastAgent(llm domain.LLMClient, opts ...Option) *ForecastAgent {
	a := &ForecastAgent{
		llm:    llm,
		opts:   newOptions(opts),
		logger: observability.NewStructuredLogger(ForecastAgentName),
	}
	a.prompts = NewPromptCache(ForecastAgentName, a.generatePrompt, a.opts.metrics)
	return a
}

// Name returns the agent name
func (a *ForecastAgent) Name() string {
	return ForecastAgentName
}

// Prompts returns the agent's audience prompt cache
func (a *ForecastAgent) Prompts() *PromptCache {
	return a.prompts
}

// Analyze produces trends, risk alerts and insights for the series.
// A failed narrative is an error; a failed insight extraction falls back to the line parser.
func (a *ForecastAgent) Analyze(ctx context.Context, current *domain.WeatherSnapshot, series *domain.ForecastSeries, audience domain.Audience) (*domain.ForecastInsightResult, error) {
	if current == nil || series == nil {
		return nil, fmt.Errorf("current weather and forecast are required")
	}

	tmpl, err := a.prompts.Get(ctx, audience)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s prompt: %w", audience, err)
	}

	prompt := renderTemplate(tmpl,
		placeholder{name: "current_weather", label: "Current Weather", value: summarizeCurrent(current)},
		placeholder{name: "forecast_data", label: "5-Day Forecast", value: summarizeForecast(series)},
	)

	narrative, err := complete(ctx, a.llm, "forecast_narrative", prompt, a.opts.chat)
	if err != nil {
		return nil, err
	}

	return &domain.ForecastInsightResult{
		Location:     series.Location,
		AnalysisTime: a.opts.clock.Now().In(domain.PhilippineTZ),
		Insights:     a.extractInsights(ctx, narrative, audience),
		Trends:       IdentifyTrends(series.Points),
		RiskAlerts:   AssessRisks(series.Points),
		Summary:      narrative,
	}, nil
}

func (a *ForecastAgent) generatePrompt(ctx context.Context, audience domain.Audience) (string, error) {
	return complete(ctx, a.llm, "forecast_prompt", fmt.Sprintf(forecastMetaPrompt, audience), a.opts.chat)
}

func (a *ForecastAgent) extractInsights(ctx context.Context, narrative string, audience domain.Audience) []domain.Insight {
	prompt := fmt.Sprintf(insightExtractionPrompt, narrative, audience)

	response, err := complete(ctx, a.llm, "insight_extraction", prompt, a.opts.chat)
	if err == nil {
		insights, decodeErr := decodeInsights(response)
		if decodeErr == nil {
			return insights
		}
		err = decodeErr
	}

	a.logger.Warn(ctx, "Insight extraction failed, using line parser", map[string]interface{}{
		"audience": string(audience),
		"error":    err.Error(),
	})
	if a.opts.metrics != nil {
		a.opts.metrics.RecordExtractionFallback(ctx, ForecastAgentName)
	}
	return ParseInsights(narrative)
}

func summarizeCurrent(w *domain.WeatherSnapshot) string {
	return fmt.Sprintf(`Temperature: %v°C
Humidity: %d%%
Pressure: %v hPa
Wind: %v m/s from %d°
Conditions: %s
Time: %s`,
		w.Temperature, w.Humidity, w.Pressure, w.WindSpeed, w.WindDirection, w.Description,
		w.Timestamp.In(domain.PhilippineTZ).Format("2006-01-02 15:04"))
}

func summarizeForecast(series *domain.ForecastSeries) string {
	points := series.Points
	if len(points) == 0 {
		return "Forecast Period: no data points available"
	}

	first, last := points[0].Temperature, points[len(points)-1].Temperature
	trend := "stable"
	switch diff := last - first; {
	case diff > summaryTempDiffLimit:
		trend = "warming"
	case diff < -summaryTempDiffLimit:
		trend = "cooling"
	}

	rainPeriods := 0
	var windSum float64
	for _, p := range points {
		if rainConditions[p.Condition] {
			rainPeriods++
		}
		windSum += p.WindSpeed
	}

	humidity := meanHumidity(points)
	humidityTrend := "normal"
	switch {
	case humidity > 80:
		humidityTrend = "high"
	case humidity < 40:
		humidityTrend = "low"
	}

	return fmt.Sprintf(`Forecast Period: %d data points over 5 days
Temperature Trend: %s (from %.1f°C to %.1f°C)
Precipitation: %d periods of rain/storms expected
Humidity: %s (%.0f%% average)
Wind: Average %.1f m/s, maximum %.1f m/s

Daily Breakdown:
%s`,
		len(points), trend, first, last, rainPeriods, humidityTrend, humidity,
		windSum/float64(len(points)), maxWind(points), dailyBreakdown(points))
}

// dailyBreakdown summarizes each Philippine calendar day of the series
func dailyBreakdown(points []domain.WeatherSnapshot) string {
	type day struct {
		date       string
		min, max   float64
		humidity   float64
		wind       float64
		count      int
		conditions map[string]int
	}

	var days []*day
	index := make(map[string]*day)
	for _, p := range points {
		date := p.Timestamp.In(domain.PhilippineTZ).Format("2006-01-02")
		d, ok := index[date]
		if !ok {
			d = &day{date: date, min: p.Temperature, max: p.Temperature, wind: p.WindSpeed, conditions: map[string]int{}}
			index[date] = d
			days = append(days, d)
		}
		if p.Temperature < d.min {
			d.min = p.Temperature
		}
		if p.Temperature > d.max {
			d.max = p.Temperature
		}
		if p.WindSpeed > d.wind {
			d.wind = p.WindSpeed
		}
		d.humidity += float64(p.Humidity)
		d.count++
		d.conditions[p.Condition]++
	}

	sort.SliceStable(days, func(i, j int) bool { return days[i].date < days[j].date })
	if len(days) > dailySummaryDays {
		days = days[:dailySummaryDays]
	}

	lines := make([]string, 0, len(days))
	for _, d := range days {
		lines = append(lines, fmt.Sprintf("%s: %.1f-%.1f°C, %s, %.0f%% humidity, %.1f m/s wind",
			d.date, d.min, d.max, dominantCondition(d.conditions), d.humidity/float64(d.count), d.wind))
	}
	return strings.Join(lines, "\n")
}

// dominantCondition returns the most frequent condition, alphabetically first on ties
func dominantCondition(counts map[string]int) string {
	best, bestCount := "Unknown", 0
	for cond, n := range counts {
		if n > bestCount || (n == bestCount && cond < best) {
			best, bestCount = cond, n
		}
	}
	return best
}
