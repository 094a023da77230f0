package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/observability"
)

// Plausible ranges for a single reading
const (
	minTemperature = -60.0
	maxTemperature = 60.0
	minPressure    = 800.0
	maxPressure    = 1200.0
	maxWindSpeed   = 50.0

	defaultNarrativeScore = 0.8
	minRecordsForInsight  = 5
	rawDataPreviewLimit   = 1000
)

var scorePattern = regexp.MustCompile(`^[+-]?\d*\.?\d+`)

// ValidationReport is the outcome of the rule-based validator
type ValidationReport struct {
	Score           float64
	Checks          int
	Anomalies       []string
	Recommendations []string
}

// ValidateSnapshots checks every reading against its plausible range.
// The score is the share of checks that passed, 1.0 when nothing was checked.
func ValidateSnapshots(records []domain.WeatherSnapshot) ValidationReport {
	var (
		report ValidationReport
		issues int
	)

	for _, r := range records {
		report.Checks += 4

		if r.Temperature < minTemperature || r.Temperature > maxTemperature {
			report.Anomalies = append(report.Anomalies, fmt.Sprintf("Extreme temperature reading: %v°C", r.Temperature))
			issues++
		}
		if r.Humidity < 0 || r.Humidity > 100 {
			report.Anomalies = append(report.Anomalies, fmt.Sprintf("Invalid humidity reading: %d%%", r.Humidity))
			issues++
		}
		if r.Pressure < minPressure || r.Pressure > maxPressure {
			report.Anomalies = append(report.Anomalies, fmt.Sprintf("Unusual pressure reading: %v hPa", r.Pressure))
			issues++
		}
		if r.WindSpeed > maxWindSpeed {
			report.Anomalies = append(report.Anomalies, fmt.Sprintf("Extreme wind speed: %v m/s", r.WindSpeed))
			issues++
		}
	}

	report.Score = 1.0 - float64(issues)/math.Max(float64(report.Checks), 1)

	if len(report.Anomalies) == 0 {
		report.Recommendations = append(report.Recommendations, "Weather data appears reliable for analysis")
	} else {
		report.Recommendations = append(report.Recommendations, "Review flagged readings before making critical decisions")
	}
	if len(records) < minRecordsForInsight {
		report.Recommendations = append(report.Recommendations, "Consider gathering more data points for better insights")
	}

	return report
}

// QualityNarrative holds the labeled lines parsed from a narrative assessment
type QualityNarrative struct {
	Score           float64
	Issues          []string
	Recommendations []string
}

// ParseQualityNarrative reads the QUALITY SCORE, ISSUES FOUND and RECOMMENDATIONS lines.
// A missing or malformed score defaults to 0.8.
func ParseQualityNarrative(text string) QualityNarrative {
	parsed := QualityNarrative{Score: defaultNarrativeScore}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "**", ""))

		switch {
		case strings.HasPrefix(line, "QUALITY SCORE:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "QUALITY SCORE:"))
			score, err := strconv.ParseFloat(scorePattern.FindString(value), 64)
			if err != nil {
				score = defaultNarrativeScore
			}
			parsed.Score = score

		case strings.HasPrefix(line, "ISSUES FOUND:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "ISSUES FOUND:"))
			if value != "" && strings.ToLower(value) != "none detected" {
				parsed.Issues = append(parsed.Issues, value)
			}

		case strings.HasPrefix(line, "RECOMMENDATIONS:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "RECOMMENDATIONS:"))
			if value != "" {
				parsed.Recommendations = append(parsed.Recommendations, value)
			}
		}
	}

	return parsed
}

// DataQualityAgent assesses the reliability of the current observation
type DataQualityAgent struct {
	llm    domain.LLMClient
	opts   options
	logger *observability.StructuredLogger
}

// NewDataQualityAgent creates a data quality agent
func NewDataQualityAgent(llm domain.LLMClient, opts ...Option) *DataQualityAgent {
	return &DataQualityAgent{
		llm:    llm,
		opts:   newOptions(opts),
		logger: observability.NewStructuredLogger(DataQualityAgentName),
	}
}

// Name returns the agent name
func (a *DataQualityAgent) Name() string {
	return DataQualityAgentName
}

// Assess merges the rule-based validation with a narrative assessment.
// The higher of the two scores wins and both anomaly lists are kept.
func (a *DataQualityAgent) Assess(ctx context.Context, current *domain.WeatherSnapshot) (*domain.DataQualityResult, error) {
	if current == nil {
		return nil, fmt.Errorf("current weather is required")
	}

	prompt := fmt.Sprintf(dataQualityPrompt, formatQualityInput(current))
	narrative, err := complete(ctx, a.llm, "data_quality", prompt, a.opts.chat)
	if err != nil {
		return nil, err
	}

	parsed := ParseQualityNarrative(narrative)
	rules := ValidateSnapshots([]domain.WeatherSnapshot{*current})

	a.logger.Debug(ctx, "Assessed data quality", map[string]interface{}{
		"location":        current.Location,
		"narrative_score": parsed.Score,
		"rule_score":      rules.Score,
		"anomalies":       len(rules.Anomalies) + len(parsed.Issues),
	})

	anomalies := make([]string, 0, len(parsed.Issues)+len(rules.Anomalies))
	anomalies = append(anomalies, parsed.Issues...)
	anomalies = append(anomalies, rules.Anomalies...)

	return &domain.DataQualityResult{
		QualityScore:    clamp01(math.Max(parsed.Score, rules.Score)),
		Anomalies:       anomalies,
		Summary:         narrative,
		Recommendations: append(parsed.Recommendations, rules.Recommendations...),
	}, nil
}

func formatQualityInput(w *domain.WeatherSnapshot) string {
	raw, err := json.Marshal(w)
	if err != nil {
		raw = []byte(fmt.Sprintf("%+v", *w))
	}

	return fmt.Sprintf(`Data Type: WeatherSnapshot
Summary:
Location: %s
Temperature: %v°C (%s)
Humidity: %d%%
Wind: %v m/s
Pressure: %v hPa
Time: %s
Raw Data: %s...`,
		w.Location, w.Temperature, w.Description, w.Humidity, w.WindSpeed, w.Pressure,
		w.Timestamp.Format("2006-01-02 15:04:05"), truncate(string(raw), rawDataPreviewLimit))
}
