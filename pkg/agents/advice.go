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

const (
	checklistLimit     = 10
	maxResources       = 3
	highlightInsights  = 5
	summaryExcerptSize = 500
	defaultReasoning   = "Based on current weather conditions and forecast"
)

// adviceSection describes a header in an advice narrative
type adviceSection struct {
	key        string
	audience   domain.TargetAudience
	actionType domain.ActionType
}

var (
	adviceSections = map[string]adviceSection{
		"IMMEDIATE ACTIONS":       {key: "immediate", audience: domain.TargetGeneralPublic, actionType: domain.ActionImmediate},
		"FARMING RECOMMENDATIONS": {key: "farming", audience: domain.TargetFarmers, actionType: domain.ActionPreparation},
		"DISASTER PREPAREDNESS":   {key: "disaster", audience: domain.TargetOfficials, actionType: domain.ActionPreparation},
		"PLANNING ADVICE":         {key: "planning", audience: domain.TargetGeneralPublic, actionType: domain.ActionPlanning},
		"MONITORING ALERTS":       {key: "monitoring", audience: domain.TargetGeneralPublic, actionType: domain.ActionMonitoring},
	}
	adviceSectionOrder = []string{
		"IMMEDIATE ACTIONS", "FARMING RECOMMENDATIONS", "DISASTER PREPAREDNESS", "PLANNING ADVICE", "MONITORING ALERTS",
	}
)

// Fallback keyword tables for recommendations
var (
	advicePriorityKeywords = []keywordRule{
		{label: string(domain.PriorityCritical), keywords: []string{"urgent", "critical", "danger", "warning"}},
		{label: string(domain.PriorityHigh), keywords: []string{"important", "should", "risk", "protect"}},
		{label: string(domain.PriorityMedium), keywords: []string{"consider", "plan", "prepare"}},
	}

	adviceTimingKeywords = []keywordRule{
		{label: string(domain.TimingNow), keywords: []string{"immediately", "now", "today", "asap"}},
		{label: string(domain.TimingWithin24h), keywords: []string{"tomorrow", "24 hour", "within day"}},
		{label: string(domain.TimingThisWeek), keywords: []string{"this week", "3 day", "few days"}},
	}

	resourceKeywords = []keywordRule{
		{label: "water", keywords: []string{"irrigate", "water", "irrigation"}},
		{label: "equipment", keywords: []string{"equipment", "tools", "machinery"}},
		{label: "materials", keywords: []string{"materials", "supplies", "cover", "tarp"}},
		{label: "help", keywords: []string{"assistance", "help", "support", "coordination"}},
		{label: "information", keywords: []string{"monitor", "check", "watch", "information"}},
		{label: "transportation", keywords: []string{"transport", "vehicle", "move", "evacuate"}},
	}

	reasoningIndicators = []string{"because", "due to", "as", "since", "to prevent", "to avoid"}

	// Risk keyword families and the contact each one suggests
	contactKeywords = []keywordRule{
		{label: "Local emergency management office for storm preparations", keywords: []string{"storm", "wind"}},
		{label: "Agricultural extension office for flood mitigation advice", keywords: []string{"flood", "rain"}},
		{label: "Local health department for heat safety information", keywords: []string{"heat", "drought"}},
		{label: "Agricultural extension for crop protection guidance", keywords: []string{"frost", "cold"}},
	}

	generalContacts = []string{
		"Local weather service for updated forecasts",
		"Agricultural extension office for farming guidance",
		"Community emergency coordinator for disaster preparation",
	}

	timingLabels = map[domain.Timing]string{
		domain.TimingNow:       "NOW",
		domain.TimingWithin24h: "24H",
		domain.TimingThisWeek:  "WEEK",
		domain.TimingNextWeek:  "LATER",
	}
)

// ParseRecommendations extracts recommendations from the bulleted sections of an advice narrative
func ParseRecommendations(text string) []domain.Recommendation {
	recs := []domain.Recommendation{}
	bulletSections(text, adviceSectionOrder, func(header, item string) {
		section := adviceSections[header]
		recs = append(recs, domain.Recommendation{
			TargetAudience:  section.audience,
			ActionType:      section.actionType,
			Priority:        fallbackPriority(item, section.key),
			Title:           recommendationTitle(item),
			Action:          item,
			Reasoning:       recommendationReasoning(item),
			Timing:          fallbackTiming(item, section.key),
			ResourcesNeeded: resourcesNeeded(item),
		})
	})
	return recs
}

func fallbackPriority(item, section string) domain.Priority {
	if section == "immediate" {
		return domain.PriorityCritical
	}
	return domain.Priority(classify(item, advicePriorityKeywords, string(domain.PriorityLow)))
}

func fallbackTiming(item, section string) domain.Timing {
	if section == "immediate" {
		return domain.TimingNow
	}
	if timing := classify(item, adviceTimingKeywords, ""); timing != "" {
		return domain.Timing(timing)
	}
	if section == "planning" {
		return domain.TimingThisWeek
	}
	return domain.TimingWithin24h
}

func recommendationTitle(item string) string {
	if i := strings.Index(item, ". "); i >= 0 {
		return item[:i]
	}
	if len([]rune(item)) > 60 {
		return truncate(item, 57) + "..."
	}
	return item
}

func recommendationReasoning(item string) string {
	lower := strings.ToLower(item)
	for _, indicator := range reasoningIndicators {
		if i := strings.Index(lower, indicator); i >= 0 {
			return "Because " + strings.TrimSpace(lower[i+len(indicator):])
		}
	}
	return defaultReasoning
}

func resourcesNeeded(item string) []string {
	resources := matchAll(item, resourceKeywords)
	if resources == nil {
		return []string{}
	}
	if len(resources) > maxResources {
		resources = resources[:maxResources]
	}
	return resources
}

// PrioritySummary counts the critical, high and immediate recommendations
func PrioritySummary(recs []domain.Recommendation) string {
	var critical, high, immediate int
	for _, r := range recs {
		switch r.Priority {
		case domain.PriorityCritical:
			critical++
		case domain.PriorityHigh:
			high++
		}
		if r.Timing == domain.TimingNow {
			immediate++
		}
	}

	summary := fmt.Sprintf("Priority Overview: %d critical actions, %d high-priority recommendations, %d requiring immediate attention.",
		critical, high, immediate)

	switch {
	case critical > 0:
		summary += " Focus on critical actions first."
	case high > 0:
		summary += " Address high-priority items within 24 hours."
	default:
		summary += " No urgent actions required - focus on planning and preparation."
	}
	return summary
}

// ActionChecklist lists the top ten recommendations ordered by priority then timing
func ActionChecklist(recs []domain.Recommendation) []string {
	sorted := make([]domain.Recommendation, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Priority.Rank(), sorted[j].Priority.Rank()
		if pi != pj {
			return pi < pj
		}
		return sorted[i].Timing.Rank() < sorted[j].Timing.Rank()
	})

	if len(sorted) > checklistLimit {
		sorted = sorted[:checklistLimit]
	}

	checklist := make([]string, 0, len(sorted))
	for _, r := range sorted {
		label, ok := timingLabels[r.Timing]
		if !ok {
			label = "PLAN"
		}
		checklist = append(checklist, fmt.Sprintf("%s: %s", label, r.Title))
	}
	return checklist
}

// ContactSuggestions maps risk alerts to contacts, followed by the general contacts.
// Duplicates are removed keeping the first occurrence.
func ContactSuggestions(riskAlerts []string) []string {
	var contacts []string
	for _, rule := range contactKeywords {
		for _, alert := range riskAlerts {
			if containsAny(strings.ToLower(alert), rule.keywords) {
				contacts = append(contacts, rule.label)
				break
			}
		}
	}
	contacts = append(contacts, generalContacts...)

	seen := make(map[string]bool, len(contacts))
	unique := make([]string, 0, len(contacts))
	for _, c := range contacts {
		if !seen[c] {
			seen[c] = true
			unique = append(unique, c)
		}
	}
	return unique
}

type extractedRecommendation struct {
	TargetAudience  string   `json:"target_audience"`
	ActionType      string   `json:"action_type"`
	Priority        string   `json:"priority"`
	Title           string   `json:"title"`
	Action          string   `json:"action"`
	Reasoning       string   `json:"reasoning"`
	Timing          string   `json:"timing"`
	ResourcesNeeded []string `json:"resources_needed"`
}

// decodeRecommendations parses an extraction response, applying defaults and normalizing enums
func decodeRecommendations(text string) ([]domain.Recommendation, error) {
	array, err := extractJSONArray(text)
	if err != nil {
		return nil, err
	}

	var raw []extractedRecommendation
	if err := json.Unmarshal([]byte(array), &raw); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	recs := make([]domain.Recommendation, 0, len(raw))
	for _, r := range raw {
		rec := domain.Recommendation{
			TargetAudience:  normalizeTarget(r.TargetAudience),
			ActionType:      normalizeActionType(r.ActionType),
			Priority:        normalizePriority(r.Priority, domain.PriorityMedium),
			Title:           r.Title,
			Action:          r.Action,
			Reasoning:       r.Reasoning,
			Timing:          normalizeTiming(r.Timing),
			ResourcesNeeded: r.ResourcesNeeded,
		}
		if rec.Title == "" {
			rec.Title = "Weather action"
		}
		if rec.Reasoning == "" {
			rec.Reasoning = "Based on weather conditions"
		}
		if rec.ResourcesNeeded == nil {
			rec.ResourcesNeeded = []string{}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func normalizeTarget(s string) domain.TargetAudience {
	switch t := domain.TargetAudience(strings.ToLower(strings.TrimSpace(s))); t {
	case domain.TargetFarmers, domain.TargetOfficials, domain.TargetGeneralPublic:
		return t
	default:
		return domain.TargetGeneralPublic
	}
}

func normalizeActionType(s string) domain.ActionType {
	switch a := domain.ActionType(strings.ToLower(strings.TrimSpace(s))); a {
	case domain.ActionImmediate, domain.ActionPreparation, domain.ActionPlanning, domain.ActionMonitoring:
		return a
	default:
		return domain.ActionPlanning
	}
}

func normalizeTiming(s string) domain.Timing {
	switch t := domain.Timing(strings.ToLower(strings.TrimSpace(s))); t {
	case domain.TimingNow, domain.TimingWithin24h, domain.TimingThisWeek, domain.TimingNextWeek:
		return t
	default:
		return domain.TimingWithin24h
	}
}

// AdviceAgent turns the quality and forecast results into recommendations
type AdviceAgent struct {
	llm     domain.LLMClient
	opts    options
	prompts *PromptCache
	logger  *observability.StructuredLogger
}

// NewAdviceAgent creates an advice agent with its own prompt cache
func NewAdviceAgent(llm domain.LLMClient, opts ...Option) *AdviceAgent {
	a := &AdviceAgent{
		llm:    llm,
		opts:   newOptions(opts),
		logger: observability.NewStructuredLogger(AdviceAgentName),
	}
	a.prompts = NewPromptCache(AdviceAgentName, a.generatePrompt, a.opts.metrics)
	return a
}

// Name returns the agent name
func (a *AdviceAgent) Name() string {
	return AdviceAgentName
}

// Prompts returns the agent's audience prompt cache
func (a *AdviceAgent) Prompts() *PromptCache {
	return a.prompts
}

// Generate produces the advice report for an audience.
// A failed narrative is an error; a failed extraction falls back to the section parser.
func (a *AdviceAgent) Generate(ctx context.Context, quality *domain.DataQualityResult, forecast *domain.ForecastInsightResult, audience domain.Audience) (*domain.AdviceResult, error) {
	if quality == nil || forecast == nil {
		return nil, fmt.Errorf("data quality and forecast results are required")
	}

	tmpl, err := a.prompts.Get(ctx, audience)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s prompt: %w", audience, err)
	}

	prompt := renderTemplate(tmpl,
		placeholder{name: "data_analysis", label: "Data Analysis", value: summarizeQuality(quality)},
		placeholder{name: "forecast_analysis", label: "Forecast Analysis", value: summarizeInsights(forecast)},
	)

	narrative, err := complete(ctx, a.llm, "advice_narrative", prompt, a.opts.chat)
	if err != nil {
		return nil, err
	}

	recs := a.extractRecommendations(ctx, narrative, audience)

	return &domain.AdviceResult{
		Location:           forecast.Location,
		ReportTime:         a.opts.clock.Now().In(domain.PhilippineTZ),
		Recommendations:    recs,
		PrioritySummary:    PrioritySummary(recs),
		ActionChecklist:    ActionChecklist(recs),
		ContactSuggestions: ContactSuggestions(forecast.RiskAlerts),
	}, nil
}

func (a *AdviceAgent) generatePrompt(ctx context.Context, audience domain.Audience) (string, error) {
	return complete(ctx, a.llm, "advice_prompt", fmt.Sprintf(adviceMetaPrompt, audience), a.opts.chat)
}

func (a *AdviceAgent) extractRecommendations(ctx context.Context, narrative string, audience domain.Audience) []domain.Recommendation {
	prompt := fmt.Sprintf(recommendationExtractionPrompt, narrative, audience)

	response, err := complete(ctx, a.llm, "recommendation_extraction", prompt, a.opts.chat)
	if err == nil {
		recs, decodeErr := decodeRecommendations(response)
		if decodeErr == nil {
			return recs
		}
		err = decodeErr
	}

	a.logger.Warn(ctx, "Recommendation extraction failed, using section parser", map[string]interface{}{
		"audience": string(audience),
		"error":    err.Error(),
	})
	if a.opts.metrics != nil {
		a.opts.metrics.RecordExtractionFallback(ctx, AdviceAgentName)
	}
	return ParseRecommendations(narrative)
}

func summarizeQuality(q *domain.DataQualityResult) string {
	issues := "None"
	if len(q.Anomalies) > 0 {
		issues = strings.Join(q.Anomalies, ", ")
	}
	recs := q.Recommendations
	if len(recs) > 3 {
		recs = recs[:3]
	}

	return fmt.Sprintf(`Data Quality Score: %.2f/1.0
Issues Detected: %s
Key Findings: %s...
Data Recommendations: %s`,
		q.QualityScore, issues, truncate(q.Summary, summaryExcerptSize), strings.Join(recs, "; "))
}

func summarizeInsights(f *domain.ForecastInsightResult) string {
	var urgent []domain.Insight
	categories := []string{}
	seen := map[domain.InsightCategory]bool{}
	for _, in := range f.Insights {
		if in.Priority == domain.PriorityCritical || in.Priority == domain.PriorityHigh {
			urgent = append(urgent, in)
		}
		if !seen[in.Category] {
			seen[in.Category] = true
			categories = append(categories, string(in.Category))
		}
	}

	highlights := "No high-priority insights"
	if len(urgent) > 0 {
		lines := make([]string, 0, highlightInsights)
		for i, in := range urgent {
			if i == highlightInsights {
				break
			}
			lines = append(lines, fmt.Sprintf("- %s: %s (Confidence: %.1f%%)", in.Title, in.Description, in.Confidence*100))
		}
		highlights = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`Location: %s
Weather Trends: %s
Risk Alerts: %s

High Priority Insights:
%s

All Insights Summary:
- Total insights: %d
- Critical/High priority: %d
- Categories: %s`,
		f.Location, strings.Join(f.Trends, "; "), strings.Join(f.RiskAlerts, "; "),
		highlights, len(f.Insights), len(urgent), strings.Join(categories, ", "))
}
