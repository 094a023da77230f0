package domain

import (
	"strings"
	"time"
)

// PhilippineTZ is the reporting timezone for analysis timestamps (GMT+8)
var PhilippineTZ = time.FixedZone("PHT", 8*60*60)

// Audience represents the reader class an analysis is tailored for
type Audience string

const (
	AudienceFarmers   Audience = "farmers"
	AudienceOfficials Audience = "officials"
	AudienceGeneral   Audience = "general"
)

// ParseAudience normalizes free-form audience input, defaulting to general
func ParseAudience(s string) Audience {
	switch Audience(strings.ToLower(strings.TrimSpace(s))) {
	case AudienceFarmers:
		return AudienceFarmers
	case AudienceOfficials:
		return AudienceOfficials
	default:
		return AudienceGeneral
	}
}

// Priority represents the urgency of an insight or recommendation
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities from most to least urgent
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// InsightCategory represents the subject area of a forecast insight
type InsightCategory string

const (
	CategoryAgriculture InsightCategory = "agriculture"
	CategoryDisaster    InsightCategory = "disaster"
	CategoryGeneral     InsightCategory = "general"
)

// TimeHorizon represents how far ahead an insight applies
type TimeHorizon string

const (
	HorizonImmediate TimeHorizon = "immediate"
	Horizon24h       TimeHorizon = "24h"
	Horizon3Day      TimeHorizon = "3-day"
	HorizonWeekly    TimeHorizon = "weekly"
)

// TargetAudience represents who a recommendation is addressed to
type TargetAudience string

const (
	TargetFarmers       TargetAudience = "farmers"
	TargetOfficials     TargetAudience = "officials"
	TargetGeneralPublic TargetAudience = "general_public"
)

// ActionType represents the kind of action a recommendation asks for
type ActionType string

const (
	ActionImmediate   ActionType = "immediate"
	ActionPreparation ActionType = "preparation"
	ActionPlanning    ActionType = "planning"
	ActionMonitoring  ActionType = "monitoring"
)

// Timing represents when a recommendation should be acted on
type Timing string

const (
	TimingNow       Timing = "now"
	TimingWithin24h Timing = "within_24h"
	TimingThisWeek  Timing = "this_week"
	TimingNextWeek  Timing = "next_week"
)

// Rank orders timings from soonest to latest
func (t Timing) Rank() int {
	switch t {
	case TimingNow:
		return 0
	case TimingWithin24h:
		return 1
	case TimingThisWeek:
		return 2
	default:
		return 3
	}
}

// KnowledgeCategory represents the kind of advisory document in the corpus
type KnowledgeCategory string

const (
	KnowledgeWeatherAdvisory   KnowledgeCategory = "weather_advisory"
	KnowledgeHistoricalPattern KnowledgeCategory = "historical_pattern"
	KnowledgeBestPractice      KnowledgeCategory = "best_practice"
)

// Coordinates represents a latitude/longitude pair
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WeatherSnapshot represents one observation or forecast point
type WeatherSnapshot struct {
	Location      string    `json:"location"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Temperature   float64   `json:"temperature"`
	Humidity      int       `json:"humidity"`
	Pressure      float64   `json:"pressure"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection int       `json:"wind_direction"`
	Condition     string    `json:"weather_condition"`
	Description   string    `json:"description"`
	Timestamp     time.Time `json:"timestamp"`
	Visibility    *float64  `json:"visibility,omitempty"`
}

// ForecastSeries represents an ordered multi-day forecast
type ForecastSeries struct {
	Location string            `json:"location"`
	Points   []WeatherSnapshot `json:"forecasts"`
}

// DataQualityResult represents the outcome of the data quality stage
type DataQualityResult struct {
	QualityScore    float64  `json:"quality_score"`
	Anomalies       []string `json:"anomalies_detected"`
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

// Insight represents a single forecast interpretation
type Insight struct {
	Category    InsightCategory `json:"category"`
	Priority    Priority        `json:"priority"`
	TimeHorizon TimeHorizon     `json:"time_horizon"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Confidence  float64         `json:"confidence"`
}

// ForecastInsightResult represents the outcome of the forecast stage
type ForecastInsightResult struct {
	Location     string    `json:"location"`
	AnalysisTime time.Time `json:"analysis_time"`
	Insights     []Insight `json:"insights"`
	Trends       []string  `json:"weather_trends"`
	RiskAlerts   []string  `json:"risk_alerts"`
	Summary      string    `json:"summary"`
}

// Recommendation represents one actionable piece of advice
type Recommendation struct {
	TargetAudience  TargetAudience `json:"target_audience"`
	ActionType      ActionType     `json:"action_type"`
	Priority        Priority       `json:"priority"`
	Title           string         `json:"title"`
	Action          string         `json:"action"`
	Reasoning       string         `json:"reasoning"`
	Timing          Timing         `json:"timing"`
	ResourcesNeeded []string       `json:"resources_needed"`
}

// AdviceResult represents the outcome of the advice stage
type AdviceResult struct {
	Location           string           `json:"location"`
	ReportTime         time.Time        `json:"report_time"`
	Recommendations    []Recommendation `json:"recommendations"`
	PrioritySummary    string           `json:"priority_summary"`
	ActionChecklist    []string         `json:"action_checklist"`
	ContactSuggestions []string         `json:"contact_suggestions"`
}

// KnowledgeDocument represents an advisory document in the knowledge corpus
type KnowledgeDocument struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Category  KnowledgeCategory `json:"category"`
	Location  string            `json:"location,omitempty"`
	CreatedAt time.Time         `json:"date_created"`
	Tags      []string          `json:"tags"`
	Source    string            `json:"source"`
}

// RetrievalResult represents a scored knowledge match
type RetrievalResult struct {
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Source   string            `json:"source"`
	Category KnowledgeCategory `json:"category"`
	Location string            `json:"location,omitempty"`
}

// AnalysisRequest represents a single-location analysis request
type AnalysisRequest struct {
	Location    string       `json:"location"`
	Audience    Audience     `json:"audience"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// InsightsResult represents the final output of one pipeline run
type InsightsResult struct {
	Location          string                 `json:"location"`
	AnalysisTime      time.Time              `json:"analysis_time"`
	CurrentWeather    *WeatherSnapshot       `json:"current_weather,omitempty"`
	DataQuality       *DataQualityResult     `json:"data_quality,omitempty"`
	ForecastInsights  *ForecastInsightResult `json:"forecast_insights,omitempty"`
	Recommendations   *AdviceResult          `json:"recommendations,omitempty"`
	RelevantKnowledge []RetrievalResult      `json:"relevant_knowledge"`
	Success           bool                   `json:"success"`
	ErrorMessage      string                 `json:"error_message,omitempty"`
}

// BatchSummary represents aggregate statistics for a batch run
type BatchSummary struct {
	Results            []*InsightsResult `json:"results"`
	TotalLocations     int               `json:"total_locations"`
	SuccessfulAnalyses int               `json:"successful_analyses"`
	FailedAnalyses     int               `json:"failed_analyses"`
	ProcessingTime     float64           `json:"processing_time"`
}

// Service health states
const (
	StatusOperational = "operational"
	StatusError       = "error"
)

// ServiceStatus represents the health of one subsystem
type ServiceStatus struct {
	Name    string                 `json:"name"`
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the aggregate health of the pipeline
type SystemStatus struct {
	Workflow           string          `json:"workflow"`
	Services           []ServiceStatus `json:"services"`
	KnowledgeBaseStats *KnowledgeStats `json:"knowledge_base_stats,omitempty"`
	Timestamp          time.Time       `json:"timestamp"`
}

// KnowledgeStats represents knowledge store statistics
type KnowledgeStats struct {
	TotalDocuments       int                       `json:"total_documents"`
	VectorDimension      int                       `json:"vector_dimension"`
	CategoryDistribution map[KnowledgeCategory]int `json:"category_distribution"`
	CollectionName       string                    `json:"collection_name"`
}

// Message represents a chat message exchanged with the text generation backend
type Message struct {
	Role      string                 `json:"role"` // "system", "user", "assistant"
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
