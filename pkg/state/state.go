package state

import (
	"sync"
	"time"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
)

// WorkflowState carries the inputs and stage outputs of one pipeline run
type WorkflowState struct {
	mu               sync.RWMutex
	Location         string                        `json:"location"`
	Audience         domain.Audience               `json:"audience"`
	Coordinates      *domain.Coordinates           `json:"coordinates,omitempty"`
	Current          *domain.WeatherSnapshot       `json:"current_weather,omitempty"`
	Forecast         *domain.ForecastSeries        `json:"forecast_data,omitempty"`
	DataQuality      *domain.DataQualityResult     `json:"data_quality,omitempty"`
	ForecastInsights *domain.ForecastInsightResult `json:"forecast_insights,omitempty"`
	Knowledge        []domain.RetrievalResult      `json:"relevant_knowledge,omitempty"`
	Advice           *domain.AdviceResult          `json:"recommendations,omitempty"`
	Error            string                        `json:"error,omitempty"`
	CreatedAt        time.Time                     `json:"created_at"`
	UpdatedAt        time.Time                     `json:"updated_at"`
}

// NewWorkflowState creates the state for a request. An empty audience becomes general.
func NewWorkflowState(req domain.AnalysisRequest, now time.Time) *WorkflowState {
	audience := req.Audience
	if audience == "" {
		audience = domain.AudienceGeneral
	}

	s := &WorkflowState{
		Location:  req.Location,
		Audience:  audience,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Coordinates != nil {
		coords := *req.Coordinates
		s.Coordinates = &coords
	}
	return s
}

// Thread-safe state operations

// SetError records a stage failure. The first error wins; later calls are ignored.
func (s *WorkflowState) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Error != "" || msg == "" {
		return
	}
	s.Error = msg
	s.UpdatedAt = time.Now()
}

// GetError returns the recorded failure, or "" when no stage has failed
func (s *WorkflowState) GetError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Error
}

// Failed reports whether a stage has recorded an error
func (s *WorkflowState) Failed() bool {
	return s.GetError() != ""
}

// SetCoordinates records the resolved coordinates
func (s *WorkflowState) SetCoordinates(coords domain.Coordinates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Coordinates = &coords
	s.UpdatedAt = time.Now()
}

// GetCoordinates returns the coordinates, or nil when unresolved
func (s *WorkflowState) GetCoordinates() *domain.Coordinates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Coordinates
}

// SetWeather records the fetched observation and forecast together
func (s *WorkflowState) SetWeather(current *domain.WeatherSnapshot, forecast *domain.ForecastSeries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Current = current
	s.Forecast = forecast
	s.UpdatedAt = time.Now()
}

// GetWeather returns the fetched observation and forecast
func (s *WorkflowState) GetWeather() (*domain.WeatherSnapshot, *domain.ForecastSeries) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Current, s.Forecast
}

// SetDataQuality records the data quality stage output
func (s *WorkflowState) SetDataQuality(result *domain.DataQualityResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DataQuality = result
	s.UpdatedAt = time.Now()
}

// GetDataQuality returns the data quality stage output
func (s *WorkflowState) GetDataQuality() *domain.DataQualityResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.DataQuality
}

// SetForecastInsights records the forecast stage output
func (s *WorkflowState) SetForecastInsights(result *domain.ForecastInsightResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ForecastInsights = result
	s.UpdatedAt = time.Now()
}

// GetForecastInsights returns the forecast stage output
func (s *WorkflowState) GetForecastInsights() *domain.ForecastInsightResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ForecastInsights
}

// SetKnowledge records retrieved knowledge. A nil slice is stored as empty
// so that "retrieved nothing" stays distinct from "not retrieved".
func (s *WorkflowState) SetKnowledge(results []domain.RetrievalResult) {
	if results == nil {
		results = []domain.RetrievalResult{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Knowledge = results
	s.UpdatedAt = time.Now()
}

// GetKnowledge returns a copy of the retrieved knowledge, or nil when not retrieved
func (s *WorkflowState) GetKnowledge() []domain.RetrievalResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Knowledge == nil {
		return nil
	}
	results := make([]domain.RetrievalResult, len(s.Knowledge))
	copy(results, s.Knowledge)
	return results
}

// SetAdvice records the advice stage output
func (s *WorkflowState) SetAdvice(result *domain.AdviceResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Advice = result
	s.UpdatedAt = time.Now()
}

// GetAdvice returns the advice stage output
func (s *WorkflowState) GetAdvice() *domain.AdviceResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Advice
}

// GetSnapshot returns a copy of the current state
func (s *WorkflowState) GetSnapshot() WorkflowStateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var knowledge []domain.RetrievalResult
	if s.Knowledge != nil {
		knowledge = make([]domain.RetrievalResult, len(s.Knowledge))
		copy(knowledge, s.Knowledge)
	}

	return WorkflowStateSnapshot{
		Location:         s.Location,
		Audience:         s.Audience,
		Coordinates:      s.Coordinates,
		Current:          s.Current,
		Forecast:         s.Forecast,
		DataQuality:      s.DataQuality,
		ForecastInsights: s.ForecastInsights,
		Knowledge:        knowledge,
		Advice:           s.Advice,
		Error:            s.Error,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// WorkflowStateSnapshot represents an immutable view of the state
type WorkflowStateSnapshot struct {
	Location         string                        `json:"location"`
	Audience         domain.Audience               `json:"audience"`
	Coordinates      *domain.Coordinates           `json:"coordinates,omitempty"`
	Current          *domain.WeatherSnapshot       `json:"current_weather,omitempty"`
	Forecast         *domain.ForecastSeries        `json:"forecast_data,omitempty"`
	DataQuality      *domain.DataQualityResult     `json:"data_quality,omitempty"`
	ForecastInsights *domain.ForecastInsightResult `json:"forecast_insights,omitempty"`
	Knowledge        []domain.RetrievalResult      `json:"relevant_knowledge,omitempty"`
	Advice           *domain.AdviceResult          `json:"recommendations,omitempty"`
	Error            string                        `json:"error,omitempty"`
	CreatedAt        time.Time                     `json:"created_at"`
	UpdatedAt        time.Time                     `json:"updated_at"`
}

// Completed reports whether every stage produced its output
func (s WorkflowStateSnapshot) Completed() bool {
	return s.Error == "" && s.Current != nil && s.Forecast != nil && s.DataQuality != nil &&
		s.ForecastInsights != nil && s.Knowledge != nil && s.Advice != nil
}
