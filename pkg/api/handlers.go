package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/workflow"
)

// InsightsRequest is the body of POST /api/weather/insights
type InsightsRequest struct {
	Location  string   `json:"location" validate:"required"`
	Audience  string   `json:"audience" validate:"omitempty,oneof=farmers officials general"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// BatchRequest is the body of POST /api/weather/batch
type BatchRequest struct {
	Locations []string `json:"locations" validate:"required,min=1,dive,required"`
	Audience  string   `json:"audience" validate:"omitempty,oneof=farmers officials general"`
}

// PatternRequest is the body of POST /api/knowledge/patterns
type PatternRequest struct {
	Location    string                 `json:"location" validate:"required"`
	Description string                 `json:"description" validate:"required"`
	Data        map[string]interface{} `json:"data"`
	Outcome     string                 `json:"outcome" validate:"required"`
}

// HealthResponse is returned by / and /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
}

// PatternResponse acknowledges a stored pattern
type PatternResponse struct {
	Message  string `json:"message"`
	Location string `json:"location"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	JSON(w, r, http.StatusOK, HealthResponse{
		Status:    domain.StatusOperational,
		Version:   s.config.Version,
		Timestamp: now.In(domain.PhilippineTZ),
		Uptime:    now.Sub(s.started).Seconds(),
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	var req InsightsRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	req.Location = strings.TrimSpace(req.Location)
	if err := s.validator.Struct(req); err != nil {
		Error(w, r, err)
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		Error(w, r, NewAppErrorWithDetails(ErrCodeValidationFailed, "request validation failed", nil, map[string]any{
			"fields": map[string]any{"coordinates": "latitude and longitude must be provided together"},
		}))
		return
	}

	analysis := domain.AnalysisRequest{
		Location: req.Location,
		Audience: domain.ParseAudience(req.Audience),
	}
	if req.Latitude != nil {
		analysis.Coordinates = &domain.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	result := s.analyzer.Run(r.Context(), analysis)
	JSON(w, r, http.StatusOK, result)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	for i := range req.Locations {
		req.Locations[i] = strings.TrimSpace(req.Locations[i])
	}
	if err := s.validator.Struct(req); err != nil {
		Error(w, r, err)
		return
	}
	if s.config.MaxBatchSize > 0 && len(req.Locations) > s.config.MaxBatchSize {
		Error(w, r, NewAppErrorWithDetails(ErrCodeValidationBatchSize, "too many locations in batch", nil, map[string]any{
			"max_locations": s.config.MaxBatchSize,
			"received":      len(req.Locations),
		}))
		return
	}

	start := s.clock.Now()
	results := s.analyzer.RunBatch(r.Context(), req.Locations, domain.ParseAudience(req.Audience))
	JSON(w, r, http.StatusOK, workflow.BatchSummary(results, s.clock.Since(start)))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, s.analyzer.Status(r.Context()))
}

func (s *Server) handleAddPattern(w http.ResponseWriter, r *http.Request) {
	var req PatternRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	req.Location = strings.TrimSpace(req.Location)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Struct(req); err != nil {
		Error(w, r, err)
		return
	}
	if req.Data == nil {
		req.Data = map[string]interface{}{}
	}

	if err := s.patterns.AddHistoricalPattern(r.Context(), req.Location, req.Description, req.Data, req.Outcome); err != nil {
		s.logger.Error(r.Context(), "Failed to add historical pattern", err, map[string]interface{}{
			"location": req.Location,
		})
		Error(w, r, NewAppError(ErrCodeInternalKnowledge, "failed to store historical pattern", err))
		return
	}

	JSON(w, r, http.StatusCreated, PatternResponse{
		Message:  "Historical pattern added",
		Location: req.Location,
	})
}
