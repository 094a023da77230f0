package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ncolesummers/weather-insights-agent/pkg/agents"
	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/observability"
	"github.com/ncolesummers/weather-insights-agent/pkg/state"
)

// Pipeline stage names, in execution order
const (
	StageFetch       = "fetch"
	StageDataQuality = "data_quality"
	StageForecast    = "forecast"
	StageKnowledge   = "knowledge"
	StageAdvice      = "advice"
)

// Messages recorded when a stage is reached without its inputs
const (
	msgMissingWeather         = "Missing weather data for analysis"
	msgMissingForecastWeather = "Missing weather data for forecast analysis"
	msgMissingKnowledgeInput  = "Missing data for knowledge retrieval"
	msgMissingAdviceInput     = "Missing analysis data for advice generation"
)

// StageError is a stage failure. Message is the text surfaced in the run result.
type StageError struct {
	Stage   string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// InsightsGraph runs the fetch, data quality, forecast, knowledge and advice stages
type InsightsGraph struct {
	config      *Config
	weather     domain.WeatherSource
	llmClient   domain.LLMClient
	knowledge   domain.KnowledgeStore
	dataQuality *agents.DataQualityAgent
	forecast    *agents.ForecastAgent
	advice      *agents.AdviceAgent
	telemetry   *observability.Telemetry
	metrics     *observability.Metrics
	logger      *observability.StructuredLogger
	clock       clockwork.Clock
}

// Config holds the configuration for the workflow
type Config struct {
	BatchConcurrency int                `json:"batch_concurrency"`
	RunTimeout       time.Duration      `json:"run_timeout"`
	Chat             domain.ChatOptions `json:"chat"`
}

// DefaultConfig returns the workflow defaults
func DefaultConfig() *Config {
	return &Config{
		BatchConcurrency: 5,
		RunTimeout:       5 * time.Minute,
		Chat: domain.ChatOptions{
			Temperature: 0.3,
			MaxTokens:   2048,
		},
	}
}

// Dependencies are the collaborators the graph is built from.
// Telemetry and Clock are optional.
type Dependencies struct {
	Weather   domain.WeatherSource
	LLM       domain.LLMClient
	Knowledge domain.KnowledgeStore
	Telemetry *observability.Telemetry
	Clock     clockwork.Clock
}

// NewInsightsGraph creates the pipeline and its stage agents
func NewInsightsGraph(cfg *Config, deps Dependencies) (*InsightsGraph, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Weather == nil {
		return nil, fmt.Errorf("weather source is required")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if deps.Knowledge == nil {
		return nil, fmt.Errorf("knowledge store is required")
	}
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	g := &InsightsGraph{
		config:    cfg,
		weather:   deps.Weather,
		llmClient: deps.LLM,
		knowledge: deps.Knowledge,
		telemetry: deps.Telemetry,
		logger:    observability.NewStructuredLogger("workflow"),
		clock:     clock,
	}

	if deps.Telemetry != nil {
		metrics, err := observability.NewMetrics(deps.Telemetry.Meter())
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
		g.metrics = metrics
	}

	opts := []agents.Option{
		agents.WithChatOptions(cfg.Chat),
		agents.WithClock(clock),
	}
	if g.metrics != nil {
		opts = append(opts, agents.WithMetrics(g.metrics))
	}
	g.dataQuality = agents.NewDataQualityAgent(deps.LLM, opts...)
	g.forecast = agents.NewForecastAgent(deps.LLM, opts...)
	g.advice = agents.NewAdviceAgent(deps.LLM, opts...)

	return g, nil
}

// Metrics returns the pipeline metrics, or nil when telemetry is disabled
func (g *InsightsGraph) Metrics() *observability.Metrics {
	return g.metrics
}

// Run executes every stage for one location. It never returns nil;
// failures are reported through Success and ErrorMessage.
func (g *InsightsGraph) Run(ctx context.Context, req domain.AnalysisRequest) (result *domain.InsightsResult) {
	requestID := uuid.NewString()
	startTime := time.Now()

	if req.Audience == "" {
		req.Audience = domain.AudienceGeneral
	}

	if g.telemetry != nil {
		var span trace.Span
		ctx, span = g.telemetry.StartAnalysisRequest(ctx, requestID, req.Location, string(req.Audience))
		defer func() {
			span.SetAttributes(attribute.Bool("success", result.Success))
			span.End()
		}()
	}

	if g.metrics != nil {
		g.metrics.RecordAnalysisStarted(ctx)
		defer func() {
			status := "success"
			if !result.Success {
				status = "failed"
			}
			g.metrics.RecordAnalysisComplete(ctx, time.Since(startTime), status)
		}()
	}

	if g.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.RunTimeout)
		defer cancel()
	}

	ws := state.NewWorkflowState(req, g.now())

	// Deferred functions run last-in first-out, so this recovery runs
	// before the span and metrics see the result
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error(ctx, "Workflow panicked", fmt.Errorf("%v", r), map[string]interface{}{
				"location": req.Location,
				"stack":    string(debug.Stack()),
			})
			ws.SetError(fmt.Sprintf("Unexpected workflow error: %v", r))
			result = g.extractResult(ws)
		}
	}()

	g.logger.Info(ctx, "Starting weather analysis", map[string]interface{}{
		"request_id": requestID,
		"location":   req.Location,
		"audience":   string(req.Audience),
	})

	// Execute stages in sequence, stopping at the first failure
	stages := []func(context.Context, *state.WorkflowState) error{
		g.fetchNode,
		g.dataQualityNode,
		g.forecastNode,
		g.knowledgeNode,
		g.adviceNode,
	}
	for _, stage := range stages {
		if ws.Failed() {
			break
		}
		if err := stage(ctx, ws); err != nil {
			ws.SetError(stageMessage(err))
		}
	}

	result = g.extractResult(ws)

	if result.Success {
		g.logger.Info(ctx, "Weather analysis completed", map[string]interface{}{
			"request_id":  requestID,
			"location":    req.Location,
			"duration_ms": time.Since(startTime).Milliseconds(),
		})
	} else {
		g.logger.Warn(ctx, "Weather analysis failed", map[string]interface{}{
			"request_id": requestID,
			"location":   req.Location,
			"error":      result.ErrorMessage,
		})
	}
	return result
}

func stageMessage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Error()
	}
	return err.Error()
}

func (g *InsightsGraph) now() time.Time {
	return g.clock.Now().In(domain.PhilippineTZ)
}

// instrument wraps a stage with its span and duration metric
func (g *InsightsGraph) instrument(ctx context.Context, stage string, ws *state.WorkflowState, fn func(context.Context, *state.WorkflowState) error) error {
	startTime := time.Now()

	var err error
	if g.telemetry != nil {
		err = g.telemetry.InstrumentStage(ctx, stage, ws.Location, func(ctx context.Context) error {
			return fn(ctx, ws)
		})
	} else {
		err = fn(ctx, ws)
	}

	if g.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		g.metrics.RecordStage(ctx, stage, time.Since(startTime), status)
	}
	return err
}

// Node implementations

func (g *InsightsGraph) fetchNode(ctx context.Context, ws *state.WorkflowState) error {
	return g.instrument(ctx, StageFetch, ws, g.fetchNodeImpl)
}

func (g *InsightsGraph) fetchNodeImpl(ctx context.Context, ws *state.WorkflowState) error {
	fail := func(err error) error {
		return &StageError{Stage: StageFetch, Message: "Weather data fetch failed", Err: err}
	}

	coords := ws.GetCoordinates()
	if coords == nil {
		resolved, err := g.weather.Geocode(ctx, ws.Location)
		if err != nil {
			return fail(err)
		}
		ws.SetCoordinates(resolved)
		coords = &resolved
	}

	var (
		current  *domain.WeatherSnapshot
		forecast *domain.ForecastSeries
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		current, err = g.weather.CurrentConditions(egCtx, *coords, ws.Location)
		return err
	})
	eg.Go(func() error {
		var err error
		forecast, err = g.weather.Forecast(egCtx, *coords, ws.Location)
		return err
	})
	if err := eg.Wait(); err != nil {
		return fail(err)
	}
	if current == nil || forecast == nil {
		return fail(errors.New("weather source returned no data"))
	}

	ws.SetWeather(current, forecast)
	return nil
}

func (g *InsightsGraph) dataQualityNode(ctx context.Context, ws *state.WorkflowState) error {
	return g.instrument(ctx, StageDataQuality, ws, g.dataQualityNodeImpl)
}

func (g *InsightsGraph) dataQualityNodeImpl(ctx context.Context, ws *state.WorkflowState) error {
	current, _ := ws.GetWeather()
	if current == nil {
		return &StageError{Stage: StageDataQuality, Message: msgMissingWeather}
	}

	result, err := g.dataQuality.Assess(ctx, current)
	if err != nil {
		return &StageError{Stage: StageDataQuality, Message: "Data analysis failed", Err: err}
	}

	ws.SetDataQuality(result)
	return nil
}

func (g *InsightsGraph) forecastNode(ctx context.Context, ws *state.WorkflowState) error {
	return g.instrument(ctx, StageForecast, ws, g.forecastNodeImpl)
}

func (g *InsightsGraph) forecastNodeImpl(ctx context.Context, ws *state.WorkflowState) error {
	current, forecast := ws.GetWeather()
	if current == nil || forecast == nil {
		return &StageError{Stage: StageForecast, Message: msgMissingForecastWeather}
	}

	result, err := g.forecast.Analyze(ctx, current, forecast, ws.Audience)
	if err != nil {
		return &StageError{Stage: StageForecast, Message: "Forecast analysis failed", Err: err}
	}

	ws.SetForecastInsights(result)
	return nil
}

func (g *InsightsGraph) knowledgeNode(ctx context.Context, ws *state.WorkflowState) error {
	return g.instrument(ctx, StageKnowledge, ws, g.knowledgeNodeImpl)
}

func (g *InsightsGraph) knowledgeNodeImpl(ctx context.Context, ws *state.WorkflowState) error {
	current, _ := ws.GetWeather()
	insights := ws.GetForecastInsights()
	if current == nil || insights == nil {
		return &StageError{Stage: StageKnowledge, Message: msgMissingKnowledgeInput}
	}
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: StageKnowledge, Message: "Knowledge retrieval failed", Err: err}
	}

	conditions := current.Condition + " " + current.Description
	if len(insights.RiskAlerts) > 0 {
		conditions += " " + strings.Join(insights.RiskAlerts, " ")
	}

	results := g.knowledge.Contextual(ctx, domain.ContextQuery{
		Conditions: conditions,
		Condition:  current.Condition,
		Location:   current.Location,
		Audience:   ws.Audience,
	})

	ws.SetKnowledge(results)
	return nil
}

func (g *InsightsGraph) adviceNode(ctx context.Context, ws *state.WorkflowState) error {
	return g.instrument(ctx, StageAdvice, ws, g.adviceNodeImpl)
}

func (g *InsightsGraph) adviceNodeImpl(ctx context.Context, ws *state.WorkflowState) error {
	quality := ws.GetDataQuality()
	insights := ws.GetForecastInsights()
	if quality == nil || insights == nil {
		return &StageError{Stage: StageAdvice, Message: msgMissingAdviceInput}
	}

	result, err := g.advice.Generate(ctx, quality, insights, ws.Audience)
	if err != nil {
		return &StageError{Stage: StageAdvice, Message: "Advice generation failed", Err: err}
	}

	ws.SetAdvice(result)
	return nil
}

// extractResult assembles the run result from the final state
func (g *InsightsGraph) extractResult(ws *state.WorkflowState) *domain.InsightsResult {
	snap := ws.GetSnapshot()

	if snap.Error != "" {
		return failedResult(snap.Location, g.now(), snap.Error)
	}

	knowledge := snap.Knowledge
	if knowledge == nil {
		knowledge = []domain.RetrievalResult{}
	}

	return &domain.InsightsResult{
		Location:          snap.Location,
		AnalysisTime:      g.now(),
		CurrentWeather:    snap.Current,
		DataQuality:       snap.DataQuality,
		ForecastInsights:  snap.ForecastInsights,
		Recommendations:   snap.Advice,
		RelevantKnowledge: knowledge,
		Success:           true,
	}
}

func failedResult(location string, at time.Time, message string) *domain.InsightsResult {
	return &domain.InsightsResult{
		Location:          location,
		AnalysisTime:      at,
		RelevantKnowledge: []domain.RetrievalResult{},
		Success:           false,
		ErrorMessage:      message,
	}
}
