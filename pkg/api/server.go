package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ncolesummers/weather-insights-agent/pkg/config"
	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/observability"
)

// Analyzer runs the insights pipeline
type Analyzer interface {
	Run(ctx context.Context, req domain.AnalysisRequest) *domain.InsightsResult
	RunBatch(ctx context.Context, locations []string, audience domain.Audience) []*domain.InsightsResult
	Status(ctx context.Context) *domain.SystemStatus
}

// PatternRecorder stores historical weather patterns
type PatternRecorder interface {
	AddHistoricalPattern(ctx context.Context, location, description string, data map[string]interface{}, outcome string) error
}

// Config contains server settings
type Config struct {
	Host            string
	Port            int
	Version         string
	MaxBatchSize    int
	MetricsPath     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            config.CORSConfig
	RateLimit       config.RateLimitConfig
}

// DefaultConfig returns the server defaults
func DefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8000,
		Version:         "dev",
		MaxBatchSize:    20,
		MetricsPath:     "/metrics",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Dependencies are the collaborators the server routes to
type Dependencies struct {
	Analyzer  Analyzer
	Patterns  PatternRecorder
	Telemetry *observability.Telemetry
	Clock     clockwork.Clock
}

// Server is the HTTP surface of the insights pipeline
type Server struct {
	config    *Config
	analyzer  Analyzer
	patterns  PatternRecorder
	telemetry *observability.Telemetry
	validator *Validator
	limiter   *rateLimiter
	logger    *observability.StructuredLogger
	clock     clockwork.Clock
	started   time.Time
	router    *chi.Mux
}

// NewServer builds the router and middleware chain
func NewServer(cfg *Config, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if deps.Patterns == nil {
		return nil, errors.New("pattern recorder is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Server{
		config:    cfg,
		analyzer:  deps.Analyzer,
		patterns:  deps.Patterns,
		telemetry: deps.Telemetry,
		validator: NewValidator(),
		limiter:   newRateLimiter(cfg.RateLimit),
		logger:    observability.NewStructuredLogger("api"),
		clock:     clock,
		started:   clock.Now(),
		router:    chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.RequestLogger)
	r.Use(s.CORS)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, NewAppError(ErrCodeNotFoundRoute, "route not found", nil))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, NewAppError(ErrCodeMethodNotAllowed, "method not allowed", nil))
	})

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	if s.telemetry != nil && s.config.MetricsPath != "" {
		r.Method(http.MethodGet, s.config.MetricsPath, s.telemetry.MetricsHandler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.RateLimit)

		r.Post("/weather/insights", s.handleInsights)
		r.Post("/weather/batch", s.handleBatch)
		r.Get("/system/status", s.handleStatus)
		r.Post("/knowledge/patterns", s.handleAddPattern)
	})
}

// Handler returns the root handler, traced with otelhttp
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "weather-insights-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Router returns the chi router for tests and extra mounts
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "API server listening", map[string]interface{}{"addr": srv.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownTimeout := s.config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "Shutting down API server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	return nil
}
