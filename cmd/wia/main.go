package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ncolesummers/weather-insights-agent/pkg/api"
	"github.com/ncolesummers/weather-insights-agent/pkg/config"
	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/knowledge"
	"github.com/ncolesummers/weather-insights-agent/pkg/llm"
	"github.com/ncolesummers/weather-insights-agent/pkg/observability"
	"github.com/ncolesummers/weather-insights-agent/pkg/weather"
	"github.com/ncolesummers/weather-insights-agent/pkg/workflow"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"

	telemetry *observability.Telemetry
	metrics   *observability.Metrics
	tracer    trace.Tracer
)

// geocodeCacheSize bounds the number of cached place names
const geocodeCacheSize = 1000

func main() {
	var (
		configPath = flag.String("config", "configs/default.yaml", "Path to configuration file")
		version    = flag.Bool("version", false, "Show version information")
		apiMode    = flag.Bool("api", false, "Run in API server mode")
		location   = flag.String("location", "", "Location to analyze (for CLI mode)")
		audience   = flag.String("audience", "general", "Audience: farmers, officials or general")
		batch      = flag.String("batch", "", "Comma-separated locations to analyze as a batch")
	)
	flag.Parse()

	if *version {
		fmt.Printf("Weather Insights Agent\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	cfg := config.LoadOrDefault(*configPath)
	observability.SetLogLevel(observability.ParseLogLevel(cfg.Observability.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := initObservability(cfg); err != nil {
		log.Fatalf("Failed to initialize observability: %v", err)
	}
	defer shutdownObservability()

	mode := getMode(*apiMode || cfg.API.Enabled)
	ctx, span := tracer.Start(ctx, "main",
		trace.WithAttributes(
			attribute.String("version", Version),
			attribute.String("mode", mode),
		),
	)
	defer span.End()

	log.Printf("Starting Weather Insights Agent v%s (built: %s)", Version, BuildTime)
	log.Printf("Configuration loaded from: %s", *configPath)

	if err := run(ctx, cfg, mode, *location, *batch, domain.ParseAudience(*audience)); err != nil {
		span.RecordError(err)
		span.End()
		shutdownObservability()
		log.Fatalf("Application failed: %v", err)
	}
}

func initObservability(cfg *config.Config) error {
	telConfig := &observability.TelemetryConfig{
		ServiceName:    "weather-insights-agent",
		ServiceVersion: Version,
		Environment:    getEnvironment(),
		OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
		OTLPInsecure:   cfg.Observability.Tracing.Insecure,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		EnableTracing:  cfg.Observability.Tracing.Enabled,
		EnableMetrics:  cfg.Observability.Metrics.Enabled,
	}

	var err error
	telemetry, err = observability.NewTelemetry(telConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	tracer = telemetry.Tracer()

	if cfg.Observability.Metrics.Enabled {
		metrics, err = observability.NewMetrics(telemetry.Meter())
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	log.Println("Observability initialized successfully")
	return nil
}

func shutdownObservability() {
	if telemetry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := telemetry.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down telemetry: %v", err)
	}
}

// components holds everything built from the configuration
type components struct {
	graph *workflow.InsightsGraph
	store *knowledge.Store
}

func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	_, span := tracer.Start(ctx, "initialize_components")
	defer span.End()

	ollamaClient := llm.NewOllamaClient(
		cfg.Ollama.BaseURL,
		cfg.Ollama.Model,
		&llm.OllamaOptions{
			Temperature:    cfg.Ollama.Temperature,
			MaxTokens:      cfg.Ollama.MaxTokens,
			TopP:           cfg.Ollama.TopP,
			TopK:           cfg.Ollama.TopK,
			EmbeddingModel: cfg.Ollama.EmbeddingModel,
			Timeout:        cfg.DurationOr(cfg.Ollama.Timeout, 2*time.Minute),
		},
	)
	llmClient, err := llm.NewInstrumentedLLMClient(ollamaClient, telemetry, metrics, cfg.Ollama.Model)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to instrument llm client: %w", err)
	}

	owClient := weather.NewOpenWeatherClient(
		cfg.Weather.APIKey,
		cfg.DurationOr(cfg.Weather.Timeout, 15*time.Second),
		weather.WithBaseURL(cfg.Weather.BaseURL),
	)
	source := weather.NewCachedSource(owClient, geocodeCacheSize,
		cfg.DurationOr(cfg.Weather.GeocodeCacheTTL, 24*time.Hour), nil)

	var embedder knowledge.Embedder
	switch cfg.Knowledge.Embedder {
	case "ollama":
		embedder = knowledge.NewLLMEmbedder(llmClient, cfg.Knowledge.VectorDimension)
	default:
		embedder = knowledge.NewHashEmbedder(cfg.Knowledge.VectorDimension)
	}

	storeOpts := []knowledge.Option{knowledge.WithCollection(cfg.Knowledge.CollectionName)}
	if metrics != nil {
		storeOpts = append(storeOpts, knowledge.WithMetrics(metrics))
	}
	store, err := knowledge.Open(cfg.Knowledge.Path, embedder, storeOpts...)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}

	wfConfig := &workflow.Config{
		BatchConcurrency: cfg.Workflow.BatchConcurrency,
		RunTimeout:       cfg.DurationOr(cfg.Workflow.RunTimeout, 5*time.Minute),
		Chat: domain.ChatOptions{
			Model:       cfg.Ollama.Model,
			Temperature: cfg.Ollama.Temperature,
			MaxTokens:   cfg.Ollama.MaxTokens,
			TopP:        cfg.Ollama.TopP,
			TopK:        cfg.Ollama.TopK,
		},
	}

	graph, err := workflow.NewInsightsGraph(wfConfig, workflow.Dependencies{
		Weather:   source,
		LLM:       llmClient,
		Knowledge: store,
		Telemetry: telemetry,
	})
	if err != nil {
		span.RecordError(err)
		_ = store.Close()
		return nil, fmt.Errorf("failed to build insights graph: %w", err)
	}

	return &components{graph: graph, store: store}, nil
}

func run(ctx context.Context, cfg *config.Config, mode, location, batch string, audience domain.Audience) error {
	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.store.Close()

	switch {
	case mode == "api":
		return runAPIServer(ctx, cfg, c)
	case batch != "":
		return runBatch(ctx, c.graph, splitLocations(batch), audience)
	default:
		return runCLI(ctx, c.graph, location, audience)
	}
}

func runAPIServer(ctx context.Context, cfg *config.Config, c *components) error {
	apiConfig := &api.Config{
		Host:            cfg.API.Host,
		Port:            cfg.API.Port,
		Version:         Version,
		MaxBatchSize:    cfg.Workflow.MaxBatchSize,
		ReadTimeout:     cfg.DurationOr(cfg.API.ReadTimeout, 30*time.Second),
		WriteTimeout:    cfg.DurationOr(cfg.API.WriteTimeout, 10*time.Minute),
		ShutdownTimeout: 15 * time.Second,
		CORS:            cfg.API.CORS,
		RateLimit:       cfg.API.RateLimit,
	}
	if cfg.Observability.Metrics.Enabled {
		apiConfig.MetricsPath = cfg.Observability.Metrics.Path
	}

	server, err := api.NewServer(apiConfig, api.Dependencies{
		Analyzer:  c.graph,
		Patterns:  c.store,
		Telemetry: telemetry,
	})
	if err != nil {
		return fmt.Errorf("failed to create api server: %w", err)
	}

	log.Printf("API server starting on %s:%d", cfg.API.Host, cfg.API.Port)
	return server.ListenAndServe(ctx)
}

func runCLI(ctx context.Context, graph *workflow.InsightsGraph, location string, audience domain.Audience) error {
	if location == "" {
		fmt.Print("Enter a location to analyze: ")
		if _, err := fmt.Scanln(&location); err != nil {
			return fmt.Errorf("failed to read location from stdin: %w", err)
		}
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return fmt.Errorf("no location provided")
	}

	startTime := time.Now()
	log.Printf("Analyzing weather for: %s (%s)", location, audience)

	result := graph.Run(ctx, domain.AnalysisRequest{Location: location, Audience: audience})
	printReport(result)
	fmt.Printf("Duration: %s\n", time.Since(startTime).Round(time.Millisecond))

	if !result.Success {
		return fmt.Errorf("analysis failed: %s", result.ErrorMessage)
	}
	return nil
}

func runBatch(ctx context.Context, graph *workflow.InsightsGraph, locations []string, audience domain.Audience) error {
	if len(locations) == 0 {
		return fmt.Errorf("no batch locations provided")
	}

	startTime := time.Now()
	results := graph.RunBatch(ctx, locations, audience)
	summary := workflow.BatchSummary(results, time.Since(startTime))

	for _, result := range summary.Results {
		printReport(result)
	}

	fmt.Println("\n=== Batch Summary ===")
	fmt.Printf("Locations: %d\n", summary.TotalLocations)
	fmt.Printf("Successful: %d\n", summary.SuccessfulAnalyses)
	fmt.Printf("Failed: %d\n", summary.FailedAnalyses)
	fmt.Printf("Processing Time: %.2fs\n", summary.ProcessingTime)

	if summary.SuccessfulAnalyses == 0 {
		return fmt.Errorf("all %d analyses failed", summary.TotalLocations)
	}
	return nil
}

func printReport(result *domain.InsightsResult) {
	fmt.Printf("\n=== Weather Insights: %s ===\n", result.Location)
	fmt.Printf("Generated: %s\n", result.AnalysisTime.Format(time.RFC3339))

	if !result.Success {
		fmt.Printf("Status: FAILED\n%s\n", result.ErrorMessage)
		return
	}

	if w := result.CurrentWeather; w != nil {
		fmt.Printf("\nCurrent Conditions: %.1f°C, %d%% humidity, %s (%s)\n",
			w.Temperature, w.Humidity, w.Condition, w.Description)
	}

	if dq := result.DataQuality; dq != nil {
		fmt.Printf("Data Quality: %.2f/1.0\n", dq.QualityScore)
		for _, a := range dq.Anomalies {
			fmt.Printf("  ! %s\n", a)
		}
	}

	if fi := result.ForecastInsights; fi != nil {
		if len(fi.RiskAlerts) > 0 {
			fmt.Printf("\nRisk Alerts: %s\n", strings.Join(fi.RiskAlerts, ", "))
		}
		if len(fi.Insights) > 0 {
			fmt.Println("\nForecast Insights:")
			for i, in := range fi.Insights {
				fmt.Printf("%d. [%s] %s\n", i+1, in.Priority, in.Title)
				fmt.Printf("   %s\n", in.Description)
				fmt.Printf("   Confidence: %.2f\n", in.Confidence)
			}
		}
	}

	if adv := result.Recommendations; adv != nil {
		fmt.Printf("\n%s\n", adv.PrioritySummary)
		if len(adv.ActionChecklist) > 0 {
			fmt.Println("\nAction Checklist:")
			for _, item := range adv.ActionChecklist {
				fmt.Printf("  [ ] %s\n", item)
			}
		}
		if len(adv.ContactSuggestions) > 0 {
			fmt.Println("\nContacts:")
			for _, c := range adv.ContactSuggestions {
				fmt.Printf("  - %s\n", c)
			}
		}
	}

	if len(result.RelevantKnowledge) > 0 {
		fmt.Println("\nRelated Guidance:")
		for _, k := range result.RelevantKnowledge {
			fmt.Printf("  (%.2f) %s\n", k.Score, k.Source)
		}
	}
}

func splitLocations(s string) []string {
	var locations []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			locations = append(locations, p)
		}
	}
	return locations
}

func getMode(apiMode bool) string {
	if apiMode {
		return "api"
	}
	return "cli"
}

func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	return "development"
}
