package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/stdr"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "weather-insights-agent"

// TelemetryConfig selects which signals are exported and where
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	OTLPInsecure   bool
	SamplingRate   float64
	EnableTracing  bool
	EnableMetrics  bool
}

// DefaultConfig exports traces to a local collector and serves metrics
func DefaultConfig() *TelemetryConfig {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4318"
	}
	return &TelemetryConfig{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    env,
		OTLPEndpoint:   endpoint,
		OTLPInsecure:   true,
		SamplingRate:   1.0,
		EnableTracing:  true,
		EnableMetrics:  true,
	}
}

// Telemetry owns the process tracer and meter. Disabled signals are backed by noop providers.
type Telemetry struct {
	tracer   trace.Tracer
	meter    metric.Meter
	registry *promclient.Registry
	closers  []func(context.Context) error
}

// NewTelemetry builds the providers described by cfg and installs them as the otel globals.
// A nil cfg uses DefaultConfig.
func NewTelemetry(cfg *TelemetryConfig) (*Telemetry, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = serviceName
	}

	stdr.SetVerbosity(0)
	sdkLog := NewStructuredLogger("otel")
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		sdkLog.Debug(context.Background(), "Telemetry export error", map[string]interface{}{"error": err.Error()})
	}))
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	t := &Telemetry{
		tracer: noop.NewTracerProvider().Tracer(cfg.ServiceName),
		meter:  metricnoop.NewMeterProvider().Meter(cfg.ServiceName),
	}

	if cfg.EnableTracing {
		tp, err := newTracerProvider(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		otel.SetTracerProvider(tp)
		t.tracer = tp.Tracer(cfg.ServiceName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
		t.closers = append(t.closers, tp.Shutdown)
	}

	if cfg.EnableMetrics {
		registry, mp, err := newMeterProvider(res)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize metrics: %w", err), t.Shutdown(context.Background()))
		}
		otel.SetMeterProvider(mp)
		t.registry = registry
		t.meter = mp.Meter(cfg.ServiceName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		t.closers = append(t.closers, mp.Shutdown)
	}

	return t, nil
}

// NewNoopTelemetry returns telemetry that records nothing
func NewNoopTelemetry() *Telemetry {
	return NewTelemetryFromProviders(noop.NewTracerProvider(), metricnoop.NewMeterProvider())
}

// NewTelemetryFromProviders wraps caller-owned providers, typically an in-memory span recorder in tests
func NewTelemetryFromProviders(tp trace.TracerProvider, mp metric.MeterProvider) *Telemetry {
	return &Telemetry{
		tracer: tp.Tracer(serviceName),
		meter:  mp.Meter(serviceName),
	}
}

func newResource(cfg *TelemetryConfig) (*resource.Resource, error) {
	hostname, _ := os.Hostname()
	return resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
		attribute.String("host.name", hostname),
		attribute.String("service.namespace", "weather"),
	))
}

// newTracerProvider batches spans to an OTLP/HTTP collector
func newTracerProvider(cfg *TelemetryConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithTimeout(10 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 5 * time.Second,
			MaxInterval:     30 * time.Second,
			MaxElapsedTime:  2 * time.Minute,
		}),
	}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithExportTimeout(30*time.Second),
		),
	), nil
}

// newMeterProvider exports through a private registry so /metrics shows only the
// pipeline instruments plus the Go runtime and process collectors
func newMeterProvider(res *resource.Resource) (*promclient.Registry, *sdkmetric.MeterProvider, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	return registry, mp, nil
}

// Shutdown flushes and stops the providers, reporting every failure
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, closeFn := range t.closers {
		errs = append(errs, closeFn(ctx))
	}
	return errors.Join(errs...)
}

func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// MetricsHandler serves the Prometheus exposition. With metrics disabled it serves
// an empty registry.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t.registry == nil {
		return promhttp.HandlerFor(promclient.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

func (t *Telemetry) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}
