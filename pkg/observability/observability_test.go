package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ncolesummers/weather-insights-agent/pkg/observability"
)

func captureLogs(t *testing.T, level observability.LogLevel) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	observability.SetLogOutput(&buf)
	observability.SetLogLevel(level)
	t.Cleanup(func() {
		observability.SetLogOutput(os.Stdout)
		observability.SetLogLevel(observability.LogLevelInfo)
	})
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []observability.LogEntry {
	t.Helper()
	var entries []observability.LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e observability.LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e), line)
		entries = append(entries, e)
	}
	return entries
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want observability.LogLevel
	}{
		{"debug", observability.LogLevelDebug},
		{" Info ", observability.LogLevelInfo},
		{"warning", observability.LogLevelWarn},
		{"WARN", observability.LogLevelWarn},
		{"error", observability.LogLevelError},
		{"verbose", observability.LogLevelInfo},
		{"", observability.LogLevelInfo},
	}
	for _, tt := range tests {
		if got := observability.ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStructuredLogger_LevelFilter(t *testing.T) {
	buf := captureLogs(t, observability.LogLevelWarn)
	logger := observability.NewStructuredLogger("workflow")
	ctx := context.Background()

	logger.Debug(ctx, "dropped")
	logger.Info(ctx, "dropped too")
	logger.Warn(ctx, "Knowledge search failed", map[string]interface{}{"location": "Cebu"})
	logger.Error(ctx, "Fetch failed", errors.New("timeout"), map[string]interface{}{"stage": "fetch"})

	entries := decodeLines(t, buf)
	require.Len(t, entries, 2)

	assert.Equal(t, observability.LogLevelWarn, entries[0].Severity)
	assert.Equal(t, "workflow", entries[0].Component)
	assert.Equal(t, "Cebu", entries[0].Attributes["location"])

	assert.Equal(t, observability.LogLevelError, entries[1].Severity)
	assert.Equal(t, "timeout", entries[1].Attributes["error"])
	assert.Equal(t, "fetch", entries[1].Attributes["stage"])
}

func TestStructuredLogger_TraceCorrelation(t *testing.T) {
	buf := captureLogs(t, observability.LogLevelInfo)
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "analysis.request")
	defer span.End()

	observability.NewStructuredLogger("api").Info(ctx, "Starting weather analysis")

	entries := decodeLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[0].TraceID)
	assert.Equal(t, span.SpanContext().SpanID().String(), entries[0].SpanID)
}

func TestInstrumentStage_Status(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	telemetry := observability.NewTelemetryFromProviders(tp, metricnoop.NewMeterProvider())

	ctx := context.Background()
	require.NoError(t, telemetry.InstrumentStage(ctx, "fetch", "Manila", func(context.Context) error { return nil }))
	err := telemetry.InstrumentStage(ctx, "forecast", "Manila", func(context.Context) error { return errors.New("llm down") })
	assert.EqualError(t, err, "llm down")

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "workflow.stage.fetch", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, "workflow.stage.forecast", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "llm down", spans[1].Status().Description)
}

func TestMetricsHandler_ExposesPipelineMetrics(t *testing.T) {
	telemetry, err := observability.NewTelemetry(&observability.TelemetryConfig{
		ServiceName:    "weather-insights-agent",
		ServiceVersion: "test",
		Environment:    "test",
		EnableMetrics:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = telemetry.Shutdown(context.Background()) })

	metrics, err := observability.NewMetrics(telemetry.Meter())
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordAnalysisStarted(ctx)
	metrics.RecordStage(ctx, "fetch", 120*time.Millisecond, "success")
	metrics.RecordAnalysisComplete(ctx, time.Second, "success")
	assert.Equal(t, int64(0), metrics.GetActiveAnalysisCount())

	rec := httptest.NewRecorder()
	telemetry.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "stage_duration_seconds")
	assert.Contains(t, text, `stage="fetch"`)
	assert.Contains(t, text, "analyses")
	assert.Contains(t, text, "go_goroutines")
}

func TestMetricsHandler_Disabled(t *testing.T) {
	rec := httptest.NewRecorder()
	observability.NewNoopTelemetry().MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
