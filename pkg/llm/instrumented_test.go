package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ncolesummers/weather-insights-agent/internal/testutil"
	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/llm"
)

func findSpan(recorder *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	for _, span := range recorder.Ended() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func TestInstrumentedLLMClient_Embed(t *testing.T) {
	tests := []struct {
		name       string
		fail       bool
		wantStatus codes.Code
	}{
		{name: "success", wantStatus: codes.Ok},
		{name: "failure", fail: true, wantStatus: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := tracetest.NewSpanRecorder()
			mock := testutil.NewMockLLMClient()
			mock.ShouldError = tt.fail
			mock.ErrorMessage = "embedding model not loaded"

			client, err := llm.NewInstrumentedLLMClient(mock, testutil.NewTestTelemetry(recorder), nil, "nomic-embed-text")
			require.NoError(t, err)

			vec, err := client.Embed(context.Background(), "typhoon season in Luzon")
			if tt.fail {
				assert.Error(t, err)
				assert.Nil(t, vec)
			} else {
				require.NoError(t, err)
				assert.Len(t, vec, 5)
			}

			span := findSpan(recorder, "llm.embed")
			require.NotNil(t, span, "expected an llm.embed span")
			if got := span.Status().Code; got != tt.wantStatus {
				t.Errorf("span status = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestInstrumentedLLMClient_ChatFailure(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	mock := testutil.NewMockLLMClient()
	mock.ShouldError = true
	mock.ErrorMessage = "context deadline exceeded"

	client, err := llm.NewInstrumentedLLMClient(mock, testutil.NewTestTelemetry(recorder), nil, "llama3")
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, domain.ChatOptions{})
	assert.Error(t, err)
	assert.Nil(t, resp)

	span := findSpan(recorder, "llm.chat")
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status().Code)
	for _, attr := range span.Attributes() {
		if attr.Key == "llm.purpose" {
			assert.Equal(t, "completion", attr.Value.AsString())
		}
	}
}

func TestInstrumentedLLMClient_CheckHealth(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	mock := testutil.NewMockLLMClient()
	mock.HealthErr = errors.New("ollama not running")

	client, err := llm.NewInstrumentedLLMClient(mock, testutil.NewTestTelemetry(recorder), nil, "llama3")
	require.NoError(t, err)

	assert.EqualError(t, client.CheckHealth(context.Background()), "ollama not running")
	span := findSpan(recorder, "llm.health")
	require.NotNil(t, span)
	assert.Equal(t, codes.Error, span.Status().Code)

	mock.HealthErr = nil
	assert.NoError(t, client.CheckHealth(context.Background()))
}
