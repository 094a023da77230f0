package api_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ncolesummers/weather-insights-agent/pkg/api"
)

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code api.ErrorCode
		want int
	}{
		{api.ErrCodeValidationFailed, http.StatusBadRequest},
		{api.ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{api.ErrCodeValidationBatchSize, http.StatusBadRequest},
		{api.ErrCodeNotFoundRoute, http.StatusNotFound},
		{api.ErrCodeMethodNotAllowed, http.StatusMethodNotAllowed},
		{api.ErrCodeRateLimit, http.StatusTooManyRequests},
		{api.ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{api.ErrCodeInternalKnowledge, http.StatusInternalServerError},
		{api.ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := api.NewAppError(tt.code, "msg", nil)
			if got := err.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := api.NewAppError(api.ErrCodeUpstreamUnavailable, "weather provider unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "upstream_unavailable: weather provider unreachable: connection reset", err.Error())
	assert.Equal(t, "validation_failed: bad", api.NewAppError(api.ErrCodeValidationFailed, "bad", nil).Error())
}
