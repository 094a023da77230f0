package api

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode categorizes errors returned to API clients
type ErrorCode string

const (
	// Validation (400)
	ErrCodeValidationFailed      ErrorCode = "validation_failed"
	ErrCodeValidationInvalidJSON ErrorCode = "validation_invalid_json"
	ErrCodeValidationBatchSize   ErrorCode = "validation_batch_size_exceeded"

	// Routing (404/405)
	ErrCodeNotFoundRoute    ErrorCode = "not_found_route"
	ErrCodeMethodNotAllowed ErrorCode = "method_not_allowed"

	// Limits (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Internal/Upstream (500/502)
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeInternalKnowledge   ErrorCode = "internal_knowledge_store_error"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
)

// AppError is an error carrying a client-facing code and message.
// The wrapped Err is logged but never written to the response.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]any
}

// NewAppError creates an AppError without details
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewAppErrorWithDetails creates an AppError with structured details
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, Err: err, Details: details}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error code to a response status by its prefix
func (e *AppError) HTTPStatus() int {
	code := string(e.Code)
	switch {
	case e.Code == ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case e.Code == ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case strings.HasPrefix(code, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(code, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
