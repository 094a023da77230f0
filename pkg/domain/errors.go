package domain

import (
	"errors"
	"fmt"
)

// ErrGeocodeNotFound is returned when a place name resolves to no coordinates
var ErrGeocodeNotFound = errors.New("location not found")

// ProviderError reports a weather provider failure: transport, status or payload
type ProviderError struct {
	Status  int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("weather provider returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("weather provider error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// GenerationError reports a text generation failure or an empty completion
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: empty response from text generation backend", e.Op)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ValidationError reports structured output that does not match its schema
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid structured output: " + e.Message
	}
	return fmt.Sprintf("invalid structured output field %q: %s", e.Field, e.Message)
}

// StoreError reports a knowledge store failure
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("knowledge store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
