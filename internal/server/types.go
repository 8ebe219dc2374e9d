// Package server provides the HTTP server for the voice emotion API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/voice-emotion-api/internal/model"
	"github.com/maauso/voice-emotion-api/internal/result"
)

// PredictionRequest is the HTTP request body for classifying a session.
type PredictionRequest struct {
	// Model selects the classifier variant.
	Model string `json:"model" validate:"required,oneof=cnn mlp"`
}

// classifyForm holds the non-file fields of POST /classify.
type classifyForm struct {
	Model string `validate:"required,oneof=cnn mlp"`
}

// waveformQuery holds the query parameters of the waveform endpoint.
type waveformQuery struct {
	MaxPoints int `validate:"omitempty,min=2"`
}

// SessionResponse describes a session and its loaded clip.
type SessionResponse struct {
	// ID is the unique identifier for the session.
	ID string `json:"id"`
	// State is the current lifecycle state.
	State string `json:"state"`
	// FileName is the name of the loaded file, empty when no clip is loaded.
	FileName string `json:"file_name,omitempty"`
	// SampleRate is the native sample rate of the clip.
	SampleRate int `json:"sample_rate,omitempty"`
	// SampleCount is the number of mono samples.
	SampleCount int `json:"sample_count,omitempty"`
	// DurationSeconds is the clip length.
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	// HasFeatures reports whether a feature vector has been extracted.
	HasFeatures bool `json:"has_features"`
	// Invocations lists the models run against the clip, in order.
	Invocations []string  `json:"invocations"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PredictionResponse is the formatted result of one classification.
type PredictionResponse struct {
	// SessionID is set when the prediction ran against a session.
	SessionID string `json:"session_id,omitempty"`
	result.Payload
	// Features is the 40-value feature vector the model received.
	Features []float64 `json:"features"`
}

// ModelsResponse lists the configured model variants.
type ModelsResponse struct {
	Models []model.Status `json:"models"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
	// Stage names the pipeline stage that failed, when one did.
	Stage string `json:"stage,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
