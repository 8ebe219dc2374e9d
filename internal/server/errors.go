package server

import (
	"errors"
	"net/http"

	"github.com/maauso/voice-emotion-api/internal/audio"
	"github.com/maauso/voice-emotion-api/internal/feature"
	"github.com/maauso/voice-emotion-api/internal/model"
	"github.com/maauso/voice-emotion-api/internal/result"
	"github.com/maauso/voice-emotion-api/internal/session"
)

// errorMapping pairs a domain sentinel with its HTTP status and code.
type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first sentinel found in the chain wins.
var errorMappings = []errorMapping{
	{session.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
	{session.ErrNoAudio, http.StatusConflict, "NO_AUDIO"},
	{session.ErrInvalidTransition, http.StatusConflict, "INVALID_STATE"},
	{audio.ErrEmptyAudio, http.StatusUnprocessableEntity, "EMPTY_AUDIO"},
	{audio.ErrDecode, http.StatusUnprocessableEntity, "DECODE_ERROR"},
	{feature.ErrInsufficientAudio, http.StatusUnprocessableEntity, "INSUFFICIENT_AUDIO"},
	{model.ErrModelLoad, http.StatusServiceUnavailable, "MODEL_LOAD_ERROR"},
	{model.ErrPrediction, http.StatusInternalServerError, "PREDICTION_ERROR"},
	{result.ErrInvalidInput, http.StatusInternalServerError, "FORMAT_ERROR"},
}

// mapError translates a service error into an error response and status.
func mapError(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error(), Code: "INTERNAL_ERROR"}

	var se *session.StageError
	if errors.As(err, &se) {
		resp.Stage = string(se.Stage)
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			resp.Code = m.code
			return m.status, resp
		}
	}
	return http.StatusInternalServerError, resp
}
