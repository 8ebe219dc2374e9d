// Package result turns predictions into display payloads.
package result

import (
	"errors"
	"fmt"
	"math"

	"github.com/maauso/voice-emotion-api/internal/audio"
	"github.com/maauso/voice-emotion-api/internal/emotion"
)

// ErrInvalidInput is returned when a prediction or its metadata cannot be
// displayed.
var ErrInvalidInput = errors.New("result: invalid input")

// Metadata describes the clip a prediction was made for.
type Metadata struct {
	FileName    string
	SampleCount int
	SampleRate  int
}

// MetadataOf extracts display metadata from a clip.
func MetadataOf(clip *audio.Clip) Metadata {
	return Metadata{
		FileName:    clip.Name(),
		SampleCount: clip.Len(),
		SampleRate:  clip.SampleRate(),
	}
}

// Payload is what the presentation layer renders for one model invocation.
type Payload struct {
	Label             string             `json:"label"`
	Marker            string             `json:"marker"`
	DisplayLabel      string             `json:"display_label"`
	ConfidencePercent float64            `json:"confidence_percent"`
	ConfidenceText    string             `json:"confidence_text"`
	DurationSeconds   float64            `json:"duration_seconds"`
	DurationText      string             `json:"duration_text"`
	SampleRate        int                `json:"sample_rate"`
	FileName          string             `json:"file_name"`
	Model             string             `json:"model"`
	Probabilities     map[string]float64 `json:"probabilities"`
}

// Format builds the display payload for pred. It has no side effects.
func Format(pred emotion.Prediction, meta Metadata, variant string) (Payload, error) {
	if !pred.Label.IsValid() {
		return Payload{}, fmt.Errorf("%w: label %d", ErrInvalidInput, int(pred.Label))
	}
	if meta.SampleRate <= 0 {
		return Payload{}, fmt.Errorf("%w: sample rate %d", ErrInvalidInput, meta.SampleRate)
	}
	if pred.Confidence < 0 || pred.Confidence > 100 || math.IsNaN(pred.Confidence) {
		return Payload{}, fmt.Errorf("%w: confidence %g", ErrInvalidInput, pred.Confidence)
	}

	duration := float64(meta.SampleCount) / float64(meta.SampleRate)
	probs := make(map[string]float64, emotion.NumClasses)
	for _, e := range emotion.All() {
		probs[e.String()] = pred.Distribution[e]
	}

	return Payload{
		Label:             pred.Label.String(),
		Marker:            pred.Label.Marker(),
		DisplayLabel:      pred.Label.Display(),
		ConfidencePercent: round2(pred.Confidence),
		ConfidenceText:    fmt.Sprintf("%.2f%%", pred.Confidence),
		DurationSeconds:   duration,
		DurationText:      fmt.Sprintf("%.2f seconds", duration),
		SampleRate:        meta.SampleRate,
		FileName:          meta.FileName,
		Model:             variant,
		Probabilities:     probs,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
