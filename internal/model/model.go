// Package model implements the two pretrained emotion classifiers and the
// registry that loads them from artifact storage.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/maauso/voice-emotion-api/internal/emotion"
	"github.com/maauso/voice-emotion-api/internal/feature"
)

// Static errors for model loading and inference.
var (
	// ErrModelLoad is returned when an artifact is missing, corrupt or invalid.
	ErrModelLoad = errors.New("model: load failed")
	// ErrPrediction is returned when inference fails or yields non-finite values.
	ErrPrediction = errors.New("model: prediction failed")
	// ErrUnknownVariant is returned for a variant name other than cnn or mlp.
	ErrUnknownVariant = errors.New("model: unknown variant")
)

// Variant selects one of the two classifiers.
type Variant string

const (
	VariantCNN Variant = "cnn"
	VariantMLP Variant = "mlp"
)

// Variants returns every supported variant.
func Variants() []Variant {
	return []Variant{VariantCNN, VariantMLP}
}

// ParseVariant validates a variant name. Matching is case-insensitive.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VariantCNN, VariantMLP:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
}

// Classifier maps a feature vector to a distribution over the eight
// emotion classes. Implementations are immutable and safe for concurrent use.
type Classifier interface {
	Variant() Variant
	// PredictDistribution returns NumClasses non-negative values summing to 1.
	PredictDistribution(v feature.Vector) ([]float64, error)
	// PredictLabel returns the arg-max class of PredictDistribution.
	PredictLabel(v feature.Vector) (int, error)
}

// Description summarises a loaded network.
type Description struct {
	Name   string   `json:"name,omitempty"`
	Layers []string `json:"layers"`
	Params int      `json:"params"`
}

// Describer is implemented by classifiers that can summarise themselves.
type Describer interface {
	Describe() Description
}

// predictLabel derives the label from dist so both operations agree.
func predictLabel(c Classifier, v feature.Vector) (int, error) {
	dist, err := c.PredictDistribution(v)
	if err != nil {
		return 0, err
	}
	return emotion.ArgMax(dist), nil
}

// checkDistribution rejects outputs that are not a probability distribution.
func checkDistribution(dist []float64) error {
	if len(dist) != emotion.NumClasses {
		return fmt.Errorf("%w: expected %d outputs, got %d", ErrPrediction, emotion.NumClasses, len(dist))
	}
	sum := 0.0
	for i, p := range dist {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: non-finite output at class %d", ErrPrediction, i)
		}
		if p < 0 {
			return fmt.Errorf("%w: negative output %g at class %d", ErrPrediction, p, i)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-3 {
		return fmt.Errorf("%w: outputs sum to %g", ErrPrediction, sum)
	}
	return nil
}
