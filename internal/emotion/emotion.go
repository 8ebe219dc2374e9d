// Package emotion defines the eight emotion classes recognised by the
// classifiers and the Prediction value produced for a single clip.
package emotion

import (
	"errors"
	"fmt"
	"math"
)

// NumClasses is the number of emotion classes every model predicts.
const NumClasses = 8

// Emotion is a class index in [0, NumClasses).
// The order matches the output columns of the pretrained models.
type Emotion int

const (
	Neutral Emotion = iota
	Calm
	Happy
	Sad
	Angry
	Fear
	Disgust
	Surprise
)

// Static errors for prediction construction.
var (
	// ErrDistributionLength is returned when a distribution does not have NumClasses entries.
	ErrDistributionLength = errors.New("emotion: distribution must have 8 entries")
	// ErrInvalidProbability is returned for negative, NaN or infinite entries.
	ErrInvalidProbability = errors.New("emotion: invalid probability")
	// ErrUnknownEmotion is returned when an index is outside the class range.
	ErrUnknownEmotion = errors.New("emotion: unknown emotion")
)

var names = [NumClasses]string{
	"Neutral", "Calm", "Happy", "Sad", "Angry", "Fear", "Disgust", "Surprise",
}

var markers = [NumClasses]string{
	"😐", "😌", "😊", "😢", "😠", "😨", "🤢", "😲",
}

// All returns every emotion in class-index order.
func All() []Emotion {
	out := make([]Emotion, NumClasses)
	for i := range out {
		out[i] = Emotion(i)
	}
	return out
}

// FromIndex converts a class index into an Emotion.
func FromIndex(i int) (Emotion, error) {
	e := Emotion(i)
	if !e.IsValid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownEmotion, i)
	}
	return e, nil
}

// IsValid reports whether e is one of the eight known classes.
func (e Emotion) IsValid() bool {
	return e >= Neutral && e <= Surprise
}

// String returns the human readable class name, e.g. "Happy".
func (e Emotion) String() string {
	if !e.IsValid() {
		return fmt.Sprintf("Emotion(%d)", int(e))
	}
	return names[e]
}

// Marker returns the decorative emoji shown next to the label.
func (e Emotion) Marker() string {
	if !e.IsValid() {
		return ""
	}
	return markers[e]
}

// Display returns the marker and name joined by a space, e.g. "😊 Happy".
func (e Emotion) Display() string {
	if !e.IsValid() {
		return e.String()
	}
	return markers[e] + " " + names[e]
}

// Prediction is the outcome of running one model against one clip.
// It is recomputed for every request and never cached.
type Prediction struct {
	// Label is the arg-max class.
	Label Emotion
	// Confidence is the probability of Label scaled to [0, 100].
	Confidence float64
	// Distribution holds the probability of every class, in class order.
	Distribution [NumClasses]float64
}

// NewPrediction builds a Prediction from a model's output distribution.
// Ties resolve to the lowest class index.
func NewPrediction(dist []float64) (Prediction, error) {
	if len(dist) != NumClasses {
		return Prediction{}, fmt.Errorf("%w: got %d", ErrDistributionLength, len(dist))
	}

	var p Prediction
	for i, v := range dist {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Prediction{}, fmt.Errorf("%w: index %d = %v", ErrInvalidProbability, i, v)
		}
		p.Distribution[i] = v
	}

	best := ArgMax(dist)
	p.Label = Emotion(best)
	p.Confidence = dist[best] * 100
	return p, nil
}

// ArgMax returns the index of the first maximum in values, or -1 when empty.
func ArgMax(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
