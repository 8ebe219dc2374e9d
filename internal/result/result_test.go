package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/voice-emotion-api/internal/audio"
	"github.com/maauso/voice-emotion-api/internal/emotion"
)

func TestFormat(t *testing.T) {
	pred, err := emotion.NewPrediction([]float64{0.05, 0.02, 0.873456, 0.01, 0.01, 0.01, 0.016544, 0.01})
	require.NoError(t, err)

	p, err := Format(pred, Metadata{FileName: "take1.wav", SampleCount: 66150, SampleRate: 22050}, "cnn")
	require.NoError(t, err)

	assert.Equal(t, "Happy", p.Label)
	assert.Equal(t, "😊", p.Marker)
	assert.Equal(t, "😊 Happy", p.DisplayLabel)
	assert.Equal(t, 87.35, p.ConfidencePercent)
	assert.Equal(t, "87.35%", p.ConfidenceText)
	assert.InDelta(t, 3.0, p.DurationSeconds, 1e-12)
	assert.Equal(t, "3.00 seconds", p.DurationText)
	assert.Equal(t, 22050, p.SampleRate)
	assert.Equal(t, "take1.wav", p.FileName)
	assert.Equal(t, "cnn", p.Model)
	assert.Len(t, p.Probabilities, emotion.NumClasses)
	assert.InDelta(t, 0.873456, p.Probabilities["Happy"], 1e-12)
}

func TestFormat_EveryLabel(t *testing.T) {
	meta := Metadata{FileName: "a.wav", SampleCount: 1000, SampleRate: 8000}
	for _, e := range emotion.All() {
		dist := make([]float64, emotion.NumClasses)
		dist[e] = 1
		pred, err := emotion.NewPrediction(dist)
		require.NoError(t, err)

		p, err := Format(pred, meta, "mlp")
		require.NoError(t, err)
		assert.Equal(t, e.String(), p.Label)
		assert.Equal(t, e.Display(), p.DisplayLabel)
		assert.Equal(t, "100.00%", p.ConfidenceText)
		assert.Equal(t, "0.12 seconds", p.DurationText)
	}
}

func TestFormat_InvalidInput(t *testing.T) {
	good := emotion.Prediction{Label: emotion.Calm, Confidence: 50}

	_, err := Format(good, Metadata{SampleRate: 0, SampleCount: 10}, "cnn")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Format(emotion.Prediction{Label: 12}, Metadata{SampleRate: 8000}, "cnn")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Format(emotion.Prediction{Label: emotion.Sad, Confidence: 120}, Metadata{SampleRate: 8000}, "cnn")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMetadataOf(t *testing.T) {
	clip, err := audio.NewClip("voice.flac", make([]float64, 48000), 16000)
	require.NoError(t, err)

	meta := MetadataOf(clip)
	assert.Equal(t, Metadata{FileName: "voice.flac", SampleCount: 48000, SampleRate: 16000}, meta)
}
