// Package audiotest synthesises audio fixtures for tests.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sine returns n samples of a sine tone with the given amplitude.
func Sine(sampleRate, n int, freq, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// SineWAV encodes a 16-bit PCM WAV holding a 440 Hz tone of the given
// duration. Every channel carries the same signal.
func SineWAV(t testing.TB, sampleRate int, seconds float64, channels int) []byte {
	t.Helper()
	n := int(math.Round(float64(sampleRate) * seconds))
	return WAV(t, sampleRate, channels, Sine(sampleRate, n, 440, 0.5))
}

// WAV encodes mono samples in [-1, 1] as a 16-bit PCM WAV, duplicating
// them across channels.
func WAV(t testing.TB, sampleRate, channels int, samples []float64) []byte {
	t.Helper()
	data := make([]int, len(samples)*channels)
	for i, s := range samples {
		v := int(math.Round(s * 32767))
		for ch := 0; ch < channels; ch++ {
			data[i*channels+ch] = v
		}
	}
	return Encode(t, sampleRate, channels, 16, data)
}

// Encode writes interleaved integer PCM as a WAV file and returns its bytes.
func Encode(t testing.TB, sampleRate, channels, bitDepth int, data []int) []byte {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}

	out, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return out
}
