// Package audio decodes uploaded audio files into mono sample buffers.
//
// Decoding never resamples: a clip keeps the native sample rate of the
// uploaded file. Multi-channel input is down-mixed to mono by averaging the
// channels of every frame.
package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Static errors for audio loading.
var (
	// ErrDecode is returned for corrupt, unreadable or unsupported input.
	ErrDecode = errors.New("audio: decode failed")
	// ErrEmptyAudio is returned when a file decodes to zero samples.
	ErrEmptyAudio = errors.New("audio: decoded buffer is empty")
)

// Format is a supported audio container.
type Format string

const (
	// FormatWAV is RIFF/WAVE with integer PCM samples.
	FormatWAV Format = "wav"
	// FormatMP3 is MPEG-1/2 Layer III.
	FormatMP3 Format = "mp3"
	// FormatOGG is Ogg Vorbis.
	FormatOGG Format = "ogg"
	// FormatFLAC is the Free Lossless Audio Codec.
	FormatFLAC Format = "flac"
)

// Formats lists every supported container.
func Formats() []Format {
	return []Format{FormatWAV, FormatMP3, FormatOGG, FormatFLAC}
}

// ParseFormat validates a format name such as "wav" or "FLAC".
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	switch f {
	case FormatWAV, FormatMP3, FormatOGG, FormatFLAC:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrDecode, s)
	}
}

// FormatFromName derives the container format from a file name's extension.
func FormatFromName(name string) (Format, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		return "", fmt.Errorf("%w: file %q has no extension", ErrDecode, name)
	}
	return ParseFormat(ext)
}

// Clip is a decoded mono audio buffer. It is immutable once created.
type Clip struct {
	name       string
	samples    []float64
	sampleRate int
}

// NewClip creates a Clip from mono samples. The samples are copied.
// It returns ErrEmptyAudio for an empty buffer and ErrDecode for a
// non-positive sample rate.
func NewClip(name string, samples []float64, sampleRate int) (*Clip, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", ErrDecode, sampleRate)
	}
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}
	buf := make([]float64, len(samples))
	copy(buf, samples)
	return &Clip{name: name, samples: buf, sampleRate: sampleRate}, nil
}

// Name returns the original file name.
func (c *Clip) Name() string { return c.name }

// SampleRate returns the native sample rate in Hz.
func (c *Clip) SampleRate() int { return c.sampleRate }

// Len returns the number of samples.
func (c *Clip) Len() int { return len(c.samples) }

// Samples returns a copy of the sample buffer.
func (c *Clip) Samples() []float64 {
	out := make([]float64, len(c.samples))
	copy(out, c.samples)
	return out
}

// Duration returns the clip length in seconds (sample count / sample rate).
func (c *Clip) Duration() float64 {
	return float64(len(c.samples)) / float64(c.sampleRate)
}

// Downsample reduces the waveform to at most maxPoints values for plotting.
// Each bucket contributes its minimum and maximum in time order, so peaks
// survive decimation. A maxPoints below 2 or at least Len returns a copy of
// every sample.
func (c *Clip) Downsample(maxPoints int) []float64 {
	n := len(c.samples)
	if maxPoints < 2 || maxPoints >= n {
		return c.Samples()
	}

	buckets := maxPoints / 2
	out := make([]float64, 0, buckets*2)
	for b := 0; b < buckets; b++ {
		start := b * n / buckets
		end := (b + 1) * n / buckets
		if end <= start {
			continue
		}
		minIdx, maxIdx := start, start
		for i := start + 1; i < end; i++ {
			if c.samples[i] < c.samples[minIdx] {
				minIdx = i
			}
			if c.samples[i] > c.samples[maxIdx] {
				maxIdx = i
			}
		}
		if minIdx <= maxIdx {
			out = append(out, c.samples[minIdx], c.samples[maxIdx])
		} else {
			out = append(out, c.samples[maxIdx], c.samples[minIdx])
		}
	}
	return out
}
