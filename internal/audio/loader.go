package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Loader turns uploaded bytes into a mono Clip.
type Loader struct {
	native   Decoder
	fallback Decoder
	logger   *slog.Logger
}

// LoaderOption is a function that configures a Loader.
type LoaderOption func(*Loader)

// WithFallback sets a decoder tried when the native decoder fails,
// typically an FFmpegDecoder.
func WithFallback(d Decoder) LoaderOption {
	return func(l *Loader) {
		l.fallback = d
	}
}

// WithDecoder replaces the native decoder.
func WithDecoder(d Decoder) LoaderOption {
	return func(l *Loader) {
		l.native = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Loader backed by NativeDecoder.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		native: NativeDecoder{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadNamed loads data using the container format implied by name.
func (l *Loader) LoadNamed(ctx context.Context, name string, data []byte) (*Clip, error) {
	format, err := FormatFromName(name)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, name, data, format)
}

// Load decodes data of the declared format into a mono Clip at its native
// sample rate. It returns ErrDecode for empty, corrupt or unsupported input
// and ErrEmptyAudio when decoding yields no samples.
func (l *Loader) Load(ctx context.Context, name string, data []byte, format Format) (*Clip, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	pcm, err := l.native.Decode(ctx, data, format)
	if err != nil && l.fallback != nil {
		l.logger.Debug("native decode failed, trying fallback decoder",
			slog.String("file", name),
			slog.String("format", string(format)),
			slog.String("error", err.Error()),
		)
		pcm, err = l.fallback.Decode(ctx, data, format)
	}
	if err != nil {
		if errors.Is(err, ErrDecode) || errors.Is(err, ErrEmptyAudio) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	if pcm.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: could not determine sample rate", ErrDecode)
	}
	if pcm.Channels <= 0 {
		return nil, fmt.Errorf("%w: could not determine channel count", ErrDecode)
	}
	if pcm.Frames() == 0 {
		return nil, ErrEmptyAudio
	}

	clip, err := NewClip(name, pcm.Mono(), pcm.SampleRate)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("audio decoded",
		slog.String("file", name),
		slog.String("format", string(format)),
		slog.Int("channels", pcm.Channels),
		slog.Int("sample_rate", clip.SampleRate()),
		slog.Int("samples", clip.Len()),
	)
	return clip, nil
}
