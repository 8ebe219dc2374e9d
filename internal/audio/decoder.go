package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// PCM is an interleaved, normalized sample buffer as produced by a decoder.
type PCM struct {
	// Samples holds interleaved samples in [-1, 1].
	Samples []float64
	// Channels is the number of interleaved channels.
	Channels int
	// SampleRate is the native sample rate in Hz.
	SampleRate int
}

// Frames returns the number of sample frames (samples per channel).
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Mono averages all channels of every frame into a single channel.
func (p *PCM) Mono() []float64 {
	if p.Channels <= 1 {
		out := make([]float64, len(p.Samples))
		copy(out, p.Samples)
		return out
	}

	frames := p.Frames()
	out := make([]float64, frames)
	scale := 1 / float64(p.Channels)
	for f := 0; f < frames; f++ {
		sum := 0.0
		base := f * p.Channels
		for ch := 0; ch < p.Channels; ch++ {
			sum += p.Samples[base+ch]
		}
		out[f] = sum * scale
	}
	return out
}

// Decoder turns encoded bytes of a given container into PCM.
type Decoder interface {
	Decode(ctx context.Context, data []byte, format Format) (*PCM, error)
}

// NativeDecoder decodes every supported container in-process.
type NativeDecoder struct{}

// Decode implements Decoder.
func (NativeDecoder) Decode(_ context.Context, data []byte, format Format) (*PCM, error) {
	switch format {
	case FormatWAV:
		return decodeWAV(data)
	case FormatMP3:
		return decodeMP3(data)
	case FormatOGG:
		return decodeOGG(data)
	case FormatFLAC:
		return decodeFLAC(data)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrDecode, format)
	}
}

// WAVE format tags accepted by decodeWAV.
const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

func decodeWAV(data []byte) (*PCM, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrDecode)
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: unsupported WAV encoding %d", ErrDecode, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read WAV samples: %w", ErrDecode, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: WAV header has no sample rate or channel count", ErrDecode)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(d.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: unsupported WAV bit depth %d", ErrDecode, bitDepth)
	}

	samples := make([]float64, len(buf.Data))
	if bitDepth == 8 {
		// 8-bit WAV is unsigned.
		for i, v := range buf.Data {
			samples[i] = float64(v-128) / 128
		}
	} else {
		scale := float64(int64(1) << (bitDepth - 1))
		for i, v := range buf.Data {
			samples[i] = float64(v) / scale
		}
	}

	return &PCM{
		Samples:    samples,
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// go-mp3 always produces 16-bit little-endian stereo.
const mp3Channels = 2

func decodeMP3(data []byte) (*PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open MP3 stream: %w", ErrDecode, err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: read MP3 frames: %w", ErrDecode, err)
	}

	samples := make([]float64, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float64(v) / 32768
	}

	return &PCM{
		Samples:    samples,
		Channels:   mp3Channels,
		SampleRate: dec.SampleRate(),
	}, nil
}

func decodeOGG(data []byte) (*PCM, error) {
	raw, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: read Ogg Vorbis stream: %w", ErrDecode, err)
	}
	if format == nil {
		return nil, fmt.Errorf("%w: Ogg Vorbis stream has no format header", ErrDecode)
	}

	samples := make([]float64, len(raw))
	for i, v := range raw {
		samples[i] = float64(v)
	}

	return &PCM{
		Samples:    samples,
		Channels:   format.Channels,
		SampleRate: format.SampleRate,
	}, nil
}

// flacMaxExpansion caps the samples preallocated per input byte.
const flacMaxExpansion = 4

func decodeFLAC(data []byte) (*PCM, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open FLAC stream: %w", ErrDecode, err)
	}
	defer func() { _ = stream.Close() }()

	channels := int(stream.Info.NChannels)
	bitDepth := int(stream.Info.BitsPerSample)
	if channels <= 0 || bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("%w: invalid FLAC stream info", ErrDecode)
	}
	scale := float64(int64(1) << (bitDepth - 1))

	// NSamples comes from the file header, so it only bounds the
	// preallocation together with the input size.
	var samples []float64
	if declared := stream.Info.NSamples * uint64(channels); declared > 0 {
		samples = make([]float64, 0, int(min(declared, uint64(len(data))*flacMaxExpansion)))
	}
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse FLAC frame: %w", ErrDecode, err)
		}
		if len(frame.Subframes) != channels {
			return nil, fmt.Errorf("%w: FLAC frame has %d channels, want %d", ErrDecode, len(frame.Subframes), channels)
		}
		n := frame.Subframes[0].NSamples
		for i := 0; i < n; i++ {
			for ch := 0; ch < channels; ch++ {
				samples = append(samples, float64(frame.Subframes[ch].Samples[i])/scale)
			}
		}
	}

	if len(samples) == 0 && stream.Info.NSamples > 0 {
		return nil, fmt.Errorf("%w: FLAC stream declares %d samples but holds no frames", ErrDecode, stream.Info.NSamples)
	}

	return &PCM{
		Samples:    samples,
		Channels:   channels,
		SampleRate: int(stream.Info.SampleRate),
	}, nil
}

// Verify interface implementation at compile time.
var _ Decoder = NativeDecoder{}
