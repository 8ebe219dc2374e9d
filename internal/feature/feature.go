// Package feature turns audio clips into fixed-length MFCC feature vectors.
//
// The pipeline matches the common librosa front-end used to train the
// emotion classifiers:
//
//	n_mfcc:     40
//	n_fft:      2048
//	hop_length: 512
//	n_mels:     128 (Slaney mel scale, Slaney area normalisation)
//	window:     periodic Hann, centred frames with zero padding
//	log:        power_to_db (ref 1.0, amin 1e-10, top_db 80)
//	DCT:        type II, orthonormal
//
// The per-frame coefficients are averaged over time into a Vector.
package feature

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/maauso/voice-emotion-api/internal/audio"
)

// Coefficients is the number of MFCC coefficients in a Vector.
const Coefficients = 40

// melBankCacheSize bounds how many per-rate filterbanks an Extractor keeps.
// A 128-band bank for a 2048-point transform is about 1 MiB.
const melBankCacheSize = 8

// ErrInsufficientAudio is returned when a clip is too short to analyse.
var ErrInsufficientAudio = errors.New("feature: insufficient audio")

// Vector is the time-averaged MFCC summary of one clip.
type Vector [Coefficients]float64

// Slice returns the coefficients as a new slice.
func (v Vector) Slice() []float64 {
	out := make([]float64, Coefficients)
	copy(out, v[:])
	return out
}

// Config controls MFCC extraction.
type Config struct {
	NFFT       int     // transform size (default 2048)
	HopLength  int     // hop size (default 512)
	NumMels    int     // mel bands (default 128)
	FMin       float64 // lowest filter frequency in Hz (default 0)
	FMax       float64 // highest filter frequency in Hz; 0 means sr/2
	AMin       float64 // power floor before the log (default 1e-10)
	TopDB      float64 // dynamic range kept below the peak (default 80)
	MinSamples int     // shortest accepted clip (default 512)
}

// DefaultConfig returns the parameters the classifiers were trained with.
func DefaultConfig() Config {
	return Config{
		NFFT:       2048,
		HopLength:  512,
		NumMels:    128,
		FMin:       0,
		FMax:       0,
		AMin:       1e-10,
		TopDB:      80,
		MinSamples: 512,
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.NFFT < 2 {
		return fmt.Errorf("feature: NFFT must be at least 2, got %d", c.NFFT)
	}
	if c.HopLength <= 0 {
		return fmt.Errorf("feature: HopLength must be positive, got %d", c.HopLength)
	}
	if c.NumMels < Coefficients {
		return fmt.Errorf("feature: NumMels must be at least %d, got %d", Coefficients, c.NumMels)
	}
	if c.AMin <= 0 {
		return fmt.Errorf("feature: AMin must be positive, got %g", c.AMin)
	}
	if c.TopDB < 0 {
		return fmt.Errorf("feature: TopDB must not be negative, got %g", c.TopDB)
	}
	if c.MinSamples < 1 {
		return fmt.Errorf("feature: MinSamples must be positive, got %d", c.MinSamples)
	}
	if c.FMin < 0 || (c.FMax != 0 && c.FMax <= c.FMin) {
		return fmt.Errorf("feature: invalid frequency range [%g, %g]", c.FMin, c.FMax)
	}
	return nil
}

// Extractor computes MFCC vectors. It is safe for concurrent use.
type Extractor struct {
	cfg    Config
	window []float64
	dct    [][]float64
	logger *slog.Logger

	mu    sync.Mutex
	banks map[int][][]float64 // mel filterbanks keyed by sample rate
	rates []int               // cached rates, least recently used first
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Extractor for cfg.
func New(cfg Config, opts ...Option) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Extractor{
		cfg:    cfg,
		window: hannWindow(cfg.NFFT),
		dct:    dctMatrix(Coefficients, cfg.NumMels),
		logger: slog.Default(),
		banks:  make(map[int][][]float64, melBankCacheSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.cfg
}

// Extract computes the time-averaged MFCC vector for clip.
func (e *Extractor) Extract(clip *audio.Clip) (Vector, error) {
	frames, err := e.Frames(clip)
	if err != nil {
		return Vector{}, err
	}

	var v Vector
	for _, f := range frames {
		for i := range v {
			v[i] += f[i]
		}
	}
	n := float64(len(frames))
	for i := range v {
		v[i] /= n
	}
	return v, nil
}

// Frames computes the MFCC coefficients of every analysis frame of clip.
func (e *Extractor) Frames(clip *audio.Clip) ([]Vector, error) {
	if clip == nil || clip.Len() < e.cfg.MinSamples {
		n := 0
		if clip != nil {
			n = clip.Len()
		}
		return nil, fmt.Errorf("%w: %d samples, need at least %d", ErrInsufficientAudio, n, e.cfg.MinSamples)
	}

	sr := clip.SampleRate()
	e.logger.Debug("extracting features",
		slog.String("file", clip.Name()),
		slog.Int("sample_rate", sr),
		slog.Int("samples", clip.Len()),
	)

	melSpec := e.melSpectrogram(clip.Samples(), e.melBank(sr))
	e.powerToDB(melSpec)

	out := make([]Vector, len(melSpec))
	for t, mel := range melSpec {
		for k, basis := range e.dct {
			out[t][k] = floats.Dot(basis, mel)
		}
	}
	return out, nil
}

// melSpectrogram returns the [frames][NumMels] mel power spectrogram of
// centred, Hann-windowed frames.
func (e *Extractor) melSpectrogram(samples []float64, bank [][]float64) [][]float64 {
	nfft := e.cfg.NFFT
	hop := e.cfg.HopLength
	pad := nfft / 2

	padded := make([]float64, len(samples)+2*pad)
	copy(padded[pad:], samples)
	numFrames := 1 + len(samples)/hop

	// gonum FFT work buffers are not safe for concurrent use.
	fft := fourier.NewFFT(nfft)
	frame := make([]float64, nfft)
	coeffs := make([]complex128, nfft/2+1)
	power := make([]float64, nfft/2+1)

	spec := make([][]float64, numFrames)
	for t := 0; t < numFrames; t++ {
		start := t * hop
		for i := range frame {
			frame[i] = padded[start+i] * e.window[i]
		}
		coeffs = fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			power[k] = real(c)*real(c) + imag(c)*imag(c)
		}

		mel := make([]float64, len(bank))
		for m, filter := range bank {
			mel[m] = floats.Dot(filter, power)
		}
		spec[t] = mel
	}
	return spec
}

// powerToDB converts spec to decibels in place and clips it to TopDB below
// the spectrogram-wide peak.
func (e *Extractor) powerToDB(spec [][]float64) {
	peak := math.Inf(-1)
	for _, row := range spec {
		for i, p := range row {
			row[i] = 10 * math.Log10(max(e.cfg.AMin, p))
			peak = max(peak, row[i])
		}
	}
	floor := peak - e.cfg.TopDB
	for _, row := range spec {
		for i := range row {
			row[i] = max(row[i], floor)
		}
	}
}

func (e *Extractor) melBank(sampleRate int) [][]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if bank, ok := e.banks[sampleRate]; ok {
		e.touch(sampleRate)
		return bank
	}
	fmax := e.cfg.FMax
	if fmax == 0 {
		fmax = float64(sampleRate) / 2
	}
	bank := melFilterBank(e.cfg.NumMels, e.cfg.NFFT, sampleRate, e.cfg.FMin, fmax)

	if len(e.rates) >= melBankCacheSize {
		oldest := e.rates[0]
		e.rates = e.rates[1:]
		delete(e.banks, oldest)
		e.logger.Debug("evicted mel filterbank", slog.Int("sample_rate", oldest))
	}
	e.banks[sampleRate] = bank
	e.rates = append(e.rates, sampleRate)
	return bank
}

// touch marks sampleRate as most recently used. Callers must hold mu.
func (e *Extractor) touch(sampleRate int) {
	i := slices.Index(e.rates, sampleRate)
	if i < 0 || i == len(e.rates)-1 {
		return
	}
	e.rates = append(slices.Delete(e.rates, i, i+1), sampleRate)
}
