package feature

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/voice-emotion-api/internal/audio"
	"github.com/maauso/voice-emotion-api/internal/audio/audiotest"
)

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	return e
}

func sineClip(t *testing.T, sampleRate, n int) *audio.Clip {
	t.Helper()
	clip, err := audio.NewClip("sine.wav", audiotest.Sine(sampleRate, n, 440, 0.5), sampleRate)
	require.NoError(t, err)
	return clip
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero nfft", func(c *Config) { c.NFFT = 0 }},
		{"zero hop", func(c *Config) { c.HopLength = 0 }},
		{"too few mels", func(c *Config) { c.NumMels = 20 }},
		{"zero amin", func(c *Config) { c.AMin = 0 }},
		{"negative top db", func(c *Config) { c.TopDB = -1 }},
		{"zero min samples", func(c *Config) { c.MinSamples = 0 }},
		{"inverted range", func(c *Config) { c.FMin = 4000; c.FMax = 1000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := newExtractor(t)
	clip := sineClip(t, 22050, 3*22050)

	first, err := e.Extract(clip)
	require.NoError(t, err)
	second, err := e.Extract(clip)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first.Slice(), Coefficients)
	for i, c := range first {
		assert.False(t, math.IsNaN(c) || math.IsInf(c, 0), "coefficient %d not finite", i)
	}
}

func TestExtract_ConcurrentCallsAgree(t *testing.T) {
	e := newExtractor(t)
	clip := sineClip(t, 16000, 16000)
	want, err := e.Extract(clip)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Vector, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = e.Extract(clip)
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestExtract_ShortClip(t *testing.T) {
	e := newExtractor(t)

	// Shorter than the transform window still yields a vector.
	v, err := e.Extract(sineClip(t, 22050, 1000))
	require.NoError(t, err)
	assert.NotEqual(t, Vector{}, v)

	_, err = e.Extract(sineClip(t, 22050, 512))
	assert.NoError(t, err)
}

func TestExtract_InsufficientAudio(t *testing.T) {
	e := newExtractor(t)

	_, err := e.Extract(sineClip(t, 22050, 100))
	assert.ErrorIs(t, err, ErrInsufficientAudio)

	_, err = e.Extract(sineClip(t, 22050, 511))
	assert.ErrorIs(t, err, ErrInsufficientAudio)

	_, err = e.Extract(nil)
	assert.ErrorIs(t, err, ErrInsufficientAudio)
}

func TestFrames_Count(t *testing.T) {
	e := newExtractor(t)

	tests := []struct {
		samples int
		want    int
	}{
		{512, 2},
		{1000, 2},
		{2048, 5},
		{22050, 44},
	}
	for _, tt := range tests {
		frames, err := e.Frames(sineClip(t, 22050, tt.samples))
		require.NoError(t, err)
		assert.Len(t, frames, tt.want, "samples=%d", tt.samples)
	}
}

func TestFrames_MeanMatchesExtract(t *testing.T) {
	e := newExtractor(t)
	clip := sineClip(t, 8000, 4000)

	frames, err := e.Frames(clip)
	require.NoError(t, err)
	v, err := e.Extract(clip)
	require.NoError(t, err)

	for k := 0; k < Coefficients; k++ {
		sum := 0.0
		for _, f := range frames {
			sum += f[k]
		}
		assert.InDelta(t, sum/float64(len(frames)), v[k], 1e-9)
	}
}

func TestExtract_SilenceIsFlat(t *testing.T) {
	e := newExtractor(t)
	clip, err := audio.NewClip("silence.wav", make([]float64, 4096), 16000)
	require.NoError(t, err)

	v, err := e.Extract(clip)
	require.NoError(t, err)

	// Every mel band sits at the -100 dB floor, so only c0 is non-zero.
	assert.InDelta(t, -100*math.Sqrt(128), v[0], 1e-6)
	for k := 1; k < Coefficients; k++ {
		assert.InDelta(t, 0, v[k], 1e-6, "coefficient %d", k)
	}
}

func TestExtract_DistinguishesSignals(t *testing.T) {
	e := newExtractor(t)
	low, err := audio.NewClip("low", audiotest.Sine(16000, 16000, 200, 0.5), 16000)
	require.NoError(t, err)
	high, err := audio.NewClip("high", audiotest.Sine(16000, 16000, 3000, 0.5), 16000)
	require.NoError(t, err)

	a, err := e.Extract(low)
	require.NoError(t, err)
	b, err := e.Extract(high)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHannWindow(t *testing.T) {
	w := hannWindow(2048)
	require.Len(t, w, 2048)
	assert.InDelta(t, 0, w[0], 1e-12)
	assert.InDelta(t, 1, w[1024], 1e-12)
	// Periodic: symmetric around n/2, not around (n-1)/2.
	assert.InDelta(t, w[1], w[2047], 1e-12)
}

func TestMelScale(t *testing.T) {
	assert.InDelta(t, 15, hzToMel(1000), 1e-9)
	assert.InDelta(t, 3, hzToMel(200), 1e-9)
	for _, hz := range []float64{0, 100, 999, 1000, 4000, 11025} {
		assert.InDelta(t, hz, melToHz(hzToMel(hz)), 1e-6)
	}
}

func TestMelFilterBank(t *testing.T) {
	bank := melFilterBank(128, 2048, 22050, 0, 11025)
	require.Len(t, bank, 128)

	for i, f := range bank {
		require.Len(t, f, 1025)
		nonZero := false
		for _, v := range f {
			assert.GreaterOrEqual(t, v, 0.0)
			if v > 0 {
				nonZero = true
			}
		}
		assert.True(t, nonZero, "filter %d is all zeros", i)
	}

	// Slaney normalisation: each triangle has unit area in Hz.
	binHz := 22050.0 / 2048
	for _, m := range []int{100, 120} {
		area := 0.0
		for _, v := range bank[m] {
			area += v * binHz
		}
		assert.InDelta(t, 1.0, area, 0.05, "filter %d", m)
	}
}

func TestDCTMatrix_Orthonormal(t *testing.T) {
	d := dctMatrix(40, 128)
	require.Len(t, d, 40)
	for i := range d {
		for j := range d {
			dot := 0.0
			for n := range d[i] {
				dot += d[i][n] * d[j][n]
			}
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, dot, 1e-9, "rows %d,%d", i, j)
		}
	}
}

type goldenCase struct {
	Name       string `json:"name"`
	SampleRate int    `json:"sample_rate"`
	Samples    int    `json:"samples"`
	Tones      []struct {
		Freq      float64 `json:"freq"`
		Amplitude float64 `json:"amplitude"`
	} `json:"tones"`
	MFCC []float64 `json:"mfcc"`
}

// testdata/mfcc_golden.json holds time-averaged librosa.feature.mfcc
// output (n_mfcc=40, n_fft=2048, hop_length=512); regenerate it with
// testdata/mfcc_golden.py.
func TestExtract_MatchesLibrosaReference(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "mfcc_golden.json"))
	require.NoError(t, err)
	var golden struct {
		Cases []goldenCase `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(raw, &golden))
	require.NotEmpty(t, golden.Cases)

	e := newExtractor(t)
	for _, tc := range golden.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			require.Len(t, tc.MFCC, Coefficients)

			samples := make([]float64, tc.Samples)
			for _, tone := range tc.Tones {
				for i, v := range audiotest.Sine(tc.SampleRate, tc.Samples, tone.Freq, tone.Amplitude) {
					samples[i] += v
				}
			}
			clip, err := audio.NewClip(tc.Name+".wav", samples, tc.SampleRate)
			require.NoError(t, err)

			v, err := e.Extract(clip)
			require.NoError(t, err)
			for k, want := range tc.MFCC {
				assert.InDelta(t, want, v[k], 1e-5, "coefficient %d", k)
			}
		})
	}
}

func TestMelBank_CacheIsBounded(t *testing.T) {
	e := newExtractor(t)

	for rate := 8000; rate < 8000+3*melBankCacheSize; rate++ {
		_, err := e.Extract(sineClip(t, rate, 2048))
		require.NoError(t, err)
	}

	e.mu.Lock()
	assert.Len(t, e.banks, melBankCacheSize)
	assert.Len(t, e.rates, melBankCacheSize)
	last := 8000 + 3*melBankCacheSize - 1
	assert.Contains(t, e.banks, last)
	assert.NotContains(t, e.banks, 8000)
	e.mu.Unlock()
}

func TestMelBank_ReuseKeepsRateCached(t *testing.T) {
	e := newExtractor(t)

	_, err := e.Extract(sineClip(t, 16000, 2048))
	require.NoError(t, err)
	for rate := 9000; rate < 9000+melBankCacheSize-1; rate++ {
		_, err := e.Extract(sineClip(t, rate, 2048))
		require.NoError(t, err)
	}
	// Touching 16000 again makes 9000 the oldest entry.
	_, err = e.Extract(sineClip(t, 16000, 2048))
	require.NoError(t, err)
	_, err = e.Extract(sineClip(t, 44100, 2048))
	require.NoError(t, err)

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Contains(t, e.banks, 16000)
	assert.NotContains(t, e.banks, 9000)
	assert.Len(t, e.banks, melBankCacheSize)
}
