package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/voice-emotion-api/internal/audio"
	"github.com/maauso/voice-emotion-api/internal/emotion"
	"github.com/maauso/voice-emotion-api/internal/feature"
	"github.com/maauso/voice-emotion-api/internal/model"
	"github.com/maauso/voice-emotion-api/internal/result"
)

// ErrNoAudio is returned when a session holds no clip to analyse.
var ErrNoAudio = errors.New("session: no audio loaded")

// AudioLoader decodes uploaded bytes into a clip.
type AudioLoader interface {
	Load(ctx context.Context, name string, data []byte, format audio.Format) (*audio.Clip, error)
}

// FeatureExtractor computes the feature vector of a clip.
type FeatureExtractor interface {
	Extract(clip *audio.Clip) (feature.Vector, error)
}

// ModelProvider returns the classifier for a variant.
type ModelProvider interface {
	Get(ctx context.Context, variant model.Variant) (model.Classifier, error)
}

// Recorder receives pipeline measurements.
type Recorder interface {
	RecordStage(ctx context.Context, stage string, d time.Duration, err error)
	RecordPrediction(ctx context.Context, variant, label string)
}

type nopRecorder struct{}

func (nopRecorder) RecordStage(context.Context, string, time.Duration, error) {}
func (nopRecorder) RecordPrediction(context.Context, string, string)          {}

// Outcome is the result of classifying one clip with one model.
type Outcome struct {
	Variant    model.Variant
	Features   feature.Vector
	Prediction emotion.Prediction
	Payload    result.Payload
}

// Waveform is the raw signal of a session's clip, optionally decimated.
type Waveform struct {
	Samples    []float64 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
	Duration   float64   `json:"duration_seconds"`
	Decimated  bool      `json:"decimated"`
}

// Service orchestrates the classification pipeline for sessions and
// one-shot requests. Every call runs synchronously to completion; calls
// that change the same session run one at a time.
type Service struct {
	repo      Repository
	loader    AudioLoader
	extractor FeatureExtractor
	models    ModelProvider
	recorder  Recorder
	logger    *slog.Logger
	locks     *sessionLocks
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new Service.
func NewService(repo Repository, loader AudioLoader, extractor FeatureExtractor, models ModelProvider, opts ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		loader:    loader,
		extractor: extractor,
		models:    models,
		recorder:  nopRecorder{},
		logger:    slog.Default(),
		locks:     newSessionLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload decodes data and stores it in a new session in the Loaded state.
func (s *Service) Upload(ctx context.Context, name string, data []byte) (*Session, error) {
	clip, err := s.decode(ctx, name, data)
	if err != nil {
		return nil, err
	}

	sess := New()
	if err := sess.Load(clip); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("session created",
		slog.String("session_id", sess.ID),
		slog.String("file", name),
		slog.Int("sample_rate", clip.SampleRate()),
		slog.Int("samples", clip.Len()),
	)
	return sess, nil
}

// Replace discards the session's clip and derived state, then loads a new
// file. When decoding fails the session is left empty.
func (s *Service) Replace(ctx context.Context, sessionID, name string, data []byte) (*Session, error) {
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := sess.Reset(); err != nil {
		return nil, err
	}

	clip, decodeErr := s.decode(ctx, name, data)
	if decodeErr == nil {
		if err := sess.Load(clip); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}

	s.logger.Info("session audio replaced",
		slog.String("session_id", sess.ID),
		slog.String("file", name),
	)
	return sess, nil
}

// Classify runs variant against the session's clip. Features and the
// prediction are recomputed on every call.
func (s *Service) Classify(ctx context.Context, sessionID string, variant model.Variant) (*Outcome, error) {
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	clip := sess.GetClip()
	if clip == nil {
		return nil, ErrNoAudio
	}

	vec, err := s.extract(ctx, clip)
	if err != nil {
		return nil, err
	}
	if err := sess.SetFeatures(vec); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	out, err := s.predict(ctx, clip, vec, variant)
	if err != nil {
		return nil, err
	}
	if err := sess.RecordPrediction(variant); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info("session classified",
		slog.String("session_id", sess.ID),
		slog.String("model", string(variant)),
		slog.String("label", out.Payload.Label),
		slog.Float64("confidence", out.Prediction.Confidence),
	)
	return out, nil
}

// Analyze decodes and classifies a file without creating a session.
func (s *Service) Analyze(ctx context.Context, name string, data []byte, variant model.Variant) (*Outcome, error) {
	clip, err := s.decode(ctx, name, data)
	if err != nil {
		return nil, err
	}
	return s.ClassifyClip(ctx, clip, variant)
}

// ClassifyClip extracts features from clip and classifies them with variant.
func (s *Service) ClassifyClip(ctx context.Context, clip *audio.Clip, variant model.Variant) (*Outcome, error) {
	vec, err := s.extract(ctx, clip)
	if err != nil {
		return nil, err
	}
	return s.predict(ctx, clip, vec, variant)
}

// Get returns the session with the given ID.
func (s *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.repo.FindByID(ctx, sessionID)
}

// Delete drops a session and its clip.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("session deleted", slog.String("session_id", sessionID))
	return nil
}

// Waveform returns the session's samples for plotting. When maxPoints is
// positive and smaller than the clip, the signal is reduced to min/max
// pairs that preserve its envelope.
func (s *Service) Waveform(ctx context.Context, sessionID string, maxPoints int) (*Waveform, error) {
	sess, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	clip := sess.GetClip()
	if clip == nil {
		return nil, ErrNoAudio
	}

	samples := clip.Downsample(maxPoints)
	return &Waveform{
		Samples:    samples,
		SampleRate: clip.SampleRate(),
		Duration:   clip.Duration(),
		Decimated:  len(samples) < clip.Len(),
	}, nil
}

func (s *Service) decode(ctx context.Context, name string, data []byte) (*audio.Clip, error) {
	start := time.Now()
	clip, err := s.loadClip(ctx, name, data)
	s.recorder.RecordStage(ctx, string(StageDecode), time.Since(start), err)
	if err != nil {
		s.logger.Warn("decode failed", slog.String("file", name), slog.String("error", err.Error()))
		return nil, stageErr(StageDecode, err)
	}
	return clip, nil
}

func (s *Service) loadClip(ctx context.Context, name string, data []byte) (*audio.Clip, error) {
	format, err := audio.FormatFromName(name)
	if err != nil {
		return nil, err
	}
	return s.loader.Load(ctx, name, data, format)
}

func (s *Service) extract(ctx context.Context, clip *audio.Clip) (feature.Vector, error) {
	start := time.Now()
	vec, err := s.extractor.Extract(clip)
	s.recorder.RecordStage(ctx, string(StageExtract), time.Since(start), err)
	if err != nil {
		return feature.Vector{}, stageErr(StageExtract, err)
	}
	return vec, nil
}

func (s *Service) predict(ctx context.Context, clip *audio.Clip, vec feature.Vector, variant model.Variant) (*Outcome, error) {
	start := time.Now()
	clf, err := s.models.Get(ctx, variant)
	s.recorder.RecordStage(ctx, string(StageLoadModel), time.Since(start), err)
	if err != nil {
		return nil, stageErr(StageLoadModel, err)
	}

	start = time.Now()
	pred, err := s.infer(clf, vec)
	s.recorder.RecordStage(ctx, string(StagePredict), time.Since(start), err)
	if err != nil {
		s.logger.Error("prediction failed",
			slog.String("model", string(variant)),
			slog.String("error", err.Error()),
		)
		return nil, stageErr(StagePredict, err)
	}

	start = time.Now()
	payload, err := result.Format(pred, result.MetadataOf(clip), string(variant))
	s.recorder.RecordStage(ctx, string(StageFormat), time.Since(start), err)
	if err != nil {
		return nil, stageErr(StageFormat, err)
	}

	s.recorder.RecordPrediction(ctx, string(variant), pred.Label.String())
	return &Outcome{
		Variant:    variant,
		Features:   vec,
		Prediction: pred,
		Payload:    payload,
	}, nil
}

func (s *Service) infer(clf model.Classifier, vec feature.Vector) (emotion.Prediction, error) {
	dist, err := clf.PredictDistribution(vec)
	if err != nil {
		if errors.Is(err, model.ErrPrediction) {
			return emotion.Prediction{}, err
		}
		return emotion.Prediction{}, fmt.Errorf("%w: %w", model.ErrPrediction, err)
	}
	pred, err := emotion.NewPrediction(dist)
	if err != nil {
		return emotion.Prediction{}, fmt.Errorf("%w: %w", model.ErrPrediction, err)
	}
	return pred, nil
}
