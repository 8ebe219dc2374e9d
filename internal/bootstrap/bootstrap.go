// Package bootstrap wires the emotion pipeline from configuration. Both the
// HTTP server and the CLI build their dependencies here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maauso/voice-emotion-api/internal/audio"
	"github.com/maauso/voice-emotion-api/internal/config"
	"github.com/maauso/voice-emotion-api/internal/feature"
	"github.com/maauso/voice-emotion-api/internal/model"
	"github.com/maauso/voice-emotion-api/internal/observe"
	"github.com/maauso/voice-emotion-api/internal/session"
	"github.com/maauso/voice-emotion-api/internal/storage"
)

// ServiceVersion is reported in the metrics resource.
var ServiceVersion = "dev"

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	Service   *session.Service
	Registry  *model.Registry
	Extractor *feature.Extractor
	Loader    *audio.Loader
	Storage   storage.Storage

	// Metrics and MetricsHandler are nil when metrics are disabled.
	Metrics        *observe.Metrics
	MetricsHandler http.Handler

	provider *observe.Provider
}

// Option tunes NewDependencies.
type Option func(*options)

type options struct {
	preload bool
}

// WithoutPreload defers artifact loading to first use. MODELS_STRICT has no
// effect then.
func WithoutPreload() Option {
	return func(o *options) {
		o.preload = false
	}
}

// NewDependencies creates and initializes all dependencies for the application.
// With MODELS_STRICT set, a model artifact that fails to load aborts startup;
// otherwise the failure is logged and the variant reports MODEL_LOAD_ERROR
// on use while the other variant keeps working.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Dependencies, error) {
	o := options{preload: true}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	loader := initLoader(cfg, store, logger)

	extractor, err := feature.New(feature.DefaultConfig(), feature.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create feature extractor: %w", err)
	}

	registry := model.NewRegistry(store, map[model.Variant]string{
		model.VariantCNN: cfg.CNNModelPath,
		model.VariantMLP: cfg.MLPModelPath,
	}, model.WithRegistryLogger(logger))

	if o.preload {
		if err := registry.Preload(ctx); err != nil {
			if cfg.ModelsStrict {
				return nil, fmt.Errorf("preload models: %w", err)
			}
			logger.Warn("continuing with unavailable models",
				slog.String("error", err.Error()),
			)
		}
	}

	deps := &Dependencies{
		Registry:  registry,
		Extractor: extractor,
		Loader:    loader,
		Storage:   store,
	}

	svcOpts := []session.ServiceOption{session.WithLogger(logger)}
	if cfg.MetricsEnabled {
		if err := deps.initMetrics(ctx); err != nil {
			return nil, err
		}
		svcOpts = append(svcOpts, session.WithRecorder(deps.Metrics))
	}

	deps.Service = session.NewService(
		session.NewMemoryRepository(),
		loader,
		extractor,
		registry,
		svcOpts...,
	)

	return deps, nil
}

// Close shuts down the metrics provider, if any.
func (d *Dependencies) Close(ctx context.Context) error {
	if d.provider == nil {
		return nil
	}
	return d.provider.Shutdown(ctx)
}

func (d *Dependencies) initMetrics(ctx context.Context) error {
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: ServiceVersion,
	})
	if err != nil {
		return fmt.Errorf("init metrics provider: %w", err)
	}
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		return errors.Join(fmt.Errorf("create metrics: %w", err), provider.Shutdown(ctx))
	}
	d.provider = provider
	d.Metrics = metrics
	d.MetricsHandler = provider.Handler
	return nil
}

// initLoader builds the audio loader, attaching the ffmpeg fallback when enabled.
func initLoader(cfg *config.Config, store storage.TempStore, logger *slog.Logger) *audio.Loader {
	opts := []audio.LoaderOption{audio.WithLogger(logger)}
	if cfg.FFmpegFallback {
		opts = append(opts, audio.WithFallback(audio.NewFFmpegDecoder(cfg.FFmpegPath, store)))
		logger.Info("ffmpeg decode fallback enabled", slog.String("ffmpeg_path", cfg.FFmpegPath))
	}
	return audio.NewLoader(opts...)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 artifact storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local artifact storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
