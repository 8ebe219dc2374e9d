package server

import (
	"log/slog"
	"net/http"

	"github.com/maauso/voice-emotion-api/internal/observe"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// Metrics records request durations when non-nil.
	Metrics *observe.Metrics
	// MetricsHandler serves GET /metrics when non-nil.
	MetricsHandler http.Handler
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /models", h.Models)
	mux.HandleFunc("POST /sessions", h.CreateSession)
	mux.HandleFunc("GET /sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.DeleteSession)
	mux.HandleFunc("PUT /sessions/{id}/audio", h.ReplaceAudio)
	mux.HandleFunc("GET /sessions/{id}/waveform", h.GetWaveform)
	mux.HandleFunc("POST /sessions/{id}/predictions", h.CreatePrediction)
	mux.HandleFunc("POST /classify", h.Classify)
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, observe.Middleware(cfg.Metrics))
	}

	return ChainMiddleware(middlewares...)(mux)
}
