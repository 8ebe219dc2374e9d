package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/voice-emotion-api/internal/storage"
)

// Load reads the artifact stored under key and builds the classifier for
// variant.
func Load(ctx context.Context, store storage.ArtifactStore, variant Variant, key string) (Classifier, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s artifact %q: %w", ErrModelLoad, variant, key, err)
	}
	defer func() { _ = rc.Close() }()

	switch variant {
	case VariantCNN:
		return ReadCNN(rc)
	case VariantMLP:
		return ReadMLP(rc)
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrModelLoad, ErrUnknownVariant, variant)
	}
}

// Status reports the load state of one variant.
type Status struct {
	Variant     Variant      `json:"variant"`
	Path        string       `json:"path"`
	Loaded      bool         `json:"loaded"`
	Attempted   bool         `json:"attempted"`
	Error       string       `json:"error,omitempty"`
	Description *Description `json:"description,omitempty"`
}

type entry struct {
	load sync.Mutex // serialises loads of this variant
	clf  Classifier
	err  error
	done bool // guarded by Registry.mu
}

// Registry holds the process-wide model handle. Each variant is loaded at
// most once; a failed load is remembered and returned on every later Get,
// unless it failed only because the caller's context ended.
type Registry struct {
	store   storage.ArtifactStore
	paths   map[Variant]string
	entries map[Variant]*entry
	logger  *slog.Logger
	mu      sync.RWMutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClassifier installs an already built classifier for its variant,
// bypassing artifact loading.
func WithClassifier(c Classifier) RegistryOption {
	return func(r *Registry) {
		r.entries[c.Variant()] = &entry{clf: c, done: true}
	}
}

// NewRegistry creates a Registry that loads artifacts from store using the
// variant→key map paths.
func NewRegistry(store storage.ArtifactStore, paths map[Variant]string, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:   store,
		paths:   make(map[Variant]string, len(paths)),
		entries: make(map[Variant]*entry),
		logger:  slog.Default(),
	}
	for v, p := range paths {
		r.paths[v] = p
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, v := range Variants() {
		if _, ok := r.entries[v]; !ok {
			r.entries[v] = &entry{}
		}
	}
	return r
}

// Get returns the classifier for variant, loading it on first use.
func (r *Registry) Get(ctx context.Context, variant Variant) (Classifier, error) {
	e, ok := r.entries[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", ErrModelLoad, ErrUnknownVariant, variant)
	}
	if done, clf, err := r.result(e); done {
		return clf, err
	}

	e.load.Lock()
	defer e.load.Unlock()
	if done, clf, err := r.result(e); done {
		return clf, err
	}

	clf, err := r.load(ctx, variant)
	if err != nil && isContextErr(ctx, err) {
		return nil, err
	}

	r.mu.Lock()
	e.clf, e.err, e.done = clf, err, true
	r.mu.Unlock()
	return clf, err
}

func (r *Registry) result(e *entry) (done bool, clf Classifier, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.done, e.clf, e.err
}

func isContextErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Preload loads every variant and returns the joined load errors.
// A failing variant does not prevent the others from loading.
func (r *Registry) Preload(ctx context.Context) error {
	var errs []error
	for _, v := range Variants() {
		if _, err := r.Get(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status reports the state of every variant without triggering loads.
func (r *Registry) Status() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.entries))
	for _, v := range Variants() {
		e := r.entries[v]
		s := Status{Variant: v, Path: r.paths[v], Attempted: e.done}
		if e.done {
			s.Loaded = e.err == nil
			if e.err != nil {
				s.Error = e.err.Error()
			}
			if d, ok := e.clf.(Describer); ok {
				desc := d.Describe()
				s.Description = &desc
			}
		}
		out = append(out, s)
	}
	return out
}

func (r *Registry) load(ctx context.Context, variant Variant) (Classifier, error) {
	path, ok := r.paths[variant]
	if !ok || path == "" {
		return nil, fmt.Errorf("%w: no artifact configured for %s", ErrModelLoad, variant)
	}
	if r.store == nil {
		return nil, fmt.Errorf("%w: no artifact store configured", ErrModelLoad)
	}

	start := time.Now()
	clf, err := Load(ctx, r.store, variant, path)
	if err != nil {
		r.logger.Error("model load failed",
			slog.String("variant", string(variant)),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	r.logger.Info("model loaded",
		slog.String("variant", string(variant)),
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)),
	)
	return clf, nil
}
