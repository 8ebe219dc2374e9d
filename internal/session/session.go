// Package session holds uploaded clips and drives them through the
// decode → extract → predict → format pipeline.
package session

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/voice-emotion-api/internal/audio"
	"github.com/maauso/voice-emotion-api/internal/feature"
	"github.com/maauso/voice-emotion-api/internal/model"
	"github.com/maauso/voice-emotion-api/internal/session/id"
)

// State is the position of a session in the analysis lifecycle.
type State string

const (
	// StateEmpty means no clip is held.
	StateEmpty State = "EMPTY"
	// StateLoaded means a clip has been decoded.
	StateLoaded State = "LOADED"
	// StateFeatureExtracted means the clip's feature vector is available.
	StateFeatureExtracted State = "FEATURE_EXTRACTED"
	// StatePredicted means at least one model has classified the clip.
	StatePredicted State = "PREDICTED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[State][]State{
	StateEmpty:            {StateLoaded},
	StateLoaded:           {StateFeatureExtracted, StateEmpty},
	StateFeatureExtracted: {StatePredicted, StateFeatureExtracted, StateEmpty},
	StatePredicted:        {StateFeatureExtracted, StateEmpty},
}

func canTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}

// Session holds one uploaded clip and the state derived from it.
type Session struct {
	mu sync.RWMutex

	// ID is the unique identifier for this session.
	ID string
	// State is the current lifecycle state.
	State State
	// Clip is the decoded audio; nil when State is StateEmpty.
	Clip *audio.Clip
	// Features is the most recently extracted feature vector.
	Features *feature.Vector
	// Invocations lists the model variants run against Clip, in order.
	Invocations []model.Variant
	// CreatedAt is when the session was created.
	CreatedAt time.Time
	// UpdatedAt is when the session was last updated.
	UpdatedAt time.Time
}

// New creates an empty Session with a generated ID.
func New() *Session {
	return NewWithID(id.Generate())
}

// NewWithID creates an empty Session with the specified ID.
func NewWithID(sessionID string) *Session {
	now := time.Now()
	return &Session{
		ID:        sessionID,
		State:     StateEmpty,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// transitionTo changes the state. Callers must hold mu.
func (s *Session) transitionTo(state State) error {
	if !canTransition(s.State, state) {
		return ErrInvalidTransition
	}
	s.State = state
	s.UpdatedAt = time.Now()
	return nil
}

// Load attaches a decoded clip to an empty session.
func (s *Session) Load(clip *audio.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transitionTo(StateLoaded); err != nil {
		return err
	}
	s.Clip = clip
	return nil
}

// SetFeatures records a freshly extracted feature vector.
func (s *Session) SetFeatures(v feature.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transitionTo(StateFeatureExtracted); err != nil {
		return err
	}
	s.Features = &v
	return nil
}

// RecordPrediction marks that variant has classified the clip.
func (s *Session) RecordPrediction(variant model.Variant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transitionTo(StatePredicted); err != nil {
		return err
	}
	s.Invocations = append(s.Invocations, variant)
	return nil
}

// Reset discards the clip and all derived state.
// Resetting an empty session is a no-op.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State == StateEmpty {
		return nil
	}
	if err := s.transitionTo(StateEmpty); err != nil {
		return err
	}
	s.Clip = nil
	s.Features = nil
	s.Invocations = nil
	return nil
}

// GetState returns the current state (thread-safe).
func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.State
}

// GetClip returns the loaded clip, or nil (thread-safe).
func (s *Session) GetClip() *audio.Clip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Clip
}

// Clone creates a copy of the session for safe reads.
// The clip is shared since it is immutable.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var features *feature.Vector
	if s.Features != nil {
		v := *s.Features
		features = &v
	}

	return &Session{
		ID:          s.ID,
		State:       s.State,
		Clip:        s.Clip,
		Features:    features,
		Invocations: slices.Clone(s.Invocations),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
