package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pitchline-ai/pitchline/pkg/provider/analysis"
	"github.com/pitchline-ai/pitchline/pkg/provider/voice"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// VoiceFactory builds a voice client for one call. The client is not yet
// opened; the caller owns its lifecycle.
type VoiceFactory func(entry ProviderEntry, callID string) (voice.Client, error)

// AnalysisFactory builds an analysis provider from its config entry.
type AnalysisFactory func(entry ProviderEntry) (analysis.Provider, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	voice    map[string]VoiceFactory
	analysis map[string]AnalysisFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		voice:    make(map[string]VoiceFactory),
		analysis: make(map[string]AnalysisFactory),
	}
}

// RegisterVoice registers a voice client factory under name. Subsequent
// calls with the same name overwrite the previous registration.
func (r *Registry) RegisterVoice(name string, factory VoiceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voice[name] = factory
}

// RegisterAnalysis registers an analysis provider factory under name.
func (r *Registry) RegisterAnalysis(name string, factory AnalysisFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analysis[name] = factory
}

// CreateVoice instantiates a voice client for callID using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateVoice(entry ProviderEntry, callID string) (voice.Client, error) {
	r.mu.RLock()
	factory, ok := r.voice[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: voice/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, callID)
}

// CreateAnalysis instantiates an analysis provider using the factory
// registered under entry.Name.
func (r *Registry) CreateAnalysis(entry ProviderEntry) (analysis.Provider, error) {
	r.mu.RLock()
	factory, ok := r.analysis[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: analysis/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
