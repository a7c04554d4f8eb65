package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/alfielabs/alfie-voice/pkg/provider/llm"
	"github.com/alfielabs/alfie-voice/pkg/provider/realtime"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	realtime   map[string]func(RealtimeConfig) (realtime.Provider, error)
	classifier map[string]func(ClassifierConfig) (llm.Client, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		realtime:   make(map[string]func(RealtimeConfig) (realtime.Provider, error)),
		classifier: make(map[string]func(ClassifierConfig) (llm.Client, error)),
	}
}

// RegisterRealtime registers a speech-to-speech provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRealtime(name string, factory func(RealtimeConfig) (realtime.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.realtime[name] = factory
}

// RegisterClassifier registers a classifier LLM factory under name.
func (r *Registry) RegisterClassifier(name string, factory func(ClassifierConfig) (llm.Client, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifier[name] = factory
}

// CreateRealtime instantiates the speech-to-speech provider using the factory
// registered under cfg.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateRealtime(cfg RealtimeConfig) (realtime.Provider, error) {
	r.mu.RLock()
	factory, ok := r.realtime[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: realtime/%q", ErrProviderNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateClassifier instantiates a classifier LLM client using the factory
// registered under name.
func (r *Registry) CreateClassifier(name string, cfg ClassifierConfig) (llm.Client, error) {
	r.mu.RLock()
	factory, ok := r.classifier[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: classifier/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}
