package llm

import (
	"context"
	"fmt"
	"sync"
)

// Provider streams chat completions from one model vendor.
type Provider interface {
	Name() string

	// Stream starts a completion and returns a channel of events. The
	// channel is closed after a Finish or StreamError event, or when ctx
	// is cancelled.
	Stream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error)

	// Complete runs a non-streaming completion and returns the text.
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Registry holds the configured providers keyed by name.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider. The first registered provider becomes the
// default.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[p.Name()] = p
	if r.defaultName == "" {
		r.defaultName = p.Name()
	}
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not registered", name)
	}
	return p, nil
}

func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.defaultName == "" {
		return nil, fmt.Errorf("no providers registered")
	}
	return r.providers[r.defaultName], nil
}

// Names lists registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
