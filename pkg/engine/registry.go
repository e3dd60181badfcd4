package engine

import (
	"sync"

	"tanuki/pkg/event"
)

// Registry maps engine identifiers to runners. Population happens by explicit
// Register calls at process start.
type Registry struct {
	mu        sync.RWMutex
	runners   map[string]Runner
	order     []string // registration order, used for extraction scans
	defaultID string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Register adds a runner. The first registered runner becomes the default
// until SetDefault overrides it. Registering a duplicate id replaces the
// earlier runner.
func (r *Registry) Register(runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := runner.ID()
	if _, exists := r.runners[id]; !exists {
		r.order = append(r.order, id)
	}
	r.runners[id] = runner
	if r.defaultID == "" {
		r.defaultID = id
	}
}

// SetDefault selects the default engine. Returns *UnknownEngineError if the
// id was never registered.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runners[id]; !ok {
		return &UnknownEngineError{ID: id, Available: r.order}
	}
	r.defaultID = id
	return nil
}

// Get returns the runner for id, or the default runner when id is empty.
func (r *Registry) Get(id string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == "" {
		id = r.defaultID
	}
	runner, ok := r.runners[id]
	if !ok {
		return nil, &UnknownEngineError{ID: id, Available: r.order}
	}
	return runner, nil
}

// IDs returns the registered engine ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ExtractResume scans text with every registered engine's extractor, in
// registration order, returning the first engine's match. This makes the
// registry usable as the router's unscoped-token extractor.
func (r *Registry) ExtractResume(text string) *event.ResumeToken {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if token := r.runners[id].ExtractResume(text); token != nil {
			return token
		}
	}
	return nil
}
