package agent

import (
	"sort"
	"sync"

	"github.com/loomcomputeco/loom/pkg/fault"
)

// Registry holds registered agents by name. Registration is first-writer
// wins: re-registering a name fails rather than silently replacing the
// original config.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register validates, compiles and stores the config.
func (r *Registry) Register(cfg Config) (*Agent, error) {
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[cfg.Name]; exists {
		return nil, fault.New(fault.KindAgentAlreadyRegistered, "agent %q already registered", cfg.Name)
	}
	r.agents[cfg.Name] = a
	return a, nil
}

// GetOK resolves an agent by name without producing an error.
func (r *Registry) GetOK(name string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Get resolves an agent by name.
func (r *Registry) Get(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, fault.New(fault.KindUnknownAgent, "agent %q not found", name)
	}
	return a, nil
}

// Names returns the registered agent names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
