package config

import (
	"fmt"
	"sync"
)

// ProviderConfig describes one LLM provider endpoint.
type ProviderConfig struct {
	Name         string `json:"name"`
	APIKey       string `json:"-"`
	APIKeyEnv    string `json:"-"`
	BaseURL      string `json:"base_url"`
	DefaultModel string `json:"default_model"`
	Priority     int    `json:"priority"`
	// Local marks a local inference endpoint, skipped by auto selection.
	Local bool `json:"local"`
}

// ProviderRegistry holds the configured LLM providers.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]*ProviderConfig
}

// NewProviderRegistry creates an empty provider registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]*ProviderConfig)}
}

// Register adds or replaces a provider configuration.
func (r *ProviderRegistry) Register(p *ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name] = p
}

// Get retrieves a provider configuration by name.
func (r *ProviderRegistry) Get(name string) (*ProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %q", name)
	}
	return p, nil
}

// Has reports whether a provider is configured.
func (r *ProviderRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// All returns every configured provider, sorted by priority.
func (r *ProviderRegistry) All() []*ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ProviderConfig, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return sortByPriority(out)
}

// Cloud returns configured non-local providers, sorted by priority.
// The auto model hint resolves against this list.
func (r *ProviderRegistry) Cloud() []*ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ProviderConfig, 0, len(r.providers))
	for _, p := range r.providers {
		if !p.Local {
			out = append(out, p)
		}
	}
	return sortByPriority(out)
}

// CloudNames returns configured cloud provider names in priority order.
func (r *ProviderRegistry) CloudNames() []string {
	cloud := r.Cloud()
	names := make([]string, len(cloud))
	for i, p := range cloud {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of configured providers.
func (r *ProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
