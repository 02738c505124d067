package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Settings is the user-mutable runtime preference store: which model each
// provider should use and which provider is the default. It is persisted
// to a local JSON file and cached in memory behind a mutex.
type Settings struct {
	mu   sync.RWMutex
	path string
	data settingsData
}

type settingsData struct {
	DefaultProvider string            `json:"default_provider,omitempty"`
	Models          map[string]string `json:"models"`
}

// LoadSettings reads the settings file, creating an empty store when the
// file does not exist yet.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{
		path: path,
		data: settingsData{Models: make(map[string]string)},
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	if s.data.Models == nil {
		s.data.Models = make(map[string]string)
	}
	return s, nil
}

// ModelFor returns the preferred model for a provider, or "" when no
// preference is set.
func (s *Settings) ModelFor(provider string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Models[provider]
}

// DefaultProvider returns the preferred default provider, or "".
func (s *Settings) DefaultProvider() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.DefaultProvider
}

// Snapshot returns a copy of the current settings for API responses.
func (s *Settings) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	models := make(map[string]string, len(s.data.Models))
	for k, v := range s.data.Models {
		models[k] = v
	}
	return map[string]any{
		"default_provider": s.data.DefaultProvider,
		"models":           models,
	}
}

// Update applies new preferences and persists them. Unknown keys in the
// models map are accepted; validation against configured providers is the
// caller's concern.
func (s *Settings) Update(defaultProvider string, models map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if defaultProvider != "" {
		s.data.DefaultProvider = defaultProvider
	}
	for provider, model := range models {
		if model == "" {
			delete(s.data.Models, provider)
			continue
		}
		s.data.Models[provider] = model
	}
	return s.persistLocked()
}

// persistLocked writes the settings file. Callers must hold the write lock.
func (s *Settings) persistLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}
