// Package settings persists the single process-wide ExtensionSettings record
// and answers the GET_SETTINGS / UPDATE_SETTINGS message pair.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Key is the fixed storage key of the settings record.
const Key = "gentle-review:settings"

// Provider selects the backend that generates enhanced text.
type Provider string

const (
	ProviderWebLLM Provider = "web-llm"
	ProviderOpenAI Provider = "OpenAI"
	ProviderClaude Provider = "Claude"
)

// Local reports whether the provider runs on the user's machine.
func (p Provider) Local() bool {
	return p == ProviderWebLLM
}

// ExtensionSettings is the persisted configuration record.
type ExtensionSettings struct {
	Enabled     bool     `json:"enabled"`
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"maxTokens"`
	Provider    Provider `json:"provider"`
}

// Defaults returns the settings used before anything was stored.
func Defaults() ExtensionSettings {
	return ExtensionSettings{
		Enabled:     true,
		Model:       "llama3.1:8b",
		Temperature: 0.7,
		MaxTokens:   500,
		Provider:    ProviderWebLLM,
	}
}

// Patch is a partial update; nil fields keep their stored value.
type Patch struct {
	Enabled     *bool     `json:"enabled,omitempty"`
	Model       *string   `json:"model,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"maxTokens,omitempty"`
	Provider    *Provider `json:"provider,omitempty"`
}

// Apply merges p into s and returns the result.
func (p Patch) Apply(s ExtensionSettings) ExtensionSettings {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.Model != nil {
		s.Model = *p.Model
	}
	if p.Temperature != nil {
		s.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		s.MaxTokens = *p.MaxTokens
	}
	if p.Provider != nil {
		s.Provider = *p.Provider
	}
	return s
}

// ErrNotFound is returned by a Storage when no record exists under the key.
var ErrNotFound = errors.New("settings: key not found")

// Storage is the extension-scoped key-value backend.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

// Store reads and merges the settings record. Updates are a plain
// read-modify-write: concurrent writers race and the last one wins.
type Store struct {
	storage Storage
}

func NewStore(storage Storage) *Store {
	return &Store{storage: storage}
}

// Get returns the stored settings, or Defaults when nothing is stored yet.
func (s *Store) Get(ctx context.Context) (ExtensionSettings, error) {
	data, err := s.storage.Load(ctx, Key)
	if errors.Is(err, ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return ExtensionSettings{}, fmt.Errorf("settings: load: %w", err)
	}

	out := Defaults()
	if err := json.Unmarshal(data, &out); err != nil {
		return ExtensionSettings{}, fmt.Errorf("settings: decode: %w", err)
	}
	return out, nil
}

// Update merges the patch into the persisted record.
func (s *Store) Update(ctx context.Context, p Patch) (ExtensionSettings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return ExtensionSettings{}, err
	}

	next := p.Apply(current)
	data, err := json.Marshal(next)
	if err != nil {
		return ExtensionSettings{}, fmt.Errorf("settings: encode: %w", err)
	}
	if err := s.storage.Save(ctx, Key, data); err != nil {
		return ExtensionSettings{}, fmt.Errorf("settings: save: %w", err)
	}
	return next, nil
}
