package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/watsumi/gentle-review/internal/adapter"
	"github.com/watsumi/gentle-review/internal/config"
	"github.com/watsumi/gentle-review/internal/llm"
	"github.com/watsumi/gentle-review/internal/settings"
)

// app is the wiring shared by every command.
type app struct {
	store    *settings.Store
	adapters map[string]adapter.LLMAdapter
	models   []adapter.ModelInfo
	engine   *llm.Client
	closers  []func() error
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// newApp opens the settings storage, builds the configured adapters and
// binds the engine to the provider chosen in settings.
func newApp(ctx context.Context, cfg config.Config, mock bool) (*app, error) {
	a := &app{}

	storage, closer, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.store = settings.NewStore(storage)

	s, err := a.store.Get(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	b := buildAdapters(cfg, s.Model, mock)
	a.adapters, a.models = b.adapters, b.models

	engineAdapter, err := b.forProvider(s.Provider)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []llm.Option{llm.WithSettings(a.store)}
	if cfg.PromptPath != "" {
		prompt, err := os.ReadFile(cfg.PromptPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("prompt: read %s: %w", cfg.PromptPath, err)
		}
		opts = append(opts, llm.WithSystemPrompt(string(prompt)))
	}
	a.engine = llm.New(engineAdapter, opts...)
	slog.Info("engine bound", "provider", s.Provider, "adapter", engineAdapter.Name())
	return a, nil
}

func openStorage(ctx context.Context, c config.Storage) (settings.Storage, func() error, error) {
	switch c.Backend {
	case "redis":
		r, err := settings.NewRedisStorage(ctx, c.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("settings storage", "backend", "redis")
		return r, r.Close, nil
	case "sqlite":
		s, err := settings.NewSQLiteStorage(c.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("settings storage", "backend", "sqlite", "path", c.SQLitePath)
		return s, s.Close, nil
	default:
		slog.Info("settings storage", "backend", "memory")
		return settings.NewMemoryStorage(), nil, nil
	}
}

type backends struct {
	adapters map[string]adapter.LLMAdapter
	models   []adapter.ModelInfo

	local, openai, claude adapter.LLMAdapter
}

// forProvider returns the adapter serving the provider.
func (b backends) forProvider(p settings.Provider) (adapter.LLMAdapter, error) {
	var a adapter.LLMAdapter
	switch p {
	case settings.ProviderOpenAI:
		a = b.openai
	case settings.ProviderClaude:
		a = b.claude
	default:
		a = b.local
	}
	if a == nil {
		return nil, fmt.Errorf("provider %q is not configured", p)
	}
	return a, nil
}

// streamClient has no overall timeout; streams end with the caller's context.
func streamClient() *http.Client {
	return &http.Client{Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: 2 * time.Minute,
	}}
}

func buildAdapters(cfg config.Config, model string, mock bool) backends {
	b := backends{adapters: make(map[string]adapter.LLMAdapter)}

	if mock {
		m := &adapter.MockAdapter{Delay: 50 * time.Millisecond}
		b.adapters["mock"] = m
		b.models = append(b.models, adapter.ModelInfo{ID: "mock", Name: "Mock (dev)", Provider: "mock"})
		b.local, b.openai, b.claude = m, m, m
		slog.Info("mode: mock adapter enabled")
		return b
	}

	// Ollama pulls and caches the model, the closest match to an in-browser engine.
	if cfg.OllamaURL != "" {
		ollama := &adapter.OllamaAdapter{BaseURL: cfg.OllamaURL, Model: model, Client: streamClient()}
		b.adapters[model] = ollama
		b.models = append(b.models, adapter.ModelInfo{ID: model, Name: "Ollama (" + model + ")", Provider: "ollama"})
		b.local = ollama
		slog.Info("mode: ollama", "url", cfg.OllamaURL, "model", model)
	}

	if cfg.LlamaCppURL != "" {
		m := cfg.LlamaCppModel
		if m == "" {
			m = "qwen2.5-1.5b-gpu"
		}
		llama := &adapter.LlamaCppAdapter{BaseURL: cfg.LlamaCppURL, Model: m, Client: streamClient()}
		b.adapters[m] = llama
		b.models = append(b.models, adapter.ModelInfo{ID: m, Name: "llama.cpp (" + m + ")", Provider: "llamacpp"})
		if b.local == nil {
			b.local = llama
		}
		slog.Info("mode: llama.cpp", "url", cfg.LlamaCppURL, "model", m)
	}

	if cfg.OpenAIAPIKey != "" {
		o := &adapter.OpenAIAdapter{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel}
		b.adapters[cfg.OpenAIModel] = o
		b.models = append(b.models, adapter.ModelInfo{ID: cfg.OpenAIModel, Name: "OpenAI (" + cfg.OpenAIModel + ")", Provider: "openai"})
		b.openai = o
		slog.Info("mode: openai enabled", "model", cfg.OpenAIModel)
	}

	if cfg.ClaudeAPIKey != "" {
		c := &adapter.ClaudeAdapter{APIKey: cfg.ClaudeAPIKey, Model: cfg.ClaudeModel}
		b.adapters[cfg.ClaudeModel] = c
		b.models = append(b.models, adapter.ModelInfo{ID: cfg.ClaudeModel, Name: "Claude (" + cfg.ClaudeModel + ")", Provider: "claude"})
		b.claude = c
		slog.Info("mode: claude enabled", "model", cfg.ClaudeModel)
	}

	return b
}

// logProgress returns an init progress callback that logs each 10% step.
func logProgress() func(float64) {
	last := -1
	return func(p float64) {
		step := int(p * 10)
		if step == last {
			return
		}
		last = step
		slog.Info("initializing engine", "progress", fmt.Sprintf("%.0f%%", p*100))
	}
}
