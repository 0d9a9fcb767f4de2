package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Storage selects where the settings record lives.
type Storage struct {
	Backend    string `yaml:"backend"` // memory, redis or sqlite
	RedisURL   string `yaml:"redis_url"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Config holds all application configuration.
type Config struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`

	OllamaURL     string `yaml:"ollama_url"`
	LlamaCppURL   string `yaml:"llamacpp_url"`
	LlamaCppModel string `yaml:"llamacpp_model"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`
	ClaudeAPIKey  string `yaml:"claude_api_key"`
	ClaudeModel   string `yaml:"claude_model"`

	// PromptPath optionally replaces the built-in system prompt.
	PromptPath string `yaml:"prompt_path"`

	Storage Storage `yaml:"storage"`

	SessionTTLMinutes  int   `yaml:"session_ttl_minutes"`
	RateLimitPerMinute int   `yaml:"rate_limit_per_minute"`
	ToastSeconds       int   `yaml:"toast_seconds"`
	MaxBodyBytes       int64 `yaml:"max_body_bytes"`
}

func defaults() Config {
	return Config{
		Port:        8090,
		OpenAIModel: "gpt-4o-mini",
		ClaudeModel: "claude-sonnet-4-5-20250929",
		Storage: Storage{
			Backend:    "memory",
			SQLitePath: "gentle-review.db",
		},
		SessionTTLMinutes:  30,
		RateLimitPerMinute: 60,
		ToastSeconds:       3,
		MaxBodyBytes:       2 << 20,
	}
}

// Load reads configuration from a YAML file (if path is non-empty), then
// applies GENTLE_* environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	strs := []struct {
		env string
		dst *string
	}{
		{"GENTLE_API_KEY", &cfg.APIKey},
		{"GENTLE_OLLAMA_URL", &cfg.OllamaURL},
		{"GENTLE_LLAMACPP_URL", &cfg.LlamaCppURL},
		{"GENTLE_LLAMACPP_MODEL", &cfg.LlamaCppModel},
		{"GENTLE_OPENAI_API_KEY", &cfg.OpenAIAPIKey},
		{"GENTLE_OPENAI_BASE_URL", &cfg.OpenAIBaseURL},
		{"GENTLE_OPENAI_MODEL", &cfg.OpenAIModel},
		{"GENTLE_CLAUDE_API_KEY", &cfg.ClaudeAPIKey},
		{"GENTLE_CLAUDE_MODEL", &cfg.ClaudeModel},
		{"GENTLE_PROMPT_PATH", &cfg.PromptPath},
		{"GENTLE_STORAGE_BACKEND", &cfg.Storage.Backend},
		{"GENTLE_REDIS_URL", &cfg.Storage.RedisURL},
		{"GENTLE_SQLITE_PATH", &cfg.Storage.SQLitePath},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"GENTLE_PORT", &cfg.Port},
		{"GENTLE_SESSION_TTL_MINUTES", &cfg.SessionTTLMinutes},
		{"GENTLE_RATE_LIMIT_PER_MINUTE", &cfg.RateLimitPerMinute},
		{"GENTLE_TOAST_SECONDS", &cfg.ToastSeconds},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid %s %q: %w", i.env, v, err)
		}
		*i.dst = n
	}

	switch cfg.Storage.Backend {
	case "memory", "redis", "sqlite":
	default:
		return Config{}, fmt.Errorf("config: unknown storage backend %q", cfg.Storage.Backend)
	}

	return cfg, nil
}
