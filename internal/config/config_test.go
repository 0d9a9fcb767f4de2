package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GENTLE_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no file: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"port", cfg.Port, 8090},
		{"ollama_url", cfg.OllamaURL, ""},
		{"prompt_path", cfg.PromptPath, ""},
		{"claude_api_key", cfg.ClaudeAPIKey, ""},
		{"claude_model", cfg.ClaudeModel, "claude-sonnet-4-5-20250929"},
		{"openai_model", cfg.OpenAIModel, "gpt-4o-mini"},
		{"llamacpp_url", cfg.LlamaCppURL, ""},
		{"api_key", cfg.APIKey, ""},
		{"storage backend", cfg.Storage.Backend, "memory"},
		{"sqlite path", cfg.Storage.SQLitePath, "gentle-review.db"},
		{"session ttl", cfg.SessionTTLMinutes, 30},
		{"rate limit", cfg.RateLimitPerMinute, 60},
		{"toast seconds", cfg.ToastSeconds, 3},
		{"max body", cfg.MaxBodyBytes, int64(2 << 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("GENTLE_API_KEY", "")

	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	content := `port: 9999
ollama_url: "http://jetson.local:11434"
claude_api_key: "sk-test-key"
claude_model: "claude-opus-4-6"
openai_api_key: "sk-openai"
openai_base_url: "http://localhost:4000/v1/"
llamacpp_url: "http://localhost:8080"
llamacpp_model: "qwen2.5-1.5b"
prompt_path: "/etc/gentle-review/prompt.txt"
api_key: "my-secret-key"
storage:
  backend: sqlite
  sqlite_path: /var/lib/gentle-review/settings.db
session_ttl_minutes: 5
`
	if err := os.WriteFile(yamlPath, []byte(content), 0644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"port", cfg.Port, 9999},
		{"ollama_url", cfg.OllamaURL, "http://jetson.local:11434"},
		{"claude_api_key", cfg.ClaudeAPIKey, "sk-test-key"},
		{"claude_model", cfg.ClaudeModel, "claude-opus-4-6"},
		{"openai_api_key", cfg.OpenAIAPIKey, "sk-openai"},
		{"openai_base_url", cfg.OpenAIBaseURL, "http://localhost:4000/v1/"},
		{"prompt_path", cfg.PromptPath, "/etc/gentle-review/prompt.txt"},
		{"llamacpp_url", cfg.LlamaCppURL, "http://localhost:8080"},
		{"llamacpp_model", cfg.LlamaCppModel, "qwen2.5-1.5b"},
		{"api_key", cfg.APIKey, "my-secret-key"},
		{"storage backend", cfg.Storage.Backend, "sqlite"},
		{"sqlite path", cfg.Storage.SQLitePath, "/var/lib/gentle-review/settings.db"},
		{"session ttl", cfg.SessionTTLMinutes, 5},
		{"rate limit keeps default", cfg.RateLimitPerMinute, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	content := `port: 9999
ollama_url: "http://from-yaml:11434"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv("GENTLE_PORT", "7777")
	t.Setenv("GENTLE_OLLAMA_URL", "http://from-env:11434")
	t.Setenv("GENTLE_CLAUDE_API_KEY", "sk-env-key")
	t.Setenv("GENTLE_LLAMACPP_URL", "http://from-env:8080")
	t.Setenv("GENTLE_LLAMACPP_MODEL", "custom-model")
	t.Setenv("GENTLE_API_KEY", "env-api-key")
	t.Setenv("GENTLE_STORAGE_BACKEND", "redis")
	t.Setenv("GENTLE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("GENTLE_RATE_LIMIT_PER_MINUTE", "5")

	cfg, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"port from env", cfg.Port, 7777},
		{"ollama_url from env", cfg.OllamaURL, "http://from-env:11434"},
		{"claude_api_key from env", cfg.ClaudeAPIKey, "sk-env-key"},
		{"llamacpp_url from env", cfg.LlamaCppURL, "http://from-env:8080"},
		{"llamacpp_model from env", cfg.LlamaCppModel, "custom-model"},
		{"api_key from env", cfg.APIKey, "env-api-key"},
		{"storage from env", cfg.Storage.Backend, "redis"},
		{"redis url from env", cfg.Storage.RedisURL, "redis://localhost:6379/0"},
		{"rate limit from env", cfg.RateLimitPerMinute, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("GENTLE_PORT", "eighty")

	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric port, got nil")
	}
}

func TestLoadUnknownStorage(t *testing.T) {
	t.Setenv("GENTLE_STORAGE_BACKEND", "etcd")

	if _, err := Load(""); err == nil {
		t.Error("expected error for unknown storage backend, got nil")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("{{invalid"), 0644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	_, err := Load(yamlPath)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}
