package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaAdapter connects to a local Ollama instance via /api/chat.
type OllamaAdapter struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature   float64 `json:"temperature,omitempty"`
	NumPredict    int     `json:"num_predict,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

type ollamaShowRequest struct {
	Model string `json:"model"`
}

type ollamaPullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type ollamaPullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error,omitempty"`
}

func (o *OllamaAdapter) Name() string {
	return fmt.Sprintf("Ollama (%s)", o.Model)
}

func (o *OllamaAdapter) StreamChat(ctx context.Context, messages []Message, opts Options) (*Stream, error) {
	model := opts.Model
	if model == "" {
		model = o.Model
	}

	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: make([]ollamaMessage, 0, len(messages)),
		Stream:   true,
		Options: &ollamaOptions{
			Temperature:   opts.Temperature,
			NumPredict:    opts.MaxTokens,
			RepeatPenalty: opts.RepetitionPenalty,
		},
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := o.post(ctx, "/api/chat", reqBody)
	if err != nil {
		return nil, err
	}

	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		defer resp.Body.Close()
		stop := context.AfterFunc(ctx, func() { resp.Body.Close() })
		defer stop()

		dec := json.NewDecoder(resp.Body)
		for {
			var chunk ollamaChatResponse
			if err := dec.Decode(&chunk); err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("ollama: %w", ctx.Err())
				}
				return fmt.Errorf("ollama: decode chunk: %w", err)
			}
			if chunk.Error != "" {
				return fmt.Errorf("ollama: stream error: %s", chunk.Error)
			}
			if err := emit(chunk.Message.Content); err != nil {
				return fmt.Errorf("ollama: %w", err)
			}
			if chunk.Done {
				return nil
			}
		}
	}), nil
}

// HasModel reports whether the model is already present in Ollama's local store.
func (o *OllamaAdapter) HasModel(ctx context.Context, model string) (bool, error) {
	body, err := json.Marshal(ollamaShowRequest{Model: model})
	if err != nil {
		return false, fmt.Errorf("ollama: marshal request: %w", err)
	}

	url := strings.TrimRight(o.BaseURL, "/") + "/api/show"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("ollama: request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("ollama: unexpected status %d", resp.StatusCode)
	}
}

// Pull downloads the model, reporting completed/total as a fraction in [0,1].
func (o *OllamaAdapter) Pull(ctx context.Context, model string, progress func(float64)) error {
	resp, err := o.post(ctx, "/api/pull", ollamaPullRequest{Model: model, Stream: true})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	last := 0.0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var p ollamaPullProgress
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("ollama: decode pull progress: %w", err)
		}
		if p.Error != "" {
			return fmt.Errorf("ollama: pull %s: %s", model, p.Error)
		}
		if p.Status == "success" {
			if progress != nil {
				progress(1)
			}
			return nil
		}
		if p.Total > 0 && progress != nil {
			// Ollama reports per-layer totals; keep the reported fraction monotonic.
			frac := float64(p.Completed) / float64(p.Total)
			if frac > last && frac < 1 {
				last = frac
				progress(frac)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ollama: read pull progress: %w", err)
	}
	return fmt.Errorf("ollama: pull %s: stream ended without success", model)
}

func (o *OllamaAdapter) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(o.BaseURL, "/")+"/", nil)
	if err != nil {
		return false
	}

	resp, err := o.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (o *OllamaAdapter) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	url := strings.TrimRight(o.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}
