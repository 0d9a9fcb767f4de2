package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LlamaCppAdapter connects to llama-server's OpenAI-compatible /v1/chat/completions.
type LlamaCppAdapter struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

type llamaCppMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llamaCppChatRequest struct {
	Model         string            `json:"model"`
	Messages      []llamaCppMessage `json:"messages"`
	Stream        bool              `json:"stream"`
	Temperature   float64           `json:"temperature,omitempty"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	RepeatPenalty float64           `json:"repeat_penalty,omitempty"`
}

type llamaCppDelta struct {
	Content string `json:"content"`
}

type llamaCppStreamChoice struct {
	Delta        llamaCppDelta `json:"delta"`
	FinishReason *string       `json:"finish_reason"`
}

type llamaCppStreamChunk struct {
	Choices []llamaCppStreamChoice `json:"choices"`
}

func (l *LlamaCppAdapter) Name() string {
	return fmt.Sprintf("llama.cpp (%s)", l.Model)
}

func (l *LlamaCppAdapter) StreamChat(ctx context.Context, messages []Message, opts Options) (*Stream, error) {
	reqBody := llamaCppChatRequest{
		Model:         l.Model,
		Messages:      make([]llamaCppMessage, 0, len(messages)),
		Stream:        true,
		Temperature:   opts.Temperature,
		MaxTokens:     opts.MaxTokens,
		RepeatPenalty: opts.RepetitionPenalty,
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, llamaCppMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: marshal request: %w", err)
	}

	url := strings.TrimRight(l.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llamacpp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("llamacpp: unexpected status %d", resp.StatusCode)
	}

	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		defer resp.Body.Close()
		stop := context.AfterFunc(ctx, func() { resp.Body.Close() })
		defer stop()

		err := readSSE(resp.Body, func(data []byte) (bool, error) {
			var chunk llamaCppStreamChunk
			if err := json.Unmarshal(data, &chunk); err != nil {
				return false, fmt.Errorf("llamacpp: decode chunk: %w", err)
			}
			if len(chunk.Choices) == 0 {
				return false, nil
			}
			choice := chunk.Choices[0]
			if err := emit(choice.Delta.Content); err != nil {
				return false, fmt.Errorf("llamacpp: %w", err)
			}
			return choice.FinishReason != nil && *choice.FinishReason != "", nil
		})
		if err != nil && ctx.Err() != nil {
			return fmt.Errorf("llamacpp: %w", ctx.Err())
		}
		return err
	}), nil
}

func (l *LlamaCppAdapter) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(l.BaseURL, "/")+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := l.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
