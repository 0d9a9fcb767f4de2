package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"
)

// OpenAIAdapter streams chat completions from the OpenAI API (or any
// compatible endpoint via BaseURL). Consecutive failures open a circuit
// breaker so a dead remote fails fast instead of tying up every comment.
type OpenAIAdapter struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client

	once    sync.Once
	client  openai.Client
	breaker *gobreaker.CircuitBreaker
}

func (o *OpenAIAdapter) Name() string {
	return fmt.Sprintf("OpenAI (%s)", o.Model)
}

func (o *OpenAIAdapter) init() {
	o.once.Do(func() {
		opts := []option.RequestOption{option.WithAPIKey(o.APIKey), option.WithMaxRetries(0)}
		if o.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(o.BaseURL))
		}
		if o.Client != nil {
			opts = append(opts, option.WithHTTPClient(o.Client))
		}
		o.client = openai.NewClient(opts...)
		o.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "openai",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		})
	})
}

func (o *OpenAIAdapter) StreamChat(ctx context.Context, messages []Message, opts Options) (*Stream, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("openai: no API key configured")
	}
	o.init()

	model := opts.Model
	if model == "" {
		model = o.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}

	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		_, err := o.breaker.Execute(func() (interface{}, error) {
			return nil, o.consume(ctx, params, emit)
		})
		if errors.Is(err, gobreaker.ErrOpenState) {
			return fmt.Errorf("openai: %w", err)
		}
		return err
	}), nil
}

func (o *OpenAIAdapter) consume(ctx context.Context, params openai.ChatCompletionNewParams, emit EmitFunc) error {
	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if err := emit(chunk.Choices[0].Delta.Content); err != nil {
			return fmt.Errorf("openai: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai: stream: %w", err)
	}
	return nil
}

// Available reports whether a key is configured and the breaker is not open.
func (o *OpenAIAdapter) Available() bool {
	if o.APIKey == "" {
		return false
	}
	o.init()
	return o.breaker.State() != gobreaker.StateOpen
}
