package adapter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const claudeDefaultMaxTokens = 1024

// ClaudeAdapter streams from the Anthropic Messages API.
type ClaudeAdapter struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func (c *ClaudeAdapter) Name() string {
	return fmt.Sprintf("Claude (%s)", c.Model)
}

func (c *ClaudeAdapter) StreamChat(ctx context.Context, messages []Message, opts Options) (*Stream, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("claude: no API key configured")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(c.APIKey), option.WithMaxRetries(0)}
	if c.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(c.BaseURL))
	}
	if c.Client != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(c.Client))
	}
	client := anthropic.NewClient(reqOpts...)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = claudeDefaultMaxTokens
	}
	model := opts.Model
	if model == "" {
		model = c.Model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		stream := client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if err := emit(delta.Text); err != nil {
						return fmt.Errorf("claude: %w", err)
					}
				}
			case anthropic.MessageStopEvent:
				return nil
			}
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("claude: stream: %w", err)
		}
		return nil
	}), nil
}

func (c *ClaudeAdapter) Available() bool {
	return c.APIKey != ""
}
