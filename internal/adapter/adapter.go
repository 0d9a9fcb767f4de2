package adapter

import "context"

// LLMAdapter defines the contract for inference backends.
type LLMAdapter interface {
	Name() string
	StreamChat(ctx context.Context, messages []Message, opts Options) (*Stream, error)
	Available() bool
}

// ModelLoader is implemented by local engines that keep model weights on
// disk and must fetch them before the first completion.
type ModelLoader interface {
	HasModel(ctx context.Context, model string) (bool, error)
	Pull(ctx context.Context, model string, progress func(float64)) error
}

// Message is one chat turn sent to the engine.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tune a single completion. Zero values mean "engine default".
type Options struct {
	Model             string
	Temperature       float64
	MaxTokens         int
	RepetitionPenalty float64
}

// ModelInfo is exposed via GET /api/models.
type ModelInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}
