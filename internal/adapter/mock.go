package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockAdapter streams simulated responses with a configurable per-chunk delay.
// Used for development and testing without a real LLM backend.
type MockAdapter struct {
	Delay time.Duration
	// Chunks, when set, is streamed verbatim instead of the derived text.
	Chunks []string
	// FailAfter makes the stream fail once that many chunks were sent.
	FailAfter int
	// Missing makes HasModel report the model as absent until Pull succeeds.
	Missing bool

	mu     sync.Mutex
	pulled bool
	calls  int
}

var errMockFailure = errors.New("mock: simulated stream failure")

func (m *MockAdapter) Name() string { return "Mock" }

func (m *MockAdapter) StreamChat(ctx context.Context, messages []Message, opts Options) (*Stream, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	chunks := m.Chunks
	if chunks == nil {
		chunks = splitWords(softenText(lastUserMessage(messages)))
	}

	return NewStream(ctx, func(ctx context.Context, emit EmitFunc) error {
		for i, c := range chunks {
			if m.FailAfter > 0 && i >= m.FailAfter {
				return errMockFailure
			}
			if m.Delay > 0 {
				select {
				case <-time.After(m.Delay):
				case <-ctx.Done():
					return fmt.Errorf("mock: %w", ctx.Err())
				}
			}
			if err := emit(c); err != nil {
				return fmt.Errorf("mock: %w", err)
			}
		}
		return nil
	}), nil
}

func (m *MockAdapter) Available() bool { return true }

// Calls returns how many completions were requested.
func (m *MockAdapter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockAdapter) HasModel(ctx context.Context, model string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Missing || m.pulled, nil
}

func (m *MockAdapter) Pull(ctx context.Context, model string, progress func(float64)) error {
	for _, p := range []float64{0.25, 0.5, 0.75, 1} {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("mock: %w", err)
		}
		if progress != nil {
			progress(p)
		}
	}
	m.mu.Lock()
	m.pulled = true
	m.mu.Unlock()
	return nil
}

func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// softenText trims whitespace and capitalizes the first letter.
func softenText(text string) string {
	out := strings.TrimSpace(text)
	if len(out) > 0 && out[0] >= 'a' && out[0] <= 'z' {
		out = strings.ToUpper(out[:1]) + out[1:]
	}
	return out
}

// splitWords cuts text into word-sized chunks that concatenate back to text.
func splitWords(text string) []string {
	var chunks []string
	for len(text) > 0 {
		i := strings.IndexByte(text, ' ')
		if i < 0 {
			chunks = append(chunks, text)
			break
		}
		chunks = append(chunks, text[:i+1])
		text = text[i+1:]
	}
	return chunks
}
