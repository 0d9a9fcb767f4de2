// Package llm owns the inference engine handle: its initialization state and
// the prompt-building call that streams an enhanced comment.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/watsumi/gentle-review/internal/adapter"
	"github.com/watsumi/gentle-review/internal/metrics"
	"github.com/watsumi/gentle-review/internal/review"
	"github.com/watsumi/gentle-review/internal/settings"
)

const repetitionPenalty = 1.1

var (
	// ErrNotInitialized is returned by Enhance before Initialize succeeded.
	ErrNotInitialized = errors.New("llm: not initialized")
	// ErrUnavailable is returned by Initialize when a remote engine cannot serve.
	ErrUnavailable = errors.New("llm: engine unavailable")
)

// State is the initialization state of the engine.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// SettingsSource supplies the live generation settings.
type SettingsSource interface {
	Get(ctx context.Context) (settings.ExtensionSettings, error)
}

// Option configures a Client.
type Option func(*Client)

// WithSettings makes Enhance read temperature and max tokens per call, and
// Initialize take the model id from the stored settings.
func WithSettings(src SettingsSource) Option {
	return func(c *Client) { c.settings = src }
}

// WithModel sets the model id used when no settings source is configured.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithSystemPrompt replaces the built-in gentle-review prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *Client) { c.systemPrompt = prompt }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client is the single shared handle to the engine. Concurrent Enhance calls
// are not serialized.
type Client struct {
	adapter  adapter.LLMAdapter
	settings SettingsSource
	logger   *slog.Logger

	systemPrompt string

	initMu sync.Mutex

	mu       sync.Mutex
	model    string
	state    State
	progress float64
	onReady  func(bool)
}

func New(a adapter.LLMAdapter, opts ...Option) *Client {
	c := &Client{
		adapter:      a,
		model:        settings.Defaults().Model,
		logger:       slog.Default(),
		systemPrompt: review.SystemPrompt,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name is the underlying adapter's name.
func (c *Client) Name() string {
	return c.adapter.Name()
}

// Model is the model id the engine was initialized with.
func (c *Client) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// SetReadyCallback registers the single subscriber notified on every change
// of the ready flag. A later call replaces the earlier subscriber.
func (c *Client) SetReadyCallback(fn func(ready bool)) {
	c.mu.Lock()
	c.onReady = fn
	c.mu.Unlock()
}

func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateReady
}

// State returns the state and the initialization progress in [0,1].
func (c *Client) State() (State, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.progress
}

// Initialize prepares the engine. For engines that keep weights locally the
// model is pulled only when it is not cached yet. It is a no-op once ready.
func (c *Client) Initialize(ctx context.Context, progress func(float64)) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.Ready() {
		return nil
	}

	if c.settings != nil {
		s, err := c.settings.Get(ctx)
		if err != nil {
			return c.fail(fmt.Errorf("llm: read settings: %w", err))
		}
		if s.Model != "" {
			c.mu.Lock()
			c.model = s.Model
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	c.state = StateLoading
	c.progress = 0
	model := c.model
	c.mu.Unlock()
	metrics.EngineInitProgress.Set(0)

	report := func(p float64) {
		p = c.advance(p)
		if progress != nil {
			progress(p)
		}
	}

	if loader, ok := c.adapter.(adapter.ModelLoader); ok {
		cached, err := loader.HasModel(ctx, model)
		if err != nil {
			return c.fail(fmt.Errorf("llm: check model cache %s: %w", model, err))
		}
		c.logger.Info("model cache status", "adapter", c.adapter.Name(), "model", model, "cached", cached)
		if !cached {
			c.logger.Info("downloading model", "model", model)
			if err := loader.Pull(ctx, model, report); err != nil {
				return c.fail(fmt.Errorf("llm: pull %s: %w", model, err))
			}
		}
	} else if !c.adapter.Available() {
		return c.fail(fmt.Errorf("%w: %s", ErrUnavailable, c.adapter.Name()))
	}

	report(1)
	c.setReady(true)
	c.logger.Info("engine ready", "adapter", c.adapter.Name(), "model", model)
	return nil
}

// advance moves progress forward only, clamped to [0,1].
func (c *Client) advance(p float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p > 1 {
		p = 1
	}
	if p > c.progress {
		c.progress = p
	}
	metrics.EngineInitProgress.Set(c.progress)
	return c.progress
}

func (c *Client) fail(err error) error {
	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
	c.notify(false)
	c.logger.Error("engine initialization failed", "adapter", c.adapter.Name(), "error", err)
	return err
}

func (c *Client) setReady(ready bool) {
	c.mu.Lock()
	if ready {
		c.state = StateReady
	}
	c.mu.Unlock()
	c.notify(ready)
}

func (c *Client) notify(ready bool) {
	c.mu.Lock()
	fn := c.onReady
	c.mu.Unlock()
	if fn != nil {
		fn(ready)
	}
}

// Messages builds the chat for one comment.
func Messages(systemPrompt string, comment review.ReviewComment) []adapter.Message {
	return []adapter.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: review.UserPrompt(comment)},
	}
}

// Enhance starts a streamed rewrite of comment. The returned stream has a
// single reader and cannot be restarted.
func (c *Client) Enhance(ctx context.Context, comment review.ReviewComment) (*adapter.Stream, error) {
	if !c.Ready() {
		return nil, ErrNotInitialized
	}

	opts, err := c.options(ctx)
	if err != nil {
		return nil, err
	}

	stream, err := c.adapter.StreamChat(ctx, Messages(c.systemPrompt, comment), opts)
	if err != nil {
		return nil, fmt.Errorf("llm: %s: %w", c.adapter.Name(), err)
	}
	return stream, nil
}

func (c *Client) options(ctx context.Context) (adapter.Options, error) {
	s := settings.Defaults()
	if c.settings != nil {
		var err error
		if s, err = c.settings.Get(ctx); err != nil {
			return adapter.Options{}, fmt.Errorf("llm: read settings: %w", err)
		}
	}

	opts := adapter.Options{
		Temperature:       s.Temperature,
		MaxTokens:         s.MaxTokens,
		RepetitionPenalty: repetitionPenalty,
	}
	// Remote providers keep the model configured on their adapter.
	if _, ok := c.adapter.(adapter.ModelLoader); ok {
		opts.Model = c.Model()
	}
	return opts, nil
}

// Collect reads a stream to the end and returns the concatenated text.
func Collect(s *adapter.Stream) (string, error) {
	var b strings.Builder
	for chunk := range s.Chunks() {
		b.WriteString(chunk.Delta)
	}
	return b.String(), s.Err()
}

// EnhanceComment is the non-streaming variant: it waits for the whole text
// and splits it into improved content, pros, cons and suggestions.
func (c *Client) EnhanceComment(ctx context.Context, comment review.ReviewComment) (review.EnhancedComment, error) {
	stream, err := c.Enhance(ctx, comment)
	if err != nil {
		return review.EnhancedComment{}, err
	}
	defer stream.Close()

	text, err := Collect(stream)
	if err != nil {
		return review.EnhancedComment{}, err
	}
	return review.ParseEnhanced(comment, text), nil
}
