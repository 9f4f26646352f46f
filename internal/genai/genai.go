// Package genai wraps the OpenAI API for memo classification.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults for classification requests. Temperature stays low so repeated
// runs over the same transcript are as stable as the model allows.
const (
	DefaultModel       = openai.ChatModelGPT4o
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 4096
	DefaultTimeout     = 90 * time.Second
)

// ErrNoChoicesReturned indicates the model returned an empty choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat    chatService
	model   string
	timeout time.Duration
}

// NewClient initializes a new GenAI client. The API key comes from options or
// the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cli := openai.NewClient(option.WithAPIKey(apiKey))
	slog.Debug("genai.NewClient: client initialized", "model", model, "timeout", timeout)
	return &Client{chat: &cli.Chat.Completions, model: model, timeout: timeout}, nil
}

// Model returns the model name this client sends requests to.
func (c *Client) Model() string {
	return c.model
}

// GenerateClassification sends the system and user prompts to the model and
// returns the raw completion text. Callers are responsible for parsing.
func (c *Client) GenerateClassification(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature:         openai.Float(DefaultTemperature),
		MaxCompletionTokens: openai.Int(DefaultMaxTokens),
	}

	start := time.Now()
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("genai.GenerateClassification: completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateClassification: empty choice list", "model", c.model)
		return "", ErrNoChoicesReturned
	}

	slog.Debug("genai.GenerateClassification: completion received",
		"model", c.model, "duration", time.Since(start), "chars", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}
