package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

// Defaults for the Anthropic client.
const (
	DefaultModel     = "claude-3-5-sonnet-20240620"
	DefaultMaxTokens = 1000
	DefaultTimeout   = 20 * time.Second
)

// Config configures the Anthropic client.
type Config struct {
	APIKey    string        `koanf:"api_key"`
	Model     string        `koanf:"model"`
	BaseURL   string        `koanf:"base_url"`
	MaxTokens int           `koanf:"max_tokens"`
	Timeout   time.Duration `koanf:"timeout"`
}

// Client implements Completer on top of the Anthropic Messages API.
type Client struct {
	api       *anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates an Anthropic-backed completer.
// If logger is nil, a discard logger is used.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	c := &Client{
		api:       anthropic.NewClient(cfg.APIKey, opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c, nil
}

// Complete sends a single user message and returns the first text block.
// Every call is bounded by the configured timeout.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := float32(0)

	start := time.Now()
	resp, err := c.api.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		System:      req.System,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &req.Prompt},
			}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	c.logger.Debug("llm completion",
		slog.String("model", c.model),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("output_tokens", resp.Usage.OutputTokens))

	text := extractTextFromResponse(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformedResponse)
	}
	return text, nil
}

func extractTextFromResponse(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}

var _ Completer = (*Client)(nil)
