// Package anthropic implements the generation provider port for Claude models.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/port/genprovider"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 2048
)

func init() {
	genprovider.Register(routing.ProviderClaude, func(cfg genprovider.Config) (genprovider.Backend, error) {
		return NewBackend(cfg), nil
	})
}

// Backend talks to the Anthropic Messages API.
type Backend struct {
	client anthropic.Client
	cfg    genprovider.Config
}

// NewBackend creates a Claude backend from the given config.
func NewBackend(cfg genprovider.Config) *Backend {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Backend{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (b *Backend) Name() routing.Provider { return routing.ProviderClaude }

func (b *Backend) Reachable() bool { return b.cfg.APIKey != "" }

// Generate performs a non-streaming message request.
func (b *Backend) Generate(ctx context.Context, req genprovider.GenerateRequest) (string, error) {
	if !b.Reachable() {
		return "", genprovider.ErrUnavailable
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.cfg.Model),
		MaxTokens: int64(b.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude generate: %w", err)
	}

	var out string
	for _, block := range message.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}
