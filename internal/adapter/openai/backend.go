// Package openai implements the generation provider port for OpenAI models.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/port/genprovider"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 2048
)

func init() {
	genprovider.Register(routing.ProviderOpenAI, func(cfg genprovider.Config) (genprovider.Backend, error) {
		return NewBackend(cfg), nil
	})
}

// Backend talks to the OpenAI Responses API.
type Backend struct {
	client *openai.Client
	cfg    genprovider.Config
}

// NewBackend creates an OpenAI backend from the given config. A missing
// API key yields an unreachable backend rather than an error, so the
// routing table can still hold it as a known provider.
func NewBackend(cfg genprovider.Config) *Backend {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	client := openai.NewClient(opts...)
	return &Backend{client: &client, cfg: cfg}
}

func (b *Backend) Name() routing.Provider { return routing.ProviderOpenAI }

func (b *Backend) Reachable() bool { return b.cfg.APIKey != "" }

// Generate performs a non-streaming completion request.
func (b *Backend) Generate(ctx context.Context, req genprovider.GenerateRequest) (string, error) {
	if !b.Reachable() {
		return "", genprovider.ErrUnavailable
	}

	input := make(responses.ResponseInputParam, 0, 2)
	if req.System != "" {
		input = append(input, responses.ResponseInputItemParamOfMessage(req.System, responses.EasyInputMessageRoleSystem))
	}
	input = append(input, responses.ResponseInputItemParamOfMessage(req.Prompt, responses.EasyInputMessageRoleUser))

	params := responses.ResponseNewParams{
		Model:           shared.ResponsesModel(b.cfg.Model),
		Input:           responses.ResponseNewParamsInputUnion{OfInputItemList: input},
		MaxOutputTokens: openai.Int(int64(b.cfg.MaxTokens)),
	}
	if b.cfg.Temperature > 0 {
		params.Temperature = openai.Float(b.cfg.Temperature)
	}

	result, err := b.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}

	return result.OutputText(), nil
}
