// Package gemini implements the generation provider port for Google
// Gemini via its REST generateContent endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/port/genprovider"
	"github.com/verdealab/ceres/internal/resilience"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com"
	defaultModel     = "gemini-2.0-flash"
	defaultMaxTokens = 2048
)

func init() {
	genprovider.Register(routing.ProviderGemini, func(cfg genprovider.Config) (genprovider.Backend, error) {
		return NewBackend(cfg), nil
	})
}

// Backend talks to the Gemini REST API.
type Backend struct {
	cfg        genprovider.Config
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewBackend creates a Gemini backend from the given config.
func NewBackend(cfg genprovider.Config) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Backend{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (b *Backend) SetBreaker(br *resilience.Breaker) {
	b.breaker = br
}

func (b *Backend) Name() routing.Provider { return routing.ProviderGemini }

func (b *Backend) Reachable() bool { return b.cfg.APIKey != "" }

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate performs a non-streaming generateContent request.
func (b *Backend) Generate(ctx context.Context, req genprovider.GenerateRequest) (string, error) {
	if !b.Reachable() {
		return "", genprovider.ErrUnavailable
	}

	payload := generateRequest{
		Contents: []content{{Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: &generationConfig{
			MaxOutputTokens: b.cfg.MaxTokens,
			Temperature:     b.cfg.Temperature,
		},
	}
	if req.System != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gemini marshal: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", b.cfg.BaseURL, b.cfg.Model)

	resp, err := b.doRequest(ctx, url, body)
	if err != nil {
		return "", err
	}

	var result generateResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("gemini unmarshal: %w", err)
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("gemini: empty candidate list")
	}

	var out string
	for _, p := range result.Candidates[0].Content.Parts {
		out += p.Text
	}
	return out, nil
}

func (b *Backend) doRequest(ctx context.Context, url string, body []byte) ([]byte, error) {
	call := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gemini request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", b.cfg.APIKey)

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("gemini call: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gemini read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, truncate(data, 200))
		}
		return data, nil
	}

	if b.breaker == nil {
		return call()
	}

	var data []byte
	err := b.breaker.Execute(func() error {
		var callErr error
		data, callErr = call()
		return callErr
	})
	return data, err
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
