// Package elevenlabs implements the generation provider port for
// ElevenLabs speech synthesis. Audio bytes are returned base64-encoded so
// the result flows through the same text pipeline as every other provider.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
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
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	defaultModel   = "eleven_multilingual_v2"
)

func init() {
	genprovider.Register(routing.ProviderElevenLabs, func(cfg genprovider.Config) (genprovider.Backend, error) {
		return NewBackend(cfg), nil
	})
}

// Backend talks to the ElevenLabs text-to-speech API.
type Backend struct {
	cfg        genprovider.Config
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewBackend creates an ElevenLabs backend from the given config.
func NewBackend(cfg genprovider.Config) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = defaultVoiceID
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	return &Backend{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (b *Backend) SetBreaker(br *resilience.Breaker) {
	b.breaker = br
}

func (b *Backend) Name() routing.Provider { return routing.ProviderElevenLabs }

func (b *Backend) Reachable() bool { return b.cfg.APIKey != "" }

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Generate synthesizes speech for the prompt and returns the audio as a
// base64 data payload.
func (b *Backend) Generate(ctx context.Context, req genprovider.GenerateRequest) (string, error) {
	if !b.Reachable() {
		return "", genprovider.ErrUnavailable
	}

	body, err := json.Marshal(ttsRequest{Text: req.Prompt, ModelID: b.cfg.Model})
	if err != nil {
		return "", fmt.Errorf("elevenlabs marshal: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", b.cfg.BaseURL, b.cfg.VoiceID)

	audio, err := b.doRequest(ctx, url, body)
	if err != nil {
		return "", err
	}

	return "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString(audio), nil
}

func (b *Backend) doRequest(ctx context.Context, url string, body []byte) ([]byte, error) {
	call := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("elevenlabs request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("xi-api-key", b.cfg.APIKey)

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs call: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs read body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("elevenlabs status %d", resp.StatusCode)
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
