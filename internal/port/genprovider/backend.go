// Package genprovider defines the generation provider port (interface)
// and its factory registry.
package genprovider

import (
	"context"
	"errors"

	"github.com/verdealab/ceres/internal/domain/routing"
)

// ErrUnavailable indicates a provider has no usable configuration or
// credentials. It is only used internally to prune routing candidates and
// is never surfaced to end callers.
var ErrUnavailable = errors.New("provider unavailable")

// Config is the closed per-provider option set. Fields a given provider
// does not use are simply ignored by its adapter.
type Config struct {
	APIKey      string  // credential; empty means unreachable
	BaseURL     string  // override for the provider endpoint
	Model       string  // model identifier (adapter default when empty)
	MaxTokens   int     // output token cap (adapter default when 0)
	Temperature float64 // sampling temperature (adapter default when 0)
	VoiceID     string  // speech synthesis voice (voice providers only)
}

// GenerateRequest is one prompt submitted to a provider.
type GenerateRequest struct {
	Prompt   string
	System   string
	Category routing.Category
}

// Backend is the port interface for one generation provider.
type Backend interface {
	// Name returns the provider identifier this backend serves.
	Name() routing.Provider

	// Reachable reports whether the backend has usable configuration and
	// credentials. Computed from config, not probed per request.
	Reachable() bool

	// Generate submits a prompt and returns the generated text. A
	// failure here is absorbed by the fallback executor, never surfaced
	// past it.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
