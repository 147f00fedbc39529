// Package llm sends classification prompts to a language model provider.
//
// A Provider performs exactly one text-completion request per call. The
// Client wraps a Provider with the retry policy, latency measurement and
// response normalization; adding a backend means adding a Provider, never
// touching the Client.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/timvw/risk-patrol/internal/model"
)

var (
	// ErrUnsupportedProvider is returned when the configured provider has no
	// implementation. It is a configuration error and never retried.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrMissingCredentials is returned when a provider has no API key.
	ErrMissingCredentials = errors.New("missing API credentials")
)

// Request is a single completion request.
type Request struct {
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// Completion is the raw provider output for one request.
type Completion struct {
	Text  string
	Usage model.TokenUsage
}

// Provider is the text-completion capability of one LLM backend.
type Provider interface {
	// Complete sends one request and returns the model's raw text.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Name returns the provider name (e.g., "anthropic", "openai").
	Name() string

	// Model returns the model name used for completions.
	Model() string
}

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	// Name is the provider: "anthropic" or "openai".
	Name string
	// BaseURL overrides the API endpoint.
	BaseURL string
	// APIKey is the API key.
	APIKey string
	// Model is the model name.
	Model string
	// ExtraHeaders are additional HTTP headers (e.g., "api-key" for Azure).
	ExtraHeaders map[string]string
}

// NewProvider returns the Provider named by cfg.Name.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "openai":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("%w %q (supported: anthropic, openai)", ErrUnsupportedProvider, cfg.Name)
	}
}
