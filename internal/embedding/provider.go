package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Provider generates embeddings from text.
type Provider interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) (Embedding, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}

// Checker is implemented by providers that can report whether their backend
// is reachable.
type Checker interface {
	Available(ctx context.Context) error
}

// Provider names accepted by NewProvider.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// ErrMissingAPIKey is returned when a hosted provider has no API key.
var ErrMissingAPIKey = errors.New("embedding API key is required")

// Settings selects and configures a provider.
type Settings struct {
	Provider   string
	Model      string // empty for the provider default
	BaseURL    string // empty for the provider default
	APIKey     string
	Dimensions int
}

// NewProvider builds the provider named by s.Provider.
func NewProvider(s Settings) (Provider, error) {
	dims := s.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	switch s.Provider {
	case "", ProviderOllama:
		opts := []OllamaOption{WithDimensions(dims)}
		if s.Model != "" {
			opts = append(opts, WithModel(s.Model))
		}
		if s.BaseURL != "" {
			opts = append(opts, WithBaseURL(s.BaseURL))
		}
		return NewOllamaProvider(opts...), nil

	case ProviderOpenAI:
		if s.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		opts := []OpenAIOption{WithOpenAIDimensions(dims)}
		if s.Model != "" {
			opts = append(opts, WithOpenAIModel(s.Model))
		}
		if s.BaseURL != "" {
			opts = append(opts, WithOpenAIBaseURL(s.BaseURL))
		}
		return NewOpenAIProvider(s.APIKey, opts...), nil
	}

	return nil, fmt.Errorf("unknown embedding provider %q", s.Provider)
}

// EmbedOrZero embeds text and never fails: any provider error, or a vector
// of the wrong dimension, yields ZeroVector(p.Dimensions()). The second
// return value reports whether the fallback was used.
func EmbedOrZero(ctx context.Context, p Provider, text string) ([]float32, bool) {
	dims := p.Dimensions()
	e, err := p.Embed(ctx, text)
	if err == nil && e.Dimensions() == dims {
		return e.Vector, false
	}

	if err == nil {
		err = fmt.Errorf("got %d dimensions, want %d", e.Dimensions(), dims)
	}
	slog.WarnContext(ctx, "embedding failed, storing zero vector",
		"model", p.ModelName(), "dimensions", dims, "error", err)
	return ZeroVector(dims), true
}
