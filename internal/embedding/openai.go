package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultOpenAIBaseURL points at OpenRouter's OpenAI-compatible API.
	DefaultOpenAIBaseURL = "https://openrouter.ai/api/v1"

	// DefaultOpenAIModel is the default hosted embedding model.
	DefaultOpenAIModel = "text-embedding-3-small"
)

// OpenAIProvider generates embeddings through any OpenAI-compatible
// embeddings endpoint.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*openAISettings)

type openAISettings struct {
	cfg        openai.ClientConfig
	model      string
	dimensions int
}

// WithOpenAIBaseURL sets the API base URL, e.g. https://api.openai.com/v1.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(s *openAISettings) {
		s.cfg.BaseURL = url
	}
}

// WithOpenAIModel sets the embedding model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(s *openAISettings) {
		s.model = model
	}
}

// WithOpenAIDimensions requests vectors of the given dimension.
func WithOpenAIDimensions(dims int) OpenAIOption {
	return func(s *openAISettings) {
		s.dimensions = dims
	}
}

// NewOpenAIProvider creates an embedding provider authenticated with apiKey.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	s := &openAISettings{
		cfg:        openai.DefaultConfig(apiKey),
		model:      DefaultOpenAIModel,
		dimensions: DefaultDimensions,
	}
	s.cfg.BaseURL = DefaultOpenAIBaseURL
	for _, opt := range opts {
		opt(s)
	}
	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(s.cfg),
		model:      s.model,
		dimensions: s.dimensions,
	}
}

// Embed generates an embedding for the given text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (Embedding, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{truncate(text)},
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: p.dimensions,
	})
	if err != nil {
		return Embedding{}, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return Embedding{}, fmt.Errorf("embeddings endpoint returned no data")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != p.dimensions {
		return Embedding{}, fmt.Errorf("unexpected embedding dimensions: got %d, want %d", len(vec), p.dimensions)
	}
	return Embedding{Vector: vec}, nil
}

// ModelName returns the name of the embedding model.
func (p *OpenAIProvider) ModelName() string {
	return p.model
}

// Dimensions returns the expected vector dimensions.
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}
