package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	vector []float32
	err    error
	dims   int
}

func (s stubProvider) Embed(context.Context, string) (Embedding, error) {
	return Embedding{Vector: s.vector}, s.err
}
func (s stubProvider) ModelName() string { return "stub" }
func (s stubProvider) Dimensions() int   { return s.dims }

func TestEmbedOrZero(t *testing.T) {
	tests := []struct {
		name         string
		provider     stubProvider
		want         []float32
		wantFallback bool
	}{
		{"success", stubProvider{vector: []float32{1, 2, 3}, dims: 3}, []float32{1, 2, 3}, false},
		{"provider error", stubProvider{err: errors.New("unreachable"), dims: 3}, []float32{0, 0, 0}, true},
		{"dimension mismatch", stubProvider{vector: []float32{1, 2}, dims: 3}, []float32{0, 0, 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fallback := EmbedOrZero(context.Background(), tt.provider, "text")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantFallback, fallback)
		})
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Settings{})
	require.NoError(t, err)
	assert.IsType(t, &OllamaProvider{}, p)
	assert.Equal(t, DefaultDimensions, p.Dimensions())

	p, err = NewProvider(Settings{Provider: ProviderOllama, Model: "mxbai-embed-large", Dimensions: 1024})
	require.NoError(t, err)
	assert.Equal(t, "mxbai-embed-large", p.ModelName())
	assert.Equal(t, 1024, p.Dimensions())

	p, err = NewProvider(Settings{Provider: ProviderOpenAI, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)

	_, err = NewProvider(Settings{Provider: ProviderOpenAI})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewProvider(Settings{Provider: "word2vec"})
	assert.Error(t, err)
}
