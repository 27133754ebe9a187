package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAIServer(t *testing.T, vector []float32, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if captured != nil {
			json.NewDecoder(r.Body).Decode(captured)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": vector},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_Embed(t *testing.T) {
	var req map[string]any
	srv := newOpenAIServer(t, []float32{0.25, 0.5}, &req)

	p := NewOpenAIProvider("test-key", WithOpenAIBaseURL(srv.URL+"/v1"), WithOpenAIDimensions(2))
	e, err := p.Embed(context.Background(), "an abstract")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.25, 0.5}, e.Vector)
	assert.Equal(t, DefaultOpenAIModel, req["model"])
	assert.EqualValues(t, 2, req["dimensions"])
	assert.Equal(t, DefaultOpenAIModel, p.ModelName())
}

func TestOpenAIProvider_WrongDimensions(t *testing.T) {
	srv := newOpenAIServer(t, []float32{1, 2, 3}, nil)

	p := NewOpenAIProvider("test-key", WithOpenAIBaseURL(srv.URL+"/v1"), WithOpenAIDimensions(2))
	_, err := p.Embed(context.Background(), "text")
	assert.ErrorContains(t, err, "unexpected embedding dimensions")
}

func TestOpenAIProvider_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", WithOpenAIBaseURL(srv.URL+"/v1"))
	_, err := p.Embed(context.Background(), "text")
	assert.Error(t, err)
}
