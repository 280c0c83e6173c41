package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ryanakml/pdf-chatbots/config"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPEmbedderSendsConfiguredFields(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody map[string]string
	)
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"vector":[0.5,0.25,1]}`))
	})

	e, err := NewHTTPEmbedder(Options{
		BaseURL:       srv.URL + "/",
		Path:          "v1/embed",
		APIKey:        "secret",
		RequestField:  "input",
		ResponseField: "vector",
		Dimension:     3,
	})
	require.NoError(t, err)

	vec, err := EmbedOne(context.Background(), e, "line one\nline two")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.5, 0.25, 1}, vec)
	assert.Equal(t, "/v1/embed", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, map[string]string{"input": "line one line two"}, gotBody)
}

func TestHTTPEmbedderOmitsAuthWithoutKey(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"embedding":[1]}`))
	})

	e, err := NewHTTPEmbedder(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = EmbedOne(context.Background(), e, "hello")
	require.NoError(t, err)
}

func TestHTTPEmbedderMissingResponseField(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[1,2,3]}`))
	})

	e, err := NewHTTPEmbedder(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	vec, err := EmbedOne(context.Background(), e, "hello")
	assert.Nil(t, vec)

	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr), "expected ServiceError, got %v", err)
	assert.Contains(t, svcErr.Error(), `"embedding"`)
}

func TestHTTPEmbedderNullResponseField(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":null}`))
	})

	e, err := NewHTTPEmbedder(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = EmbedOne(context.Background(), e, "hello")
	var svcErr *ServiceError
	assert.True(t, errors.As(err, &svcErr))
}

func TestHTTPEmbedderNonArrayResponseField(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":"0.1,0.2"}`))
	})

	e, err := NewHTTPEmbedder(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = EmbedOne(context.Background(), e, "hello")
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Contains(t, svcErr.Error(), "not a number array")
}

func TestHTTPEmbedderNonSuccessStatus(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})

	e, err := NewHTTPEmbedder(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = EmbedOne(context.Background(), e, "hello")
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusServiceUnavailable, svcErr.StatusCode)
	assert.Contains(t, svcErr.Error(), "model not loaded")
}

func TestHTTPEmbedderDimensionMismatch(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
	})

	e, err := NewHTTPEmbedder(Options{BaseURL: srv.URL, Dimension: 3})
	require.NoError(t, err)

	_, err = EmbedOne(context.Background(), e, "hello")
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Contains(t, svcErr.Error(), "expected 3, got 2")
}

func TestHTTPEmbedderEmptyText(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0,0]}`))
	})

	e, err := NewHTTPEmbedder(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	vec, err := EmbedOne(context.Background(), e, "")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
}

func TestHTTPEmbedderRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPEmbedder(Options{})

	var cfgErr *config.ValidationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestOllamaEmbedder(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2]}`))
	})

	e := NewOllamaEmbedder(Options{OllamaHost: srv.URL, Model: "nomic-embed-text", Dimension: 2})
	vectors, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
}

func TestNewEmbedderDefaults(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingConfig{
			Provider:  config.ProviderOllama,
			Model:     "nomic-embed-text",
			Dimension: 3,
		},
		OllamaHost: "http://localhost:11434",
	}

	embedder, err := NewEmbedder(cfg)
	require.NoError(t, err)
	assert.NotNil(t, embedder)
}

func TestNewEmbedderOpenAIMissingKey(t *testing.T) {
	cfg := config.Config{
		Embeddings: config.EmbeddingConfig{
			Provider:  config.ProviderOpenAI,
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
	}

	_, err := NewEmbedder(cfg)
	assert.Error(t, err)
}

func TestNewEmbedderLeavesDimensionToIndex(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1,2]}`))
	})

	cfg := config.Default()
	cfg.Llama.BaseURL = srv.URL
	cfg.Embeddings.Dimension = 3

	e, err := NewEmbedder(cfg)
	require.NoError(t, err)

	vec, err := EmbedOne(context.Background(), e, "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
}
