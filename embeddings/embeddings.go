package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/Ryanakml/pdf-chatbots/config"
)

// Embedder turns texts into vectors. Implementations return exactly one vector
// per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Provider  string
	Model     string
	Dimension int

	BaseURL       string
	Path          string
	APIKey        string
	RequestField  string
	ResponseField string
	RateLimit     float64
	Timeout       time.Duration

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// NewEmbedder builds the configured provider. The returned embedder does not
// check vector length; the vector index rejects mismatched vectors at upsert.
func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		BaseURL:       cfg.Llama.BaseURL,
		Path:          cfg.Llama.EmbedPath,
		APIKey:        cfg.Llama.APIKey,
		RequestField:  cfg.Llama.RequestField,
		ResponseField: cfg.Llama.ResponseField,
		RateLimit:     cfg.Embeddings.RateLimit,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderHTTP, "":
		return NewHTTPEmbedder(opts)
	case config.ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, &config.ValidationError{Problems: []string{"openai provider selected but OPENAI_API_KEY not set"}}
		}
		return NewOpenAIEmbedder(opts), nil
	default:
		return nil, &config.ValidationError{Problems: []string{fmt.Sprintf("unknown embedding provider: %s", opts.Provider)}}
	}
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, &ServiceError{Err: fmt.Errorf("expected 1 vector, got %d", len(vectors))}
	}
	return vectors[0], nil
}

// ServiceError is returned for any failed call to an embedding service:
// transport errors, non-success status codes and malformed bodies. Callers
// decide whether to retry.
type ServiceError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	provider := e.Provider
	if provider == "" {
		provider = "embedding"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s embedding service returned status %d: %v", provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s embedding service: %v", provider, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func checkDimension(provider string, expected int, vec []float32) error {
	if expected > 0 && len(vec) != expected {
		return &ServiceError{
			Provider: provider,
			Err:      fmt.Errorf("embedding dimension mismatch: expected %d, got %d", expected, len(vec)),
		}
	}
	return nil
}
