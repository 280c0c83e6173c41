// Package llm sends prompts to a completion service and returns the answer text.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ryanakml/pdf-chatbots/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNoAnswer is returned when a completion response carries no answer text.
var ErrNoAnswer = errors.New("completion response has no answer")

type Message struct {
	Role    string
	Content string
}

// Request is one completion call. ChatID is forwarded to services that keep
// per-conversation state.
type Request struct {
	ChatID   string
	Messages []Message
}

type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Options struct {
	Provider string
	Model    string

	BaseURL string
	Path    string
	APIKey  string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// ServiceError reports a completion service that answered with a non-success
// status.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("completion service returned status %d: %s", e.StatusCode, e.Body)
}

func NewClient(cfg config.Config) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		BaseURL:       cfg.Llama.BaseURL,
		Path:          cfg.Llama.ChatPath,
		APIKey:        cfg.Llama.APIKey,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderHTTP, "":
		return NewHTTPClient(opts)
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, &config.ValidationError{Problems: []string{"openai provider selected but OPENAI_API_KEY not set"}}
		}
		return NewOpenAIClient(opts), nil
	default:
		return nil, &config.ValidationError{Problems: []string{fmt.Sprintf("unknown llm provider: %s", opts.Provider)}}
	}
}
