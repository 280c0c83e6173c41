package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ryanakml/pdf-chatbots/config"
)

const maxErrorBody = 2048

// httpEmbedder talks to a self-hosted model server with a configurable JSON
// shape: {<requestField>: text} in, {<responseField>: [numbers]} out.
type httpEmbedder struct {
	url           string
	apiKey        string
	requestField  string
	responseField string
	dimension     int
	limiter       *rate.Limiter
	client        *http.Client
}

func NewHTTPEmbedder(opts Options) (Embedder, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, &config.ValidationError{Problems: []string{"LLAMA_API_BASE_URL is not set"}}
	}

	path := opts.Path
	if path == "" {
		path = "/embed"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	requestField := opts.RequestField
	if requestField == "" {
		requestField = "text"
	}
	responseField := opts.ResponseField
	if responseField == "" {
		responseField = "embedding"
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	e := &httpEmbedder{
		url:           base + path,
		apiKey:        opts.APIKey,
		requestField:  requestField,
		responseField: responseField,
		dimension:     opts.Dimension,
		client:        &http.Client{Timeout: timeout},
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return e, nil
}

func (e *httpEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results = append(results, vec)
	}
	return results, nil
}

func (e *httpEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &ServiceError{Provider: config.ProviderHTTP, Err: fmt.Errorf("wait for rate limiter: %w", err)}
		}
	}

	reqBody, err := json.Marshal(map[string]string{
		e.requestField: strings.ReplaceAll(text, "\n", " "),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Provider: config.ProviderHTTP, Err: fmt.Errorf("call embed API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return nil, &ServiceError{
			Provider:   config.ProviderHTTP,
			StatusCode: resp.StatusCode,
			Err:        errors.New(msg),
		}
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &ServiceError{Provider: config.ProviderHTTP, Err: fmt.Errorf("decode embed response: %w", err)}
	}

	raw, ok := payload[e.responseField]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, &ServiceError{
			Provider: config.ProviderHTTP,
			Err:      fmt.Errorf("embed response missing %q array", e.responseField),
		}
	}

	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			err = fmt.Errorf("embed response field %q is not a number array", e.responseField)
		}
		return nil, &ServiceError{Provider: config.ProviderHTTP, Err: err}
	}

	vec := make([]float32, len(values))
	for i, value := range values {
		vec[i] = float32(value)
	}
	if err := checkDimension(config.ProviderHTTP, e.dimension, vec); err != nil {
		return nil, err
	}
	return vec, nil
}
