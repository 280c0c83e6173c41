package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Ryanakml/pdf-chatbots/config"
)

// answerFields lists the response keys that may carry the answer, in order
// of preference.
var answerFields = []string{"response", "result", "summary", "output", "text", "answer"}

const maxErrorBody = 4096

type httpClient struct {
	url    string
	apiKey string
	client *http.Client
}

type httpCompletionRequest struct {
	Text   string `json:"text"`
	ChatID string `json:"chatId,omitempty"`
}

// NewHTTPClient talks to a service that accepts {"text", "chatId"} and
// replies with a JSON object holding the answer under one of answerFields.
func NewHTTPClient(opts Options) (Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		return nil, &config.ValidationError{Problems: []string{"LLAMA_API_BASE_URL is required for the http llm provider"}}
	}
	path := opts.Path
	if path == "" {
		path = "/summarize"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return &httpClient{
		url:    base + path,
		apiKey: opts.APIKey,
		client: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

func (c *httpClient) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(httpCompletionRequest{
		Text:   flattenMessages(req.Messages),
		ChatID: req.ChatID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call completion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return "", &ServiceError{StatusCode: resp.StatusCode, Body: msg}
	}

	var parsed map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}

	return DecodeAnswer(parsed)
}

// DecodeAnswer returns the first non-empty string among answerFields.
func DecodeAnswer(payload map[string]any) (string, error) {
	for _, field := range answerFields {
		if s, ok := payload[field].(string); ok && strings.TrimSpace(s) != "" {
			return s, nil
		}
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "", fmt.Errorf("%w (fields: %s)", ErrNoAnswer, strings.Join(keys, ", "))
}

// flattenMessages renders a conversation as one prompt string for services
// that only accept plain text.
func flattenMessages(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		if content := strings.TrimSpace(msg.Content); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n")
}
