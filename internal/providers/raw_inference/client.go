// Package raw_inference talks to text-generation endpoints that take one
// prompt string instead of a message list.
package raw_inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"bouwsite/internal/providers"
)

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	cfg.HTTPClient = providers.DefaultClient(cfg.HTTPClient)
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return providers.ChatResponse{}, providers.ErrMissingAPIKey
	}
	if strings.TrimSpace(req.Model) == "" {
		return providers.ChatResponse{}, providers.ErrMissingModel
	}
	endpoint, err := c.endpoint(req.Model)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = providers.DefaultMaxTokens
	}
	payload := map[string]any{
		"inputs": Transcript(req.Messages),
		"parameters": map[string]any{
			"max_new_tokens":   maxTokens,
			"return_full_text": false,
		},
	}

	body, err := providers.PostJSON(ctx, c.cfg.HTTPClient, endpoint, c.cfg.APIKey, payload)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	text, err := extractText(body)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

func (c *Client) endpoint(model string) (string, error) {
	base := strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/")
	if base == "" {
		return "", fmt.Errorf("base url is empty")
	}
	if strings.TrimSpace(model) == "" {
		return "", fmt.Errorf("model is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	return base + "/" + strings.TrimPrefix(model, "/"), nil
}

// Transcript flattens messages into "Role: content" lines and ends with an
// "Assistant:" cue for the model to complete.
func Transcript(msgs []providers.Message) string {
	lines := make([]string, 0, len(msgs)+1)
	for _, m := range msgs {
		lines = append(lines, roleLabel(m.Role)+": "+m.Content)
	}
	lines = append(lines, "Assistant:")
	return strings.Join(lines, "\n")
}

func roleLabel(role string) string {
	switch role {
	case "system":
		return "System"
	case "assistant":
		return "Assistant"
	default:
		return "User"
	}
}

// extractText accepts both [{"generated_text": ...}] and {"generated_text": ...}.
func extractText(body []byte) (string, error) {
	type generation struct {
		GeneratedText string `json:"generated_text"`
	}

	var list []generation
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) == 0 {
			return "", fmt.Errorf("empty generation list in inference response")
		}
		return strings.TrimSpace(list[0].GeneratedText), nil
	}

	var single generation
	if err := json.Unmarshal(body, &single); err != nil {
		return "", fmt.Errorf("decode inference response: %w", err)
	}
	return strings.TrimSpace(single.GeneratedText), nil
}
