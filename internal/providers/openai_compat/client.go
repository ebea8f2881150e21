package openai_compat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"bouwsite/internal/providers"
)

// FallbackText is returned when a 2xx response carries no message content.
const FallbackText = "Sorry, ik kon geen antwoord genereren. Probeer het later opnieuw."

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
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return providers.ChatResponse{}, err
	}

	body, err := providers.PostJSON(ctx, c.cfg.HTTPClient, endpointURL, c.cfg.APIKey, buildPayload(req))
	if err != nil {
		return providers.ChatResponse{}, err
	}
	text, err := parseChatCompletions(body)
	if err != nil {
		return providers.ChatResponse{}, err
	}
	return providers.ChatResponse{Text: text}, nil
}

type chatPayload struct {
	Model       string              `json:"model"`
	Messages    []providers.Message `json:"messages"`
	Temperature float64             `json:"temperature"`
	MaxTokens   int                 `json:"max_tokens"`
	Stream      bool                `json:"stream"`
}

func buildPayload(req providers.ChatRequest) chatPayload {
	p := chatPayload{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if p.Temperature <= 0 {
		p.Temperature = providers.DefaultTemperature
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = providers.DefaultMaxTokens
	}
	if p.Messages == nil {
		p.Messages = []providers.Message{}
	}
	return p
}

// buildEndpointURL appends /chat/completions unless the base already ends
// with it.
func (c *Client) buildEndpointURL() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		return "", fmt.Errorf("base url is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, "/chat/completions") {
		path += "/chat/completions"
	}
	u.Path = path
	return u.String(), nil
}

func parseChatCompletions(body []byte) (string, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return FallbackText, nil
	}
	if content := anyToText(resp.Choices[0].Message.Content); strings.TrimSpace(content) != "" {
		return content, nil
	}
	return FallbackText, nil
}

func anyToText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				if txt, ok := m["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}
