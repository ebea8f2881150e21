// Package edge_inference calls account-scoped model runners of the form
// {base}/{account}/ai/run/{model}.
package edge_inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"bouwsite/internal/providers"
)

type Config struct {
	BaseURL    string
	APIKey     string
	AccountID  string
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
	if strings.TrimSpace(c.cfg.AccountID) == "" {
		return providers.ChatResponse{}, providers.ErrMissingAccountID
	}
	base := strings.TrimSuffix(strings.TrimSpace(c.cfg.BaseURL), "/")
	if base == "" {
		return providers.ChatResponse{}, fmt.Errorf("base url is empty")
	}
	endpoint := fmt.Sprintf("%s/%s/ai/run/%s", base, strings.TrimSpace(c.cfg.AccountID), strings.TrimPrefix(req.Model, "/"))

	msgs := req.Messages
	if msgs == nil {
		msgs = []providers.Message{}
	}
	body, err := providers.PostJSON(ctx, c.cfg.HTTPClient, endpoint, c.cfg.APIKey, map[string]any{"messages": msgs})
	if err != nil {
		return providers.ChatResponse{}, err
	}

	var resp struct {
		Result struct {
			Response string `json:"response"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return providers.ChatResponse{}, fmt.Errorf("decode edge inference response: %w", err)
	}
	return providers.ChatResponse{Text: resp.Result.Response}, nil
}
