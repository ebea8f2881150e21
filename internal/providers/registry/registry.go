package registry

import (
	"fmt"
	"net/http"
	"strings"

	"bouwsite/internal/providers"
	"bouwsite/internal/providers/edge_inference"
	"bouwsite/internal/providers/openai_compat"
	"bouwsite/internal/providers/raw_inference"
	"bouwsite/internal/store"
)

// Target is a fully resolved provider selection. The set of implementations
// is closed: OpenAICompatible, RawInference and EdgeInference.
type Target interface {
	isTarget()
	Name() store.ProviderName
	ModelID() string
}

type OpenAICompatible struct {
	Provider store.ProviderName
	BaseURL  string
	APIKey   string
	Model    string
}

type RawInference struct {
	BaseURL string
	APIKey  string
	Model   string
}

type EdgeInference struct {
	BaseURL   string
	APIKey    string
	Model     string
	AccountID string
}

func (OpenAICompatible) isTarget() {}
func (RawInference) isTarget()     {}
func (EdgeInference) isTarget()    {}

func (t OpenAICompatible) Name() store.ProviderName { return t.Provider }
func (RawInference) Name() store.ProviderName       { return store.ProviderHuggingFace }
func (EdgeInference) Name() store.ProviderName      { return store.ProviderCloudflare }

func (t OpenAICompatible) ModelID() string { return t.Model }
func (t RawInference) ModelID() string     { return t.Model }
func (t EdgeInference) ModelID() string    { return t.Model }

// TargetFor maps a provider name and its stored config to a Target. The naga
// provider falls back to demoKey when no key is stored. A config without key
// or model is rejected before any client is built.
func TargetFor(name store.ProviderName, cfg store.ProviderConfig, demoKey string) (Target, error) {
	if !name.Valid() {
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if name == store.ProviderNaga && cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(demoKey)
	}
	if !cfg.Usable() {
		if cfg.APIKey == "" {
			return nil, providers.ErrMissingAPIKey
		}
		return nil, providers.ErrMissingModel
	}

	switch name {
	case store.ProviderNaga, store.ProviderOpenAI, store.ProviderGroq:
		return OpenAICompatible{Provider: name, BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model}, nil
	case store.ProviderHuggingFace:
		return RawInference{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model}, nil
	case store.ProviderCloudflare:
		return EdgeInference{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model, AccountID: strings.TrimSpace(cfg.AccountID)}, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}

// Build returns the client for target. httpClient may be nil.
func Build(target Target, httpClient *http.Client) (providers.Provider, error) {
	switch t := target.(type) {
	case OpenAICompatible:
		return openai_compat.New(openai_compat.Config{
			BaseURL:    t.BaseURL,
			APIKey:     t.APIKey,
			HTTPClient: httpClient,
		}), nil
	case RawInference:
		return raw_inference.New(raw_inference.Config{
			BaseURL:    t.BaseURL,
			APIKey:     t.APIKey,
			HTTPClient: httpClient,
		}), nil
	case EdgeInference:
		return edge_inference.New(edge_inference.Config{
			BaseURL:    t.BaseURL,
			APIKey:     t.APIKey,
			AccountID:  t.AccountID,
			HTTPClient: httpClient,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider target %T", target)
	}
}
