// Package assistant turns a chat history into one provider call using the
// currently stored AI settings.
package assistant

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"bouwsite/internal/metrics"
	"bouwsite/internal/providers"
	"bouwsite/internal/providers/registry"
	"bouwsite/internal/store"
)

// SettingsSource is satisfied by *store.SettingsStore.
type SettingsSource interface {
	Get(ctx context.Context) (store.Settings, error)
}

type Config struct {
	Settings   SettingsSource
	DemoAPIKey string
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

type Adapter struct {
	settings   SettingsSource
	demoAPIKey string
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

func New(cfg Config) *Adapter {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Adapter{
		settings:   cfg.Settings,
		demoAPIKey: cfg.DemoAPIKey,
		httpClient: providers.DefaultClient(cfg.HTTPClient),
		logger:     cfg.Logger,
		metrics:    m,
	}
}

// SendMessage issues exactly one request to the active provider. The full
// system prompt goes first, followed by history in order. Cancellation of
// ctx is returned as an error satisfying providers.IsCanceled.
func (a *Adapter) SendMessage(ctx context.Context, history []providers.Message) (string, error) {
	st, err := a.settings.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("load settings: %w", err)
	}

	target, err := registry.TargetFor(st.ActiveProvider, st.Active(), a.demoAPIKey)
	if err != nil {
		return "", err
	}
	p, err := registry.Build(target, a.httpClient)
	if err != nil {
		return "", fmt.Errorf("build provider: %w", err)
	}

	msgs := make([]providers.Message, 0, len(history)+1)
	msgs = append(msgs, providers.Message{Role: "system", Content: st.FullSystemPrompt()})
	msgs = append(msgs, history...)

	name := string(target.Name())
	a.metrics.ChatRequests.WithLabelValues(name).Inc()
	resp, err := p.Chat(ctx, providers.ChatRequest{
		Model:       target.ModelID(),
		Messages:    msgs,
		MaxTokens:   providers.DefaultMaxTokens,
		Temperature: providers.DefaultTemperature,
	})
	if err != nil {
		if !providers.IsCanceled(err) {
			a.metrics.ChatFailures.WithLabelValues(name).Inc()
			a.logger.Warn().Err(err).Str("provider", name).Str("model", target.ModelID()).Msg("chat provider call failed")
		}
		return "", err
	}
	return resp.Text, nil
}
