package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"bouwsite/internal/events"
	"bouwsite/internal/secrets"
	"bouwsite/internal/storage"
)

const (
	defaultBotName      = "Bouwbot"
	defaultSystemPrompt = "Je bent de virtuele assistent van een Belgisch bouw- en renovatiebedrijf. " +
		"Je beantwoordt vragen over renovatie, gevelwerken, isolatie en nieuwbouw in het Nederlands, " +
		"vriendelijk en beknopt. Voor prijsoffertes verwijs je naar het contactformulier."
)

// DefaultSettings is what a fresh install starts with.
func DefaultSettings() Settings {
	return Settings{
		SchemaVersion:  CurrentSettingsVersion,
		ActiveProvider: ProviderNaga,
		Providers:      defaultProviders(),
		BotName:        defaultBotName,
		SystemPrompt:   defaultSystemPrompt,
		KnowledgeBase:  []KnowledgeDocument{},
	}
}

func defaultProviders() map[ProviderName]ProviderConfig {
	return map[ProviderName]ProviderConfig{
		ProviderNaga:        {Model: "gpt-4o-mini", BaseURL: "https://api.naga.ac/v1"},
		ProviderOpenAI:      {Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1"},
		ProviderGroq:        {Model: "llama-3.1-8b-instant", BaseURL: "https://api.groq.com/openai/v1"},
		ProviderHuggingFace: {Model: "mistralai/Mistral-7B-Instruct-v0.3", BaseURL: "https://api-inference.huggingface.co/models"},
		ProviderCloudflare:  {Model: "@cf/meta/llama-3.1-8b-instruct", BaseURL: "https://api.cloudflare.com/client/v4/accounts"},
	}
}

// SettingsStore holds the single settings document. API keys are sealed on
// write when a Sealer is configured.
type SettingsStore struct {
	opts   Options
	sealer *secrets.Sealer
	mu     sync.Mutex
}

func NewSettingsStore(opts Options, sealer *secrets.Sealer) *SettingsStore {
	return &SettingsStore{opts: opts.withDefaults(), sealer: sealer}
}

// Get returns the stored settings, or defaults when nothing usable is stored.
// Only backend failures are returned as errors.
func (s *SettingsStore) Get(ctx context.Context) (Settings, error) {
	st, _, err := s.load(ctx)
	return st, err
}

func (s *SettingsStore) load(ctx context.Context) (Settings, int64, error) {
	blob, err := s.opts.Backend.Load(ctx, KeySettings)
	if errors.Is(err, storage.ErrNotFound) {
		return DefaultSettings(), 0, nil
	}
	if err != nil {
		return Settings{}, 0, fmt.Errorf("read settings: %w", err)
	}

	st, err := decodeSettings(blob.Value)
	if err != nil {
		s.opts.Logger.Warn().Err(err).Int64("version", blob.Version).Msg("stored settings unreadable, using defaults")
		s.opts.Metrics.StoreCorruptReads.WithLabelValues(KeySettings).Inc()
		return DefaultSettings(), blob.Version, nil
	}

	for name, pc := range st.Providers {
		key, err := s.sealer.Open(pc.APIKey)
		if err != nil {
			s.opts.Logger.Error().Err(err).Str("provider", string(name)).Msg("cannot open stored api key")
			key = ""
		}
		pc.APIKey = key
		st.Providers[name] = pc
	}
	return st, blob.Version, nil
}

// Save overwrites the whole settings document.
func (s *SettingsStore) Save(ctx context.Context, st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, version, err := s.load(ctx)
	if err != nil {
		return err
	}
	return s.write(ctx, st, version)
}

// Update reads, applies fn and writes back under one lock.
func (s *SettingsStore) Update(ctx context.Context, fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, version, err := s.load(ctx)
	if err != nil {
		return Settings{}, err
	}
	if err := fn(&st); err != nil {
		return Settings{}, err
	}
	if err := s.write(ctx, st, version); err != nil {
		return Settings{}, err
	}
	return st, nil
}

func (s *SettingsStore) write(ctx context.Context, st Settings, version int64) error {
	st = normalizeSettings(st)
	out := st
	out.Providers = make(map[ProviderName]ProviderConfig, len(st.Providers))
	for name, pc := range st.Providers {
		sealed, err := s.sealer.Seal(pc.APIKey)
		if err != nil {
			return fmt.Errorf("seal %s api key: %w", name, err)
		}
		pc.APIKey = sealed
		out.Providers[name] = pc
	}

	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if _, err := s.opts.Backend.Put(ctx, KeySettings, b, version); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	s.opts.Metrics.StoreWrites.WithLabelValues(KeySettings).Inc()
	s.opts.Events.Publish(events.SettingsUpdated)
	return nil
}

// FullSystemPrompt is the exact system message sent to the chat provider.
func (s *SettingsStore) FullSystemPrompt(ctx context.Context) (string, error) {
	st, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return st.FullSystemPrompt(), nil
}

// FullSystemPrompt joins the base prompt, every knowledge document and the
// bot name directive.
func (s Settings) FullSystemPrompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.SystemPrompt))

	if len(s.KnowledgeBase) > 0 {
		b.WriteString("\n\nGebruik de volgende informatie uit de kennisbank om vragen te beantwoorden:")
		for _, doc := range s.KnowledgeBase {
			b.WriteString("\n\n--- ")
			b.WriteString(doc.Name)
			b.WriteString(" ---\n")
			b.WriteString(strings.TrimSpace(doc.Content))
		}
	}

	b.WriteString("\n\nJe naam is ")
	b.WriteString(s.BotName)
	b.WriteString(".")
	return b.String()
}

func normalizeSettings(st Settings) Settings {
	st.SchemaVersion = CurrentSettingsVersion
	defaults := defaultProviders()
	providers := make(map[ProviderName]ProviderConfig, len(defaults))
	for name, pc := range defaults {
		providers[name] = pc
	}
	for name, pc := range st.Providers {
		if name.Valid() {
			providers[name] = pc
		}
	}
	st.Providers = providers
	if !st.ActiveProvider.Valid() {
		st.ActiveProvider = ProviderNaga
	}
	if st.KnowledgeBase == nil {
		st.KnowledgeBase = []KnowledgeDocument{}
	}
	return st
}
