package registry

import (
	"errors"
	"testing"

	"bouwsite/internal/providers"
	"bouwsite/internal/providers/edge_inference"
	"bouwsite/internal/providers/openai_compat"
	"bouwsite/internal/providers/raw_inference"
	"bouwsite/internal/store"
)

func TestTargetForSelectsFamily(t *testing.T) {
	cfg := store.ProviderConfig{APIKey: "k", Model: "m", BaseURL: "https://x", AccountID: "acc"}

	for _, name := range []store.ProviderName{store.ProviderNaga, store.ProviderOpenAI, store.ProviderGroq} {
		target, err := TargetFor(name, cfg, "")
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		oc, ok := target.(OpenAICompatible)
		if !ok || oc.Provider != name {
			t.Fatalf("%s: expected OpenAICompatible, got %#v", name, target)
		}
	}

	target, err := TargetFor(store.ProviderHuggingFace, cfg, "")
	if err != nil {
		t.Fatalf("huggingface: %v", err)
	}
	if _, ok := target.(RawInference); !ok {
		t.Fatalf("expected RawInference, got %#v", target)
	}

	target, err = TargetFor(store.ProviderCloudflare, cfg, "")
	if err != nil {
		t.Fatalf("cloudflare: %v", err)
	}
	edge, ok := target.(EdgeInference)
	if !ok || edge.AccountID != "acc" {
		t.Fatalf("expected EdgeInference with account, got %#v", target)
	}

	if _, err := TargetFor("bogus", cfg, ""); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestTargetForDemoKeyOnlyForNaga(t *testing.T) {
	cfg := store.ProviderConfig{Model: "m", BaseURL: "https://x"}

	naga, _ := TargetFor(store.ProviderNaga, cfg, "demo")
	if naga.(OpenAICompatible).APIKey != "demo" {
		t.Fatalf("naga should use demo key, got %#v", naga)
	}
	if _, err := TargetFor(store.ProviderOpenAI, cfg, "demo"); !errors.Is(err, providers.ErrMissingAPIKey) {
		t.Fatalf("openai must not use demo key, got %v", err)
	}

	cfg.APIKey = "own"
	naga, _ = TargetFor(store.ProviderNaga, cfg, "demo")
	if naga.(OpenAICompatible).APIKey != "own" {
		t.Fatalf("stored key should win over demo key")
	}
}

func TestTargetForRequiresModel(t *testing.T) {
	for _, name := range store.Providers {
		_, err := TargetFor(name, store.ProviderConfig{APIKey: "k", Model: "  ", AccountID: "acc"}, "demo")
		if !errors.Is(err, providers.ErrMissingModel) {
			t.Fatalf("%s: expected ErrMissingModel, got %v", name, err)
		}
	}

	_, err := TargetFor(store.ProviderNaga, store.ProviderConfig{}, "")
	if !errors.Is(err, providers.ErrMissingAPIKey) {
		t.Fatalf("naga without any key: expected ErrMissingAPIKey, got %v", err)
	}
}

func TestBuildDispatch(t *testing.T) {
	p, err := Build(OpenAICompatible{Provider: store.ProviderGroq, BaseURL: "https://x", APIKey: "k", Model: "m"}, nil)
	if err != nil {
		t.Fatalf("build openai: %v", err)
	}
	if _, ok := p.(*openai_compat.Client); !ok {
		t.Fatalf("unexpected client %T", p)
	}

	p, err = Build(RawInference{BaseURL: "https://x", APIKey: "k", Model: "m"}, nil)
	if err != nil {
		t.Fatalf("build raw: %v", err)
	}
	if _, ok := p.(*raw_inference.Client); !ok {
		t.Fatalf("unexpected client %T", p)
	}

	p, err = Build(EdgeInference{BaseURL: "https://x", APIKey: "k", Model: "m", AccountID: "a"}, nil)
	if err != nil {
		t.Fatalf("build edge: %v", err)
	}
	if _, ok := p.(*edge_inference.Client); !ok {
		t.Fatalf("unexpected client %T", p)
	}

	if _, err := Build(nil, nil); err == nil {
		t.Fatalf("expected error for nil target")
	}
}
