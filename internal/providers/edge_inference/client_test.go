package edge_inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"bouwsite/internal/providers"
)

func TestChatRequiresAccountID(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "cf", HTTPClient: srv.Client()})
	_, err := c.Chat(context.Background(), providers.ChatRequest{Model: "@cf/meta/llama"})
	if !errors.Is(err, providers.ErrMissingAccountID) {
		t.Fatalf("expected ErrMissingAccountID, got %v", err)
	}
	if !strings.Contains(err.Error(), "Account ID") {
		t.Fatalf("error should mention Account ID: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("no request expected")
	}
}

func TestChatRequiresModel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "cf", AccountID: "acc", HTTPClient: srv.Client()})
	_, err := c.Chat(context.Background(), providers.ChatRequest{})
	if !errors.Is(err, providers.ErrMissingModel) {
		t.Fatalf("expected ErrMissingModel, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("no request expected")
	}
}

func TestChatPostsMessagesToAccountRunner(t *testing.T) {
	var path string
	var payload struct {
		Messages []providers.Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"result":{"response":"Dag!"},"success":true}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/accounts", APIKey: "cf", AccountID: "acc123", HTTPClient: srv.Client()})
	resp, err := c.Chat(context.Background(), providers.ChatRequest{
		Model:    "@cf/meta/llama-3.1-8b-instruct",
		Messages: []providers.Message{{Role: "user", Content: "Hallo"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "Dag!" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if path != "/accounts/acc123/ai/run/@cf/meta/llama-3.1-8b-instruct" {
		t.Fatalf("unexpected path %q", path)
	}
	if len(payload.Messages) != 1 || payload.Messages[0].Content != "Hallo" {
		t.Fatalf("unexpected messages %+v", payload.Messages)
	}
}
