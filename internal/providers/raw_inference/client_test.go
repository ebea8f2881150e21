package raw_inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bouwsite/internal/providers"
)

func TestTranscript(t *testing.T) {
	got := Transcript([]providers.Message{
		{Role: "system", Content: "Wees kort."},
		{Role: "user", Content: "Hallo"},
		{Role: "assistant", Content: "Hoi"},
		{Role: "user", Content: "Prijs?"},
	})
	want := "System: Wees kort.\nUser: Hallo\nAssistant: Hoi\nUser: Prijs?\nAssistant:"
	if got != want {
		t.Fatalf("unexpected transcript:\n%q\nwant\n%q", got, want)
	}
}

func TestChatListAndObjectResponses(t *testing.T) {
	responses := []string{
		`[{"generated_text":" Goedemiddag!"}]`,
		`{"generated_text":"Goedemiddag!"}`,
	}
	for _, raw := range responses {
		var payload map[string]any
		var path string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&payload)
			_, _ = w.Write([]byte(raw))
		}))

		c := New(Config{BaseURL: srv.URL + "/models/", APIKey: "hf", HTTPClient: srv.Client()})
		resp, err := c.Chat(context.Background(), providers.ChatRequest{
			Model:    "mistralai/Mistral-7B-Instruct-v0.3",
			Messages: []providers.Message{{Role: "user", Content: "Hallo"}},
		})
		srv.Close()
		if err != nil {
			t.Fatalf("chat %s: %v", raw, err)
		}
		if resp.Text != "Goedemiddag!" {
			t.Fatalf("unexpected text %q for %s", resp.Text, raw)
		}
		if path != "/models/mistralai/Mistral-7B-Instruct-v0.3" {
			t.Fatalf("unexpected path %q", path)
		}
		if payload["inputs"] != "User: Hallo\nAssistant:" {
			t.Fatalf("unexpected inputs %#v", payload["inputs"])
		}
		params, _ := payload["parameters"].(map[string]any)
		if params["max_new_tokens"] != float64(500) || params["return_full_text"] != false {
			t.Fatalf("unexpected parameters %#v", params)
		}
	}
}
