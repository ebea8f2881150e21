package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"

	"bouwsite/internal/store"
)

type fakeSender struct {
	chatID int64
	text   string
	err    error
}

func (f *fakeSender) SendMessageWithContext(_ context.Context, chatID int64, text string, _ *gotgbot.SendMessageOpts) (*gotgbot.Message, error) {
	f.chatID = chatID
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return &gotgbot.Message{Text: text}, nil
}

func testLead() store.Lead {
	return store.Lead{
		ID:      "l1",
		Name:    "Jan Peeters",
		Email:   "jan@example.be",
		Phone:   "0470 12 34 56",
		Project: "Gevelrenovatie",
		Message: "Graag een offerte voor onze gevel.",
		Date:    time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
		Status:  store.LeadNew,
	}
}

func TestFormatLead(t *testing.T) {
	got := FormatLead(testLead())
	for _, want := range []string{
		"Naam: Jan Peeters",
		"Email: jan@example.be",
		"Telefoon: 0470 12 34 56",
		"Project: Gevelrenovatie",
		"Datum: 2026-04-02 09:30",
		"Graag een offerte voor onze gevel.",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}

	bare := FormatLead(store.Lead{Name: "A", Email: "a@b.be"})
	if strings.Contains(bare, "Telefoon") || strings.Contains(bare, "Project") {
		t.Fatalf("empty fields should be omitted:\n%s", bare)
	}
}

func TestTelegramNotifyLead(t *testing.T) {
	s := &fakeSender{}
	n := NewTelegram(s, -100123)
	if err := n.NotifyLead(context.Background(), testLead()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if s.chatID != -100123 || !strings.Contains(s.text, "Jan Peeters") {
		t.Fatalf("unexpected send chat=%d text=%q", s.chatID, s.text)
	}

	s.err = errors.New("boom")
	if err := n.NotifyLead(context.Background(), testLead()); err == nil {
		t.Fatalf("expected error")
	}
}
