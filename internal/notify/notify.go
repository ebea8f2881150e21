// Package notify announces new leads to the company.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/rs/zerolog"

	"bouwsite/internal/store"
)

type Notifier interface {
	NotifyLead(ctx context.Context, lead store.Lead) error
}

// Sender is the part of *gotgbot.Bot used here.
type Sender interface {
	SendMessageWithContext(ctx context.Context, chatId int64, text string, opts *gotgbot.SendMessageOpts) (*gotgbot.Message, error)
}

type Telegram struct {
	sender Sender
	chatID int64
}

func NewTelegram(sender Sender, chatID int64) *Telegram {
	return &Telegram{sender: sender, chatID: chatID}
}

func (t *Telegram) NotifyLead(ctx context.Context, lead store.Lead) error {
	_, err := t.sender.SendMessageWithContext(ctx, t.chatID, FormatLead(lead), &gotgbot.SendMessageOpts{
		LinkPreviewOptions: &gotgbot.LinkPreviewOptions{IsDisabled: true},
	})
	if err != nil {
		return fmt.Errorf("send telegram notification: %w", err)
	}
	return nil
}

// Log writes leads to the application log. Used when no bot is configured.
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) NotifyLead(_ context.Context, lead store.Lead) error {
	l.logger.Info().
		Str("lead_id", lead.ID).
		Str("name", lead.Name).
		Str("email", lead.Email).
		Str("project", lead.Project).
		Msg("new lead")
	return nil
}

// FormatLead renders a lead as a short plain-text message.
func FormatLead(lead store.Lead) string {
	var b strings.Builder
	b.WriteString("Nieuwe aanvraag via de website\n\n")
	fmt.Fprintf(&b, "Naam: %s\n", lead.Name)
	fmt.Fprintf(&b, "Email: %s\n", lead.Email)
	if lead.Phone != "" {
		fmt.Fprintf(&b, "Telefoon: %s\n", lead.Phone)
	}
	if lead.Project != "" {
		fmt.Fprintf(&b, "Project: %s\n", lead.Project)
	}
	if !lead.Date.IsZero() {
		fmt.Fprintf(&b, "Datum: %s\n", lead.Date.Format("2006-01-02 15:04"))
	}
	if msg := strings.TrimSpace(lead.Message); msg != "" {
		b.WriteString("\n")
		b.WriteString(truncateRunes(msg, 3000))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
