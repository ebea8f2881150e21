package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bouwsite/internal/events"
	"bouwsite/internal/secrets"
)

const (
	KeySettings = "settings"
	KeySessions = "chat_sessions"
	KeyPages    = "pages"
	KeyMedia    = "media"
	KeyLeads    = "leads"
)

// Stores bundles every collection; build it once at startup and pass it down.
type Stores struct {
	Settings *SettingsStore
	Sessions *SessionStore
	Pages    *PageStore
	Media    *MediaStore
	Leads    *LeadStore
}

func New(opts Options, sealer *secrets.Sealer, mediaMaxBytes int) *Stores {
	opts = opts.withDefaults()
	return &Stores{
		Settings: NewSettingsStore(opts, sealer),
		Sessions: &SessionStore{newCollection(opts, KeySessions, events.SessionsUpdated, func(s ChatSession) string { return s.ID })},
		Pages:    &PageStore{newCollection(opts, KeyPages, events.PagesUpdated, func(p Page) string { return p.ID })},
		Media:    NewMediaStore(opts, mediaMaxBytes),
		Leads:    &LeadStore{newCollection(opts, KeyLeads, events.LeadsUpdated, func(l Lead) string { return l.ID })},
	}
}

type SessionStore struct {
	*Collection[ChatSession]
}

const previewRunes = 60

// AppendMessages adds msgs to the session and bumps LastMessageTime to now,
// keeping it strictly increasing even if the clock does not move. The first
// user message becomes the preview.
func (s *SessionStore) AppendMessages(ctx context.Context, id string, now time.Time, msgs ...Message) (ChatSession, error) {
	return s.Update(ctx, id, func(cs *ChatSession) error {
		cs.Messages = append(cs.Messages, msgs...)
		if cs.Preview == "" {
			for _, m := range msgs {
				if m.Role == RoleUser {
					cs.Preview = preview(m.Content)
					break
				}
			}
		}
		if !now.After(cs.LastMessageTime) {
			now = cs.LastMessageTime.Add(time.Millisecond)
		}
		cs.LastMessageTime = now
		return nil
	})
}

func (s *SessionStore) AddTag(ctx context.Context, id, tag string) (ChatSession, error) {
	return s.Update(ctx, id, func(cs *ChatSession) error {
		if !cs.HasTag(tag) {
			cs.Tags = append(cs.Tags, tag)
		}
		return nil
	})
}

func (s *SessionStore) SetStatus(ctx context.Context, id string, status SessionStatus) (ChatSession, error) {
	return s.Update(ctx, id, func(cs *ChatSession) error {
		cs.Status = status
		return nil
	})
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return string(r[:previewRunes]) + "..."
}

type PageStore struct {
	*Collection[Page]
}

func (s *PageStore) BySlug(ctx context.Context, slug string) (Page, error) {
	pages, err := s.All(ctx)
	if err != nil {
		return Page{}, err
	}
	for _, p := range pages {
		if p.Slug == slug {
			return p, nil
		}
	}
	return Page{}, ErrNotFound
}

// MediaStore holds uploads inline as data URLs, so the serialized collection
// is capped. There is no eviction: once full, items must be deleted by hand.
type MediaStore struct {
	*Collection[MediaItem]
}

func NewMediaStore(opts Options, maxBytes int) *MediaStore {
	c := newCollection(opts, KeyMedia, events.MediaUpdated, func(m MediaItem) string { return m.ID })
	c.maxBytes = maxBytes
	return &MediaStore{c}
}

type LeadStore struct {
	*Collection[Lead]
}

func (s *LeadStore) SetStatus(ctx context.Context, id string, status LeadStatus) (Lead, error) {
	if !status.Valid() {
		return Lead{}, fmt.Errorf("invalid lead status %q", status)
	}
	return s.Update(ctx, id, func(l *Lead) error {
		l.Status = status
		return nil
	})
}
