// Package chatbot runs the website chat widget: sessions, message exchange
// with the assistant and the fallback reply when the provider fails.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bouwsite/internal/metrics"
	"bouwsite/internal/providers"
	"bouwsite/internal/store"
)

const ErrorTag = "Error"

// persistTimeout bounds writes that run after the request context is done.
const persistTimeout = 5 * time.Second

var (
	ErrCanceled      = errors.New("chat request canceled")
	ErrRateLimited   = errors.New("too many chat messages, try again later")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrSessionClosed = errors.New("chat session is closed")
)

// Assistant is satisfied by *assistant.Adapter.
type Assistant interface {
	SendMessage(ctx context.Context, history []providers.Message) (string, error)
}

// Limiter is satisfied by *queue.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, visitor string, now time.Time) (bool, int64, time.Time, error)
}

type Config struct {
	Sessions     *store.SessionStore
	Assistant    Assistant
	Limiter      Limiter
	CompanyPhone string
	CompanyEmail string
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

type Service struct {
	sessions  *store.SessionStore
	assistant Assistant
	limiter   Limiter
	phone     string
	email     string
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu       sync.Mutex
	seq      uint64
	inflight map[string]inflight
}

type inflight struct {
	token  uint64
	cancel context.CancelFunc
}

func New(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Service{
		sessions:  cfg.Sessions,
		assistant: cfg.Assistant,
		limiter:   cfg.Limiter,
		phone:     cfg.CompanyPhone,
		email:     cfg.CompanyEmail,
		now:       time.Now,
		logger:    cfg.Logger,
		metrics:   m,
		inflight:  map[string]inflight{},
	}
}

// Reply is the assistant message produced by Send. Failed marks the
// apology written in place of a provider answer.
type Reply struct {
	Session store.ChatSession `json:"session"`
	Message store.Message     `json:"message"`
	Failed  bool              `json:"failed"`
}

func (s *Service) StartSession(ctx context.Context) (store.ChatSession, error) {
	now := s.now().UTC()
	cs := store.ChatSession{
		ID:              store.NewID(),
		StartTime:       now,
		LastMessageTime: now,
		Messages:        []store.Message{},
		Status:          store.SessionActive,
		Tags:            []string{},
	}
	if err := s.sessions.Save(ctx, cs); err != nil {
		return store.ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	return cs, nil
}

// Send stores the visitor message, asks the assistant and stores its answer.
// A newer Send on the same session aborts this one; the aborted call returns
// ErrCanceled and writes nothing after the user message.
func (s *Service) Send(ctx context.Context, sessionID, visitor, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}
	if s.limiter != nil {
		allowed, _, _, err := s.limiter.Allow(ctx, visitor, s.now())
		if err != nil {
			s.logger.Error().Err(err).Str("visitor", visitor).Msg("rate limiter unavailable, allowing message")
		} else if !allowed {
			s.metrics.ChatRateLimited.Inc()
			return Reply{}, ErrRateLimited
		}
	}

	cs, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}
	if cs.Status == store.SessionClosed {
		return Reply{}, ErrSessionClosed
	}

	ctx, done := s.begin(ctx, sessionID)
	defer done()

	cs, err = s.sessions.AppendMessages(ctx, sessionID, s.now().UTC(), store.Message{
		ID:        store.NewID(),
		Role:      store.RoleUser,
		Content:   text,
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		return Reply{}, fmt.Errorf("save user message: %w", err)
	}

	answer, err := s.assistant.SendMessage(ctx, history(cs.Messages))
	if err != nil {
		if providers.IsCanceled(err) || errors.Is(ctx.Err(), context.Canceled) {
			return Reply{}, ErrCanceled
		}
		return s.fail(ctx, sessionID, err)
	}

	msg := store.Message{
		ID:        store.NewID(),
		Role:      store.RoleAssistant,
		Content:   answer,
		Timestamp: s.now().UTC(),
	}
	wctx, cancel := persistContext(ctx)
	defer cancel()
	cs, err = s.sessions.AppendMessages(wctx, sessionID, msg.Timestamp, msg)
	if err != nil {
		return Reply{}, fmt.Errorf("save assistant message: %w", err)
	}
	return Reply{Session: cs, Message: msg}, nil
}

func (s *Service) fail(ctx context.Context, sessionID string, cause error) (Reply, error) {
	s.logger.Warn().Err(cause).Str("session_id", sessionID).Msg("assistant failed, sending fallback reply")

	// A provider timeout also expires ctx; the apology must still be stored.
	ctx, cancel := persistContext(ctx)
	defer cancel()

	msg := store.Message{
		ID:        store.NewID(),
		Role:      store.RoleAssistant,
		Content:   s.apology(),
		Timestamp: s.now().UTC(),
	}
	if _, err := s.sessions.AppendMessages(ctx, sessionID, msg.Timestamp, msg); err != nil {
		return Reply{}, fmt.Errorf("save fallback message: %w", err)
	}
	cs, err := s.sessions.AddTag(ctx, sessionID, ErrorTag)
	if err != nil {
		return Reply{}, fmt.Errorf("tag session: %w", err)
	}
	return Reply{Session: cs, Message: msg, Failed: true}, nil
}

func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func (s *Service) apology() string {
	text := "Sorry, er ging iets mis bij het beantwoorden van je vraag."
	switch {
	case s.phone != "" && s.email != "":
		text += fmt.Sprintf(" Je kunt ons bellen op %s of mailen naar %s.", s.phone, s.email)
	case s.phone != "":
		text += fmt.Sprintf(" Je kunt ons bellen op %s.", s.phone)
	case s.email != "":
		text += fmt.Sprintf(" Je kunt ons mailen naar %s.", s.email)
	}
	return text
}

// Close marks the session closed and aborts a pending Send.
func (s *Service) Close(ctx context.Context, sessionID string) (store.ChatSession, error) {
	s.mu.Lock()
	if cur, ok := s.inflight[sessionID]; ok {
		cur.cancel()
		delete(s.inflight, sessionID)
	}
	s.mu.Unlock()
	return s.sessions.SetStatus(ctx, sessionID, store.SessionClosed)
}

// begin registers a cancellable call for sessionID, aborting the previous one.
func (s *Service) begin(parent context.Context, sessionID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	if prev, ok := s.inflight[sessionID]; ok {
		prev.cancel()
	}
	s.seq++
	token := s.seq
	s.inflight[sessionID] = inflight{token: token, cancel: cancel}
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if cur, ok := s.inflight[sessionID]; ok && cur.token == token {
			delete(s.inflight, sessionID)
		}
		s.mu.Unlock()
		cancel()
	}
}

func history(msgs []store.Message) []providers.Message {
	out := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, providers.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
