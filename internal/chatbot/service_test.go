package chatbot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bouwsite/internal/providers"
	"bouwsite/internal/storage"
	"bouwsite/internal/store"
)

type assistantFunc func(ctx context.Context, history []providers.Message) (string, error)

func (f assistantFunc) SendMessage(ctx context.Context, history []providers.Message) (string, error) {
	return f(ctx, history)
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, time.Time) (bool, int64, time.Time, error) {
	return false, 31, time.Time{}, nil
}

func newTestService(t *testing.T, a Assistant) (*Service, *store.Stores) {
	t.Helper()
	db, err := storage.Open(context.Background(), "sqlite", "file:"+filepath.Join(t.TempDir(), "chat.db"), true)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	stores := store.New(store.Options{Backend: db, Logger: zerolog.Nop()}, nil, 1<<20)
	svc := New(Config{
		Sessions:     stores.Sessions,
		Assistant:    a,
		CompanyPhone: "+32 3 123 45 67",
		CompanyEmail: "info@bouwsite.be",
		Logger:       zerolog.Nop(),
	})
	return svc, stores
}

func TestSendStoresExchange(t *testing.T) {
	var got []providers.Message
	svc, stores := newTestService(t, assistantFunc(func(_ context.Context, h []providers.Message) (string, error) {
		got = h
		return "Hoi daar", nil
	}))
	ctx := context.Background()

	cs, err := svc.StartSession(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	reply, err := svc.Send(ctx, cs.ID, "1.2.3.4", "Hallo")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Failed || reply.Message.Content != "Hoi daar" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if len(got) != 1 || got[0].Role != "user" || got[0].Content != "Hallo" {
		t.Fatalf("unexpected history sent to assistant %+v", got)
	}

	sessions, err := stores.Sessions.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	s := sessions[0]
	if len(s.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(s.Messages))
	}
	if s.Messages[0].Role != store.RoleUser || s.Messages[0].Content != "Hallo" {
		t.Fatalf("unexpected first message %+v", s.Messages[0])
	}
	if s.Messages[1].Role != store.RoleAssistant || s.Messages[1].Content != "Hoi daar" {
		t.Fatalf("unexpected second message %+v", s.Messages[1])
	}
	if s.LastMessageTime.Before(reply.Message.Timestamp) || !s.LastMessageTime.After(cs.StartTime) {
		t.Fatalf("last message time not updated: start=%s last=%s", cs.StartTime, s.LastMessageTime)
	}
	if s.Preview != "Hallo" {
		t.Fatalf("unexpected preview %q", s.Preview)
	}
}

func TestSendProviderErrorWritesApology(t *testing.T) {
	svc, stores := newTestService(t, assistantFunc(func(context.Context, []providers.Message) (string, error) {
		return "", &providers.StatusError{StatusCode: 500, Body: "boom"}
	}))
	ctx := context.Background()

	cs, _ := svc.StartSession(ctx)
	reply, err := svc.Send(ctx, cs.ID, "v", "Hallo")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !reply.Failed || !strings.Contains(reply.Message.Content, "+32 3 123 45 67") || !strings.Contains(reply.Message.Content, "info@bouwsite.be") {
		t.Fatalf("unexpected fallback reply %+v", reply)
	}

	stored, err := stores.Sessions.Get(ctx, cs.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.Messages) != 2 || !stored.HasTag(ErrorTag) {
		t.Fatalf("expected apology stored and tagged, got %+v", stored)
	}
}

func TestSendProviderTimeoutStillStoresApology(t *testing.T) {
	svc, stores := newTestService(t, assistantFunc(func(ctx context.Context, _ []providers.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))
	cs, err := svc.StartSession(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	reply, err := svc.Send(ctx, cs.ID, "v", "Hallo")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !reply.Failed || !reply.Session.HasTag(ErrorTag) {
		t.Fatalf("expected tagged fallback reply, got %+v", reply)
	}

	stored, err := stores.Sessions.Get(context.Background(), cs.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.Messages) != 2 || stored.Messages[1].Role != store.RoleAssistant || !stored.HasTag(ErrorTag) {
		t.Fatalf("expected apology stored and tagged, got %+v", stored)
	}
}

func TestNewerSendCancelsPrevious(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	svc, stores := newTestService(t, assistantFunc(func(ctx context.Context, _ []providers.Message) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "Tweede antwoord", nil
	}))
	ctx := context.Background()
	cs, _ := svc.StartSession(ctx)

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, cs.ID, "v", "Eerste vraag")
		firstErr <- err
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("first send never reached the assistant")
	}

	reply, err := svc.Send(ctx, cs.ID, "v", "Tweede vraag")
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if reply.Message.Content != "Tweede antwoord" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if err := <-firstErr; !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled for first send, got %v", err)
	}

	stored, _ := stores.Sessions.Get(ctx, cs.ID)
	if len(stored.Messages) != 3 {
		t.Fatalf("expected two user messages and one answer, got %+v", stored.Messages)
	}
	if stored.HasTag(ErrorTag) {
		t.Fatalf("cancellation must not tag the session")
	}
}

func TestSendRateLimited(t *testing.T) {
	svc, _ := newTestService(t, assistantFunc(func(context.Context, []providers.Message) (string, error) {
		t.Fatalf("assistant must not be called")
		return "", nil
	}))
	svc.limiter = denyLimiter{}
	cs, _ := svc.StartSession(context.Background())

	if _, err := svc.Send(context.Background(), cs.ID, "v", "Hallo"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	svc, _ := newTestService(t, assistantFunc(func(context.Context, []providers.Message) (string, error) {
		return "ok", nil
	}))
	ctx := context.Background()
	cs, _ := svc.StartSession(ctx)

	if _, err := svc.Send(ctx, cs.ID, "v", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.Send(ctx, "missing", "v", "Hallo"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Close(ctx, cs.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Send(ctx, cs.ID, "v", "Hallo"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
