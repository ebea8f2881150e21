package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bouwsite/internal/queue"
	"bouwsite/internal/store"
)

type mapLeads map[string]store.Lead

func (m mapLeads) Get(_ context.Context, id string) (store.Lead, error) {
	l, ok := m[id]
	if !ok {
		return store.Lead{}, store.ErrNotFound
	}
	return l, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	leads []string
	err   error
}

func (r *recordingNotifier) NotifyLead(_ context.Context, lead store.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.leads = append(r.leads, lead.ID)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.leads)
}

func newTestWorker(t *testing.T, n *recordingNotifier, maxRetries int) (*Worker, *queue.StreamQueue) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	q := queue.NewStreamQueue(rdb, "test:notify", "workers", "c1", 50*time.Millisecond)
	if err := q.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	w := New(Config{
		Leads:         mapLeads{"l1": {ID: "l1", Name: "Jan", Email: "jan@example.be"}},
		Queue:         q,
		Dedupe:        queue.NewDeduplicator(rdb, time.Hour),
		Notifier:      n,
		MaxJobRetries: maxRetries,
		Logger:        zerolog.Nop(),
	})
	return w, q
}

func TestProcessJobNotifiesOnce(t *testing.T) {
	n := &recordingNotifier{}
	w, _ := newTestWorker(t, n, 3)
	ctx := context.Background()

	if err := w.processJob(ctx, queue.NotifyJob{LeadID: "l1"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := w.processJob(ctx, queue.NotifyJob{LeadID: "l1"}); err != nil {
		t.Fatalf("process duplicate: %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("expected one notification, got %d", n.count())
	}
}

func TestProcessJobMissingLeadIsDropped(t *testing.T) {
	n := &recordingNotifier{}
	w, _ := newTestWorker(t, n, 3)
	if err := w.processJob(context.Background(), queue.NotifyJob{LeadID: "gone"}); err != nil {
		t.Fatalf("expected nil for deleted lead, got %v", err)
	}
	if n.count() != 0 {
		t.Fatalf("no notification expected")
	}
}

func TestFailedJobIsRetriedThenSucceeds(t *testing.T) {
	n := &recordingNotifier{err: errors.New("telegram down")}
	w, q := newTestWorker(t, n, 3)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, queue.NotifyJob{LeadID: "l1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msgs, err := q.Read(ctx, 1)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("read: %v (%d)", err, len(msgs))
	}
	w.handle(ctx, zerolog.Nop(), msgs[0])

	retry, err := q.Read(ctx, 1)
	if err != nil || len(retry) != 1 {
		t.Fatalf("expected re-enqueued job: %v (%d)", err, len(retry))
	}
	if retry[0].Job.Attempts != 1 || retry[0].Job.JobID != msgs[0].Job.JobID {
		t.Fatalf("unexpected retried job %+v", retry[0].Job)
	}

	n.mu.Lock()
	n.err = nil
	n.mu.Unlock()
	w.handle(ctx, zerolog.Nop(), retry[0])
	if n.count() != 1 {
		t.Fatalf("expected notification after retry, got %d", n.count())
	}
}

func TestInvalidJobIsDroppedWithoutRetry(t *testing.T) {
	n := &recordingNotifier{}
	w, q := newTestWorker(t, n, 3)
	ctx := context.Background()

	w.handle(ctx, zerolog.Nop(), queue.Message{ID: "0-1", Err: queue.ErrInvalidJob})

	if n.count() != 0 {
		t.Fatalf("no notification expected")
	}
	msgs, err := q.Read(ctx, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("invalid job must not be re-enqueued, got %+v", msgs)
	}
}

func TestStartConsumesQueue(t *testing.T) {
	n := &recordingNotifier{}
	w, q := newTestWorker(t, n, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, 2) }()

	if _, err := q.Enqueue(context.Background(), queue.NotifyJob{LeadID: "l1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for n.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("start: %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("expected one notification, got %d", n.count())
	}
}
