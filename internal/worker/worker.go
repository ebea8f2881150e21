package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bouwsite/internal/metrics"
	"bouwsite/internal/notify"
	"bouwsite/internal/queue"
	"bouwsite/internal/store"
)

// LeadSource is satisfied by *store.LeadStore.
type LeadSource interface {
	Get(ctx context.Context, id string) (store.Lead, error)
}

type Worker struct {
	leads         LeadSource
	queue         *queue.StreamQueue
	dedupe        *queue.Deduplicator
	notifier      notify.Notifier
	maxJobRetries int
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	Leads         LeadSource
	Queue         *queue.StreamQueue
	Dedupe        *queue.Deduplicator
	Notifier      notify.Notifier
	MaxJobRetries int
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Worker {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.MaxJobRetries < 0 {
		cfg.MaxJobRetries = 0
	}
	return &Worker{
		leads:         cfg.Leads,
		queue:         cfg.Queue,
		dedupe:        cfg.Dedupe,
		notifier:      cfg.Notifier,
		maxJobRetries: cfg.MaxJobRetries,
		logger:        cfg.Logger,
		metrics:       m,
	}
}

// Start blocks until ctx is done, running concurrency consumers.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}

	wg := sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.consumeLoop(ctx, slot)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (w *Worker) consumeLoop(ctx context.Context, slot int) {
	log := w.logger.With().Int("slot", slot).Logger()
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		messages, err := w.queue.Read(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to read queue")
			time.Sleep(1 * time.Second)
			continue
		}

		for _, msg := range messages {
			w.handle(ctx, log, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, log zerolog.Logger, msg queue.Message) {
	if msg.Err != nil {
		w.metrics.NotifyFailed.Inc()
		log.Error().Err(msg.Err).Str("msg_id", msg.ID).Msg("dropping undecodable notify job")
		if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
			log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack invalid message")
		}
		return
	}

	err := w.processJob(ctx, msg.Job)
	if err == nil {
		if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
			log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack message")
		}
		return
	}

	w.metrics.NotifyFailed.Inc()
	log.Error().Err(err).Str("job_id", msg.Job.JobID).Str("lead_id", msg.Job.LeadID).Int("attempt", msg.Job.Attempts).Msg("notify job failed")

	if msg.Job.Attempts < w.maxJobRetries {
		msg.Job.Attempts++
		if _, enqueueErr := w.queue.Enqueue(ctx, msg.Job); enqueueErr != nil {
			log.Error().Err(enqueueErr).Str("job_id", msg.Job.JobID).Msg("failed to re-enqueue failed job")
			return
		}
	} else {
		log.Error().Str("job_id", msg.Job.JobID).Str("lead_id", msg.Job.LeadID).Msg("dropping notify job after max retries")
	}
	if ackErr := w.queue.Ack(ctx, msg.ID); ackErr != nil {
		log.Error().Err(ackErr).Str("msg_id", msg.ID).Msg("failed to ack failed message")
	}
}

func (w *Worker) processJob(ctx context.Context, job queue.NotifyJob) error {
	lead, err := w.leads.Get(ctx, job.LeadID)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.Warn().Str("lead_id", job.LeadID).Msg("lead deleted before notification, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}

	dedupeKey := "lead:" + lead.ID
	if w.dedupe != nil {
		first, err := w.dedupe.MarkFirst(ctx, dedupeKey)
		if err != nil {
			return err
		}
		if !first {
			w.logger.Debug().Str("lead_id", lead.ID).Msg("lead already notified")
			return nil
		}
	}

	if err := w.notifier.NotifyLead(ctx, lead); err != nil {
		if w.dedupe != nil {
			if fErr := w.dedupe.Forget(ctx, dedupeKey); fErr != nil {
				w.logger.Error().Err(fErr).Str("lead_id", lead.ID).Msg("failed to clear dedupe key")
			}
		}
		return err
	}
	w.metrics.NotifySent.Inc()
	return nil
}
