package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidJob marks a stream entry that can never be processed.
var ErrInvalidJob = errors.New("invalid notify job")

// NotifyJob asks the worker to announce a new lead.
type NotifyJob struct {
	JobID      string    `json:"job_id"`
	LeadID     string    `json:"lead_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempts   int       `json:"attempts"`
}

func (j NotifyJob) Validate() error {
	if strings.TrimSpace(j.LeadID) == "" {
		return fmt.Errorf("%w: lead id is empty", ErrInvalidJob)
	}
	if j.Attempts < 0 {
		return fmt.Errorf("%w: negative attempts %d", ErrInvalidJob, j.Attempts)
	}
	return nil
}

// StreamQueue is a Redis stream consumed through one consumer group.
type StreamQueue struct {
	redis    *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
}

// Message is one stream entry. Err is set, wrapping ErrInvalidJob, when the
// payload cannot be decoded into a valid job; such entries still need an Ack.
type Message struct {
	ID  string
	Job NotifyJob
	Err error
}

func NewStreamQueue(rdb *redis.Client, stream, group, consumer string, block time.Duration) *StreamQueue {
	return &StreamQueue{
		redis:    rdb,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    block,
	}
}

func (q *StreamQueue) EnsureGroup(ctx context.Context) error {
	if q == nil {
		return fmt.Errorf("queue is nil")
	}
	err := q.redis.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create stream group: %w", err)
	}
	return nil
}

func (q *StreamQueue) Enqueue(ctx context.Context, job NotifyJob) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	if strings.TrimSpace(job.JobID) == "" {
		job.JobID = newJobID()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	id, err := q.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

func (q *StreamQueue) Read(ctx context.Context, count int64) ([]Message, error) {
	res, err := q.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    count,
		Block:    q.block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	out := make([]Message, 0)
	for _, s := range res {
		for _, m := range s.Messages {
			job, err := decodeJob(m.Values)
			out = append(out, Message{ID: m.ID, Job: job, Err: err})
		}
	}

	return out, nil
}

func decodeJob(values map[string]any) (NotifyJob, error) {
	var b []byte
	switch v := values["payload"].(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return NotifyJob{}, fmt.Errorf("%w: missing payload", ErrInvalidJob)
	}

	var job NotifyJob
	if err := json.Unmarshal(b, &job); err != nil {
		return NotifyJob{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if err := job.Validate(); err != nil {
		return job, err
	}
	return job, nil
}

func (q *StreamQueue) Ack(ctx context.Context, messageID string) error {
	if err := q.redis.XAck(ctx, q.stream, q.group, messageID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.redis.XDel(ctx, q.stream, messageID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func (q *StreamQueue) Consumer() string {
	return q.consumer
}

func newJobID() string {
	return uuid.NewString()
}
