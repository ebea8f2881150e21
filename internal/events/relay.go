package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type wireEvent struct {
	Origin string `json:"origin"`
	Name   string `json:"name"`
}

// RedisRelay bridges a Bus to a redis pub/sub channel so admin views served
// by other processes see the same updates.
type RedisRelay struct {
	bus     *Bus
	redis   *redis.Client
	channel string
	origin  string
	out     chan string
	logger  zerolog.Logger
}

func NewRedisRelay(bus *Bus, rdb *redis.Client, channel string, logger zerolog.Logger) *RedisRelay {
	r := &RedisRelay{
		bus:     bus,
		redis:   rdb,
		channel: channel,
		origin:  uuid.NewString(),
		out:     make(chan string, 256),
		logger:  logger.With().Str("component", "events_relay").Logger(),
	}
	bus.OnLocal(func(ev Event) {
		select {
		case r.out <- ev.Name:
		default:
			r.logger.Warn().Str("event", ev.Name).Msg("relay buffer full, dropping event")
		}
	})
	return r
}

// Run subscribes to the channel and blocks until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.redis.Subscribe(ctx, r.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	in := ps.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case name := <-r.out:
			if err := r.publish(ctx, name); err != nil {
				r.logger.Error().Err(err).Str("event", name).Msg("failed to relay event")
			}
		case msg, ok := <-in:
			if !ok {
				return fmt.Errorf("subscription to %s closed", r.channel)
			}
			var ev wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.logger.Warn().Err(err).Msg("ignoring malformed relay payload")
				continue
			}
			if ev.Origin == r.origin || ev.Name == "" {
				continue
			}
			r.bus.PublishRemote(ev.Name)
		}
	}
}

func (r *RedisRelay) publish(ctx context.Context, name string) error {
	b, err := json.Marshal(wireEvent{Origin: r.origin, Name: name})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.redis.Publish(ctx, r.channel, b).Err()
}
