package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/kalshiscan/internal/domain"
)

// eventStreamMaxLen is the approximate maximum length for the spike stream,
// enforced via XADD MAXLEN ~.
const eventStreamMaxLen int64 = 10000

// EventBus fans spike events out over Redis: Pub/Sub for live consumers and
// a capped stream so consumers that attach later can still read recent
// events.
//
// Key schema:
//
//	{channel}        - Pub/Sub channel carrying JSON-encoded events
//	{channel}:stream - stream of the same payloads, trimmed to ~10,000
type EventBus struct {
	rdb     *redis.Client
	channel string
}

// NewEventBus creates an EventBus publishing on the given channel.
func NewEventBus(c *Client, channel string) *EventBus {
	return &EventBus{rdb: c.Underlying(), channel: channel}
}

func (b *EventBus) streamKey() string {
	return b.channel + ":stream"
}

// Send publishes one spike event. It satisfies the alert sender contract, so
// the bus can sit in the notifier fan-out next to Discord and Telegram.
func (b *EventBus) Send(ctx context.Context, ev domain.SpikeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal spike event %s: %w", ev.ID, err)
	}

	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish spike event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: b.streamKey(),
		MaxLen: eventStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream spike event: %w", err)
	}
	return nil
}

// Name identifies the bus in notifier logs.
func (b *EventBus) Name() string {
	return "redis"
}

// Subscribe returns a channel of spike events published on the bus. The
// subscription closes when the context is cancelled; the returned channel is
// closed at that point as well. Payloads that fail to decode are skipped.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.SpikeEvent, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", b.channel, err)
	}

	out := make(chan domain.SpikeEvent, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev domain.SpikeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}

				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Recent returns up to count of the most recently streamed events, newest
// first. A bus nobody has published to yields an empty slice.
func (b *EventBus) Recent(ctx context.Context, count int) ([]domain.SpikeEvent, error) {
	entries, err := b.rdb.XRevRangeN(ctx, b.streamKey(), "+", "-", int64(count)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: read spike stream: %w", err)
	}

	var events []domain.SpikeEvent
	for _, entry := range entries {
		payload, ok := entry.Values["payload"]
		if !ok {
			continue
		}

		var data []byte
		switch v := payload.(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}

		var ev domain.SpikeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}
