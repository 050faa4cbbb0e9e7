package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/buildnotify/internal/domain"
	"github.com/pscheid92/buildnotify/internal/platform/correlation"
	"github.com/pscheid92/buildnotify/internal/platform/retry"
)

const (
	EventChannel   = "buildnotify:events"
	publishTimeout = 2 * time.Second
)

var publishPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: 50 * time.Millisecond,
}

// EventHandler delivers a relayed event to this instance's connections.
type EventHandler func(ctx context.Context, ev domain.Event) error

// EventRelay fans build events out to every instance over Redis pub/sub. Each
// instance only holds its own connections, so every instance must see every event.
type EventRelay struct {
	rdb     *goredis.Client
	channel string
}

func NewEventRelay(rdb *goredis.Client) *EventRelay {
	return &EventRelay{rdb: rdb, channel: EventChannel}
}

// PublishEvent sends ev to every subscribed instance, this one included.
func (r *EventRelay) PublishEvent(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = retry.DoVoid(ctx, publishPolicy, publishClassify, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		return r.rdb.Publish(ctx, r.channel, payload).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Start subscribes and hands every event to handle until ctx is cancelled.
// It returns once the subscription is confirmed, delivering in the background;
// the returned channel is closed when delivery stops.
func (r *EventRelay) Start(ctx context.Context, handle EventHandler) (<-chan struct{}, error) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	slog.Info("Event relay subscribed", "channel", r.channel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { _ = pubsub.Close() }()

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok || msg == nil {
					return
				}
				r.handleMessage(ctx, msg.Payload, handle)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done, nil
}

func (r *EventRelay) handleMessage(ctx context.Context, payload string, handle EventHandler) {
	ctx, _ = correlation.Ensure(ctx)

	if payload == "" {
		slog.WarnContext(ctx, "Empty relay message")
		return
	}

	var ev domain.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		slog.WarnContext(ctx, "Dropping malformed relay message", "error", err)
		return
	}

	if err := handle(ctx, ev); err != nil {
		slog.WarnContext(ctx, "Failed to deliver relayed event", "kind", ev.Kind, "error", err)
	}
}
