package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/docextract/internal/models"
)

// Channel is the namespaced pub/sub channel document changes are relayed on.
const Channel = "documents:document-status-changed"

type envelope struct {
	Origin string             `json:"origin"`
	Event  models.ChangeEvent `json:"event"`
}

// RedisRelay bridges a local Bus across processes, so events produced by the
// worker reach websocket clients connected to the API server.
type RedisRelay struct {
	client *redis.Client
	origin string
	logger *slog.Logger
}

func NewRedisRelay(client *redis.Client, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{client: client, origin: uuid.NewString(), logger: logger}
}

// Forward publishes events produced in this process to Redis until ctx is
// done. Events that Listen relayed in are not sent back out.
func (r *RedisRelay) Forward(ctx context.Context, bus *Bus) {
	r.forward(ctx, bus, func(ctx context.Context, payload []byte) error {
		return r.client.Publish(ctx, Channel, payload).Err()
	})
}

func (r *RedisRelay) forward(ctx context.Context, bus *Bus, send func(context.Context, []byte) error) {
	for ev := range bus.SubscribeLocal(ctx) {
		payload, err := encodeEnvelope(r.origin, ev)
		if err != nil {
			r.logger.Error("encode change event", "error", err)
			continue
		}
		if err := send(ctx, payload); err != nil {
			r.logger.Warn("relay change event to redis", "error", err, "document_id", ev.ID)
		}
	}
}

// Listen republishes events from other processes onto the local bus until ctx is done.
func (r *RedisRelay) Listen(ctx context.Context, bus RelayedPublisher) error {
	sub := r.client.Subscribe(ctx, Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			r.deliver([]byte(msg.Payload), bus)
		}
	}
}

func (r *RedisRelay) deliver(payload []byte, bus RelayedPublisher) {
	origin, ev, err := decodeEnvelope(payload)
	if err != nil {
		r.logger.Warn("decode relayed change event", "error", err)
		return
	}
	if origin == r.origin {
		return
	}
	bus.PublishRelayed(ev)
}

func encodeEnvelope(origin string, ev models.ChangeEvent) ([]byte, error) {
	return json.Marshal(envelope{Origin: origin, Event: ev})
}

func decodeEnvelope(data []byte) (string, models.ChangeEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", models.ChangeEvent{}, err
	}
	return env.Origin, env.Event, nil
}
