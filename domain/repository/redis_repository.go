package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"
	"github.com/remedyops/remedy/domain/entity"
)

const (
	newIncidentChannel    = "incidents:new"
	incidentUpdatePattern = "incidents:updates:*"
)

type RedisEventBus struct {
	client *goredis.Client
}

func NewRedisEventBus(addr, password string, db int) *RedisEventBus {
	return &RedisEventBus{
		client: goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (b *RedisEventBus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (b *RedisEventBus) Close() error {
	return b.client.Close()
}

func (b *RedisEventBus) PublishIncident(ctx context.Context, incidentID string) error {
	payload, err := json.Marshal(map[string]any{"incident_id": incidentID})
	if err != nil {
		return err
	}

	if err := b.client.Publish(ctx, newIncidentChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish new incident %s: %w", incidentID, err)
	}
	return nil
}

func (b *RedisEventBus) PublishIncidentUpdate(ctx context.Context, incidentID string, status entity.Status, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	payload, err := json.Marshal(map[string]any{
		"incident_id": incidentID,
		"status":      status,
		"data":        data,
	})
	if err != nil {
		return err
	}

	channel := fmt.Sprintf("incidents:updates:%s", incidentID)
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish update for incident %s: %w", incidentID, err)
	}
	return nil
}

// SubscribeNewIncidents returns a channel of raw payloads published on the
// new-incident topic. The channel closes when ctx is cancelled.
func (b *RedisEventBus) SubscribeNewIncidents(ctx context.Context) (<-chan []byte, error) {
	pubsub := b.client.Subscribe(ctx, newIncidentChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", newIncidentChannel, err)
	}
	return relayMessages(ctx, pubsub), nil
}

// SubscribeIncidentUpdates subscribes across every per-incident update topic.
func (b *RedisEventBus) SubscribeIncidentUpdates(ctx context.Context) (<-chan []byte, error) {
	pubsub := b.client.PSubscribe(ctx, incidentUpdatePattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", incidentUpdatePattern, err)
	}
	return relayMessages(ctx, pubsub), nil
}

func relayMessages(ctx context.Context, pubsub *goredis.PubSub) <-chan []byte {
	out := make(chan []byte)

	go func() {
		defer close(out)
		defer func() {
			if err := pubsub.Close(); err != nil {
				slog.Warn("failed to close pubsub", slog.Any("error", err))
			}
		}()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
