// Package events implements the best-effort fan-out of audit events to
// live subscribers. Publishing is fire-and-forget: the durable audit row
// already exists by the time a publisher runs, so failures here are
// logged and swallowed, never surfaced to the caller.
package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// Publisher fans a payload out to a downstream distribution channel.
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}

// RedisPublisher distributes payloads over a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher on the given channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}

// NopPublisher discards everything. Used when no distribution channel is
// configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, any) error { return nil }
