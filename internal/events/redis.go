package events

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes on the pub/sub channel fleet:<topic>:<key>.
type RedisPublisher struct {
	client *redis.Client
}

var _ Publisher = (*RedisPublisher)(nil)

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func RedisChannel(topic, key string) string {
	return "fleet:" + topic + ":" + key
}

func (p *RedisPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	body, err := encode(topic, key, payload)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, RedisChannel(topic, key), body).Err()
}
