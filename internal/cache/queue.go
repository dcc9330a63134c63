package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CommandQueue holds ids of commands waiting for their device to connect,
// one Redis list per device.
type CommandQueue struct {
	client *redis.Client
}

func NewCommandQueue(client *redis.Client) *CommandQueue {
	return &CommandQueue{client: client}
}

func queueKey(deviceID string) string {
	return fmt.Sprintf("commands:pending:%s", deviceID)
}

func (q *CommandQueue) Push(ctx context.Context, deviceID, commandID string) error {
	return q.client.RPush(ctx, queueKey(deviceID), commandID).Err()
}

// Drain atomically takes every queued id for the device, oldest first.
func (q *CommandQueue) Drain(ctx context.Context, deviceID string) ([]string, error) {
	key := queueKey(deviceID)
	pipe := q.client.TxPipeline()
	ids := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis queue drain failed: %w", err)
	}
	return ids.Val(), nil
}
