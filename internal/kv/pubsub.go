package kv

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// PublishProgress publishes an upload's progress delta, the same
// publish-a-JSON-update-to-a-channel shape as the teacher's
// CacheService.PublishScanUpdate, feeding the live WebSocket watcher.
func (c *Client) PublishProgress(ctx context.Context, uploadID string, update interface{}) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, ProgressChannel(uploadID), data).Err()
}

// SubscribeProgress subscribes to an upload's progress channel.
func (c *Client) SubscribeProgress(ctx context.Context, uploadID string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, ProgressChannel(uploadID))
}
