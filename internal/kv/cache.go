package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SetFileFields caches the normalized on-chain asset fields for fileID,
// the same Set-a-JSON-blob-with-TTL shape as the teacher's
// CacheService.CacheArtifact.
func (c *Client) SetFileFields(ctx context.Context, fileID string, fields interface{}, ttl time.Duration) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, FileFieldsKey(fileID), data, ttl).Err()
}

// GetFileFields retrieves and unmarshals the cached fields for fileID.
// Returns ErrKeyNotFound if absent or expired.
func (c *Client) GetFileFields(ctx context.Context, fileID string, dest interface{}) error {
	data, err := c.rdb.Get(ctx, FileFieldsKey(fileID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrKeyNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}
