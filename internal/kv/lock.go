package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript and refreshScript give the finalize lock compare-and-delete
// / compare-and-extend semantics atomically. The teacher's queue code
// (cache.CacheService.DequeueJob) leaves a comment acknowledging that a
// plain read-then-write isn't atomic and that "production... consider...
// Lua scripts for atomicity" — this is that script, applied to the lock
// lease instead of the job queue.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)
)

// TryAcquireLock sets the finalize lock only if absent, with the given TTL.
// Returns false (no error) if another owner already holds it.
func (c *Client) TryAcquireLock(ctx context.Context, uploadID, token string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, LockKey(uploadID), token, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// RefreshLock extends the lock's TTL only if token still owns it. Returns
// false when the lease was lost (value changed or key expired).
func (c *Client) RefreshLock(ctx context.Context, uploadID, token string, ttl time.Duration) (bool, error) {
	res, err := refreshScript.Run(ctx, c.rdb, []string{LockKey(uploadID)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// ReleaseLock deletes the lock only if token still owns it.
func (c *Client) ReleaseLock(ctx context.Context, uploadID, token string) (bool, error) {
	res, err := releaseScript.Run(ctx, c.rdb, []string{LockKey(uploadID)}, token).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// LockExists reports whether a finalize lock is currently held for
// uploadID — used by the reaper's hard safety check before collecting.
func (c *Client) LockExists(ctx context.Context, uploadID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, LockKey(uploadID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
