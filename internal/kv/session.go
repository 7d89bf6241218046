package kv

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CreateSession performs the one atomic multi-op §4.2 requires: set the
// session hash with sessionTTL, set the meta hash with a longer TTL, and
// add uploadID to the GC index — all in a single pipeline round trip, the
// same shape as the teacher's CacheService operations composed together.
func (c *Client) CreateSession(ctx context.Context, uploadID string, session map[string]string, sessionTTL time.Duration, meta map[string]string, metaTTL time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		sKey, mKey := SessionKey(uploadID), MetaKey(uploadID)
		pipe.HSet(ctx, sKey, toArgs(session))
		pipe.Expire(ctx, sKey, sessionTTL)
		pipe.HSet(ctx, mKey, toArgs(meta))
		pipe.Expire(ctx, mKey, metaTTL)
		pipe.SAdd(ctx, GCIndexKey(), uploadID)
		return nil
	})
	return err
}

// GetSessionHash reads the session hash. Returns ErrKeyNotFound if the
// session has expired or was never created.
func (c *Client) GetSessionHash(ctx context.Context, uploadID string) (map[string]string, error) {
	return c.getHash(ctx, SessionKey(uploadID))
}

// GetMetaHash reads the durable meta hash.
func (c *Client) GetMetaHash(ctx context.Context, uploadID string) (map[string]string, error) {
	return c.getHash(ctx, MetaKey(uploadID))
}

func (c *Client) getHash(ctx context.Context, key string) (map[string]string, error) {
	m, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrKeyNotFound
	}
	return m, nil
}

// SetMetaFields merges fields into the meta hash without touching its TTL,
// used for incremental status transitions (finalizing, failed, ...).
func (c *Client) SetMetaFields(ctx context.Context, uploadID string, fields map[string]string) error {
	return c.rdb.HSet(ctx, MetaKey(uploadID), toArgs(fields)).Err()
}

// RefreshMetaTTL resets the meta hash's TTL to ttl.
func (c *Client) RefreshMetaTTL(ctx context.Context, uploadID string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, MetaKey(uploadID), ttl).Err()
}

// AddReceivedChunk records a chunk index as durably received.
func (c *Client) AddReceivedChunk(ctx context.Context, uploadID string, index int) error {
	return c.rdb.SAdd(ctx, ChunksKey(uploadID), strconv.Itoa(index)).Err()
}

// ReceivedChunks returns the ascending sorted list of received chunk indices.
func (c *Client) ReceivedChunks(ctx context.Context, uploadID string) ([]int, error) {
	raw, err := c.rdb.SMembers(ctx, ChunksKey(uploadID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(raw))
	for _, s := range raw {
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// ReceivedChunksCount returns the cardinality of the received-chunks set.
func (c *Client) ReceivedChunksCount(ctx context.Context, uploadID string) (int64, error) {
	return c.rdb.SCard(ctx, ChunksKey(uploadID)).Result()
}

// GCIndexAdd adds uploadID to the process-wide GC index.
func (c *Client) GCIndexAdd(ctx context.Context, uploadID string) error {
	return c.rdb.SAdd(ctx, GCIndexKey(), uploadID).Err()
}

// GCIndexRemove removes uploadID from the GC index.
func (c *Client) GCIndexRemove(ctx context.Context, uploadID string) error {
	return c.rdb.SRem(ctx, GCIndexKey(), uploadID).Err()
}

// GCIndexMembers lists every upload ID currently tracked by the GC index.
func (c *Client) GCIndexMembers(ctx context.Context) ([]string, error) {
	return c.rdb.SMembers(ctx, GCIndexKey()).Result()
}

// GCIndexCard returns the cardinality of the GC index — the basis for the
// upload-capacity check in §6 (acknowledged in spec.md §9 as overcounting
// expired/canceled/failed entries until the reaper runs).
func (c *Client) GCIndexCard(ctx context.Context) (int64, error) {
	return c.rdb.SCard(ctx, GCIndexKey()).Result()
}

// CommitCompletion performs the finalization engine's terminal atomic
// multi-op (§4.4 step 10): set meta to completed with the commit triple,
// delete the session key, delete the chunks set, and remove from the GC
// index — one pipeline round trip.
func (c *Client) CommitCompletion(ctx context.Context, uploadID string, metaFields map[string]string, metaTTL time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		mKey := MetaKey(uploadID)
		pipe.HSet(ctx, mKey, toArgs(metaFields))
		pipe.Expire(ctx, mKey, metaTTL)
		pipe.Del(ctx, SessionKey(uploadID))
		pipe.Del(ctx, ChunksKey(uploadID))
		pipe.SRem(ctx, GCIndexKey(), uploadID)
		return nil
	})
	return err
}

// CancelSession performs the cancel endpoint's atomic multi-op: mark meta
// canceled, delete session and chunks, and drop GC-index membership (the
// acknowledged seam in spec.md §9 — canceled uploads won't be re-collected
// until re-added).
func (c *Client) CancelSession(ctx context.Context, uploadID string, metaFields map[string]string, metaTTL time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		mKey := MetaKey(uploadID)
		pipe.HSet(ctx, mKey, toArgs(metaFields))
		pipe.Expire(ctx, mKey, metaTTL)
		pipe.Del(ctx, SessionKey(uploadID))
		pipe.Del(ctx, ChunksKey(uploadID))
		pipe.SRem(ctx, GCIndexKey(), uploadID)
		return nil
	})
	return err
}

// PurgeArtifactKeys removes every KV trace of an upload — session, chunks
// set, meta hash, and GC-index membership — used by the reaper once
// chunk/assembled-file data is gone.
func (c *Client) PurgeArtifactKeys(ctx context.Context, uploadID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, SessionKey(uploadID))
		pipe.Del(ctx, ChunksKey(uploadID))
		pipe.Del(ctx, MetaKey(uploadID))
		pipe.SRem(ctx, GCIndexKey(), uploadID)
		return nil
	})
	return err
}

func toArgs(m map[string]string) []interface{} {
	args := make([]interface{}, 0, len(m)*2)
	for k, v := range m {
		args = append(args, k, v)
	}
	return args
}
