// Package kv wraps the Redis-backed key/value store the gateway uses for
// session state, durable meta records, the chunk-set, the finalize lock,
// the GC index, and the file-fields cache. It generalizes the teacher
// repo's cache.RedisClient wrapper with the atomic multi-op primitives the
// upload/finalize protocol needs (hash+TTL writes, CAS-style locks, and
// pipelined transactions), under the keyspace defined in keyspace.go.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/floegw/floe/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Client wraps a redis.Client with the operations the gateway's components
// need. It is safe for concurrent use.
type Client struct {
	rdb    *redis.Client
	logger *logger.Logger
}

// Config mirrors the knobs the teacher's RedisConfig exposes.
type Config struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// New connects to Redis and verifies connectivity with a bounded ping,
// exactly like cache.NewRedisClient does for the teacher's CacheService.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to KV store: %w", err)
	}

	log.Printf("connected to KV store at %s", opts.Addr)

	return &Client{rdb: rdb, logger: log}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the KV store; used by the /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ErrKeyNotFound mirrors the teacher's cache.ErrKeyNotFound sentinel.
var ErrKeyNotFound = fmt.Errorf("key not found")
