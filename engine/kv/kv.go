// Package kv wraps Redis for the two things that need a shared, low-latency
// store across every process in the query path: the embedding cache and the
// cross-process token-bucket rate limiter.
package kv

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the Redis connection.
type Config struct {
	Addr                  string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
}

// client is the narrow slice of redis.UniversalClient the store actually
// calls, so tests can fake it without standing up a real Redis.
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Store wraps a Redis client with the cache and rate-limit operations the
// query pipeline needs.
type Store struct {
	client client
}

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Store{client: c}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// durationSeconds rounds a time.Duration down to whole seconds, the unit
// Redis TTLs and the rate-limit script operate on.
func durationSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
