// Package config loads process configuration from the environment, shared
// by both the ingestion worker and the query CLI so no package reads
// os.Getenv directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the ingestion worker and query service read
// from the environment. Binaries construct one via Load and pass the
// sub-structs their packages need; no package reads os.Getenv directly.
type Config struct {
	Postgres  PostgresConfig
	Redis     RedisConfig
	Qdrant    QdrantConfig
	NATS      NATSConfig
	Embedding EmbeddingConfig
	Chat      ChatConfig
	Quota     QuotaConfig
	RateLimit RateLimitConfig
}

type PostgresConfig struct {
	DSN         string
	MaxConns    int32
	MaxConnIdle time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type QdrantConfig struct {
	Addr string
}

type NATSConfig struct {
	URL          string
	StreamName   string
	ConsumerName string
	MaxRetries   int
}

type EmbeddingConfig struct {
	ProviderURL string
	Model       string
	Dimensions  int
}

type ChatConfig struct {
	ProviderURL string
	Model       string
}

type QuotaConfig struct {
	DailyTokenLimit int64
	DailyCostLimit  float64
}

type RateLimitConfig struct {
	RequestsPerWindow int
	WindowSeconds     int
}

// Load builds a Config from environment variables, applying the same
// defaults a local docker-compose stack would need.
func Load() (Config, error) {
	maxConns, err := envInt("POSTGRES_MAX_CONNS", 10)
	if err != nil {
		return Config{}, err
	}
	redisDB, err := envInt("REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	maxRetries, err := envInt("NATS_MAX_RETRIES", 3)
	if err != nil {
		return Config{}, err
	}
	dims, err := envInt("EMBED_DIMENSIONS", 768)
	if err != nil {
		return Config{}, err
	}
	dailyTokenLimit, err := envInt64("QUOTA_DAILY_TOKEN_LIMIT", 1_000_000)
	if err != nil {
		return Config{}, err
	}
	dailyCostLimit, err := envFloat("QUOTA_DAILY_COST_LIMIT", 50.0)
	if err != nil {
		return Config{}, err
	}
	rpw, err := envInt("RATE_LIMIT_REQUESTS", 10)
	if err != nil {
		return Config{}, err
	}
	window, err := envInt("RATE_LIMIT_WINDOW_SECONDS", 60)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Postgres: PostgresConfig{
			DSN:         envOr("POSTGRES_DSN", "postgres://localhost:5432/ragvault?sslmode=disable"),
			MaxConns:    int32(maxConns),
			MaxConnIdle: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     envOr("REDIS_ADDR", "localhost:6379"),
			Password: envOr("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Qdrant: QdrantConfig{
			Addr: envOr("QDRANT_URL", "localhost:6334"),
		},
		NATS: NATSConfig{
			URL:          envOr("NATS_URL", "nats://localhost:4222"),
			StreamName:   envOr("NATS_STREAM", "INGEST"),
			ConsumerName: envOr("NATS_CONSUMER", "ingest-worker"),
			MaxRetries:   maxRetries,
		},
		Embedding: EmbeddingConfig{
			ProviderURL: envOr("EMBED_PROVIDER_URL", "http://localhost:11434"),
			Model:       envOr("EMBED_MODEL", "nomic-embed-text"),
			Dimensions:  dims,
		},
		Chat: ChatConfig{
			ProviderURL: envOr("CHAT_PROVIDER_URL", "http://localhost:11434"),
			Model:       envOr("CHAT_MODEL", "gemini-1.5-flash"),
		},
		Quota: QuotaConfig{
			DailyTokenLimit: dailyTokenLimit,
			DailyCostLimit:  dailyCostLimit,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: rpw,
			WindowSeconds:     window,
		},
	}, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", k, err)
	}
	return n, nil
}

func envInt64(k string, d int64) (int64, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", k, err)
	}
	return n, nil
}

func envFloat(k string, d float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", k, err)
	}
	return n, nil
}
