package kv

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	embedCachePrefix = "embedding"
	// EmbedCacheTTL is how long a cached embedding survives: content
	// rarely changes meaning within a week, and re-embedding is cheap
	// enough to not need longer.
	EmbedCacheTTL = 7 * 24 * time.Hour
)

func embedCacheKey(contentHash string) string {
	return embedCachePrefix + ":" + contentHash
}

// GetEmbedding returns a cached embedding for contentHash, or (nil, false) on
// a cache miss or any Redis error — the caller falls back to the embedding
// provider either way.
func (s *Store) GetEmbedding(ctx context.Context, contentHash string) ([]float32, bool) {
	raw, err := s.client.Get(ctx, embedCacheKey(contentHash)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("kv: embedding cache get failed", "error", err)
		}
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		slog.Warn("kv: embedding cache decode failed", "error", err)
		return nil, false
	}
	return vec, true
}

// SetEmbedding caches an embedding under its content hash with EmbedCacheTTL.
// Failures are logged, never returned: caching is an optimization, not a
// correctness requirement.
func (s *Store) SetEmbedding(ctx context.Context, contentHash string, embedding []float32) {
	raw, err := json.Marshal(embedding)
	if err != nil {
		slog.Warn("kv: embedding cache encode failed", "error", err)
		return
	}
	if err := s.client.Set(ctx, embedCacheKey(contentHash), raw, EmbedCacheTTL).Err(); err != nil {
		slog.Warn("kv: embedding cache set failed", "error", err)
	}
}

// GetEmbeddingsBatch looks up a batch of content hashes, returning a map of
// hash to embedding for every hit. Misses are simply absent from the map.
func (s *Store) GetEmbeddingsBatch(ctx context.Context, contentHashes []string) map[string][]float32 {
	out := make(map[string][]float32, len(contentHashes))
	for _, h := range contentHashes {
		if vec, ok := s.GetEmbedding(ctx, h); ok {
			out[h] = vec
		}
	}
	return out
}

// SetEmbeddingsBatch caches every entry in embeddings.
func (s *Store) SetEmbeddingsBatch(ctx context.Context, embeddings map[string][]float32) {
	for hash, vec := range embeddings {
		s.SetEmbedding(ctx, hash, vec)
	}
}
