// Package embedding generates vector embeddings for chunks, deduplicating
// identical content by hash and caching results so re-ingesting an unchanged
// document never re-embeds it.
package embedding

import (
	"context"
	"fmt"

	"github.com/northlane/ragvault/engine/domain"
	"github.com/northlane/ragvault/engine/kv"
)

// Provider generates embedding vectors for a batch of texts. Concrete
// implementations call out to whatever model serves embeddings (Ollama,
// a hosted API); Service never depends on a specific one.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache is the subset of engine/kv.Store the embedding service needs,
// narrowed so tests can fake it without a real Redis.
type Cache interface {
	GetEmbeddingsBatch(ctx context.Context, contentHashes []string) map[string][]float32
	SetEmbeddingsBatch(ctx context.Context, embeddings map[string][]float32)
}

var _ Cache = (*kv.Store)(nil)

// EmbeddedChunk pairs a chunk with its embedding vector.
type EmbeddedChunk struct {
	Chunk     domain.Chunk
	Embedding []float32
}

// Service generates embeddings for chunks with content-hash deduplication
// and cache-backed reuse.
type Service struct {
	provider Provider
	cache    Cache
}

// New builds a Service.
func New(provider Provider, cache Cache) *Service {
	return &Service{provider: provider, cache: cache}
}

// EmbedChunks returns one EmbeddedChunk per input chunk. Chunks sharing a
// content hash are embedded once; chunks whose hash is already cached never
// reach the provider at all.
func (s *Service) EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	uniqueByHash := make(map[string]domain.Chunk)
	var uniqueHashes []string
	for _, c := range chunks {
		if _, seen := uniqueByHash[c.ContentHash]; !seen {
			uniqueByHash[c.ContentHash] = c
			uniqueHashes = append(uniqueHashes, c.ContentHash)
		}
	}

	cached := s.cache.GetEmbeddingsBatch(ctx, uniqueHashes)

	var missingHashes []string
	for _, h := range uniqueHashes {
		if _, ok := cached[h]; !ok {
			missingHashes = append(missingHashes, h)
		}
	}

	if len(missingHashes) > 0 {
		texts := make([]string, len(missingHashes))
		for i, h := range missingHashes {
			texts[i] = uniqueByHash[h].Content
		}
		vectors, err := s.provider.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding: provider: %w", err)
		}
		if len(vectors) != len(missingHashes) {
			return nil, fmt.Errorf("embedding: provider returned %d vectors for %d texts", len(vectors), len(missingHashes))
		}
		fresh := make(map[string][]float32, len(missingHashes))
		for i, h := range missingHashes {
			fresh[h] = vectors[i]
			cached[h] = vectors[i]
		}
		s.cache.SetEmbeddingsBatch(ctx, fresh)
	}

	out := make([]EmbeddedChunk, 0, len(chunks))
	for _, c := range chunks {
		vec, ok := cached[c.ContentHash]
		if !ok {
			continue
		}
		out = append(out, EmbeddedChunk{Chunk: c, Embedding: vec})
	}
	return out, nil
}

// EmbedQuery generates a single embedding for a query string. Queries are
// never cached: they are rarely repeated verbatim and caching would only
// add a lookup for a near-certain miss.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding: provider: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding: provider returned %d vectors for 1 text", len(vectors))
	}
	return vectors[0], nil
}
