package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/northlane/ragvault/engine/rowstore"
	"github.com/northlane/ragvault/engine/semantic"
	"github.com/northlane/ragvault/pkg/fn"
)

const (
	vectorFetchTopK  = 50
	lexicalFetchTopK = 20
	minQueryTokenLen = 2
)

// RetrievalResult is one ranked, scored chunk returned from hybrid retrieval.
type RetrievalResult struct {
	ChunkID      string
	DocumentID   string
	Content      string
	ChunkIndex   int
	SectionTitle string
	PageNumber   *int
	Score        float64
	VectorScore  float64
	LexicalScore float64
	RecencyScore float64
	Embedding    []float32
}

// denseSearcher is the subset of engine/semantic.VectorStore this package calls.
type denseSearcher interface {
	SearchFiltered(ctx context.Context, tenantID string, embedding []float32, topK int, filters map[string]string) ([]semantic.SearchResult, error)
}

// lexicalSearcher is the subset of engine/rowstore.Store this package calls.
type lexicalSearcher interface {
	LexicalSearch(ctx context.Context, tenantID, query string, topK int, documentID string) ([]rowstore.LexicalResult, error)
	GetChunksByIDs(ctx context.Context, tenantID string, chunkIDs []string) (map[string]rowstore.ChunkMeta, error)
}

// queryEmbedder is the subset of engine/embedding.Service this package calls.
type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// HybridRetriever runs query classification, parallel dense/lexical search,
// score fusion, and MMR diversification for one tenant.
type HybridRetriever struct {
	dense    denseSearcher
	lexical  lexicalSearcher
	embedder queryEmbedder
	now      func() time.Time
}

// New builds a HybridRetriever over the given dense index, row store, and
// embedding service.
func New(dense denseSearcher, lexical lexicalSearcher, embedder queryEmbedder) *HybridRetriever {
	return &HybridRetriever{dense: dense, lexical: lexical, embedder: embedder, now: time.Now}
}

// mergeCandidate accumulates dense/lexical scores and metadata for one chunk
// id while results from both sources are being merged.
type mergeCandidate struct {
	chunkID      string
	documentID   string
	content      string
	chunkIndex   int
	sectionTitle string
	pageNumber   *int
	createdAt    time.Time
	vectorScore  float64
	lexicalScore float64
	embedding    []float32
}

type sourceOutcome struct {
	dense    []semantic.SearchResult
	denseErr error
	lexical  []rowstore.LexicalResult
	lexErr   error
}

// transformQuery lowercases, collapses whitespace, and drops tokens shorter
// than minQueryTokenLen, the normalization fed to the lexical search and
// applied before embedding.
func transformQuery(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	kept := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minQueryTokenLen {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// Retrieve classifies query, searches dense and lexical indexes in parallel,
// fuses their scores, and diversifies the final ranking with MMR.
// documentID restricts both searches to one document when non-empty.
func (r *HybridRetriever) Retrieve(ctx context.Context, tenantID, query, documentID string) ([]RetrievalResult, error) {
	class := Classify(query)
	params := ParamsFor(class)

	normalized := transformQuery(query)
	queryEmbedding, err := r.embedder.EmbedQuery(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	var filters map[string]string
	if documentID != "" {
		filters = map[string]string{"document_id": documentID}
	}

	outcomes := fn.FanOut(
		func() sourceOutcome {
			res, err := r.dense.SearchFiltered(ctx, tenantID, queryEmbedding, vectorFetchTopK, filters)
			return sourceOutcome{dense: res, denseErr: err}
		},
		func() sourceOutcome {
			res, err := r.lexical.LexicalSearch(ctx, tenantID, normalized, lexicalFetchTopK, documentID)
			return sourceOutcome{lexical: res, lexErr: err}
		},
	)
	if outcomes[0].denseErr != nil {
		return nil, fmt.Errorf("retrieval: dense search: %w", outcomes[0].denseErr)
	}
	if outcomes[1].lexErr != nil {
		return nil, fmt.Errorf("retrieval: lexical search: %w", outcomes[1].lexErr)
	}

	merged, err := r.merge(ctx, tenantID, outcomes[0].dense, outcomes[1].lexical)
	if err != nil {
		return nil, err
	}
	if len(merged) == 0 {
		return nil, nil
	}

	scored := r.scoreAll(merged, params)
	return r.finalize(scored, queryEmbedding, params), nil
}

// merge combines dense and lexical hits keyed by chunk id, then fetches
// created_at, section title and page number from the row store for every
// candidate, since neither search result type carries created_at.
func (r *HybridRetriever) merge(ctx context.Context, tenantID string, dense []semantic.SearchResult, lexical []rowstore.LexicalResult) (map[string]*mergeCandidate, error) {
	byID := make(map[string]*mergeCandidate)

	for _, d := range dense {
		byID[d.ID] = &mergeCandidate{
			chunkID:     d.ID,
			documentID:  d.DocumentID,
			content:     d.Content,
			chunkIndex:  d.ChunkIndex,
			vectorScore: float64(d.Score),
			embedding:   d.Embedding,
		}
	}
	for _, l := range lexical {
		if existing, ok := byID[l.ChunkID]; ok {
			existing.lexicalScore = l.Score
			if existing.content == "" {
				existing.content = l.Content
			}
			continue
		}
		byID[l.ChunkID] = &mergeCandidate{
			chunkID:      l.ChunkID,
			documentID:   l.DocumentID,
			content:      l.Content,
			chunkIndex:   l.ChunkIndex,
			lexicalScore: l.Score,
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	metas, err := r.lexical.GetChunksByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("retrieval: fetch chunk metadata: %w", err)
	}
	for id, cand := range byID {
		if meta, ok := metas[id]; ok {
			cand.createdAt = meta.CreatedAt
			cand.sectionTitle = meta.SectionTitle
			cand.pageNumber = meta.PageNumber
			if cand.content == "" {
				cand.content = meta.Content
			}
		}
	}

	return byID, nil
}

type scoredCandidate struct {
	*mergeCandidate
	combined float64
}

// scoreAll normalizes each score list independently, computes recency, and
// combines them with the class's weights.
func (r *HybridRetriever) scoreAll(byID map[string]*mergeCandidate, params Params) []scoredCandidate {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic input order for normalization and tie-breaking

	now := r.now()
	vector := make([]float64, len(ids))
	lexical := make([]float64, len(ids))
	recency := make([]float64, len(ids))
	for i, id := range ids {
		c := byID[id]
		vector[i] = c.vectorScore
		lexical[i] = c.lexicalScore
		recency[i] = RecencyScore(c.createdAt, now)
	}

	normVector := NormalizeMinMax(vector)
	normLexical := NormalizeMinMax(lexical)
	normRecency := NormalizeMinMax(recency)
	combined := CombineScores(normVector, normLexical, normRecency, params.VectorWeight, params.LexWeight, params.RecencyWeight)

	out := make([]scoredCandidate, len(ids))
	for i, id := range ids {
		c := byID[id]
		c.vectorScore = normVector[i]
		c.lexicalScore = normLexical[i]
		out[i] = scoredCandidate{mergeCandidate: c, combined: combined[i]}
	}
	return out
}

// finalize applies MMR diversification (falling back to plain rank order
// when fewer than top_k candidates carry embeddings) and converts to the
// public result type.
func (r *HybridRetriever) finalize(scored []scoredCandidate, queryEmbedding []float32, params Params) []RetrievalResult {
	withEmbeddings := 0
	for _, c := range scored {
		if len(c.embedding) > 0 {
			withEmbeddings++
		}
	}

	var ordered []scoredCandidate
	if withEmbeddings >= params.TopK {
		embeddings := make([][]float32, len(scored))
		scores := make([]float64, len(scored))
		for i, c := range scored {
			embeddings[i] = c.embedding
			scores[i] = c.combined
		}
		selected := MMRRerank(queryEmbedding, embeddings, scores, params.TopK, params.MMRLambda)
		ordered = make([]scoredCandidate, len(selected))
		for i, idx := range selected {
			ordered[i] = scored[idx]
		}
	} else {
		ordered = rankByCombined(scored)
		if len(ordered) > params.TopK {
			ordered = ordered[:params.TopK]
		}
	}

	out := make([]RetrievalResult, len(ordered))
	for i, c := range ordered {
		out[i] = RetrievalResult{
			ChunkID:      c.chunkID,
			DocumentID:   c.documentID,
			Content:      c.content,
			ChunkIndex:   c.chunkIndex,
			SectionTitle: c.sectionTitle,
			PageNumber:   c.pageNumber,
			Score:        c.combined,
			VectorScore:  c.vectorScore,
			LexicalScore: c.lexicalScore,
			RecencyScore: RecencyScore(c.createdAt, r.now()),
			Embedding:    c.embedding,
		}
	}
	return out
}

// rankByCombined orders candidates by the tie-break rule: higher combined
// score, then lower chunk_index, then lexicographic chunk_id.
func rankByCombined(scored []scoredCandidate) []scoredCandidate {
	out := make([]scoredCandidate, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].combined != out[j].combined {
			return out[i].combined > out[j].combined
		}
		if out[i].chunkIndex != out[j].chunkIndex {
			return out[i].chunkIndex < out[j].chunkIndex
		}
		return out[i].chunkID < out[j].chunkID
	})
	return out
}
