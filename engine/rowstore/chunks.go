package rowstore

import (
	"context"
	"fmt"
	"time"

	"github.com/northlane/ragvault/engine/domain"
)

// lexicalVectorUpdateSQL recomputes the weighted full-text vector for one
// row: section_title outranks body content, per the editorial choice that
// titles carry more retrieval signal than prose.
const lexicalVectorUpdateSQL = `
UPDATE chunks SET lexical_vector =
	setweight(to_tsvector('english', coalesce(section_title, '')), 'A') ||
	setweight(to_tsvector('english', content), 'B')
WHERE document_id = $1 AND chunk_index = $2`

// UpsertChunks bulk-inserts chunks for one document, skipping any
// (document_id, chunk_index) pair already present, then refreshes the
// lexical vector for rows that were actually inserted.
func (s *Store) UpsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("rowstore: begin upsert chunks: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range chunks {
		tag, err := tx.Exec(ctx, `
INSERT INTO chunks (id, document_id, tenant_id, chunk_index, content, content_hash, token_count, section_title, page_number, parent_section_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (document_id, chunk_index) DO NOTHING`,
			c.ID, c.DocumentID, c.TenantID, c.ChunkIndex, c.Content, c.ContentHash, c.TokenCount,
			nullString(c.SectionTitle), c.PageNumber, c.ParentSectionID, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("rowstore: insert chunk %s#%d: %w", c.DocumentID, c.ChunkIndex, err)
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		if _, err := tx.Exec(ctx, lexicalVectorUpdateSQL, c.DocumentID, c.ChunkIndex); err != nil {
			return fmt.Errorf("rowstore: update lexical vector %s#%d: %w", c.DocumentID, c.ChunkIndex, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("rowstore: commit upsert chunks: %w", err)
	}
	return nil
}

// DeleteChunksByDocument removes every chunk row for a document. Deleting
// the document row itself cascades here too; this is for the retrieval-only
// deletion path (dense index delete + row delete without removing the
// document record).
func (s *Store) DeleteChunksByDocument(ctx context.Context, tenantID, documentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE tenant_id = $1 AND document_id = $2`, tenantID, documentID)
	if err != nil {
		return fmt.Errorf("rowstore: delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

// ChunkMeta is the row-store-owned slice of chunk metadata the retriever
// needs after a dense/lexical merge (chiefly created_at, for recency
// scoring).
type ChunkMeta struct {
	ID           string
	DocumentID   string
	ChunkIndex   int
	Content      string
	SectionTitle string
	PageNumber   *int
	CreatedAt    time.Time
}

// GetChunksByIDs fetches metadata for a merged candidate set, keyed by
// chunk id.
func (s *Store) GetChunksByIDs(ctx context.Context, tenantID string, chunkIDs []string) (map[string]ChunkMeta, error) {
	if len(chunkIDs) == 0 {
		return map[string]ChunkMeta{}, nil
	}

	rows, err := s.pool.Query(ctx, `
SELECT id, document_id, chunk_index, content, section_title, page_number, created_at
FROM chunks WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("rowstore: get chunks by ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ChunkMeta, len(chunkIDs))
	for rows.Next() {
		var m ChunkMeta
		var sectionTitle *string
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.ChunkIndex, &m.Content, &sectionTitle, &m.PageNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("rowstore: scan chunk: %w", err)
		}
		if sectionTitle != nil {
			m.SectionTitle = *sectionTitle
		}
		out[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rowstore: iterate chunks: %w", err)
	}
	return out, nil
}

// LexicalResult is one ranked hit from the weighted full-text index.
type LexicalResult struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Content    string
	Score      float64
}

// lexicalSearchQuery builds the ranked full-text search statement,
// optionally restricted to one document. Placeholder numbering is built up
// so the two shapes (with/without a document filter) stay consistent with
// the args slice the caller assembles.
func lexicalSearchQuery(documentID string) (sql string, withDocumentFilter bool) {
	sql = `
SELECT id, document_id, chunk_index, content,
       ts_rank(lexical_vector, plainto_tsquery('english', $1), 1) AS score
FROM chunks
WHERE tenant_id = $2 AND lexical_vector @@ plainto_tsquery('english', $1)`
	if documentID != "" {
		sql += " AND document_id = $3 ORDER BY score DESC LIMIT $4"
		return sql, true
	}
	sql += " ORDER BY score DESC LIMIT $3"
	return sql, false
}

// LexicalSearch ranks chunks for tenantID by relevance to an already
// query-transformed string, using the store's built-in ranking function
// (length-normalized, field-weighted).
func (s *Store) LexicalSearch(ctx context.Context, tenantID, query string, topK int, documentID string) ([]LexicalResult, error) {
	sql, hasDocFilter := lexicalSearchQuery(documentID)
	args := []any{query, tenantID}
	if hasDocFilter {
		args = append(args, documentID, topK)
	} else {
		args = append(args, topK)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("rowstore: lexical search: %w", err)
	}
	defer rows.Close()

	var results []LexicalResult
	for rows.Next() {
		var r LexicalResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.ChunkIndex, &r.Content, &r.Score); err != nil {
			return nil, fmt.Errorf("rowstore: scan lexical result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rowstore: iterate lexical results: %w", err)
	}
	return results, nil
}
