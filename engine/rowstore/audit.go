package rowstore

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// AuditEmbedding persists a chunk's embedding for the offline hierarchical
// validation report. It is never read by the live retrieval path — Qdrant
// remains the sole source for query-time vector search.
func (s *Store) AuditEmbedding(ctx context.Context, tenantID, chunkID string, embedding []float32) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO chunk_embedding_audit (chunk_id, tenant_id, embedding, created_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (chunk_id) DO UPDATE SET embedding = EXCLUDED.embedding, created_at = EXCLUDED.created_at`,
		chunkID, tenantID, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("rowstore: audit embedding for chunk %s: %w", chunkID, err)
	}
	return nil
}

// HierarchicalValidationReport is the offline check from the chunking
// contract: every chunk must reference a real parent section, and chunk
// indices for a document must form a contiguous prefix of the naturals.
type HierarchicalValidationReport struct {
	DocumentID           string
	ChunkCount           int
	IndexGaps            []int
	MissingParentSection bool
}

// ValidateHierarchy runs the offline hierarchy check for one document. Not
// consulted by the retrieval or generation path.
func (s *Store) ValidateHierarchy(ctx context.Context, tenantID, documentID string) (HierarchicalValidationReport, error) {
	rows, err := s.pool.Query(ctx, `
SELECT chunk_index, parent_section_id FROM chunks
WHERE tenant_id = $1 AND document_id = $2 ORDER BY chunk_index`, tenantID, documentID)
	if err != nil {
		return HierarchicalValidationReport{}, fmt.Errorf("rowstore: validate hierarchy for document %s: %w", documentID, err)
	}
	defer rows.Close()

	var indices []int
	missingParent := false
	for rows.Next() {
		var idx int
		var parentSectionID string
		if err := rows.Scan(&idx, &parentSectionID); err != nil {
			return HierarchicalValidationReport{}, fmt.Errorf("rowstore: scan chunk index: %w", err)
		}
		indices = append(indices, idx)
		if parentSectionID == "" {
			missingParent = true
		}
	}
	if err := rows.Err(); err != nil {
		return HierarchicalValidationReport{}, fmt.Errorf("rowstore: iterate chunk indices: %w", err)
	}

	return HierarchicalValidationReport{
		DocumentID:           documentID,
		ChunkCount:           len(indices),
		IndexGaps:            findIndexGaps(indices),
		MissingParentSection: missingParent,
	}, nil
}

// findIndexGaps returns the indices missing from [0, max(sorted)] given a
// sorted slice of chunk indices.
func findIndexGaps(sorted []int) []int {
	var gaps []int
	expected := 0
	for _, idx := range sorted {
		for expected < idx {
			gaps = append(gaps, expected)
			expected++
		}
		expected = idx + 1
	}
	return gaps
}
