package rowstore

import (
	"context"
	"fmt"
	"time"

	"github.com/northlane/ragvault/engine/domain"
)

// InsertDocument records a new upload. Re-entry with the same id is a no-op,
// matching the FSM's idempotent-transition contract.
func (s *Store) InsertDocument(ctx context.Context, doc domain.Document) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents (id, tenant_id, filename, storage_path, type, version, is_active, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING`,
		doc.ID, doc.TenantID, doc.Filename, doc.StoragePath, string(doc.Type), doc.Version, doc.IsActive, string(doc.Status), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("rowstore: insert document %s: %w", doc.ID, err)
	}
	return nil
}

// UpdateDocumentStatus advances a document's FSM state. Re-entry with the
// same status is safe; it only errors if the document doesn't belong to
// tenantID.
func (s *Store) UpdateDocumentStatus(ctx context.Context, tenantID, documentID string, status domain.Status) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3 AND tenant_id = $4`,
		string(status), time.Now().UTC(), documentID, tenantID)
	if err != nil {
		return fmt.Errorf("rowstore: update document %s status: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rowstore: document %s not found for tenant %s", documentID, tenantID)
	}
	return nil
}

// GetDocument fetches a document, scoped to tenantID.
func (s *Store) GetDocument(ctx context.Context, tenantID, documentID string) (domain.Document, error) {
	var doc domain.Document
	var docType, status string
	err := s.pool.QueryRow(ctx, `
SELECT id, tenant_id, filename, storage_path, type, version, is_active, status, created_at, updated_at
FROM documents WHERE id = $1 AND tenant_id = $2`, documentID, tenantID).Scan(
		&doc.ID, &doc.TenantID, &doc.Filename, &doc.StoragePath, &docType, &doc.Version, &doc.IsActive, &status, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return domain.Document{}, fmt.Errorf("rowstore: get document %s: %w", documentID, err)
	}
	doc.Type = domain.DocType(docType)
	doc.Status = domain.Status(status)
	return doc, nil
}

// SetDocumentActive soft-retires or reactivates a document without deleting
// its chunks or vectors.
func (s *Store) SetDocumentActive(ctx context.Context, tenantID, documentID string, active bool) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE documents SET is_active = $1, updated_at = $2 WHERE id = $3 AND tenant_id = $4`,
		active, time.Now().UTC(), documentID, tenantID)
	if err != nil {
		return fmt.Errorf("rowstore: set document %s active=%v: %w", documentID, active, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rowstore: document %s not found for tenant %s", documentID, tenantID)
	}
	return nil
}
