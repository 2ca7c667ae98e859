package rowstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/northlane/ragvault/engine/domain"
)

// UpsertFeedback inserts feedback for an interaction, or replaces it if the
// interaction already has feedback. The interaction must belong to
// tenantID; otherwise no row is written and an error is returned.
func (s *Store) UpsertFeedback(ctx context.Context, tenantID string, feedback domain.ChatFeedback) error {
	id := feedback.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := feedback.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx, `
INSERT INTO chat_feedbacks (id, interaction_id, rating, comment, created_at)
SELECT $1, $2, $3, $4, $5
WHERE EXISTS (SELECT 1 FROM chat_interactions WHERE id = $2 AND tenant_id = $6)
ON CONFLICT (interaction_id) DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, created_at = EXCLUDED.created_at`,
		id, feedback.InteractionID, feedback.Rating, nullString(feedback.Comment), createdAt, tenantID)
	if err != nil {
		return fmt.Errorf("rowstore: upsert feedback for interaction %s: %w", feedback.InteractionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rowstore: interaction %s not found for tenant %s", feedback.InteractionID, tenantID)
	}
	return nil
}
