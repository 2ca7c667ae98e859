package rowstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/northlane/ragvault/engine/domain"
)

// InsertChatInteraction persists a successful chat interaction and returns
// its id, generating one if the caller left it blank, so feedback can later
// bind to it.
func (s *Store) InsertChatInteraction(ctx context.Context, interaction domain.ChatInteraction) (string, error) {
	id := interaction.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := interaction.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
INSERT INTO chat_interactions (
	id, tenant_id, query, answer, confidence, citation_count,
	latency_total_ms, latency_retrieval_ms, latency_generation_ms,
	prompt_tokens, completion_tokens, total_tokens,
	model_name, cost_estimate, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		id, interaction.TenantID, interaction.Query, interaction.Answer, interaction.Confidence, interaction.CitationCount,
		interaction.Latency.TotalMS, interaction.Latency.RetrievalMS, interaction.Latency.GenerationMS,
		interaction.Usage.PromptTokens, interaction.Usage.CompletionTokens, interaction.Usage.TotalTokens,
		interaction.ModelName, interaction.CostEstimate, createdAt)
	if err != nil {
		return "", fmt.Errorf("rowstore: insert chat interaction: %w", err)
	}
	return id, nil
}

// DailyUsage sums token and cost usage for tenantID since UTC midnight of
// now. Backs the quota manager's daily caps.
func (s *Store) DailyUsage(ctx context.Context, tenantID string, now time.Time) (totalTokens int64, totalCost float64, err error) {
	since := utcMidnight(now)
	row := s.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost_estimate), 0)
FROM chat_interactions WHERE tenant_id = $1 AND created_at >= $2`, tenantID, since)
	if err := row.Scan(&totalTokens, &totalCost); err != nil {
		return 0, 0, fmt.Errorf("rowstore: daily usage for tenant %s: %w", tenantID, err)
	}
	return totalTokens, totalCost, nil
}

func utcMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
