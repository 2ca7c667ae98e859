package resilience

import (
	"context"
	"time"

	"github.com/northlane/ragvault/engine/domain"
)

// QuotaOpts configures the daily caps.
type QuotaOpts struct {
	DailyTokenLimit int64
	DailyCostLimit  float64
}

var DefaultQuotaOpts = QuotaOpts{
	DailyTokenLimit: 1_000_000,
	DailyCostLimit:  10.0,
}

// QuotaStatus is the result of a quota check for one tenant.
type QuotaStatus struct {
	TokensUsed      int64
	TokensLimit     int64
	TokensRemaining int64
	CostUsed        float64
	CostLimit       float64
	CostRemaining   float64
	Exceeded        bool
	ResetAt         time.Time
}

// usageSource reports how many tokens and how much cost a tenant has
// accumulated since UTC midnight of the given time. Satisfied by
// engine/rowstore.Store.
type usageSource interface {
	DailyUsage(ctx context.Context, tenantID string, now time.Time) (totalTokens int64, totalCost float64, err error)
}

// QuotaManager enforces per-tenant daily token and cost caps.
type QuotaManager struct {
	opts  QuotaOpts
	store usageSource
	now   func() time.Time
}

// NewQuotaManager creates a quota manager backed by store.
func NewQuotaManager(store usageSource, opts QuotaOpts) *QuotaManager {
	if opts.DailyTokenLimit <= 0 {
		opts.DailyTokenLimit = DefaultQuotaOpts.DailyTokenLimit
	}
	if opts.DailyCostLimit <= 0 {
		opts.DailyCostLimit = DefaultQuotaOpts.DailyCostLimit
	}
	return &QuotaManager{opts: opts, store: store, now: time.Now}
}

// CheckQuota reports tenantID's remaining daily quota. Any error reading
// usage fails open: the tenant is reported as under quota with the full
// limit remaining, so a store outage degrades to "allow" rather than
// blocking every request.
func (q *QuotaManager) CheckQuota(ctx context.Context, tenantID string) QuotaStatus {
	now := q.now()
	reset := nextUTCMidnight(now)

	tokensUsed, costUsed, err := q.store.DailyUsage(ctx, tenantID, now)
	if err != nil {
		return QuotaStatus{
			TokensLimit:     q.opts.DailyTokenLimit,
			TokensRemaining: q.opts.DailyTokenLimit,
			CostLimit:       q.opts.DailyCostLimit,
			CostRemaining:   q.opts.DailyCostLimit,
			ResetAt:         reset,
		}
	}

	tokensRemaining := q.opts.DailyTokenLimit - tokensUsed
	if tokensRemaining < 0 {
		tokensRemaining = 0
	}
	costRemaining := q.opts.DailyCostLimit - costUsed
	if costRemaining < 0 {
		costRemaining = 0
	}

	return QuotaStatus{
		TokensUsed:      tokensUsed,
		TokensLimit:     q.opts.DailyTokenLimit,
		TokensRemaining: tokensRemaining,
		CostUsed:        costUsed,
		CostLimit:       q.opts.DailyCostLimit,
		CostRemaining:   costRemaining,
		Exceeded:        tokensUsed >= q.opts.DailyTokenLimit || costUsed >= q.opts.DailyCostLimit,
		ResetAt:         reset,
	}
}

// EstimateFits conservatively pre-checks whether a request estimated to cost
// estimatedTokens/estimatedCost should be allowed to start: the estimate
// alone must not exceed half the daily limit, guarding against a single
// request exhausting the tenant's whole day.
func (q *QuotaManager) EstimateFits(estimatedTokens int64, estimatedCost float64) bool {
	return estimatedTokens <= q.opts.DailyTokenLimit/2 && estimatedCost <= q.opts.DailyCostLimit/2
}

// QuotaExceededFailure builds the typed failure the orchestrator returns
// when CheckQuota reports the tenant over quota.
func QuotaExceededFailure(status QuotaStatus) *domain.Failure {
	return domain.NewFailure(domain.KindCapacity, "daily quota exceeded", nil)
}

func nextUTCMidnight(t time.Time) time.Time {
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, 1)
}
