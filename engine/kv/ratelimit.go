package kv

import (
	"context"
	"log/slog"
	"time"
)

// rateLimitScript implements a token-bucket limiter as a single atomic Redis
// Lua script so concurrent requests across processes never race on the same
// bucket. Returns {allowed, tokens_remaining, retry_after_seconds}.
const rateLimitScript = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current_time = tonumber(ARGV[3])
local bucket = redis.call('HGETALL', key)
local tokens = rate
local last_refill = current_time
if #bucket > 0 then
    for i = 1, #bucket, 2 do
        if bucket[i] == 'tokens' then tokens = tonumber(bucket[i + 1])
        elseif bucket[i] == 'last_refill' then last_refill = tonumber(bucket[i + 1]) end
    end
    local time_elapsed = current_time - last_refill
    local tokens_to_add = (time_elapsed / window) * rate
    tokens = math.min(rate, tokens + tokens_to_add)
end
if tokens >= 1 then
    tokens = tokens - 1
    redis.call('HSET', key, 'tokens', tokens, 'last_refill', current_time)
    redis.call('EXPIRE', key, window * 2)
    return {1, math.floor(tokens), 0}
else
    local tokens_needed = 1 - tokens
    local retry_after = math.ceil((tokens_needed / rate) * window)
    return {0, 0, retry_after}
end
`

// RateLimitResult is the outcome of a rate-limit check.
type RateLimitResult struct {
	Allowed         bool
	TokensRemaining int64
	RetryAfter      time.Duration
}

func rateLimitKey(userID string) string {
	return "rate_limit:" + userID
}

// CheckRateLimit consumes one token from userID's bucket if available. rate
// is the bucket capacity (and refill rate) over window. On any Redis error
// the limiter fails open — a request is never rejected because the rate
// limiter itself is unavailable.
func (s *Store) CheckRateLimit(ctx context.Context, userID string, rate float64, window time.Duration) RateLimitResult {
	now := float64(time.Now().UnixNano()) / 1e9
	res, err := s.client.Eval(ctx, rateLimitScript, []string{rateLimitKey(userID)},
		rate, durationSeconds(window), now).Result()
	if err != nil {
		slog.Warn("kv: rate limit check failed, failing open", "error", err, "user_id", userID)
		return RateLimitResult{Allowed: true, TokensRemaining: int64(rate)}
	}

	values, ok := res.([]any)
	if !ok || len(values) != 3 {
		slog.Warn("kv: rate limit script returned unexpected shape, failing open", "user_id", userID)
		return RateLimitResult{Allowed: true, TokensRemaining: int64(rate)}
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	retryAfter, _ := values[2].(int64)

	return RateLimitResult{
		Allowed:         allowed == 1,
		TokensRemaining: remaining,
		RetryAfter:      time.Duration(retryAfter) * time.Second,
	}
}

// ResetRateLimit clears userID's bucket, allowing a full refill on the next
// check.
func (s *Store) ResetRateLimit(ctx context.Context, userID string) error {
	return s.client.Del(ctx, rateLimitKey(userID)).Err()
}
