package bucket

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"selfsignup/internal/ratelimit/models"
)

// allowScript trims the window, then admits the request when under limit.
// Returns {allowed, count, oldest_ms}.
var allowScript = redis.NewScript(`
	local now = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
	local count = redis.call('ZCARD', KEYS[1])
	local allowed = 0
	if count < limit then
		redis.call('ZADD', KEYS[1], now, ARGV[4])
		count = count + 1
		allowed = 1
	end
	redis.call('PEXPIRE', KEYS[1], window)
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	local oldestScore = now
	if oldest[2] then
		oldestScore = tonumber(oldest[2])
	end
	return {allowed, count, oldestScore}
`)

// RedisBucketStore shares sliding windows across instances.
type RedisBucketStore struct {
	client *redis.Client
	clock  func() time.Time
}

func NewRedisBucketStore(client *redis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client, clock: time.Now}
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.clock()
	res, err := allowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis ratelimit: allow failed: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("redis ratelimit: unexpected result %v", res)
	}

	resetAt := time.UnixMilli(res[2]).Add(window)
	if res[0] == 0 {
		return models.Denied(limit, resetAt, now), nil
	}
	return &models.RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - int(res[1]),
		ResetAt:   resetAt,
	}, nil
}
