package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sliding window over a sorted set, evaluated atomically.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count + 1 > limit then
  return {0, count}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, math.ceil(window / 1000000))
return {1, count + 1}
`)

// RedisLimiter is a sliding window limiter shared by every API instance.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (r *RedisLimiter) Window() time.Duration { return r.window }

// Take records one request in the window for key.
func (r *RedisLimiter) Take(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	res, err := slidingWindowScript.Run(ctx, r.client, []string{r.prefix + key},
		now, r.window.Nanoseconds(), r.limit, uuid.NewString()).Result()
	if err != nil {
		return false, fmt.Errorf("sliding window script: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return false, fmt.Errorf("unexpected redis script result: %v", res)
	}
	allowed, _ := vals[0].(int64)
	return allowed == 1, nil
}
