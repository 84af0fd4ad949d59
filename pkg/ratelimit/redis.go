package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisBucketScript performs refill and consume atomically so concurrent
// Shell processes sharing a downstream alias bucket never race.
//
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens/sec)
// ARGV[2] = capacity
// ARGV[3] = cost
// ARGV[4] = now (unix seconds, float)
var redisBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed*rate)
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisStore implements Store against a shared Redis instance, for
// operators running the downstream alias limiter out of process.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore dials addr lazily (go-redis connects on first command).
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		prefix: "axiom:ratelimit:",
	}
}

// Allow implements Store.
func (s *RedisStore) Allow(ctx context.Context, key string, policy Policy, cost int) (bool, error) {
	rate := policy.RPS
	if rate <= 0 {
		rate = 1
	}
	burst := policy.Burst
	if burst <= 0 {
		burst = 1
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := redisBucketScript.Run(ctx, s.client, []string{s.prefix + key}, rate, burst, cost, now).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis error: %w", err)
	}
	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("ratelimit: unexpected redis script reply")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
