package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// The window starts with the first INCR; PTTL then tells when it resets.
var redisIncrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLimiter implements a fixed-window rate limiter backed by Redis.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Allow checks whether the request fits in the key's current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" || window <= 0 || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}
	res, errEval := redisIncrScript.Run(ctx, l.client, []string{l.buildKey(key)}, window.Milliseconds()).Result()
	if errEval != nil {
		return Result{}, errEval
	}
	values, ok := res.([]any)
	if !ok || len(values) != 2 {
		return Result{}, errors.New("rate limit redis: unexpected response shape")
	}
	count, okCount := toInt64(values[0])
	ttl, okTTL := toInt64(values[1])
	if !okCount || !okTTL {
		return Result{}, errors.New("rate limit redis: unexpected response type")
	}
	reset := now.Add(time.Duration(ttl) * time.Millisecond).UTC()
	if count > int64(limit) {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, Reset: reset}, nil
}

func (l *RedisLimiter) buildKey(key string) string {
	prefix := strings.TrimSpace(l.prefix)
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

func toInt64(v any) (int64, bool) {
	switch value := v.(type) {
	case int64:
		return value, true
	case int:
		return int64(value), true
	case uint64:
		return int64(value), true
	default:
		return 0, false
	}
}
