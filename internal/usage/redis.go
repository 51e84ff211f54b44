package usage

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces counter hashes.
const DefaultRedisPrefix = "tubekit:usage"

// redisIncrBelowScript bumps a tool field only while it is below ARGV[2].
// Returns {count, applied}.
var redisIncrBelowScript = redis.NewScript(`
local field = ARGV[1]
local limit = tonumber(ARGV[2])
local current = tonumber(redis.call("HGET", KEYS[1], field) or "0")
if current >= limit then
  return {current, 0}
end
current = redis.call("HINCRBY", KEYS[1], field, 1)
redis.call("HSET", KEYS[1], field .. ":at", ARGV[3])
return {current, 1}
`)

// RedisStore keeps one hash per subject with a field per tool.
// The last-use time lives in a sibling field named "<tool>:at".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get returns the counter for subjectKey and toolID.
func (s *RedisStore) Get(ctx context.Context, subjectKey, toolID string) (Counter, bool, error) {
	values, errGet := s.client.HMGet(ctx, s.key(subjectKey), toolID, toolID+":at").Result()
	if errGet != nil {
		return Counter{}, false, unavailable("get", errGet)
	}
	if len(values) == 0 || values[0] == nil {
		return Counter{}, false, nil
	}
	count, errParse := parseRedisInt(values[0])
	if errParse != nil {
		return Counter{}, false, unavailable("get", errParse)
	}
	counter := Counter{SubjectKey: subjectKey, ToolID: toolID, Count: count}
	if len(values) > 1 && values[1] != nil {
		if at, errAt := parseRedisInt(values[1]); errAt == nil {
			counter.UpdatedAt = time.UnixMilli(at).UTC()
		}
	}
	return counter, true, nil
}

// Increment runs HINCRBY, which is atomic on the server.
func (s *RedisStore) Increment(ctx context.Context, subjectKey, toolID string) (Counter, error) {
	if errKey := validateKey(subjectKey, toolID); errKey != nil {
		return Counter{}, errKey
	}
	now := time.Now().UTC()
	key := s.key(subjectKey)
	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, toolID, 1)
	pipe.HSet(ctx, key, toolID+":at", now.UnixMilli())
	if _, errExec := pipe.Exec(ctx); errExec != nil {
		return Counter{}, unavailable("increment", errExec)
	}
	return Counter{SubjectKey: subjectKey, ToolID: toolID, Count: incr.Val(), UpdatedAt: now}, nil
}

// IncrementBelow runs the check and HINCRBY in one server-side script.
func (s *RedisStore) IncrementBelow(ctx context.Context, subjectKey, toolID string, limit int64) (Counter, bool, error) {
	if errKey := validateKey(subjectKey, toolID); errKey != nil {
		return Counter{}, false, errKey
	}
	now := time.Now().UTC()
	raw, errRun := redisIncrBelowScript.Run(ctx, s.client, []string{s.key(subjectKey)}, toolID, limit, now.UnixMilli()).Result()
	if errRun != nil {
		return Counter{}, false, unavailable("increment", errRun)
	}
	values, ok := raw.([]any)
	if !ok || len(values) != 2 {
		return Counter{}, false, unavailable("increment", errors.New("unexpected script response"))
	}
	count, errCount := parseRedisInt(values[0])
	if errCount != nil {
		return Counter{}, false, unavailable("increment", errCount)
	}
	applied, errApplied := parseRedisInt(values[1])
	if errApplied != nil {
		return Counter{}, false, unavailable("increment", errApplied)
	}
	counter := Counter{SubjectKey: subjectKey, ToolID: toolID, Count: count}
	if applied == 1 {
		counter.UpdatedAt = now
	}
	return counter, applied == 1, nil
}

// Reset removes the tool fields from the subject hash.
func (s *RedisStore) Reset(ctx context.Context, subjectKey, toolID string) error {
	if errDel := s.client.HDel(ctx, s.key(subjectKey), toolID, toolID+":at").Err(); errDel != nil {
		return unavailable("reset", errDel)
	}
	return nil
}

// List scans subject hashes under the prefix.
func (s *RedisStore) List(ctx context.Context, filter ListFilter) ([]Counter, error) {
	pattern := s.prefix + ":" + filter.SubjectPrefix + "*"
	var out []Counter
	iter := s.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		redisKey := iter.Val()
		fields, errAll := s.client.HGetAll(ctx, redisKey).Result()
		if errAll != nil {
			return nil, unavailable("list", errAll)
		}
		subjectKey := strings.TrimPrefix(redisKey, s.prefix+":")
		for field, raw := range fields {
			if strings.HasSuffix(field, ":at") {
				continue
			}
			count, errParse := strconv.ParseInt(raw, 10, 64)
			if errParse != nil {
				continue
			}
			counter := Counter{SubjectKey: subjectKey, ToolID: field, Count: count}
			if at, errAt := strconv.ParseInt(fields[field+":at"], 10, 64); errAt == nil {
				counter.UpdatedAt = time.UnixMilli(at).UTC()
			}
			if filter.matches(counter) {
				out = append(out, counter)
			}
		}
	}
	if errIter := iter.Err(); errIter != nil {
		return nil, unavailable("list", errIter)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RedisStore) key(subjectKey string) string {
	return s.prefix + ":" + subjectKey
}

func parseRedisInt(v any) (int64, error) {
	switch value := v.(type) {
	case string:
		return strconv.ParseInt(value, 10, 64)
	case int64:
		return value, nil
	default:
		return 0, errors.New("usage redis: unexpected response type")
	}
}
