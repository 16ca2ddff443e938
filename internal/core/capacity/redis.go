package capacity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "parley:quota:"

// checkScript runs the whole purge-count-record sequence server side so
// the check stays atomic across processes. Scores are microseconds since
// epoch. Returns {allowed, remaining, oldest_score}.
var checkScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, 0, oldest[2]}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, math.ceil(window / 1000) + 1000)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {1, limit - count - 1, oldest[2]}
`)

// RedisStore is the primary Store, shared across processes.
type RedisStore struct {
	Client  redis.UniversalClient
	Clock   func() time.Time
	Timeout time.Duration
	Prefix  string
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client redis.UniversalClient, timeout time.Duration) *RedisStore {
	return &RedisStore{Client: client, Timeout: timeout, Prefix: defaultKeyPrefix}
}

// CheckAndIncrement implements Store.
func (r *RedisStore) CheckAndIncrement(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	if r == nil || r.Client == nil {
		return Decision{}, fmt.Errorf("redis capacity store is not initialized")
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	now := r.now()
	prefix := r.Prefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	raw, err := checkScript.Run(ctx, r.Client,
		[]string{prefix + key},
		now.UnixMicro(),
		window.Microseconds(),
		limit,
		uuid.New().String(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("capacity check for %q: %w", key, err)
	}

	reply, ok := raw.([]any)
	if !ok || len(reply) != 3 {
		return Decision{}, fmt.Errorf("capacity check for %q: unexpected reply %T", key, raw)
	}

	allowed, _ := reply[0].(int64)
	remaining, _ := reply[1].(int64)

	oldest := now
	if s, ok := reply[2].(string); ok {
		if micros, err := strconv.ParseFloat(s, 64); err == nil {
			oldest = time.UnixMicro(int64(micros)).UTC()
		}
	}

	return Decision{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetAt:   oldest.Add(window),
	}, nil
}

func (r *RedisStore) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
