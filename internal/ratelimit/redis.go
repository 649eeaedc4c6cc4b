package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// hitScript evicts, counts and records in one round trip so instances sharing
// a redis see a single quota. Scores are unix milliseconds.
var hitScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[5])
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, count, tonumber(oldest[2])}
end
redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[2])
return {1, count + 1, 0}
`)

// Redis is a Store backed by one sorted set per client.
type Redis struct {
	client *redis.Client
	policy Policy
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, p Policy, prefix string) *Redis {
	if prefix == "" {
		prefix = "wiremsg:ratelimit"
	}
	return &Redis{client: client, policy: p, prefix: prefix}
}

// NewRedisFromURL parses url and connects.
func NewRedisFromURL(ctx context.Context, url string, p Policy, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, p, prefix), nil
}

// Hit implements Store.
func (r *Redis) Hit(ctx context.Context, key string, now time.Time) (Decision, error) {
	if r.policy.Limit <= 0 {
		return Decision{Allowed: true}, nil
	}
	nowMs := now.UnixMilli()
	windowMs := r.policy.Window.Milliseconds()

	reply, err := hitScript.Run(ctx, r.client, []string{r.key(key)},
		nowMs, windowMs, r.policy.Limit, uuid.NewString(),
		"("+strconv.FormatInt(nowMs-windowMs, 10),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis error: %w", err)
	}
	res, ok := int64s(reply)
	if !ok || len(res) != 3 {
		return Decision{}, fmt.Errorf("redis error: unexpected reply %v", reply)
	}

	d := Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		Limit:   r.policy.Limit,
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[2]+windowMs-nowMs) * time.Millisecond
	}
	return d, nil
}

// Sweep implements Store. Keys expire one window after their last hit, so
// there is nothing to do here.
func (r *Redis) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Reset clears the quota of a client.
func (r *Redis) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(client string) string {
	return r.prefix + ":" + client
}

func int64s(vals []interface{}) ([]int64, bool) {
	out := make([]int64, len(vals))
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
