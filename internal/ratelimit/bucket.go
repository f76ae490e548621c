package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
)

// takeTokenScript refills the tenant's bucket from the Redis clock and takes one
// token. It returns {allowed, whole tokens left, retry after in ms}.
const takeTokenScript = `
local per_ms = tonumber(ARGV[1]) / 1000
local burst = tonumber(ARGV[2])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) * per_ms)
end

local allowed = 0
local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  wait = math.ceil((1 - tokens) / per_ms)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {allowed, math.floor(tokens), wait}
`

// Decision is the outcome of one tenant request against its bucket.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// tenantBucket is a token bucket per clinic, shared by every replica through Redis.
type tenantBucket struct {
	client *redis.Client
	script *redis.Script
	rate   float64
	burst  int
	idle   time.Duration
}

func newTenantBucket(client *redis.Client, rate float64, burst int) (*tenantBucket, error) {
	if rate <= 0 || burst <= 0 {
		return nil, errors.New("tenant rate limit must be positive")
	}
	return &tenantBucket{
		client: client,
		script: redis.NewScript(takeTokenScript),
		rate:   rate,
		burst:  burst,
		idle:   bucketIdleTTL(rate, burst),
	}, nil
}

func (b *tenantBucket) take(ctx context.Context, tenantID snowflake.ID) (Decision, error) {
	key := fmt.Sprintf(keyTenantBucket, tenantID.String())
	out, err := b.script.Run(ctx, b.client, []string{key}, b.rate, b.burst, b.idle.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(out) != 3 {
		return Decision{}, fmt.Errorf("tenant bucket: unexpected reply of %d values", len(out))
	}
	return Decision{
		Allowed:    out[0] == 1,
		Limit:      b.burst,
		Remaining:  int(out[1]),
		RetryAfter: time.Duration(out[2]) * time.Millisecond,
	}, nil
}

// bucketIdleTTL keeps a bucket around for twice its full refill time, so an
// expired key is indistinguishable from a full bucket.
func bucketIdleTTL(rate float64, burst int) time.Duration {
	seconds := math.Max(1, math.Ceil(2*float64(burst)/rate))
	return time.Duration(seconds) * time.Second
}
