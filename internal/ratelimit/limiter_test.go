package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/clinicsub/internal/config"
	obscontext "github.com/smallbiznis/clinicsub/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T, rate float64, burst int) (*TenantLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := newTenantLimiter(client, config.RateLimitConfig{
		Enabled:       true,
		TenantRate:    rate,
		TenantBurst:   burst,
		CreateLockTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	return limiter, mr
}

func TestAllowTenantEnforcesBurst(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0.01, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.AllowTenant(ctx, 7)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
	}

	res, err := limiter.AllowTenant(ctx, 7)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 2, res.Limit)
	assert.Zero(t, res.Remaining)
	assert.Greater(t, res.RetryAfter, 50*time.Second)

	other, err := limiter.AllowTenant(ctx, 8)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestCreateLockIsExclusivePerTenant(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, 5)
	ctx := context.Background()

	release, ok, err := limiter.Acquire(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = limiter.Acquire(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = limiter.Acquire(ctx, 8)
	require.NoError(t, err)
	assert.True(t, ok)

	release()
	assert.False(t, mr.Exists("clinicsub:lock:subscription_create:7"))

	_, ok, err = limiter.Acquire(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	var limiter *TenantLimiter

	res, err := limiter.AllowTenant(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	release, ok, err := limiter.Acquire(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	release()

	assert.Nil(t, NewCreateGuard(nil))
}

func TestInvalidLimits(t *testing.T) {
	_, err := newTenantLimiter(nil, config.RateLimitConfig{Enabled: true}, zap.NewNop())
	assert.Error(t, err)
}

func TestCreateLockIsOwnedByRequest(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, 5)
	key := "clinicsub:lock:subscription_create:7"

	first := obscontext.WithRequestID(context.Background(), "req-first")
	release, ok, err := limiter.Acquire(first, 7)
	require.NoError(t, err)
	require.True(t, ok)

	owner, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "req-first", owner)
	assert.Equal(t, "req-first", limiter.lock.holder(context.Background(), 7))
	assert.Equal(t, time.Minute, mr.TTL(key))

	// a release from a stale owner must not free someone else's lock
	require.NoError(t, mr.Set(key, "req-second"))
	release()
	assert.True(t, mr.Exists(key))
}

func TestBucketKeyExpiresWhenIdle(t *testing.T) {
	limiter, mr := newTestLimiter(t, 0.5, 3)

	_, err := limiter.AllowTenant(context.Background(), 9)
	require.NoError(t, err)

	key := "clinicsub:ratelimit:tenant:9"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 12*time.Second, mr.TTL(key))
	assert.Equal(t, "2", mr.HGet(key, "tokens"))
}
