package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/clinicsub/internal/config"
	subscriptiondomain "github.com/smallbiznis/clinicsub/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyTenantBucket = "clinicsub:ratelimit:tenant:%s"
	keyCreateLock   = "clinicsub:lock:subscription_create:%s"

	defaultCreateLockTTL = 30 * time.Second
)

// TenantLimiter throttles provider-calling routes per tenant and serializes
// subscription creation per tenant. A nil limiter allows everything.
type TenantLimiter struct {
	bucket *tenantBucket
	lock   *createLock
	log    *zap.Logger
}

func NewTenantLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*TenantLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return newTenantLimiter(client, limitCfg, log)
}

func newTenantLimiter(client *redis.Client, limitCfg config.RateLimitConfig, log *zap.Logger) (*TenantLimiter, error) {
	bucket, err := newTenantBucket(client, limitCfg.TenantRate, limitCfg.TenantBurst)
	if err != nil {
		return nil, err
	}
	return &TenantLimiter{
		bucket: bucket,
		lock:   newCreateLock(client, limitCfg.CreateLockTTL),
		log:    log.Named("ratelimit"),
	}, nil
}

func (l *TenantLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *TenantLimiter) AllowTenant(ctx context.Context, tenantID snowflake.ID) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.take(ctx, tenantID)
}

// Acquire takes the per-tenant create lock. The returned release is always safe to call.
func (l *TenantLimiter) Acquire(ctx context.Context, tenantID snowflake.ID) (func(), bool, error) {
	if !l.Enabled() {
		return func() {}, true, nil
	}

	owner, ok, err := l.lock.tryAcquire(ctx, tenantID)
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		l.log.Info("subscription create already in progress",
			zap.String("tenant_id", tenantID.String()),
			zap.String("holder_request_id", l.lock.holder(ctx, tenantID)),
		)
		return func() {}, false, nil
	}

	release := func() {
		// Released on a fresh context so a canceled request still frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.lock.releaseOwned(releaseCtx, tenantID, owner); err != nil {
			l.log.Warn("failed to release create lock",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
		}
	}
	return release, true, nil
}

// NewCreateGuard exposes the limiter as the lifecycle create guard, or nil when disabled.
func NewCreateGuard(l *TenantLimiter) subscriptiondomain.CreateGuard {
	if !l.Enabled() {
		return nil
	}
	return l
}
