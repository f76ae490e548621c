package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	obscontext "github.com/smallbiznis/clinicsub/internal/observability/context"
)

const releaseIfOwnerScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// createLock marks one subscription create in flight per clinic. The value is
// the owning request id, so a rejected caller can tell who holds it.
type createLock struct {
	client  *redis.Client
	release *redis.Script
	ttl     time.Duration
}

func newCreateLock(client *redis.Client, ttl time.Duration) *createLock {
	if ttl <= 0 {
		ttl = defaultCreateLockTTL
	}
	return &createLock{
		client:  client,
		release: redis.NewScript(releaseIfOwnerScript),
		ttl:     ttl,
	}
}

func (l *createLock) key(tenantID snowflake.ID) string {
	return fmt.Sprintf(keyCreateLock, tenantID.String())
}

// tryAcquire returns the owner token when the lock was taken.
func (l *createLock) tryAcquire(ctx context.Context, tenantID snowflake.ID) (string, bool, error) {
	owner := obscontext.RequestIDFromContext(ctx)
	if owner == "" {
		owner = uuid.NewString()
	}
	ok, err := l.client.SetNX(ctx, l.key(tenantID), owner, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return owner, ok, nil
}

// holder reports the request id currently holding the clinic's lock, if any.
func (l *createLock) holder(ctx context.Context, tenantID snowflake.ID) string {
	owner, err := l.client.Get(ctx, l.key(tenantID)).Result()
	if err != nil {
		return ""
	}
	return owner
}

func (l *createLock) releaseOwned(ctx context.Context, tenantID snowflake.ID, owner string) error {
	return l.release.Run(ctx, l.client, []string{l.key(tenantID)}, owner).Err()
}
