package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker acquires short-lived per-domain provisioning locks.
// The MySQL unique index is the actual duplicate guard; this lock only
// narrows the check-then-create race window between concurrent requests.
type Locker struct {
	client *redis.Client
}

// NewLocker creates a Locker on the shared Redis client
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes the provisioning lock for domain.
// Returns false if another provisioning run holds it.
func (l *Locker) Acquire(ctx context.Context, domain string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, lockKey(domain), time.Now().Unix(), ttl).Result()
}

// Release drops the provisioning lock for domain
func (l *Locker) Release(ctx context.Context, domain string) error {
	return l.client.Del(ctx, lockKey(domain)).Err()
}

func lockKey(domain string) string {
	return keyPrefix + "provision:lock:" + domain
}
