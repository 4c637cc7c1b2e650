// Package lease elects the single watcher instance that publishes resolution
// results when several replicas watch the same snapshot.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when renewing a lease this instance does not hold.
var ErrNotHeld = errors.New("lease not held")

// Lease is a time-limited exclusive claim. Implementations must be safe for
// concurrent use.
type Lease interface {
	// TryAcquire claims the lease if nobody holds it.
	TryAcquire(ctx context.Context) (bool, error)

	// Renew extends the lease. It returns ErrNotHeld once the claim has
	// expired or was taken over.
	Renew(ctx context.Context) error

	// Release gives up the lease. Releasing a lease that is not held is a
	// no-op.
	Release(ctx context.Context) error

	// Held reports whether this instance believes it holds the lease.
	Held() bool
}

// Scripts compare the stored owner before touching the key.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLease is a Lease stored under one Redis key whose value names the
// owner.
type RedisLease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration

	mu   sync.RWMutex
	held bool
}

// RedisLeaseOption configures a RedisLease.
type RedisLeaseOption func(*RedisLease)

// WithOwner sets the owner recorded in Redis. It defaults to a random UUID.
func WithOwner(owner string) RedisLeaseOption {
	return func(l *RedisLease) {
		l.owner = owner
	}
}

// NewRedisLease creates a lease on key that expires after ttl unless renewed.
func NewRedisLease(client *redis.Client, key string, ttl time.Duration, opts ...RedisLeaseOption) *RedisLease {
	l := &RedisLease{
		client: client,
		key:    key,
		ttl:    ttl,
		owner:  uuid.New().String(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryAcquire implements Lease with SET NX PX.
func (l *RedisLease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if ok {
		l.setHeld(true)
	}
	return ok, nil
}

// Renew implements Lease.
func (l *RedisLease) Renew(ctx context.Context) error {
	if !l.Held() {
		return ErrNotHeld
	}

	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("renew lease %s: %w", l.key, err)
	}
	if n == 0 {
		l.setHeld(false)
		return ErrNotHeld
	}
	return nil
}

// Release implements Lease.
func (l *RedisLease) Release(ctx context.Context) error {
	if !l.Held() {
		return nil
	}

	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int64()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	if n == 1 {
		l.setHeld(false)
	}
	return nil
}

// Held implements Lease.
func (l *RedisLease) Held() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.held
}

// Owner returns the owner value written to Redis.
func (l *RedisLease) Owner() string {
	return l.owner
}

// Key returns the Redis key.
func (l *RedisLease) Key() string {
	return l.key
}

func (l *RedisLease) setHeld(held bool) {
	l.mu.Lock()
	l.held = held
	l.mu.Unlock()
}
