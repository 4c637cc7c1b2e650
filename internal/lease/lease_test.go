package lease

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestRedisClient returns a Redis client for testing.
// Skips the test if Redis is not available.
func getTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background())
		_ = client.Close()
	})

	return client
}

func TestRedisLease(t *testing.T) {
	client := getTestRedisClient(t)
	ctx := context.Background()

	first := NewRedisLease(client, "test:lease:publisher", 10*time.Second, WithOwner("replica-a"))
	second := NewRedisLease(client, "test:lease:publisher", 10*time.Second, WithOwner("replica-b"))

	ok, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, first.Held())

	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, second.Held())

	assert.ErrorIs(t, second.Renew(ctx), ErrNotHeld)
	require.NoError(t, first.Renew(ctx))

	owner, err := client.Get(ctx, first.Key()).Result()
	require.NoError(t, err)
	assert.Equal(t, "replica-a", owner)

	// Releasing a lease held by someone else leaves the key alone.
	require.NoError(t, second.Release(ctx))
	assert.Equal(t, int64(1), client.Exists(ctx, first.Key()).Val())

	require.NoError(t, first.Release(ctx))
	assert.False(t, first.Held())
	assert.Equal(t, int64(0), client.Exists(ctx, first.Key()).Val())

	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLease_RenewAfterTakeover(t *testing.T) {
	client := getTestRedisClient(t)
	ctx := context.Background()

	l := NewRedisLease(client, "test:lease:takeover", 10*time.Second)
	ok, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, client.Set(ctx, l.Key(), "intruder", 0).Err())

	assert.ErrorIs(t, l.Renew(ctx), ErrNotHeld)
	assert.False(t, l.Held())
}

func TestNewRedisLease_DefaultOwner(t *testing.T) {
	a := NewRedisLease(nil, "k", time.Second)
	b := NewRedisLease(nil, "k", time.Second)
	assert.NotEmpty(t, a.Owner())
	assert.NotEqual(t, a.Owner(), b.Owner())
	assert.Equal(t, "k", a.Key())
}

// fakeLease is an in-memory Lease for testing.
type fakeLease struct {
	acquire    atomic.Bool
	acquireErr error
	renewErr   atomic.Value
	held       atomic.Bool

	acquireCalls atomic.Int32
	renewCalls   atomic.Int32
	releaseCalls atomic.Int32
}

func (f *fakeLease) TryAcquire(ctx context.Context) (bool, error) {
	f.acquireCalls.Add(1)
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	ok := f.acquire.Load()
	if ok {
		f.held.Store(true)
	}
	return ok, nil
}

func (f *fakeLease) Renew(ctx context.Context) error {
	f.renewCalls.Add(1)
	if err, ok := f.renewErr.Load().(error); ok && err != nil {
		f.held.Store(false)
		return err
	}
	return nil
}

func (f *fakeLease) Release(ctx context.Context) error {
	f.releaseCalls.Add(1)
	f.held.Store(false)
	return nil
}

func (f *fakeLease) Held() bool { return f.held.Load() }

func TestPublisher_AcquiresAndReleases(t *testing.T) {
	l := &fakeLease{}
	l.acquire.Store(true)

	var activated, deactivated atomic.Int32
	p := NewPublisher(l, zerolog.Nop(),
		WithRenewInterval(10*time.Millisecond),
		WithOnActive(func() { activated.Add(1) }),
		WithOnInactive(func() { deactivated.Add(1) }),
	)

	p.Start(context.Background())
	require.Eventually(t, p.Active, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return l.renewCalls.Load() > 0 }, time.Second, 5*time.Millisecond)

	p.Stop(context.Background())
	assert.False(t, p.Active())
	assert.Equal(t, int32(1), l.releaseCalls.Load())
	assert.Equal(t, int32(1), activated.Load())
	assert.Equal(t, int32(1), deactivated.Load())

	// Stopping twice is harmless.
	p.Stop(context.Background())
}

func TestPublisher_StandbyWhileOtherHolds(t *testing.T) {
	l := &fakeLease{}

	p := NewPublisher(l, zerolog.Nop(), WithRenewInterval(10*time.Millisecond))
	p.Start(context.Background())
	require.Eventually(t, func() bool { return l.acquireCalls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, p.Active())

	l.acquire.Store(true)
	require.Eventually(t, p.Active, time.Second, 5*time.Millisecond)

	p.Stop(context.Background())
}

func TestPublisher_LosesLease(t *testing.T) {
	l := &fakeLease{}
	l.acquire.Store(true)

	var deactivated atomic.Int32
	p := NewPublisher(l, zerolog.Nop(),
		WithRenewInterval(10*time.Millisecond),
		WithOnInactive(func() { deactivated.Add(1) }),
	)
	p.Start(context.Background())
	require.Eventually(t, p.Active, time.Second, 5*time.Millisecond)

	l.acquire.Store(false)
	l.renewErr.Store(ErrNotHeld)
	require.Eventually(t, func() bool { return !p.Active() }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, deactivated.Load(), int32(1))

	p.Stop(context.Background())
	assert.Equal(t, int32(0), l.releaseCalls.Load())
}

func TestPublisher_AcquireError(t *testing.T) {
	l := &fakeLease{acquireErr: errors.New("connection refused")}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPublisher(l, zerolog.Nop(), WithRenewInterval(10*time.Millisecond))
	p.Start(ctx)
	require.Eventually(t, func() bool { return l.acquireCalls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, p.Active())

	cancel()
	p.Stop(context.Background())
}
