// Package lock provides the Locker implementations used to serialize
// budget alert evaluation and recurring batch runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/vantage-api/internal/port"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when the lock is still held after all retries.
var ErrNotObtained = errors.New("lock not obtained")

const keyPrefix = "vantage:lock:"

// Redis is a distributed Locker backed by redislock.
type Redis struct {
	client  *redislock.Client
	retry   time.Duration
	retries int
}

// NewRedis wraps a go-redis client. Obtain retries every retryEvery up to
// retries times before giving up.
func NewRedis(rdb redis.UniversalClient, retryEvery time.Duration, retries int) *Redis {
	return &Redis{client: redislock.New(rdb), retry: retryEvery, retries: retries}
}

// Obtain implements port.Locker.
func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (port.Lease, error) {
	strategy := redislock.NoRetry()
	if r.retries > 0 {
		strategy = redislock.LimitRetry(redislock.LinearBackoff(r.retry), r.retries)
	}
	l, err := r.client.Obtain(ctx, keyPrefix+key, ttl, &redislock.Options{RetryStrategy: strategy})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return redisLease{l}, nil
}

type redisLease struct {
	lock *redislock.Lock
}

func (l redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		// expired before release; nothing left to free
		return nil
	}
	return err
}

// Local is an in-process keyed mutex used when Redis is not configured.
// The ttl is ignored: a lease lives until released.
type Local struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	maxWait time.Duration
}

// NewLocal creates an empty in-process locker whose Obtain waits as long as
// the context allows.
func NewLocal() *Local {
	return NewLocalWithWait(0)
}

// NewLocalWithWait creates an in-process locker whose Obtain gives up with
// ErrNotObtained after maxWait, like Redis does after its retries. A
// non-positive maxWait means no bound.
func NewLocalWithWait(maxWait time.Duration) *Local {
	return &Local{locks: make(map[string]chan struct{}), maxWait: maxWait}
}

// Obtain blocks until key is free, ctx is done or the wait bound elapses.
func (l *Local) Obtain(ctx context.Context, key string, _ time.Duration) (port.Lease, error) {
	if l.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.maxWait)
		defer cancel()
	}
	for {
		l.mu.Lock()
		held, busy := l.locks[key]
		if !busy {
			ch := make(chan struct{})
			l.locks[key] = ch
			l.mu.Unlock()
			return &localLease{owner: l, key: key, ch: ch}, nil
		}
		l.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotObtained, key, ctx.Err())
		}
	}
}

type localLease struct {
	owner *Local
	key   string
	ch    chan struct{}
	once  sync.Once
}

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.locks, l.key)
		l.owner.mu.Unlock()
		close(l.ch)
	})
	return nil
}
