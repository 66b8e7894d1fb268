package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// releaseScript deletes KEYS[1] only while it still holds the owner token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// lockReleaseTimeout bounds the release round trip; the caller's context may
// already be done when it unlocks.
const lockReleaseTimeout = 5 * time.Second

// LockManager implements domain.LockManager with owner-tokened SET NX keys
// under a namespace, so ledgers sharing one Redis never contend.
type LockManager struct {
	rdb       *redis.Client
	namespace string
}

// NewLockManager creates a LockManager. Lock keys are namespace+"lock:"+key.
func NewLockManager(c *Client, namespace string) *LockManager {
	return &LockManager{rdb: c.Underlying(), namespace: namespace}
}

// Lease is a held lock. Key is the Redis key holding it and Token the value
// that proves ownership while the lease lasts.
type Lease struct {
	Key   string
	Token string

	rdb  *redis.Client
	once sync.Once
}

// Release deletes the lock if l still owns it. Calling it more than once is
// harmless.
func (l *Lease) Release() {
	l.once.Do(func() {
		rctx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
		defer cancel()
		_ = releaseScript.Run(rctx, l.rdb, []string{l.Key}, l.Token).Err()
	})
}

// Lease takes the lock for key or returns domain.ErrLockHeld.
func (lm *LockManager) Lease(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	l := &Lease{Key: lm.namespace + "lock:" + key, Token: uuid.NewString(), rdb: lm.rdb}
	won, err := lm.rdb.SetNX(ctx, l.Key, l.Token, ttl).Result()
	switch {
	case err != nil:
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	case !won:
		return nil, domain.ErrLockHeld
	}
	return l, nil
}

// Acquire takes the lock for key or returns domain.ErrLockHeld. Calling the
// returned release more than once is harmless.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l, err := lm.Lease(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return l.Release, nil
}

// LeaseWait polls until the lock for key is free, doubling the poll interval
// up to eight times its starting value. It gives up with domain.ErrLockHeld
// after wait, or with the context error when ctx ends first.
func (lm *LockManager) LeaseWait(ctx context.Context, key string, ttl, wait, poll time.Duration) (*Lease, error) {
	var l *Lease
	err := retryHeld(ctx, key, wait, poll, func() error {
		var err error
		l, err = lm.Lease(ctx, key, ttl)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// retryHeld calls try until it stops failing with domain.ErrLockHeld, backing
// off from poll to eight times poll.
func retryHeld(ctx context.Context, key string, wait, poll time.Duration, try func() error) error {
	deadline := time.Now().Add(wait)
	maxPoll := 8 * poll
	for {
		err := try()
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return err
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
		poll = min(2*poll, maxPoll)
	}
}

var _ domain.LockManager = (*LockManager)(nil)
