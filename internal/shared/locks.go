package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// FranchiseLockKey builds redis keys for franchise critical sections.
func FranchiseLockKey(franchiseID string) string {
	return fmt.Sprintf("franchise:%s:lock", franchiseID)
}

// ErrLockNotObtained means another writer holds the franchise for longer than we waited.
var ErrLockNotObtained = &DomainError{Kind: KindConflict, Message: "franchise is busy, retry"}

// Locker serialises writers per franchise.
type Locker interface {
	Lock(ctx context.Context, franchiseID string) (release func(), err error)
}

// FranchiseLocker is the Redis backed Locker shared by every node.
type FranchiseLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewFranchiseLocker builds a locker. ttl bounds how long a crashed holder
// can block others; live holders refresh it until release. wait bounds how
// long a caller queues for the lock.
func NewFranchiseLocker(rdb redis.UniversalClient, ttl, wait time.Duration) *FranchiseLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &FranchiseLocker{client: redislock.New(rdb), ttl: ttl, wait: wait}
}

// Lock obtains the franchise lock, retrying with linear backoff until wait elapses.
func (l *FranchiseLocker) Lock(ctx context.Context, franchiseID string) (func(), error) {
	if err := RequireFranchise(franchiseID); err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	lock, err := l.client.Obtain(waitCtx, FranchiseLockKey(franchiseID), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockNotObtained
		}
		return nil, fmt.Errorf("shared: obtain franchise lock: %w", err)
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(context.WithoutCancel(ctx), lock, done)
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			_ = lock.Release(context.WithoutCancel(ctx))
		})
	}, nil
}

// keepAlive extends the lock every half TTL until done closes, so a holder
// running longer than the TTL keeps exclusive access. It stops once a
// refresh fails since the lock is then lost.
func (l *FranchiseLocker) keepAlive(ctx context.Context, lock *redislock.Lock, done <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := lock.Refresh(ctx, l.ttl, nil); err != nil {
				return
			}
		}
	}
}

// Acquire locks the franchise when a locker is configured. A nil locker
// means a single writer process and returns a no-op release.
func Acquire(ctx context.Context, l Locker, franchiseID string) (func(), error) {
	if err := RequireFranchise(franchiseID); err != nil {
		return nil, err
	}
	if l == nil {
		return func() {}, nil
	}
	return l.Lock(ctx, franchiseID)
}
