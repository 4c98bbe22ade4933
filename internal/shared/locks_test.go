package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl, wait time.Duration) (*FranchiseLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFranchiseLocker(rdb, ttl, wait), mr
}

func TestFranchiseLockExcludesOtherWriters(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second, 100*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Lock(ctx, "fr-1")
	require.NoError(t, err)
	require.True(t, mr.Exists(FranchiseLockKey("fr-1")))

	_, err = locker.Lock(ctx, "fr-1")
	require.ErrorIs(t, err, ErrLockNotObtained)
	other, err := locker.Lock(ctx, "fr-2")
	require.NoError(t, err)
	other()

	release()
	release()
	require.False(t, mr.Exists(FranchiseLockKey("fr-1")))
	again, err := locker.Lock(ctx, "fr-1")
	require.NoError(t, err)
	again()

	_, err = locker.Lock(ctx, " ")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestFranchiseLockOutlivesTTLWhileHeld(t *testing.T) {
	ttl := 100 * time.Millisecond
	locker, mr := newTestLocker(t, ttl, 50*time.Millisecond)
	ctx := context.Background()
	key := FranchiseLockKey("fr-1")

	release, err := locker.Lock(ctx, "fr-1")
	require.NoError(t, err)

	// without refreshes the key would be gone after 160ms of redis time
	mr.FastForward(80 * time.Millisecond)
	time.Sleep(3 * ttl / 2)
	mr.FastForward(80 * time.Millisecond)
	require.True(t, mr.Exists(key))

	_, err = locker.Lock(ctx, "fr-1")
	require.ErrorIs(t, err, ErrLockNotObtained)

	release()
	require.False(t, mr.Exists(key))
}
