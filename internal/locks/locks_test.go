package locks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-importer/internal/common/errors"
)

func setupLocker(t *testing.T, expiry time.Duration) (*RedsyncLocker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	locker, err := NewRedsyncLocker(client, "catalog:", expiry, nil)
	require.NoError(t, err)
	return locker, mr
}

func TestRedsyncLocker_AcquireAndRelease(t *testing.T) {
	locker, mr := setupLocker(t, 0)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "import")
	require.NoError(t, err)
	assert.Equal(t, "catalog:lock:import", lock.Key())
	assert.True(t, lock.IsHeld())
	assert.True(t, mr.Exists("catalog:lock:import"))

	require.NoError(t, lock.Release(ctx))
	assert.False(t, lock.IsHeld())
	assert.False(t, mr.Exists("catalog:lock:import"))

	assert.NoError(t, lock.Release(ctx))
}

func TestRedsyncLocker_Contention(t *testing.T) {
	locker, _ := setupLocker(t, 0)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "import")
	require.NoError(t, err)
	defer first.Release(ctx)

	second, err := locker.Acquire(ctx, "import")
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, errors.IsFatal(err))

	other, err := locker.Acquire(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))
}

func TestRedsyncLocker_ReacquireAfterRelease(t *testing.T) {
	locker, _ := setupLocker(t, 0)
	ctx := context.Background()

	first, err := locker.Acquire(ctx, "import")
	require.NoError(t, err)
	require.NoError(t, first.Release(ctx))

	second, err := locker.Acquire(ctx, "import")
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestRedsyncLocker_LostLockStopsRenewal(t *testing.T) {
	locker, mr := setupLocker(t, 300*time.Millisecond)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "import")
	require.NoError(t, err)
	defer lock.Release(ctx)

	mr.Del("catalog:lock:import")

	require.Eventually(t, func() bool { return !lock.IsHeld() }, 2*time.Second, 20*time.Millisecond)
	select {
	case <-lock.Lost():
	case <-time.After(time.Second):
		t.Fatal("Lost was not closed")
	}
}

func TestRedsyncLocker_ReleaseDoesNotReportLoss(t *testing.T) {
	locker, _ := setupLocker(t, 0)
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "import")
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))

	select {
	case <-lock.Lost():
		t.Fatal("Lost closed on release")
	default:
	}
}

func TestGuard_CancelsWhenLockIsLost(t *testing.T) {
	locker, mr := setupLocker(t, 300*time.Millisecond)

	lock, err := locker.Acquire(context.Background(), "import")
	require.NoError(t, err)
	defer lock.Release(context.Background())

	ctx, cancel := Guard(context.Background(), lock)
	defer cancel()
	assert.NoError(t, ctx.Err())

	mr.Del("catalog:lock:import")

	require.Eventually(t, func() bool { return ctx.Err() != nil }, 2*time.Second, 20*time.Millisecond)
	assert.ErrorIs(t, context.Cause(ctx), ErrLockLost)
}

func TestGuard_ParentCancellation(t *testing.T) {
	lock, err := NopLocker{}.Acquire(context.Background(), "import")
	require.NoError(t, err)

	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := Guard(parent, lock)
	defer cancel()

	cancelParent()
	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
	assert.NotErrorIs(t, context.Cause(ctx), ErrLockLost)
}

func TestNewRedsyncLocker_RequiresClient(t *testing.T) {
	_, err := NewRedsyncLocker(nil, "", 0, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestNopLocker(t *testing.T) {
	ctx := context.Background()
	lock, err := NopLocker{}.Acquire(ctx, "import")
	require.NoError(t, err)
	assert.Equal(t, "import", lock.Key())
	assert.True(t, lock.IsHeld())
	assert.Nil(t, lock.Lost())
	require.NoError(t, lock.Release(ctx))
	assert.False(t, lock.IsHeld())
}
