package controlplane

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return rdb, mr
}

func TestUpdateLock_AcquireThenReleaseAllowsReacquire(t *testing.T) {
	rdb, _ := newTestRedis(t)
	lock := NewUpdateLock(rdb)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, lock.Release(ctx, "w1"))

	acquired, err = lock.Acquire(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestUpdateLock_SecondAcquireWhileHeldFails(t *testing.T) {
	rdb, _ := newTestRedis(t)
	lock := NewUpdateLock(rdb)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = lock.Acquire(ctx, "w1")
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestUpdateLock_DifferentWorkersDoNotContend(t *testing.T) {
	rdb, _ := newTestRedis(t)
	lock := NewUpdateLock(rdb)
	ctx := context.Background()

	a, err := lock.Acquire(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, a)

	b, err := lock.Acquire(ctx, "w2")
	require.NoError(t, err)
	assert.True(t, b)
}
