package controlplane

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// updateLockTTL is the distributed lock window guarding remote-update
// dispatch (spec.md §4.9: "keyed on worker-id with a 60-second TTL").
const updateLockTTL = 60 * time.Second

const updateLockPrefix = "reconctl:update-lock:"

// UpdateLock is a Redis SET-NX-with-TTL mutual-exclusion lock, one per
// worker, preventing concurrent heartbeats from both triggering a
// remote-update dispatch for the same worker.
type UpdateLock struct {
	rdb *redis.Client
}

// NewUpdateLock wraps an existing Redis client.
func NewUpdateLock(rdb *redis.Client) *UpdateLock {
	return &UpdateLock{rdb: rdb}
}

// Acquire reports whether it won the lock for workerID. A losing caller
// should skip dispatching its own update attempt.
func (l *UpdateLock) Acquire(ctx context.Context, workerID string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, updateLockPrefix+workerID, 1, updateLockTTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release drops the lock early, once the update attempt it guarded has
// finished. Safe to call even if the lock already expired.
func (l *UpdateLock) Release(ctx context.Context, workerID string) error {
	return l.rdb.Del(ctx, updateLockPrefix+workerID).Err()
}
