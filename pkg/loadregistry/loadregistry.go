// Package loadregistry tracks ephemeral per-worker CPU/memory telemetry in
// Redis with a TTL, so worker liveness is defined by key presence rather
// than a durable status field.
package loadregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ttl is the liveness window for a telemetry record (spec.md §4.2).
const ttl = 15 * time.Second

const keyPrefix = "reconctl:worker:"

// Telemetry is one worker's most recently reported load sample.
type Telemetry struct {
	WorkerID   string    `json:"worker_id"`
	CPUPercent float64   `json:"cpu_percent"`
	MemPercent float64   `json:"mem_percent"`
	LastSeen   time.Time `json:"last_seen"`
}

// WorkerLiveness is the capability pkg/dispatcher depends on, satisfied by
// Registry. Breaking the dependency on this interface (rather than *Registry
// directly) avoids the dispatcher<->load-registry cyclic-import pressure
// described in spec.md §9.
type WorkerLiveness interface {
	IsOnline(ctx context.Context, workerID string) (bool, error)
	GetAll(ctx context.Context, workerIDs []string) (map[string]Telemetry, error)
}

// Registry is a Redis-backed implementation of WorkerLiveness plus the
// mutation operations from spec.md §4.2.
type Registry struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Registry {
	return &Registry{rdb: rdb}
}

func key(workerID string) string {
	return keyPrefix + workerID
}

// Update upserts a worker's telemetry and refreshes its TTL.
func (r *Registry) Update(ctx context.Context, workerID string, cpu, mem float64) error {
	t := Telemetry{WorkerID: workerID, CPUPercent: cpu, MemPercent: mem, LastSeen: time.Now()}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("loadregistry: marshal telemetry: %w", err)
	}
	if err := r.rdb.Set(ctx, key(workerID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("loadregistry: update %s: %w", workerID, err)
	}
	return nil
}

// GetAll batch-fetches telemetry for the given worker ids. Missing or
// expired keys are simply absent from the result map.
func (r *Registry) GetAll(ctx context.Context, workerIDs []string) (map[string]Telemetry, error) {
	result := make(map[string]Telemetry, len(workerIDs))
	if len(workerIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(workerIDs))
	for i, id := range workerIDs {
		keys[i] = key(id)
	}

	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loadregistry: get_all: %w", err)
	}

	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		var t Telemetry
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			continue
		}
		result[workerIDs[i]] = t
	}
	return result, nil
}

// IsOnline reports whether a worker has an unexpired telemetry record.
func (r *Registry) IsOnline(ctx context.Context, workerID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key(workerID)).Result()
	if err != nil {
		return false, fmt.Errorf("loadregistry: is_online %s: %w", workerID, err)
	}
	return n > 0, nil
}

// Delete removes a worker's telemetry record immediately.
func (r *Registry) Delete(ctx context.Context, workerID string) error {
	if err := r.rdb.Del(ctx, key(workerID)).Err(); err != nil {
		return fmt.Errorf("loadregistry: delete %s: %w", workerID, err)
	}
	return nil
}

var _ WorkerLiveness = (*Registry)(nil)
