// Package workerregistry is the durable store of WorkerNode rows and the
// state-machine transitions driven by heartbeats and remote-update outcomes
// (spec.md §4.3).
package workerregistry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xingrin/reconctl/pkg/loadregistry"
	"github.com/xingrin/reconctl/pkg/log"
	"github.com/xingrin/reconctl/pkg/types"
)

// Uninstaller fires the best-effort SSH-uninstall task on worker deletion.
// Satisfied by pkg/dispatcher's SSH transport; held as an interface here to
// avoid workerregistry importing dispatcher.
type Uninstaller interface {
	Uninstall(ctx context.Context, worker types.WorkerNode)
}

// Registry is the Postgres-backed WorkerNode store.
type Registry struct {
	pool   *pgxpool.Pool
	loads  loadregistry.WorkerLiveness
	uninst Uninstaller
}

// New wraps an existing pgxpool.Pool. loads and uninst may be nil in tests
// that don't exercise Delete.
func New(pool *pgxpool.Pool, loads loadregistry.WorkerLiveness, uninst Uninstaller) *Registry {
	return &Registry{pool: pool, loads: loads, uninst: uninst}
}

// Init creates the worker_nodes table. Safe to call repeatedly.
func (r *Registry) Init(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS worker_nodes (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL UNIQUE,
			is_local      BOOLEAN NOT NULL,
			ip_address    TEXT NOT NULL DEFAULT '',
			ssh_user      TEXT NOT NULL DEFAULT '',
			ssh_password  TEXT NOT NULL DEFAULT '',
			ssh_port      INTEGER NOT NULL DEFAULT 22,
			status        TEXT NOT NULL,
			agent_version TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("workerregistry: init: %w", err)
	}
	return nil
}

// Register is idempotent by name: INSERT ... ON CONFLICT DO NOTHING RETURNING,
// then a re-select when the insert was a no-op, so created is reported
// accurately rather than assumed from the row's existence alone.
func (r *Registry) Register(ctx context.Context, name string, isLocal bool) (types.WorkerNode, bool, error) {
	now := time.Now().UTC()
	w := types.WorkerNode{
		ID:        uuid.NewString(),
		Name:      name,
		IsLocal:   isLocal,
		Status:    types.WorkerStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO worker_nodes (id, name, is_local, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name, is_local, ip_address, ssh_user, ssh_password, ssh_port, status, agent_version, created_at, updated_at`,
		w.ID, w.Name, w.IsLocal, w.Status, w.CreatedAt, w.UpdatedAt)

	inserted, err := scanWorker(row)
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return types.WorkerNode{}, false, fmt.Errorf("workerregistry: register %s: %w", name, err)
	}

	existing, err := r.GetByName(ctx, name)
	if err != nil {
		return types.WorkerNode{}, false, fmt.Errorf("workerregistry: register %s: re-select: %w", name, err)
	}
	return existing, false, nil
}

// GetByName fetches a worker by its unique name.
func (r *Registry) GetByName(ctx context.Context, name string) (types.WorkerNode, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, is_local, ip_address, ssh_user, ssh_password, ssh_port, status, agent_version, created_at, updated_at
		FROM worker_nodes WHERE name = $1`, name)
	w, err := scanWorker(row)
	if err != nil {
		return types.WorkerNode{}, fmt.Errorf("workerregistry: get %s: %w", name, err)
	}
	return w, nil
}

// Get fetches a worker by id.
func (r *Registry) Get(ctx context.Context, id string) (types.WorkerNode, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, is_local, ip_address, ssh_user, ssh_password, ssh_port, status, agent_version, created_at, updated_at
		FROM worker_nodes WHERE id = $1`, id)
	w, err := scanWorker(row)
	if err != nil {
		return types.WorkerNode{}, fmt.Errorf("workerregistry: get %s: %w", id, err)
	}
	return w, nil
}

// ListByStatus returns all workers in any of the given statuses.
func (r *Registry) ListByStatus(ctx context.Context, statuses ...types.WorkerStatus) ([]types.WorkerNode, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, is_local, ip_address, ssh_user, ssh_password, ssh_port, status, agent_version, created_at, updated_at
		FROM worker_nodes WHERE status = ANY($1)`, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("workerregistry: list by status: %w", err)
	}
	defer rows.Close()

	var out []types.WorkerNode
	for rows.Next() {
		w, err := scanWorkerRows(rows)
		if err != nil {
			return nil, fmt.Errorf("workerregistry: scan: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func statusStrings(statuses []types.WorkerStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Heartbeat applies the state-machine transition table from spec.md §4.3 for
// a heartbeat carrying the reporting agent's version, and returns the
// resulting status.
func (r *Registry) Heartbeat(ctx context.Context, workerID, agentVersion, expectedVersion string) (types.WorkerStatus, error) {
	w, err := r.Get(ctx, workerID)
	if err != nil {
		return "", err
	}

	next := nextHeartbeatStatus(w, agentVersion, expectedVersion)

	_, err = r.pool.Exec(ctx,
		`UPDATE worker_nodes SET status = $1, agent_version = $2, updated_at = $3 WHERE id = $4`,
		next, agentVersion, time.Now().UTC(), workerID)
	if err != nil {
		return "", fmt.Errorf("workerregistry: heartbeat %s: %w", workerID, err)
	}
	return next, nil
}

// nextHeartbeatStatus implements the transition table verbatim:
//
//	pending/deploying                       -> online
//	online/offline/updating/outdated + match -> online
//	online + mismatch (remote)               -> updating
//	online + mismatch (local)                -> outdated
//	updating + mismatch stays updating until a matching heartbeat
//	  arrives or MarkUpdateFailed moves it to outdated.
func nextHeartbeatStatus(w types.WorkerNode, agentVersion, expectedVersion string) types.WorkerStatus {
	switch w.Status {
	case types.WorkerStatusPending, types.WorkerStatusDeploying:
		return types.WorkerStatusOnline
	case types.WorkerStatusUpdating:
		if agentVersion == expectedVersion {
			return types.WorkerStatusOnline
		}
		return types.WorkerStatusUpdating
	}

	if agentVersion == expectedVersion {
		return types.WorkerStatusOnline
	}
	if w.IsLocal {
		return types.WorkerStatusOutdated
	}
	return types.WorkerStatusUpdating
}

// MarkUpdateSucceeded records that a remote-update attempt succeeded. The
// worker is left in updating; the NEXT heartbeat (matching version) is what
// actually flips it back to online, per spec.md §4.3.
func (r *Registry) MarkUpdateSucceeded(ctx context.Context, workerID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE worker_nodes SET updated_at = $1 WHERE id = $2 AND status = $3`,
		time.Now().UTC(), workerID, types.WorkerStatusUpdating)
	if err != nil {
		return fmt.Errorf("workerregistry: mark update succeeded %s: %w", workerID, err)
	}
	return nil
}

// MarkUpdateFailed transitions a worker from updating to outdated.
func (r *Registry) MarkUpdateFailed(ctx context.Context, workerID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE worker_nodes SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		types.WorkerStatusOutdated, time.Now().UTC(), workerID, types.WorkerStatusUpdating)
	if err != nil {
		return fmt.Errorf("workerregistry: mark update failed %s: %w", workerID, err)
	}
	return nil
}

// Delete purges the Load Registry entry, deletes the row, then fires an
// async SSH-uninstall best-effort. The uninstall runs on its own background
// context so a caller's cancellation never aborts it mid-flight.
func (r *Registry) Delete(ctx context.Context, workerID string) error {
	w, err := r.Get(ctx, workerID)
	if err != nil {
		return err
	}

	if r.loads != nil {
		if d, ok := r.loads.(interface {
			Delete(context.Context, string) error
		}); ok {
			if err := d.Delete(ctx, workerID); err != nil {
				log.WithWorkerID(workerID).Warn().Err(err).Msg("load registry purge failed during worker delete")
			}
		}
	}

	if _, err := r.pool.Exec(ctx, `DELETE FROM worker_nodes WHERE id = $1`, workerID); err != nil {
		return fmt.Errorf("workerregistry: delete %s: %w", workerID, err)
	}

	if r.uninst != nil {
		go r.uninst.Uninstall(context.Background(), w)
	}
	return nil
}

func scanWorker(row pgx.Row) (types.WorkerNode, error) {
	var w types.WorkerNode
	err := row.Scan(&w.ID, &w.Name, &w.IsLocal, &w.IPAddress, &w.SSHUser, &w.SSHPassword, &w.SSHPort, &w.Status, &w.AgentVersion, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func scanWorkerRows(rows pgx.Rows) (types.WorkerNode, error) {
	var w types.WorkerNode
	err := rows.Scan(&w.ID, &w.Name, &w.IsLocal, &w.IPAddress, &w.SSHUser, &w.SSHPassword, &w.SSHPort, &w.Status, &w.AgentVersion, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}
