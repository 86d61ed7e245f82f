package controlplane

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xingrin/reconctl/pkg/types"
)

// ScanDispatcher is the subset of pkg/dispatcher.Dispatcher the submit
// handler needs: pick a worker, then hand the scan off to it.
type ScanDispatcher interface {
	SelectBestWorker(ctx context.Context) (*types.WorkerNode, error)
	SubmitScan(ctx context.Context, w types.WorkerNode, scanID, targetName, targetID, scanWorkspaceDir, engineName, scheduledScanName string) (ok bool, message string, containerID string, workerID string)
}

// ScanRegistrar is the subset of *ScanStore the submit handler needs,
// split out as an interface so handleSubmitScan is testable against a
// fake instead of a real pgxpool.
type ScanRegistrar interface {
	GetOrCreateTarget(ctx context.Context, name string) (types.Target, error)
	CreateScan(ctx context.Context, targetID, scanEngineID string) (types.Scan, error)
	RecordDispatch(ctx context.Context, scanID, workerID, containerID string, ok bool) error
}

type submitScanRequest struct {
	TargetName        string `json:"target_name" validate:"required"`
	ScanEngineID       string `json:"scan_engine_id" validate:"required"`
	ScheduledScanName string `json:"scheduled_scan_name"`
}

type submitScanResponse struct {
	ScanID      string `json:"scan_id"`
	WorkerID    string `json:"worker_id"`
	ContainerID string `json:"container_id"`
	OK          bool   `json:"ok"`
	Message     string `json:"message"`
}

// handleSubmitScan implements POST /scans (spec.md §4.9: "invokes C4").
// It resolves or creates the target, creates the Scan row in
// `initiated`, selects the best available worker, and dispatches
// run_initiate_scan to it — recording the outcome either way.
func (s *Server) handleSubmitScan(w http.ResponseWriter, r *http.Request) {
	var req submitScanRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx := r.Context()

	target, err := s.scans.GetOrCreateTarget(ctx, req.TargetName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	scan, err := s.scans.CreateScan(ctx, target.ID, req.ScanEngineID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	worker, err := s.dispatcher.SelectBestWorker(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if worker == nil {
		writeJSON(w, http.StatusServiceUnavailable, submitScanResponse{ScanID: scan.ID, OK: false, Message: "no worker available"})
		return
	}

	workspaceDir := filepath.Join(s.cfg.ContainerResultsMount, scan.ID)
	ok, message, containerID, workerID := s.dispatcher.SubmitScan(ctx, *worker, scan.ID, target.Name, target.ID, workspaceDir, req.ScanEngineID, req.ScheduledScanName)

	if err := s.scans.RecordDispatch(ctx, scan.ID, workerID, containerID, ok); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, submitScanResponse{ScanID: scan.ID, WorkerID: workerID, ContainerID: containerID, OK: ok, Message: message})
}

// ScanStore is the Postgres-backed owner of the targets and scans tables.
// It satisfies pkg/assetstore's ScanChecker and TargetNamer so the asset
// store never needs to import this package.
type ScanStore struct {
	pool *pgxpool.Pool
}

// NewScanStore wraps an existing pgxpool.Pool.
func NewScanStore(pool *pgxpool.Pool) *ScanStore {
	return &ScanStore{pool: pool}
}

// Init creates the targets and scans tables. Safe to call repeatedly.
func (s *ScanStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS targets (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			type       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS scans (
			id               TEXT PRIMARY KEY,
			target_id        TEXT NOT NULL,
			scan_engine_id   TEXT NOT NULL,
			worker_id        TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL,
			progress         INTEGER NOT NULL DEFAULT 0,
			current_stage    TEXT NOT NULL DEFAULT '',
			container_ids    TEXT[] NOT NULL DEFAULT '{}',
			subdomain_count  INTEGER NOT NULL DEFAULT 0,
			endpoint_count   INTEGER NOT NULL DEFAULT 0,
			vuln_count       INTEGER NOT NULL DEFAULT 0,
			started_at       TIMESTAMPTZ,
			finished_at      TIMESTAMPTZ,
			created_at       TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL,
			deleted_at       TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS organizations (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS organization_targets (
			organization_id TEXT NOT NULL,
			target_id       TEXT NOT NULL,
			PRIMARY KEY (organization_id, target_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("controlplane: init: %w", err)
		}
	}
	return nil
}

// ScanExists satisfies pkg/assetstore.ScanChecker: a deleted or missing
// scan is reported as not existing, never as an error.
func (s *ScanStore) ScanExists(ctx context.Context, scanID string) (string, bool, error) {
	var targetID string
	err := s.pool.QueryRow(ctx,
		`SELECT target_id FROM scans WHERE id = $1 AND deleted_at IS NULL`, scanID,
	).Scan(&targetID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("controlplane: scan exists %s: %w", scanID, err)
	}
	return targetID, true, nil
}

// TargetName satisfies pkg/assetstore.TargetNamer.
func (s *ScanStore) TargetName(ctx context.Context, targetID string) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx, `SELECT name FROM targets WHERE id = $1`, targetID).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("controlplane: target name %s: %w", targetID, err)
	}
	return name, nil
}

// GetOrCreateTarget resolves a target by name, creating it as TargetTypeDomain
// if it doesn't exist yet.
func (s *ScanStore) GetOrCreateTarget(ctx context.Context, name string) (types.Target, error) {
	var t types.Target
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, type, created_at, updated_at FROM targets WHERE name = $1 AND deleted_at IS NULL`, name,
	).Scan(&t.ID, &t.Name, &t.Type, &t.CreatedAt, &t.UpdatedAt)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return types.Target{}, fmt.Errorf("controlplane: lookup target %s: %w", name, err)
	}

	now := time.Now().UTC()
	t = types.Target{ID: uuid.NewString(), Name: name, Type: types.TargetTypeDomain, CreatedAt: now, UpdatedAt: now}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO targets (id, name, type, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (name) DO NOTHING`,
		t.ID, t.Name, t.Type, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return types.Target{}, fmt.Errorf("controlplane: create target %s: %w", name, err)
	}
	return s.GetOrCreateTarget(ctx, name)
}

// CreateScan inserts a new Scan row in the initiated state.
func (s *ScanStore) CreateScan(ctx context.Context, targetID, scanEngineID string) (types.Scan, error) {
	now := time.Now().UTC()
	scan := types.Scan{
		ID:           uuid.NewString(),
		TargetID:     targetID,
		ScanEngineID: scanEngineID,
		Status:       types.ScanStatusInitiated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scans (id, target_id, scan_engine_id, status, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		scan.ID, scan.TargetID, scan.ScanEngineID, scan.Status, scan.CreatedAt, scan.UpdatedAt)
	if err != nil {
		return types.Scan{}, fmt.Errorf("controlplane: create scan: %w", err)
	}
	return scan, nil
}

// CountByStatus satisfies pkg/metrics.ScanCounter.
func (s *ScanStore) CountByStatus(ctx context.Context, status types.ScanStatus) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM scans WHERE status = $1 AND deleted_at IS NULL`, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("controlplane: count scans by status %s: %w", status, err)
	}
	return count, nil
}

// RecordDispatch persists the outcome of submitting a scan to a worker:
// on success the scan moves to running with the worker/container recorded,
// on failure it moves straight to failed.
func (s *ScanStore) RecordDispatch(ctx context.Context, scanID, workerID, containerID string, ok bool) error {
	now := time.Now().UTC()
	status := types.ScanStatusRunning
	if !ok {
		status = types.ScanStatusFailed
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE scans SET status = $1, worker_id = $2, container_ids = array_append(container_ids, $3),
		 started_at = $4, updated_at = $4 WHERE id = $5`,
		status, workerID, containerID, now, scanID)
	if err != nil {
		return fmt.Errorf("controlplane: record dispatch %s: %w", scanID, err)
	}
	return nil
}

// FinishScan persists the terminal outcome of a run_initiate_scan container:
// final status, progress, current stage, and the three asset counts the
// caller tallied for the scan (run_initiate_scan takes them from
// assetstore.Store.CountsForScan).
func (s *ScanStore) FinishScan(ctx context.Context, scanID string, status types.ScanStatus, subdomainCount, endpointCount, vulnCount int) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`UPDATE scans SET status = $1, progress = 100, current_stage = '', subdomain_count = $2,
		 endpoint_count = $3, vuln_count = $4, finished_at = $5, updated_at = $5 WHERE id = $6`,
		status, subdomainCount, endpointCount, vulnCount, now, scanID)
	if err != nil {
		return fmt.Errorf("controlplane: finish scan %s: %w", scanID, err)
	}
	return nil
}

// UpdateProgress records a scan's current stage and completion percentage.
// pipeline.Runner does not report intra-scan progress, so nothing in the
// scan flow calls it; FinishScan sets progress to 100 at the end.
func (s *ScanStore) UpdateProgress(ctx context.Context, scanID, currentStage string, progress int) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`UPDATE scans SET current_stage = $1, progress = $2, updated_at = $3 WHERE id = $4`,
		currentStage, progress, now, scanID)
	if err != nil {
		return fmt.Errorf("controlplane: update progress %s: %w", scanID, err)
	}
	return nil
}

// DeleteTargets soft-deletes the given targets and every scan dispatched
// against them, mirroring run_delete_targets (spec.md §127). The asset
// rows those scans produced are purged separately by
// pkg/assetstore.Store.DeleteByTargetIDs, since this store never imports
// pkg/assetstore.
func (s *ScanStore) DeleteTargets(ctx context.Context, ids []string) error {
	now := time.Now().UTC()
	if _, err := s.pool.Exec(ctx,
		`UPDATE scans SET deleted_at = $1, updated_at = $1 WHERE target_id = ANY($2) AND deleted_at IS NULL`,
		now, ids,
	); err != nil {
		return fmt.Errorf("controlplane: delete scans for targets: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE targets SET deleted_at = $1, updated_at = $1 WHERE id = ANY($2) AND deleted_at IS NULL`,
		now, ids,
	); err != nil {
		return fmt.Errorf("controlplane: delete targets: %w", err)
	}
	return nil
}

// DeleteOrganizations soft-deletes the given organizations. It does not
// touch the targets they group, since an organization is an optional
// many-to-many label over targets (pkg/types.Organization) rather than
// an owner of them.
func (s *ScanStore) DeleteOrganizations(ctx context.Context, ids []string) error {
	now := time.Now().UTC()
	if _, err := s.pool.Exec(ctx,
		`UPDATE organizations SET deleted_at = $1, updated_at = $1 WHERE id = ANY($2) AND deleted_at IS NULL`,
		now, ids,
	); err != nil {
		return fmt.Errorf("controlplane: delete organizations: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM organization_targets WHERE organization_id = ANY($1)`, ids,
	); err != nil {
		return fmt.Errorf("controlplane: delete organization_targets: %w", err)
	}
	return nil
}

// DeleteScans soft-deletes the given scans outright, mirroring
// run_delete_scans. Their snapshot asset rows are purged separately by
// pkg/assetstore.Store.DeleteByScanIDs.
func (s *ScanStore) DeleteScans(ctx context.Context, ids []string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`UPDATE scans SET deleted_at = $1, updated_at = $1 WHERE id = ANY($2) AND deleted_at IS NULL`,
		now, ids,
	)
	if err != nil {
		return fmt.Errorf("controlplane: delete scans: %w", err)
	}
	return nil
}

// CreateOrganization inserts a new organization row, optionally linking it
// to an initial set of targets via organization_targets.
func (s *ScanStore) CreateOrganization(ctx context.Context, name string, targetIDs []string) (types.Organization, error) {
	now := time.Now().UTC()
	org := types.Organization{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, created_at, updated_at) VALUES ($1,$2,$3,$4)`,
		org.ID, org.Name, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return types.Organization{}, fmt.Errorf("controlplane: create organization %s: %w", name, err)
	}
	for _, targetID := range targetIDs {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO organization_targets (organization_id, target_id) VALUES ($1,$2)
			 ON CONFLICT DO NOTHING`,
			org.ID, targetID,
		); err != nil {
			return types.Organization{}, fmt.Errorf("controlplane: link target %s to organization %s: %w", targetID, name, err)
		}
	}
	return org, nil
}
