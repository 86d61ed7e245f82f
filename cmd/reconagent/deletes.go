package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xingrin/reconctl/pkg/assetstore"
	"github.com/xingrin/reconctl/pkg/controlplane"
	"github.com/xingrin/reconctl/pkg/log"
)

// deleteFunc performs one DeleteEntity kind of purge against the already-
// connected stores, returning only whether the purge succeeded.
type deleteFunc func(ctx context.Context, scans *controlplane.ScanStore, assets *assetstore.Store, ids []string) error

// runDelete implements run_delete_targets/run_delete_organizations/
// run_delete_scans (spec.md §127: "Delete-task dispatches one of
// {run_delete_targets, run_delete_organizations, run_delete_scans} with a
// JSON-serialized id list").
func runDelete(ctx context.Context, serverURL string, isLocal bool, do deleteFunc, flags map[string]string) error {
	raw, err := requireFlag(flags, "ids")
	if err != nil {
		return err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return fmt.Errorf("reconagent: --ids is not a JSON string array: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	_, pool, err := connectFromControlPlane(ctx, serverURL, isLocal)
	if err != nil {
		return err
	}
	defer pool.Close()

	scans := controlplane.NewScanStore(pool)
	assets := assetstore.New(pool, scans, scans)

	if err := do(ctx, scans, assets, ids); err != nil {
		return err
	}
	log.Logger.Info().Int("count", len(ids)).Msg("reconagent: delete complete")
	return nil
}

// deleteTargets soft-deletes the targets and their scans, then purges the
// canonical asset rows those targets owned.
func deleteTargets(ctx context.Context, scans *controlplane.ScanStore, assets *assetstore.Store, ids []string) error {
	if err := scans.DeleteTargets(ctx, ids); err != nil {
		return fmt.Errorf("reconagent: delete targets: %w", err)
	}
	if err := assets.DeleteByTargetIDs(ctx, ids); err != nil {
		return fmt.Errorf("reconagent: delete target assets: %w", err)
	}
	return nil
}

// deleteOrganizations soft-deletes organizations only; they're a label
// over targets, not an owner, so no asset purge follows.
func deleteOrganizations(ctx context.Context, scans *controlplane.ScanStore, _ *assetstore.Store, ids []string) error {
	if err := scans.DeleteOrganizations(ctx, ids); err != nil {
		return fmt.Errorf("reconagent: delete organizations: %w", err)
	}
	return nil
}

// deleteScans soft-deletes the scans, then purges the snapshot rows they
// recorded.
func deleteScans(ctx context.Context, scans *controlplane.ScanStore, assets *assetstore.Store, ids []string) error {
	if err := scans.DeleteScans(ctx, ids); err != nil {
		return fmt.Errorf("reconagent: delete scans: %w", err)
	}
	if err := assets.DeleteByScanIDs(ctx, ids); err != nil {
		return fmt.Errorf("reconagent: delete scan snapshots: %w", err)
	}
	return nil
}
