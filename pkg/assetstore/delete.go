package assetstore

import (
	"context"
	"fmt"
)

// canonicalTablesByTargetID lists every canonical table keyed directly by
// target_id. directories is reached transitively through websites, but
// carries its own target_id column too (spec.md's directory rows always
// belong to exactly one target), so it's purged the same way.
var canonicalTablesByTargetID = []string{
	"subdomains",
	"endpoints",
	"websites",
	"directories",
	"host_port_mappings",
	"vulnerabilities",
}

// snapshotTablesByScanID lists every snapshot table keyed by scan_id.
var snapshotTablesByScanID = []string{
	"subdomain_snapshots",
	"endpoint_snapshots",
	"website_snapshots",
	"directory_snapshots",
	"host_port_mapping_snapshots",
	"vulnerability_snapshots",
}

// DeleteByTargetIDs purges every canonical asset row belonging to the given
// targets, backing run_delete_targets (spec.md §127). Snapshot rows for
// those targets' scans are left for DeleteByScanIDs to remove once the
// caller also deletes the scans themselves.
func (s *Store) DeleteByTargetIDs(ctx context.Context, targetIDs []string) error {
	if len(targetIDs) == 0 {
		return nil
	}
	for _, table := range canonicalTablesByTargetID {
		if _, err := s.pool.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE target_id = ANY($1)`, table),
			targetIDs,
		); err != nil {
			return fmt.Errorf("assetstore: delete %s by target: %w", table, err)
		}
	}
	return nil
}

// DeleteByScanIDs purges every snapshot row recorded under the given scans,
// backing run_delete_scans (spec.md §127). Canonical rows are untouched:
// a scan's snapshot is a point-in-time copy, not the asset's sole record.
func (s *Store) DeleteByScanIDs(ctx context.Context, scanIDs []string) error {
	if len(scanIDs) == 0 {
		return nil
	}
	for _, table := range snapshotTablesByScanID {
		if _, err := s.pool.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE scan_id = ANY($1)`, table),
			scanIDs,
		); err != nil {
			return fmt.Errorf("assetstore: delete %s by scan: %w", table, err)
		}
	}
	return nil
}
