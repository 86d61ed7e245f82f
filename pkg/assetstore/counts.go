package assetstore

import (
	"context"
	"fmt"
)

// ScanCounts is the per-scan asset tally a controlplane.ScanStore.FinishScan
// call persists onto the Scan row (spec.md §3's cached SubdomainCount/
// EndpointCount/VulnCount).
type ScanCounts struct {
	Subdomains int
	Endpoints  int
	Vulns      int
}

// CountsForScan tallies the snapshot rows recorded under scanID: every
// snapshot table carries its own scan_id column, so this is the same
// point-in-time view the scan's dispatched run actually produced, rather
// than the canonical table's current (possibly since-superseded) state.
func (s *Store) CountsForScan(ctx context.Context, scanID string) (ScanCounts, error) {
	var counts ScanCounts
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM subdomain_snapshots WHERE scan_id = $1`, scanID,
	).Scan(&counts.Subdomains); err != nil {
		return ScanCounts{}, fmt.Errorf("assetstore: count subdomain snapshots: %w", err)
	}
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM endpoint_snapshots WHERE scan_id = $1`, scanID,
	).Scan(&counts.Endpoints); err != nil {
		return ScanCounts{}, fmt.Errorf("assetstore: count endpoint snapshots: %w", err)
	}
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM vulnerability_snapshots WHERE scan_id = $1`, scanID,
	).Scan(&counts.Vulns); err != nil {
		return ScanCounts{}, fmt.Errorf("assetstore: count vulnerability snapshots: %w", err)
	}
	return counts, nil
}
