package assetstore

import (
	"context"
	"fmt"

	"github.com/xingrin/reconctl/pkg/types"
)

// InsertVulnerabilities appends every row; Vulnerability has no conflict
// key (spec.md §4.8: "append always"), so repeated findings accumulate
// rather than being deduplicated.
func (s *Store) InsertVulnerabilities(ctx context.Context, rows []types.Vulnerability) error {
	for _, batch := range chunk(rows) {
		if err := s.insertVulnerabilityBatch(ctx, batch); err != nil {
			logBatchRetry("vulnerability", len(batch), err)
			return err
		}
	}
	return nil
}

func (s *Store) insertVulnerabilityBatch(ctx context.Context, batch []types.Vulnerability) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assetstore: begin vulnerability batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, row := range batch {
		_, err := tx.Exec(ctx, `
			INSERT INTO vulnerabilities (id, target_id, url, vuln_type, severity, source, cvss, raw_output, discovered_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			row.ID, row.TargetID, row.URL, row.VulnType, row.Severity, row.Source, row.CVSS, row.RawOutput, row.DiscoveredAt)
		if err != nil {
			return fmt.Errorf("assetstore: insert vulnerability %s: %w", row.URL, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("assetstore: commit vulnerability batch: %w", err)
	}
	return nil
}
