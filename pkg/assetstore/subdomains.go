package assetstore

import (
	"context"
	"fmt"

	"github.com/xingrin/reconctl/pkg/types"
)

// UpsertSubdomains bulk-upserts by (target_id, name); a conflicting row is
// left untouched (spec.md §4.8: "— (ignore) / all").
func (s *Store) UpsertSubdomains(ctx context.Context, rows []types.Subdomain) error {
	for _, batch := range chunk(rows) {
		if err := s.upsertSubdomainBatch(ctx, batch); err != nil {
			logBatchRetry("subdomain", len(batch), err)
			return err
		}
	}
	return nil
}

func (s *Store) upsertSubdomainBatch(ctx context.Context, batch []types.Subdomain) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assetstore: begin subdomain batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, row := range batch {
		_, err := tx.Exec(ctx, `
			INSERT INTO subdomains (id, target_id, name, discovered_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (target_id, name) DO NOTHING`,
			row.ID, row.TargetID, row.Name, row.DiscoveredAt)
		if err != nil {
			return fmt.Errorf("assetstore: upsert subdomain %s: %w", row.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("assetstore: commit subdomain batch: %w", err)
	}
	return nil
}
