package assetstore

import (
	"context"
	"fmt"

	"github.com/xingrin/reconctl/pkg/types"
)

// UpsertWebsites bulk-upserts by (target_id, url); all metadata fields are
// overwritten on conflict except discovered_at (spec.md §4.8).
func (s *Store) UpsertWebsites(ctx context.Context, rows []types.Website) error {
	for _, batch := range chunk(rows) {
		if err := s.upsertWebsiteBatch(ctx, batch); err != nil {
			logBatchRetry("website", len(batch), err)
			return err
		}
	}
	return nil
}

func (s *Store) upsertWebsiteBatch(ctx context.Context, batch []types.Website) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assetstore: begin website batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, row := range batch {
		if err := upsertHTTPAssetBatch(ctx, tx, "websites", row.HTTPAsset, false, nil); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("assetstore: commit website batch: %w", err)
	}
	return nil
}
