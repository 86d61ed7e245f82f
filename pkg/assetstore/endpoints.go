package assetstore

import (
	"context"
	"fmt"

	"github.com/xingrin/reconctl/pkg/types"
)

// UpsertEndpoints bulk-upserts by (target_id, url); all metadata fields are
// overwritten on conflict except discovered_at (spec.md §4.8).
func (s *Store) UpsertEndpoints(ctx context.Context, rows []types.Endpoint) error {
	for _, batch := range chunk(rows) {
		if err := s.upsertEndpointBatch(ctx, batch); err != nil {
			logBatchRetry("endpoint", len(batch), err)
			return err
		}
	}
	return nil
}

func (s *Store) upsertEndpointBatch(ctx context.Context, batch []types.Endpoint) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assetstore: begin endpoint batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, row := range batch {
		if err := upsertHTTPAssetBatch(ctx, tx, "endpoints", row.HTTPAsset, true, row.MatchedGFPatterns); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("assetstore: commit endpoint batch: %w", err)
	}
	return nil
}
