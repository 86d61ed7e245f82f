package assetstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xingrin/reconctl/pkg/types"
)

// UpsertDirectories bulk-upserts by (website_id, url); status, content
// length/type, words, lines, duration, and target_id are overwritten on
// conflict, discovered_at is preserved (spec.md §4.8).
func (s *Store) UpsertDirectories(ctx context.Context, rows []types.Directory) error {
	for _, batch := range chunk(rows) {
		if err := s.upsertDirectoryBatch(ctx, batch); err != nil {
			logBatchRetry("directory", len(batch), err)
			return err
		}
	}
	return nil
}

func (s *Store) upsertDirectoryBatch(ctx context.Context, batch []types.Directory) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assetstore: begin directory batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now()
	for _, row := range batch {
		_, err := tx.Exec(ctx, `
			INSERT INTO directories (id, website_id, target_id, url, status_code,
				content_length, content_type, words, lines, duration_ns, discovered_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (website_id, url) DO UPDATE SET
				status_code = EXCLUDED.status_code,
				content_length = EXCLUDED.content_length,
				content_type = EXCLUDED.content_type,
				words = EXCLUDED.words,
				lines = EXCLUDED.lines,
				duration_ns = EXCLUDED.duration_ns,
				target_id = EXCLUDED.target_id,
				updated_at = EXCLUDED.updated_at`,
			row.ID, row.WebsiteID, row.TargetID, row.URL, row.StatusCode,
			row.ContentLength, row.ContentType, row.Words, row.Lines, row.DurationNS, row.DiscoveredAt, now)
		if err != nil {
			return fmt.Errorf("assetstore: upsert directory %s: %w", row.URL, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("assetstore: commit directory batch: %w", err)
	}
	return nil
}

