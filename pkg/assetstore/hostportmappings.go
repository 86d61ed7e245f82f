package assetstore

import (
	"context"
	"fmt"

	"github.com/xingrin/reconctl/pkg/types"
)

// UpsertHostPortMappings bulk-upserts by (target_id, host, ip, port); a
// conflicting row is left untouched (spec.md §4.8: pure presence record).
func (s *Store) UpsertHostPortMappings(ctx context.Context, rows []types.HostPortMapping) error {
	for _, batch := range chunk(rows) {
		if err := s.upsertHostPortMappingBatch(ctx, batch); err != nil {
			logBatchRetry("host_port_mapping", len(batch), err)
			return err
		}
	}
	return nil
}

func (s *Store) upsertHostPortMappingBatch(ctx context.Context, batch []types.HostPortMapping) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assetstore: begin host_port_mapping batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, row := range batch {
		_, err := tx.Exec(ctx, `
			INSERT INTO host_port_mappings (id, target_id, host, ip, port, discovered_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (target_id, host, ip, port) DO NOTHING`,
			row.ID, row.TargetID, row.Host, row.IP, row.Port, row.DiscoveredAt)
		if err != nil {
			return fmt.Errorf("assetstore: upsert host_port_mapping %s:%d: %w", row.IP, row.Port, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("assetstore: commit host_port_mapping batch: %w", err)
	}
	return nil
}
