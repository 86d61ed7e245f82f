package assetstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xingrin/reconctl/pkg/types"
)

// upsertHTTPAssetBatch upserts one row of HTTPAsset data into table, keyed
// by (target_id, url): every metadata field is overwritten on conflict
// except discovered_at (spec.md §4.8). withGFPatterns includes the
// Endpoint-only matched_gf_patterns column; Website rows pass false.
func upsertHTTPAssetBatch(ctx context.Context, tx pgx.Tx, table string, row types.HTTPAsset, withGFPatterns bool, gfPatterns []string) error {
	if withGFPatterns {
		_, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, target_id, url, host, title, webserver, status_code,
				content_length, content_type, tech, body_preview, location, vhost,
				matched_gf_patterns, discovered_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
			ON CONFLICT (target_id, url) DO UPDATE SET
				host = EXCLUDED.host,
				title = EXCLUDED.title,
				webserver = EXCLUDED.webserver,
				status_code = EXCLUDED.status_code,
				content_length = EXCLUDED.content_length,
				content_type = EXCLUDED.content_type,
				tech = EXCLUDED.tech,
				body_preview = EXCLUDED.body_preview,
				location = EXCLUDED.location,
				vhost = EXCLUDED.vhost,
				matched_gf_patterns = EXCLUDED.matched_gf_patterns`, table),
			row.ID, row.TargetID, row.URL, row.Host, row.Title, row.Webserver, row.StatusCode,
			row.ContentLength, row.ContentType, row.Tech, row.BodyPreview, row.Location, row.VHost,
			gfPatterns, row.DiscoveredAt)
		if err != nil {
			return fmt.Errorf("assetstore: upsert %s %s: %w", table, row.URL, err)
		}
		return nil
	}

	_, err := tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, target_id, url, host, title, webserver, status_code,
			content_length, content_type, tech, body_preview, location, vhost, discovered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (target_id, url) DO UPDATE SET
			host = EXCLUDED.host,
			title = EXCLUDED.title,
			webserver = EXCLUDED.webserver,
			status_code = EXCLUDED.status_code,
			content_length = EXCLUDED.content_length,
			content_type = EXCLUDED.content_type,
			tech = EXCLUDED.tech,
			body_preview = EXCLUDED.body_preview,
			location = EXCLUDED.location,
			vhost = EXCLUDED.vhost`, table),
		row.ID, row.TargetID, row.URL, row.Host, row.Title, row.Webserver, row.StatusCode,
		row.ContentLength, row.ContentType, row.Tech, row.BodyPreview, row.Location, row.VHost,
		row.DiscoveredAt)
	if err != nil {
		return fmt.Errorf("assetstore: upsert %s %s: %w", table, row.URL, err)
	}
	return nil
}
