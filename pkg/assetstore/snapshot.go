package assetstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xingrin/reconctl/pkg/types"
)

// resolveTarget checks the scan still exists and returns its target. A
// vanished scan is not an error: per spec.md §4.8/§7 ("ScanDeleted") the
// batch is silently dropped and the caller sees zero rows persisted.
func (s *Store) resolveTarget(ctx context.Context, scanID string) (targetID string, ok bool, err error) {
	targetID, exists, err := s.scans.ScanExists(ctx, scanID)
	if err != nil {
		return "", false, fmt.Errorf("assetstore: resolve scan %s: %w", scanID, err)
	}
	return targetID, exists, nil
}

// SaveAndSyncHostPortMappings implements the snapshot-vs-canonical dual
// write for naabu results (spec.md §4.8 "save_and_sync").
func (s *Store) SaveAndSyncHostPortMappings(ctx context.Context, scanID string, rows []types.HostPortMapping) (int, error) {
	targetID, ok, err := s.resolveTarget(ctx, scanID)
	if err != nil || !ok {
		return 0, err
	}

	now := time.Now()
	canonical := make([]types.HostPortMapping, len(rows))
	snapshots := make([]types.HostPortMappingSnapshot, len(rows))
	for i, r := range rows {
		r.TargetID = targetID
		r.DiscoveredAt = now
		r.ID = uuid.NewString()
		canonical[i] = r
		snapshots[i] = types.HostPortMappingSnapshot{
			ID: uuid.NewString(), ScanID: scanID, TargetID: targetID,
			Host: r.Host, IP: r.IP, Port: r.Port, RecordedAt: now,
		}
	}

	if err := s.insertHostPortMappingSnapshots(ctx, snapshots); err != nil {
		return 0, err
	}
	if err := s.UpsertHostPortMappings(ctx, canonical); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// SaveAndSyncWebsites implements the snapshot-vs-canonical dual write for
// httpx results run against the site_scan stage.
func (s *Store) SaveAndSyncWebsites(ctx context.Context, scanID string, rows []types.HTTPAsset) (int, error) {
	targetID, ok, err := s.resolveTarget(ctx, scanID)
	if err != nil || !ok {
		return 0, err
	}

	now := time.Now()
	canonical := make([]types.Website, len(rows))
	snapshots := make([]types.WebsiteSnapshot, len(rows))
	for i, r := range rows {
		r.TargetID = targetID
		r.DiscoveredAt = now
		snap := r
		snap.ID = uuid.NewString()
		r.ID = uuid.NewString()
		canonical[i] = types.Website{HTTPAsset: r}
		snapshots[i] = types.WebsiteSnapshot{HTTPAsset: snap, ScanID: scanID}
	}

	if err := s.insertWebsiteSnapshots(ctx, snapshots); err != nil {
		return 0, err
	}
	if err := s.UpsertWebsites(ctx, canonical); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// SaveAndSyncEndpoints implements the snapshot-vs-canonical dual write for
// katana results run against the url_fetch stage.
func (s *Store) SaveAndSyncEndpoints(ctx context.Context, scanID string, rows []types.HTTPAsset) (int, error) {
	targetID, ok, err := s.resolveTarget(ctx, scanID)
	if err != nil || !ok {
		return 0, err
	}

	now := time.Now()
	canonical := make([]types.Endpoint, len(rows))
	snapshots := make([]types.EndpointSnapshot, len(rows))
	for i, r := range rows {
		r.TargetID = targetID
		r.DiscoveredAt = now
		snap := r
		snap.ID = uuid.NewString()
		r.ID = uuid.NewString()
		canonical[i] = types.Endpoint{HTTPAsset: r}
		snapshots[i] = types.EndpointSnapshot{HTTPAsset: snap, ScanID: scanID}
	}

	if err := s.insertEndpointSnapshots(ctx, snapshots); err != nil {
		return 0, err
	}
	if err := s.UpsertEndpoints(ctx, canonical); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// SaveAndSyncVulnerabilities implements the snapshot-vs-canonical dual
// write for dalfox/nuclei findings; Vulnerability has no conflict key, so
// the canonical step is a plain append (spec.md §4.8).
func (s *Store) SaveAndSyncVulnerabilities(ctx context.Context, scanID string, rows []types.Vulnerability) (int, error) {
	targetID, ok, err := s.resolveTarget(ctx, scanID)
	if err != nil || !ok {
		return 0, err
	}

	now := time.Now()
	canonical := make([]types.Vulnerability, len(rows))
	snapshots := make([]types.VulnerabilitySnapshot, len(rows))
	for i, r := range rows {
		r.TargetID = targetID
		r.DiscoveredAt = now
		r.ID = uuid.NewString()
		canonical[i] = r
		snapshots[i] = types.VulnerabilitySnapshot{
			ID: uuid.NewString(), ScanID: scanID, TargetID: targetID,
			URL: r.URL, VulnType: r.VulnType, Severity: r.Severity, Source: r.Source,
			CVSS: r.CVSS, RawOutput: r.RawOutput, RecordedAt: now,
		}
	}

	if err := s.insertVulnerabilitySnapshots(ctx, snapshots); err != nil {
		return 0, err
	}
	if err := s.InsertVulnerabilities(ctx, canonical); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// SaveAndSyncSubdomains implements the snapshot-vs-canonical dual write for
// subfinder/amass results run against the subdomain_discovery stage.
func (s *Store) SaveAndSyncSubdomains(ctx context.Context, scanID string, rows []types.Subdomain) (int, error) {
	targetID, ok, err := s.resolveTarget(ctx, scanID)
	if err != nil || !ok {
		return 0, err
	}

	now := time.Now()
	canonical := make([]types.Subdomain, len(rows))
	snapshots := make([]types.SubdomainSnapshot, len(rows))
	for i, r := range rows {
		r.TargetID = targetID
		r.DiscoveredAt = now
		r.ID = uuid.NewString()
		canonical[i] = r
		snapshots[i] = types.SubdomainSnapshot{
			ID: uuid.NewString(), ScanID: scanID, TargetID: targetID,
			Name: r.Name, RecordedAt: now,
		}
	}

	if err := s.insertSubdomainSnapshots(ctx, snapshots); err != nil {
		return 0, err
	}
	if err := s.UpsertSubdomains(ctx, canonical); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *Store) insertSubdomainSnapshots(ctx context.Context, rows []types.SubdomainSnapshot) error {
	return s.withTx(ctx, "subdomain_snapshot", func(tx pgx.Tx) error {
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO subdomain_snapshots (id, scan_id, target_id, name, recorded_at)
				VALUES ($1,$2,$3,$4,$5)`,
				r.ID, r.ScanID, r.TargetID, r.Name, r.RecordedAt); err != nil {
				return fmt.Errorf("assetstore: insert subdomain_snapshot: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) insertHostPortMappingSnapshots(ctx context.Context, rows []types.HostPortMappingSnapshot) error {
	return s.withTx(ctx, "host_port_mapping_snapshot", func(tx pgx.Tx) error {
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO host_port_mapping_snapshots (id, scan_id, target_id, host, ip, port, recorded_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				r.ID, r.ScanID, r.TargetID, r.Host, r.IP, r.Port, r.RecordedAt); err != nil {
				return fmt.Errorf("assetstore: insert host_port_mapping_snapshot: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) insertWebsiteSnapshots(ctx context.Context, rows []types.WebsiteSnapshot) error {
	return s.withTx(ctx, "website_snapshot", func(tx pgx.Tx) error {
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO website_snapshots (id, scan_id, target_id, url, host, title, webserver,
					status_code, content_length, content_type, tech, recorded_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
				r.ID, r.ScanID, r.TargetID, r.URL, r.Host, r.Title, r.Webserver,
				r.StatusCode, r.ContentLength, r.ContentType, r.Tech, r.DiscoveredAt); err != nil {
				return fmt.Errorf("assetstore: insert website_snapshot: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) insertEndpointSnapshots(ctx context.Context, rows []types.EndpointSnapshot) error {
	return s.withTx(ctx, "endpoint_snapshot", func(tx pgx.Tx) error {
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO endpoint_snapshots (id, scan_id, target_id, url, host, title, webserver,
					status_code, content_length, content_type, tech, matched_gf_patterns, recorded_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
				r.ID, r.ScanID, r.TargetID, r.URL, r.Host, r.Title, r.Webserver,
				r.StatusCode, r.ContentLength, r.ContentType, r.Tech, r.MatchedGFPatterns, r.DiscoveredAt); err != nil {
				return fmt.Errorf("assetstore: insert endpoint_snapshot: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) insertVulnerabilitySnapshots(ctx context.Context, rows []types.VulnerabilitySnapshot) error {
	return s.withTx(ctx, "vulnerability_snapshot", func(tx pgx.Tx) error {
		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO vulnerability_snapshots (id, scan_id, target_id, url, vuln_type, severity, source, cvss, raw_output, recorded_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				r.ID, r.ScanID, r.TargetID, r.URL, r.VulnType, r.Severity, r.Source, r.CVSS, r.RawOutput, r.RecordedAt); err != nil {
				return fmt.Errorf("assetstore: insert vulnerability_snapshot: %w", err)
			}
		}
		return nil
	})
}

// withTx runs fn inside a single committed transaction covering all of
// rows; any row-level error rolls back the whole snapshot insert, per the
// same batch-is-atomic rule as the canonical upserts (spec.md §4.8).
func (s *Store) withTx(ctx context.Context, entity string, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("assetstore: begin %s: %w", entity, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("assetstore: commit %s: %w", entity, err)
	}
	return nil
}
