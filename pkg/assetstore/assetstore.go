// Package assetstore is the canonical and snapshot-scoped asset store: bulk
// upsert with per-entity conflict resolution, and the snapshot-vs-canonical
// dual write used by streaming ingestion (spec.md §4.8).
package assetstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xingrin/reconctl/pkg/log"
)

// batchSize is the fixed transaction size for bulk upserts (spec.md §4.8:
// "batches of 1000 rows").
const batchSize = 1000

// ScanChecker resolves whether a scan still exists and, if so, which target
// it belongs to. Held as an interface so this package doesn't need to
// import whatever owns the scans table.
type ScanChecker interface {
	ScanExists(ctx context.Context, scanID string) (targetID string, exists bool, err error)
}

// Store is the Postgres-backed asset store.
type Store struct {
	pool    *pgxpool.Pool
	scans   ScanChecker
	targets TargetNamer
}

// New wraps an existing pgxpool.Pool. targets may be nil for callers that
// never export the subdomain_discovery stage's domain input.
func New(pool *pgxpool.Pool, scans ScanChecker, targets TargetNamer) *Store {
	return &Store{pool: pool, scans: scans, targets: targets}
}

// Init creates every canonical and snapshot table this store owns. Safe to
// call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS subdomains (
			id            TEXT PRIMARY KEY,
			target_id     TEXT NOT NULL,
			name          TEXT NOT NULL,
			discovered_at TIMESTAMPTZ NOT NULL,
			UNIQUE (target_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS endpoints (
			id               TEXT PRIMARY KEY,
			target_id        TEXT NOT NULL,
			url              TEXT NOT NULL,
			host             TEXT NOT NULL DEFAULT '',
			title            TEXT NOT NULL DEFAULT '',
			webserver        TEXT NOT NULL DEFAULT '',
			status_code      INTEGER NOT NULL DEFAULT 0,
			content_length   BIGINT NOT NULL DEFAULT 0,
			content_type     TEXT NOT NULL DEFAULT '',
			tech             TEXT[] NOT NULL DEFAULT '{}',
			body_preview     TEXT NOT NULL DEFAULT '',
			location         TEXT NOT NULL DEFAULT '',
			vhost            BOOLEAN NOT NULL DEFAULT false,
			matched_gf_patterns TEXT[] NOT NULL DEFAULT '{}',
			discovered_at    TIMESTAMPTZ NOT NULL,
			UNIQUE (target_id, url)
		)`,
		`CREATE TABLE IF NOT EXISTS websites (
			id               TEXT PRIMARY KEY,
			target_id        TEXT NOT NULL,
			url              TEXT NOT NULL,
			host             TEXT NOT NULL DEFAULT '',
			title            TEXT NOT NULL DEFAULT '',
			webserver        TEXT NOT NULL DEFAULT '',
			status_code      INTEGER NOT NULL DEFAULT 0,
			content_length   BIGINT NOT NULL DEFAULT 0,
			content_type     TEXT NOT NULL DEFAULT '',
			tech             TEXT[] NOT NULL DEFAULT '{}',
			body_preview     TEXT NOT NULL DEFAULT '',
			location         TEXT NOT NULL DEFAULT '',
			vhost            BOOLEAN NOT NULL DEFAULT false,
			discovered_at    TIMESTAMPTZ NOT NULL,
			UNIQUE (target_id, url)
		)`,
		`CREATE TABLE IF NOT EXISTS directories (
			id             TEXT PRIMARY KEY,
			website_id     TEXT NOT NULL,
			target_id      TEXT NOT NULL,
			url            TEXT NOT NULL,
			status_code    INTEGER NOT NULL DEFAULT 0,
			content_length BIGINT NOT NULL DEFAULT 0,
			content_type   TEXT NOT NULL DEFAULT '',
			words          INTEGER NOT NULL DEFAULT 0,
			lines          INTEGER NOT NULL DEFAULT 0,
			duration_ns    BIGINT NOT NULL DEFAULT 0,
			discovered_at  TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			UNIQUE (website_id, url)
		)`,
		`CREATE TABLE IF NOT EXISTS host_port_mappings (
			id            TEXT PRIMARY KEY,
			target_id     TEXT NOT NULL,
			host          TEXT NOT NULL,
			ip            TEXT NOT NULL,
			port          INTEGER NOT NULL,
			discovered_at TIMESTAMPTZ NOT NULL,
			UNIQUE (target_id, host, ip, port)
		)`,
		`CREATE TABLE IF NOT EXISTS vulnerabilities (
			id            TEXT PRIMARY KEY,
			target_id     TEXT NOT NULL,
			url           TEXT NOT NULL,
			vuln_type     TEXT NOT NULL,
			severity      TEXT NOT NULL,
			source        TEXT NOT NULL,
			cvss          DOUBLE PRECISION,
			raw_output    JSONB,
			discovered_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subdomain_snapshots (
			id          TEXT PRIMARY KEY,
			scan_id     TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			name        TEXT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS endpoint_snapshots (
			id                  TEXT PRIMARY KEY,
			scan_id             TEXT NOT NULL,
			target_id           TEXT NOT NULL,
			url                 TEXT NOT NULL,
			host                TEXT NOT NULL DEFAULT '',
			title               TEXT NOT NULL DEFAULT '',
			webserver           TEXT NOT NULL DEFAULT '',
			status_code         INTEGER NOT NULL DEFAULT 0,
			content_length      BIGINT NOT NULL DEFAULT 0,
			content_type        TEXT NOT NULL DEFAULT '',
			tech                TEXT[] NOT NULL DEFAULT '{}',
			matched_gf_patterns TEXT[] NOT NULL DEFAULT '{}',
			recorded_at         TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS website_snapshots (
			id             TEXT PRIMARY KEY,
			scan_id        TEXT NOT NULL,
			target_id      TEXT NOT NULL,
			url            TEXT NOT NULL,
			host           TEXT NOT NULL DEFAULT '',
			title          TEXT NOT NULL DEFAULT '',
			webserver      TEXT NOT NULL DEFAULT '',
			status_code    INTEGER NOT NULL DEFAULT 0,
			content_length BIGINT NOT NULL DEFAULT 0,
			content_type   TEXT NOT NULL DEFAULT '',
			tech           TEXT[] NOT NULL DEFAULT '{}',
			recorded_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS directory_snapshots (
			id             TEXT PRIMARY KEY,
			scan_id        TEXT NOT NULL,
			website_id     TEXT NOT NULL,
			target_id      TEXT NOT NULL,
			url            TEXT NOT NULL,
			status_code    INTEGER NOT NULL DEFAULT 0,
			content_length BIGINT NOT NULL DEFAULT 0,
			content_type   TEXT NOT NULL DEFAULT '',
			words          INTEGER NOT NULL DEFAULT 0,
			lines          INTEGER NOT NULL DEFAULT 0,
			duration_ns    BIGINT NOT NULL DEFAULT 0,
			recorded_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS host_port_mapping_snapshots (
			id          TEXT PRIMARY KEY,
			scan_id     TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			host        TEXT NOT NULL,
			ip          TEXT NOT NULL,
			port        INTEGER NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vulnerability_snapshots (
			id          TEXT PRIMARY KEY,
			scan_id     TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			url         TEXT NOT NULL,
			vuln_type   TEXT NOT NULL,
			severity    TEXT NOT NULL,
			source      TEXT NOT NULL,
			cvss        DOUBLE PRECISION,
			raw_output  JSONB,
			recorded_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("assetstore: init: %w", err)
		}
	}
	return nil
}

// chunk splits rows into batchSize-sized slices.
func chunk[T any](rows []T) [][]T {
	if len(rows) == 0 {
		return nil
	}
	var out [][]T
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[i:end])
	}
	return out
}

func logBatchRetry(entity string, n int, err error) {
	log.Logger.Warn().Str("entity", entity).Int("rows", n).Err(err).Msg("asset batch upsert failed, rolled back, retriable")
}
