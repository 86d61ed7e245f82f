package assetstore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xingrin/reconctl/pkg/types"
)

// exportChunkSize is how many rows exportCursor fetches per cursor
// round trip.
const exportChunkSize = 500

// TargetNamer resolves a target's name — needed only for the
// subdomain_discovery stage, whose tool input is the bare domain rather
// than an asset projection. Held as an interface for the same reason
// ScanChecker is: this package doesn't own the targets table.
type TargetNamer interface {
	TargetName(ctx context.Context, targetID string) (string, error)
}

// stageQuery names the projection query each stage's tools read from
// (spec.md §4.8: "lazy sequence of projections ... backed by server-side
// cursors"). port_scan and site_scan both crawl from discovered
// subdomains; directory_scan and url_fetch both crawl from discovered
// websites; vuln_scan scans every known URL.
var stageQuery = map[types.Stage]string{
	types.StagePortScan:      `SELECT name FROM subdomains WHERE target_id = $1`,
	types.StageSiteScan:      `SELECT name FROM subdomains WHERE target_id = $1`,
	types.StageDirectoryScan: `SELECT url FROM websites WHERE target_id = $1`,
	types.StageURLFetch:      `SELECT url FROM websites WHERE target_id = $1`,
	types.StageVulnScan:      `SELECT url FROM websites WHERE target_id = $1 UNION SELECT url FROM endpoints WHERE target_id = $1`,
}

// ExportForStage satisfies pkg/pipeline.AssetExporter: it materializes the
// input file a stage's tools read from and reports its line count.
// subdomain_discovery is special-cased to the target's bare domain name,
// since its tools take `-d {domain}` rather than a `-list` file.
func (s *Store) ExportForStage(ctx context.Context, stage types.Stage, targetID, workspaceDir string) (string, int, error) {
	if stage == types.StageSubdomainDiscovery {
		return s.exportDomain(ctx, targetID, workspaceDir)
	}

	query, ok := stageQuery[stage]
	if !ok {
		return "", 0, fmt.Errorf("assetstore: no export projection for stage %q", stage)
	}
	return s.exportCursor(ctx, query, targetID, workspaceDir, string(stage)+"_input.txt")
}

func (s *Store) exportDomain(ctx context.Context, targetID, workspaceDir string) (string, int, error) {
	if s.targets == nil {
		return "", 0, fmt.Errorf("assetstore: no target namer configured")
	}
	name, err := s.targets.TargetName(ctx, targetID)
	if err != nil {
		return "", 0, fmt.Errorf("assetstore: resolve target name: %w", err)
	}

	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("assetstore: create workspace dir: %w", err)
	}
	path := filepath.Join(workspaceDir, "domain.txt")
	if err := os.WriteFile(path, []byte(name+"\n"), 0o644); err != nil {
		return "", 0, fmt.Errorf("assetstore: write domain input: %w", err)
	}
	return path, 1, nil
}

// exportCursor runs query over a server-side cursor within one
// transaction (not restartable across calls, per spec.md §4.8) and writes
// each row's single string column to path, one per line.
func (s *Store) exportCursor(ctx context.Context, query, targetID, workspaceDir, filename string) (string, int, error) {
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("assetstore: create workspace dir: %w", err)
	}
	path := filepath.Join(workspaceDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("assetstore: create export file: %w", err)
	}
	defer f.Close()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("assetstore: begin export cursor: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf("DECLARE export_cursor CURSOR FOR %s", query), targetID); err != nil {
		return "", 0, fmt.Errorf("assetstore: declare export cursor: %w", err)
	}

	writer := bufio.NewWriter(f)
	count := 0
	for {
		rows, err := tx.Query(ctx, fmt.Sprintf("FETCH %d FROM export_cursor", exportChunkSize))
		if err != nil {
			return "", 0, fmt.Errorf("assetstore: fetch export cursor: %w", err)
		}

		fetched := 0
		for rows.Next() {
			var value string
			if err := rows.Scan(&value); err != nil {
				rows.Close()
				return "", 0, fmt.Errorf("assetstore: scan export row: %w", err)
			}
			if _, err := writer.WriteString(value + "\n"); err != nil {
				rows.Close()
				return "", 0, fmt.Errorf("assetstore: write export row: %w", err)
			}
			fetched++
			count++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return "", 0, fmt.Errorf("assetstore: iterate export cursor: %w", err)
		}
		if fetched < exportChunkSize {
			break
		}
	}

	if err := writer.Flush(); err != nil {
		return "", 0, fmt.Errorf("assetstore: flush export file: %w", err)
	}
	if _, err := tx.Exec(ctx, "CLOSE export_cursor"); err != nil {
		return "", 0, fmt.Errorf("assetstore: close export cursor: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", 0, fmt.Errorf("assetstore: commit export cursor: %w", err)
	}

	return path, count, nil
}
