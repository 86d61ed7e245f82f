package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/xingrin/reconctl/pkg/assetstore"
	"github.com/xingrin/reconctl/pkg/client"
	"github.com/xingrin/reconctl/pkg/controlplane"
	"github.com/xingrin/reconctl/pkg/executor"
	"github.com/xingrin/reconctl/pkg/hostload"
	"github.com/xingrin/reconctl/pkg/ingest"
	"github.com/xingrin/reconctl/pkg/log"
	"github.com/xingrin/reconctl/pkg/pipeline"
	"github.com/xingrin/reconctl/pkg/scanengine"
	"github.com/xingrin/reconctl/pkg/templaterepo"
	"github.com/xingrin/reconctl/pkg/types"
)

// Baked into the task-executor image itself rather than bind-mounted: the
// dispatcher only mounts HostResultsDir/HostLogsDir into a task container
// (spec.md §4.4), so the Nuclei template checkouts and named ScanEngine
// bundles have to already be present on the image at these fixed paths.
const (
	templatesDir = "/var/lib/reconctl/templates"
	enginesDir   = "/var/lib/reconctl/engines"
)

// Admission-control defaults mirroring pkg/config's SCAN_CPU_HIGH/
// SCAN_MEM_HIGH/SCAN_LOAD_CHECK_INTERVAL/SCAN_COMMAND_STARTUP_DELAY
// defaults: the task container inherits only SERVER_URL/IS_LOCAL
// (spec.md §6), so these env-driven overrides never reach it.
const (
	scanCPUHigh             = 90
	scanMemHigh             = 80
	scanLoadCheckInterval   = 30 * time.Second
	scanCommandStartupDelay = 5 * time.Second
)

// runInitiateScan implements the run_initiate_scan module (spec.md §231):
// it fetches DB/Redis connection info from the control plane, wires a
// pipeline.Runner against this scan's target, runs the fixed stage graph,
// and persists the terminal outcome back onto the Scan row.
func runInitiateScan(ctx context.Context, serverURL string, isLocal bool, flags map[string]string) error {
	scanID, err := requireFlag(flags, "scan_id")
	if err != nil {
		return err
	}
	targetID, err := requireFlag(flags, "target_id")
	if err != nil {
		return err
	}
	workspaceDir, err := requireFlag(flags, "scan_workspace_dir")
	if err != nil {
		return err
	}
	engineName, err := requireFlag(flags, "engine_name")
	if err != nil {
		return err
	}

	cfg, pool, err := connectFromControlPlane(ctx, serverURL, isLocal)
	if err != nil {
		return err
	}
	defer pool.Close()

	scans := controlplane.NewScanStore(pool)
	assets := assetstore.New(pool, scans, scans)

	engines, err := scanengine.New(enginesDir)
	if err != nil {
		return fmt.Errorf("reconagent: scan engine resolver: %w", err)
	}
	defer engines.Close()

	engineConfig, err := engines.Resolve(ctx, engineName)
	if err != nil {
		return fmt.Errorf("reconagent: resolve engine %q: %w", engineName, err)
	}

	exec := executor.New(executor.Config{
		CPUHigh:              scanCPUHigh,
		MemHigh:              scanMemHigh,
		LoadCheckInterval:    scanLoadCheckInterval,
		CommandStartupDelay:  scanCommandStartupDelay,
		EnableCommandLogging: cfg.Logging.EnableCommandLogging,
	}, hostload.New())

	ingestor := ingest.NewScanIngestor(ingest.NewExecutorAdapter(exec), assets, scanID, 0)
	templates := templaterepo.New(templatesDir)

	runner := pipeline.New(pipeline.NewExecutorAdapter(exec), ingestor, assets, templates, cfg.Logging.EnableCommandLogging)

	scanLog := log.WithScanID(scanID)
	scanLog.Info().Str("target_id", targetID).Str("engine", engineName).Msg("reconagent: starting scan")

	result, runErr := runner.RunScan(ctx, scanID, targetID, workspaceDir, engineConfig)

	status := types.ScanStatusCompleted
	if runErr != nil {
		status = types.ScanStatusFailed
		scanLog.Error().Err(runErr).Msg("reconagent: scan failed")
	}

	counts, countErr := assets.CountsForScan(ctx, scanID)
	if countErr != nil {
		scanLog.Warn().Err(countErr).Msg("reconagent: count scan assets")
	}

	if err := scans.FinishScan(ctx, scanID, status, counts.Subdomains, counts.Endpoints, counts.Vulns); err != nil {
		return fmt.Errorf("reconagent: finish scan %s: %w", scanID, err)
	}

	logStageOutcomes(scanLog, result)

	if runErr != nil {
		return fmt.Errorf("reconagent: run scan %s: %w", scanID, runErr)
	}
	return nil
}

func logStageOutcomes(scanLog zerolog.Logger, result pipeline.ScanResult) {
	for _, stage := range result.Stages {
		for tool, outcome := range stage.Outcomes {
			ev := scanLog.Info()
			if !outcome.OK {
				ev = scanLog.Warn()
			}
			ev.Str("stage", string(stage.Stage)).Str("tool", tool).
				Int("rows", outcome.RowCount).Bool("ok", outcome.OK).Msg("reconagent: tool outcome")
		}
	}
}

// connectFromControlPlane fetches this worker's DB/Redis config from the
// control plane (spec.md §6: the one piece of config a task container
// must ask for, since it isn't forwarded via env) and opens a pool against
// it.
func connectFromControlPlane(ctx context.Context, serverURL string, isLocal bool) (client.WorkersConfigResponse, *pgxpool.Pool, error) {
	c := client.NewClient(serverURL)
	cfg, err := c.WorkersConfig(ctx, isLocal)
	if err != nil {
		return client.WorkersConfigResponse{}, nil, fmt.Errorf("reconagent: fetch workers config: %w", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return client.WorkersConfigResponse{}, nil, fmt.Errorf("reconagent: connect postgres: %w", err)
	}
	return cfg, pool, nil
}

func requireFlag(flags map[string]string, key string) (string, error) {
	v, ok := flags[key]
	if !ok || v == "" {
		return "", fmt.Errorf("reconagent: missing required --%s", key)
	}
	return v, nil
}
