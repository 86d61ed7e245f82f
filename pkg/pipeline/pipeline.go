// Package pipeline runs the fixed scan execution graph — five stage
// groups, sequential between groups and parallel within — fanning tool
// tasks out to a cooperative task pool and aggregating per-tool outcomes
// (spec.md §4.6).
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xingrin/reconctl/pkg/log"
	"github.com/xingrin/reconctl/pkg/metrics"
	"github.com/xingrin/reconctl/pkg/toolcmd"
	"github.com/xingrin/reconctl/pkg/types"
)

// stageGroups is the fixed execution graph from spec.md §4.6: sequential
// between groups, parallel within a group.
var stageGroups = [][]types.Stage{
	{types.StageSubdomainDiscovery},
	{types.StagePortScan},
	{types.StageSiteScan},
	{types.StageURLFetch, types.StageDirectoryScan},
	{types.StageVulnScan},
}

// ToolExecutor runs a non-streaming tool command to completion.
type ToolExecutor interface {
	ExecuteAndWait(ctx context.Context, tool, cmd string, timeout time.Duration, logPath string) (ExecResult, error)
}

// ExecResult mirrors pkg/executor.Result without importing it directly, so
// pipeline only depends on the shape it needs.
type ExecResult struct {
	OK       bool
	ExitCode int
	TimedOut bool
}

// StreamIngestor runs a streaming tool (dalfox, nuclei) and ingests its
// output, returning the number of asset rows produced. It also replays the
// completed output file of a non-streaming JSON-dialect tool (naabu, httpx)
// through the same per-tool parser (spec.md §4.7 lists all four as JSON
// dialects regardless of which transport runs them).
type StreamIngestor interface {
	IngestStream(ctx context.Context, tool, cmd string, timeout time.Duration, logPath string) (rowCount int, err error)
	IngestOutputFile(ctx context.Context, tool, path string) (rowCount int, err error)
}

// AssetExporter materializes the input file a stage's tools read from, and
// reports how many lines it contains (used for "auto" timeout resolution).
type AssetExporter interface {
	ExportForStage(ctx context.Context, stage types.Stage, targetID, workspaceDir string) (inputPath string, lineCount int, err error)
}

// TemplateRepoResolver materializes named Nuclei template repositories
// locally and returns their local paths (spec.md §4.6 "Nuclei special
// case").
type TemplateRepoResolver interface {
	Resolve(ctx context.Context, repoNames []string) ([]string, error)
}

// streamingTools is the fixed set of tools that use the streaming ingestion
// path instead of execute_and_wait (spec.md §4.6).
var streamingTools = map[string]bool{
	"dalfox": true,
	"nuclei": true,
}

// jsonDialectTools run via execute_and_wait rather than the streaming
// path, but still have a dialect parser to replay their output file
// through once the process exits (spec.md §4.7). Most emit JSON-lines;
// subfinder/amass emit one bare hostname per line, but share the same
// replay-the-output-file mechanism.
var jsonDialectTools = map[string]bool{
	"subfinder": true,
	"amass":     true,
	"naabu":     true,
	"httpx":     true,
	"katana":    true,
}

// Runner executes the fixed stage graph for one scan.
type Runner struct {
	executor    ToolExecutor
	ingestor    StreamIngestor
	exporter    AssetExporter
	templates   TemplateRepoResolver
	enableLog   bool
}

// New builds a pipeline Runner.
func New(executor ToolExecutor, ingestor StreamIngestor, exporter AssetExporter, templates TemplateRepoResolver, enableCommandLogging bool) *Runner {
	return &Runner{executor: executor, ingestor: ingestor, exporter: exporter, templates: templates, enableLog: enableCommandLogging}
}

// ToolOutcome is one tool's result within a stage.
type ToolOutcome struct {
	Tool     string
	Command  string
	Timeout  time.Duration
	LogFile  string
	OK       bool
	RowCount int
	Err      error
}

// StageResult aggregates every tool's outcome for one stage.
type StageResult struct {
	Stage    types.Stage
	Outcomes map[string]ToolOutcome
	// EndpointCount is populated for stages the spec calls out explicitly
	// (e.g. an empty input file short-circuits to success with count 0).
	EndpointCount int
}

// ScanResult is the aggregate of every stage the graph ran.
type ScanResult struct {
	Stages []StageResult
}

// RunScan executes the full fixed stage graph for one scan against one
// target, using engine to decide which tools are enabled per stage and with
// what config.
func (r *Runner) RunScan(ctx context.Context, scanID, targetID, scanWorkspaceDir string, engine EngineConfig) (ScanResult, error) {
	var result ScanResult

	for _, group := range stageGroups {
		stageResults := make([]StageResult, len(group))

		g, gctx := errgroup.WithContext(ctx)
		for i, stage := range group {
			i, stage := i, stage
			g.Go(func() error {
				sr, err := r.runStage(gctx, scanID, targetID, scanWorkspaceDir, stage, engine.ForStage(stage))
				stageResults[i] = sr
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return result, fmt.Errorf("pipeline: scan %s: %w", scanID, err)
		}
		result.Stages = append(result.Stages, stageResults...)
	}

	return result, nil
}

// runStage prepares the stage workspace, exports prerequisite assets,
// builds and runs every enabled tool in parallel, and aggregates outcomes.
// A tool failure is recorded but never aborts the stage (spec.md §4.6
// "Failure policy per stage").
func (r *Runner) runStage(ctx context.Context, scanID, targetID, scanWorkspaceDir string, stage types.Stage, tools map[string]ToolConfig) (StageResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.StageDuration, string(stage))

	stageDir := filepath.Join(scanWorkspaceDir, string(stage))

	inputPath, lineCount, err := r.exporter.ExportForStage(ctx, stage, targetID, stageDir)
	if err != nil {
		return StageResult{Stage: stage}, fmt.Errorf("pipeline: export assets for %s: %w", stage, err)
	}

	result := StageResult{Stage: stage, Outcomes: make(map[string]ToolOutcome, len(tools))}
	if lineCount == 0 {
		log.WithStage(string(stage)).Info().Msg("empty input file, short-circuiting stage to success")
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for toolName, cfg := range tools {
		if !cfg.Enabled {
			continue
		}
		toolName, cfg := toolName, cfg
		g.Go(func() error {
			outcome := r.runTool(gctx, stage, toolName, cfg, inputPath, lineCount, stageDir)
			mu.Lock()
			result.Outcomes[toolName] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}

// runTool resolves the tool's timeout, builds its command, and executes it
// over the streaming or execute_and_wait path as appropriate. Errors are
// captured into the outcome, never returned, so one tool's failure cannot
// abort the stage's errgroup.
func (r *Runner) runTool(ctx context.Context, stage types.Stage, tool string, cfg ToolConfig, inputPath string, lineCount int, stageDir string) ToolOutcome {
	timeout, err := resolveTimeout(tool, cfg.Timeout, lineCount)
	if err != nil {
		return ToolOutcome{Tool: tool, Err: fmt.Errorf("pipeline: %s: %w", tool, err)}
	}

	outputPath := filepath.Join(stageDir, tool+"_output.json")
	placeholders := map[string]string{
		"input_path":  inputPath,
		"output_path": outputPath,
	}
	for k, v := range cfg.Config {
		placeholders[k] = v
	}
	if tmpl, err := toolcmd.Lookup(stage, tool); err == nil && tmpl.InputType == "domain" {
		domain, err := firstLineOf(inputPath)
		if err != nil {
			return ToolOutcome{Tool: tool, Err: fmt.Errorf("pipeline: %s: read domain input: %w", tool, err)}
		}
		placeholders["domain"] = domain
	}
	if tool == "nuclei" {
		paths, err := r.resolveNucleiTemplates(ctx, cfg)
		if err != nil {
			return ToolOutcome{Tool: tool, Err: fmt.Errorf("pipeline: nuclei template repos: %w", err)}
		}
		placeholders["template_args"] = joinTemplateArgs(paths)
	}

	cmd, err := buildCommand(stage, tool, placeholders, cfg.Config)
	if err != nil {
		return ToolOutcome{Tool: tool, Err: err}
	}

	logFile := ""
	if r.enableLog {
		logFile = filepath.Join(stageDir, fmt.Sprintf("%s_%d.log", tool, time.Now().UnixNano()))
	}

	outcome := ToolOutcome{Tool: tool, Command: cmd, Timeout: timeout, LogFile: logFile}

	execTimer := metrics.NewTimer()
	defer execTimer.ObserveDurationVec(metrics.ToolExecDuration, tool, string(stage))

	if streamingTools[tool] {
		rows, err := r.ingestor.IngestStream(ctx, tool, cmd, timeout, logFile)
		outcome.RowCount = rows
		outcome.OK = err == nil
		outcome.Err = err
	} else {
		res, err := r.executor.ExecuteAndWait(ctx, tool, cmd, timeout, logFile)
		outcome.OK = err == nil && res.OK
		outcome.Err = err

		if outcome.OK && jsonDialectTools[tool] {
			rows, ingestErr := r.ingestor.IngestOutputFile(ctx, tool, outputPath)
			outcome.RowCount = rows
			if ingestErr != nil {
				outcome.OK = false
				outcome.Err = fmt.Errorf("pipeline: ingest %s output: %w", tool, ingestErr)
			}
		}
	}

	if !outcome.OK {
		reason := "exec_failure"
		if outcome.Err != nil {
			reason = "timeout_or_failure"
		}
		log.WithTool(tool).Warn().Err(outcome.Err).Str("stage", string(stage)).Str("reason", reason).Msg("tool execution failed")
		metrics.ToolExecFailuresTotal.WithLabelValues(tool, string(stage), reason).Inc()
	}
	return outcome
}

// firstLineOf reads the first non-empty line of path — used to recover a
// "domain" input_type tool's target name from the file AssetExporter wrote,
// since toolcmd's base templates take it as an inline placeholder rather
// than a file path.
func firstLineOf(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			return line, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("empty input file %s", path)
}

func (r *Runner) resolveNucleiTemplates(ctx context.Context, cfg ToolConfig) ([]string, error) {
	repoNames := cfg.TemplateRepoNames
	if len(repoNames) == 0 {
		return nil, fmt.Errorf("nuclei requires template_repo_names")
	}
	return r.templates.Resolve(ctx, repoNames)
}

func joinTemplateArgs(paths []string) string {
	out := ""
	for _, p := range paths {
		out += "-t " + p + " "
	}
	return out
}
