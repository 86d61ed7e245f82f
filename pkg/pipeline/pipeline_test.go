package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingrin/reconctl/pkg/types"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (f *fakeExecutor) ExecuteAndWait(ctx context.Context, tool, cmd string, timeout time.Duration, logPath string) (ExecResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, tool)
	f.mu.Unlock()

	if f.fail != nil && f.fail[tool] {
		return ExecResult{OK: false}, assert.AnError
	}
	return ExecResult{OK: true}, nil
}

type fakeIngestor struct {
	rows        int
	err         error
	fileRows    int
	fileErr     error
	fileIngests []string
}

func (f *fakeIngestor) IngestStream(ctx context.Context, tool, cmd string, timeout time.Duration, logPath string) (int, error) {
	return f.rows, f.err
}

func (f *fakeIngestor) IngestOutputFile(ctx context.Context, tool, path string) (int, error) {
	f.fileIngests = append(f.fileIngests, tool)
	return f.fileRows, f.fileErr
}

type fakeExporter struct {
	lineCount int
}

func (f *fakeExporter) ExportForStage(ctx context.Context, stage types.Stage, targetID, workspaceDir string) (string, int, error) {
	return workspaceDir + "/input.txt", f.lineCount, nil
}

type fakeTemplateResolver struct{}

func (fakeTemplateResolver) Resolve(ctx context.Context, repoNames []string) ([]string, error) {
	paths := make([]string, len(repoNames))
	for i, n := range repoNames {
		paths[i] = "/templates/" + n
	}
	return paths, nil
}

func engineWithOneTool(stage types.Stage, tool string, cfg ToolConfig) EngineConfig {
	return EngineConfig{stage: {tool: cfg}}
}

func TestRunStage_EmptyInputShortCircuitsToSuccess(t *testing.T) {
	exec := &fakeExecutor{}
	r := New(exec, &fakeIngestor{}, &fakeExporter{lineCount: 0}, fakeTemplateResolver{}, false)

	result, err := r.runStage(context.Background(), "scan-1", "target-1", "/work", types.StagePortScan,
		map[string]ToolConfig{"naabu": {Enabled: true, Timeout: "30"}})

	require.NoError(t, err)
	assert.Empty(t, result.Outcomes)
	assert.Empty(t, exec.calls, "no tool should run against an empty input file")
}

func TestRunStage_ToolFailureDoesNotAbortStage(t *testing.T) {
	exec := &fakeExecutor{fail: map[string]bool{"naabu": true}}
	r := New(exec, &fakeIngestor{}, &fakeExporter{lineCount: 5}, fakeTemplateResolver{}, false)

	engine := EngineConfig{
		types.StagePortScan: {
			"naabu": {Enabled: true, Timeout: "30"},
		},
	}

	result, err := r.runStage(context.Background(), "scan-1", "target-1", "/work", types.StagePortScan, engine.ForStage(types.StagePortScan))
	require.NoError(t, err)
	require.Contains(t, result.Outcomes, "naabu")
	assert.False(t, result.Outcomes["naabu"].OK)
}

func TestRunStage_DisabledToolNeverRuns(t *testing.T) {
	exec := &fakeExecutor{}
	r := New(exec, &fakeIngestor{}, &fakeExporter{lineCount: 5}, fakeTemplateResolver{}, false)

	engine := engineWithOneTool(types.StagePortScan, "naabu", ToolConfig{Enabled: false, Timeout: "30"})

	result, err := r.runStage(context.Background(), "scan-1", "target-1", "/work", types.StagePortScan, engine.ForStage(types.StagePortScan))
	require.NoError(t, err)
	assert.NotContains(t, result.Outcomes, "naabu")
}

func TestRunStage_StreamingToolUsesIngestor(t *testing.T) {
	exec := &fakeExecutor{}
	ingestor := &fakeIngestor{rows: 7}
	r := New(exec, ingestor, &fakeExporter{lineCount: 5}, fakeTemplateResolver{}, false)

	engine := EngineConfig{
		types.StageVulnScan: {
			"nuclei": {Enabled: true, Timeout: "30", TemplateRepoNames: []string{"community"}},
		},
	}

	result, err := r.runStage(context.Background(), "scan-1", "target-1", "/work", types.StageVulnScan, engine.ForStage(types.StageVulnScan))
	require.NoError(t, err)
	require.Contains(t, result.Outcomes, "nuclei")
	assert.True(t, result.Outcomes["nuclei"].OK)
	assert.Equal(t, 7, result.Outcomes["nuclei"].RowCount)
	assert.Empty(t, exec.calls, "nuclei must go through the streaming ingestor, not execute_and_wait")
}

func TestRunStage_NucleiWithoutTemplateReposIsError(t *testing.T) {
	exec := &fakeExecutor{}
	r := New(exec, &fakeIngestor{}, &fakeExporter{lineCount: 5}, fakeTemplateResolver{}, false)

	engine := EngineConfig{
		types.StageVulnScan: {
			"nuclei": {Enabled: true, Timeout: "30"},
		},
	}

	result, err := r.runStage(context.Background(), "scan-1", "target-1", "/work", types.StageVulnScan, engine.ForStage(types.StageVulnScan))
	require.NoError(t, err)
	require.Contains(t, result.Outcomes, "nuclei")
	assert.False(t, result.Outcomes["nuclei"].OK)
	assert.Error(t, result.Outcomes["nuclei"].Err)
}

func TestRunStage_JSONDialectToolReplaysOutputFileThroughIngestor(t *testing.T) {
	exec := &fakeExecutor{}
	ingestor := &fakeIngestor{fileRows: 12}
	r := New(exec, ingestor, &fakeExporter{lineCount: 5}, fakeTemplateResolver{}, false)

	engine := engineWithOneTool(types.StagePortScan, "naabu", ToolConfig{Enabled: true, Timeout: "30"})

	result, err := r.runStage(context.Background(), "scan-1", "target-1", "/work", types.StagePortScan, engine.ForStage(types.StagePortScan))
	require.NoError(t, err)
	require.Contains(t, result.Outcomes, "naabu")
	assert.True(t, result.Outcomes["naabu"].OK)
	assert.Equal(t, 12, result.Outcomes["naabu"].RowCount)
	assert.Equal(t, []string{"naabu"}, ingestor.fileIngests)
}

func TestRunStage_JSONDialectIngestFailureMarksToolFailed(t *testing.T) {
	exec := &fakeExecutor{}
	ingestor := &fakeIngestor{fileErr: assert.AnError}
	r := New(exec, ingestor, &fakeExporter{lineCount: 5}, fakeTemplateResolver{}, false)

	engine := engineWithOneTool(types.StagePortScan, "naabu", ToolConfig{Enabled: true, Timeout: "30"})

	result, err := r.runStage(context.Background(), "scan-1", "target-1", "/work", types.StagePortScan, engine.ForStage(types.StagePortScan))
	require.NoError(t, err)
	assert.False(t, result.Outcomes["naabu"].OK)
	assert.Error(t, result.Outcomes["naabu"].Err)
}

func TestRunScan_RunsAllSixStagesAcrossGroups(t *testing.T) {
	exec := &fakeExecutor{}
	r := New(exec, &fakeIngestor{}, &fakeExporter{lineCount: 0}, fakeTemplateResolver{}, false)

	result, err := r.RunScan(context.Background(), "scan-1", "target-1", "/work", EngineConfig{})
	require.NoError(t, err)
	assert.Len(t, result.Stages, 6)
}
