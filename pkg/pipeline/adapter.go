package pipeline

import (
	"context"
	"time"

	"github.com/xingrin/reconctl/pkg/executor"
)

// rawToolExecutor is the subset of *executor.Executor this package depends
// on; satisfied directly by pkg/executor.Executor.
type rawToolExecutor interface {
	ExecuteAndWait(ctx context.Context, tool, cmdStr string, timeout time.Duration, logPath string) (executor.Result, error)
}

// ExecutorAdapter wraps a *pkg/executor.Executor so it satisfies this
// package's ToolExecutor interface, translating executor.Result to
// pipeline.ExecResult without coupling the two packages' public types.
type ExecutorAdapter struct {
	exec rawToolExecutor
}

// NewExecutorAdapter wraps exec (normally *executor.Executor).
func NewExecutorAdapter(exec rawToolExecutor) *ExecutorAdapter {
	return &ExecutorAdapter{exec: exec}
}

// ExecuteAndWait satisfies ToolExecutor.
func (a *ExecutorAdapter) ExecuteAndWait(ctx context.Context, tool, cmd string, timeout time.Duration, logPath string) (ExecResult, error) {
	res, err := a.exec.ExecuteAndWait(ctx, tool, cmd, timeout, logPath)
	return ExecResult{OK: res.OK, ExitCode: res.ExitCode, TimedOut: res.TimedOut}, err
}
