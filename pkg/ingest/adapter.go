package ingest

import (
	"context"
	"time"

	"github.com/xingrin/reconctl/pkg/executor"
)

// rawStreamExecutor is the subset of *executor.Executor this package
// depends on; satisfied directly by pkg/executor.Executor.
type rawStreamExecutor interface {
	ExecuteStream(ctx context.Context, tool, cmdStr string, timeout time.Duration, logPath string) (<-chan executor.StreamLine, error)
}

// ExecutorAdapter wraps a *pkg/executor.Executor so it satisfies this
// package's StreamExecutor interface, translating executor.StreamLine to
// ingest.StreamLine without coupling the two packages' public types.
type ExecutorAdapter struct {
	exec rawStreamExecutor
}

// NewExecutorAdapter wraps exec (normally *executor.Executor).
func NewExecutorAdapter(exec rawStreamExecutor) *ExecutorAdapter {
	return &ExecutorAdapter{exec: exec}
}

// ExecuteStream satisfies StreamExecutor.
func (a *ExecutorAdapter) ExecuteStream(ctx context.Context, tool, cmd string, timeout time.Duration, logPath string) (<-chan StreamLine, error) {
	raw, err := a.exec.ExecuteStream(ctx, tool, cmd, timeout, logPath)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamLine)
	go func() {
		defer close(out)
		for l := range raw {
			out <- StreamLine{Text: l.Text, Err: l.Err}
		}
	}()
	return out, nil
}
