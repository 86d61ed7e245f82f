package pipeline

import (
	"github.com/xingrin/reconctl/pkg/toolcmd"
	"github.com/xingrin/reconctl/pkg/types"
)

// buildCommand delegates to pkg/toolcmd's static template table (spec.md
// §4.5); kept as a thin indirection so pipeline's tests can substitute a
// fake table without touching the embedded one.
func buildCommand(stage types.Stage, tool string, placeholders map[string]string, toolConfig map[string]string) (string, error) {
	return toolcmd.Build(stage, tool, placeholders, toolConfig)
}
