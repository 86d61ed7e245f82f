package pipeline

import "github.com/xingrin/reconctl/pkg/types"

// ToolConfig is one tool's per-scan configuration, decoded from the
// ScanEngine's opaque config payload (spec.md §3 "Config: opaque text
// payload, interpreted by pkg/pipeline").
type ToolConfig struct {
	Enabled bool
	// Timeout is the raw configured value: "auto", an integer string, or
	// empty (treated as "auto").
	Timeout string
	// Config carries the tool's optional-fragment keys (spec.md §4.5),
	// e.g. {"ports": "1-1000"}.
	Config map[string]string
	// TemplateRepoNames is only consulted for the nuclei tool (spec.md
	// §4.6 "Nuclei special case").
	TemplateRepoNames []string
}

// EngineConfig is the fully-decoded (stage, tool) -> ToolConfig table for
// one scan engine.
type EngineConfig map[types.Stage]map[string]ToolConfig

// ForStage returns the tool configs for one stage, or an empty map if the
// engine doesn't configure that stage at all.
func (e EngineConfig) ForStage(stage types.Stage) map[string]ToolConfig {
	if tools, ok := e[stage]; ok {
		return tools
	}
	return map[string]ToolConfig{}
}
